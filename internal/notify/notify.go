// Package notify delivers review links to customers. The production
// deployment fronts a mail relay; the default implementation records the
// delivery in the structured log, which is enough for development and for
// environments where the relay is owned by another team.
package notify

import (
	"context"
	"log/slog"

	"worksign/internal/customer"
)

// LinkDeliverer sends a review link to a contact. Delivery is best-effort
// from the review workflow's perspective; the round opens whether or not the
// message leaves.
type LinkDeliverer interface {
	DeliverReviewLink(ctx context.Context, contact *customer.Contact, link string) error
}

// LogDeliverer writes the link to the structured log instead of sending it.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) DeliverReviewLink(ctx context.Context, contact *customer.Contact, link string) error {
	d.logger.InfoContext(ctx, "review link ready for delivery",
		"contact_id", contact.ID,
		"email", contact.Email,
		"link", link,
	)
	return nil
}
