package handler

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "worksign/pkg/domain-errors"
)

// CreateRoundRequest is the body for POST /internal/reviews.
type CreateRoundRequest struct {
	WorkItemID string     `json:"work_item_id"`
	PublicNote string     `json:"public_note"`
	Deadline   *time.Time `json:"deadline,omitempty"`

	parsedWorkItemID uuid.UUID
}

func (r *CreateRoundRequest) Validate() error {
	id, err := uuid.Parse(strings.TrimSpace(r.WorkItemID))
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "work_item_id must be a UUID")
	}
	r.parsedWorkItemID = id
	return nil
}

func (r *CreateRoundRequest) ParsedWorkItemID() uuid.UUID {
	return r.parsedWorkItemID
}

// OpenRoundRequest is the body for POST /internal/reviews/{id}/open.
type OpenRoundRequest struct {
	RecipientID string `json:"recipient_id"`

	parsedRecipientID uuid.UUID
}

func (r *OpenRoundRequest) Validate() error {
	id, err := uuid.Parse(strings.TrimSpace(r.RecipientID))
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "recipient_id must be a UUID")
	}
	r.parsedRecipientID = id
	return nil
}

func (r *OpenRoundRequest) ParsedRecipientID() uuid.UUID {
	return r.parsedRecipientID
}
