package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"worksign/internal/audit"
	"worksign/internal/customer"
	"worksign/internal/notify"
	"worksign/internal/review"
	"worksign/internal/workitem"
	dErrors "worksign/pkg/domain-errors"
	"worksign/pkg/requestcontext"
)

// Admin drives the back-office side of the workflow: creating and opening
// review rounds, issuing and revoking tokens, cancelling, and sweeping
// overdue rounds.
type Admin struct {
	store         review.Store
	workItems     workitem.Store
	customers     customer.Store
	issuer        *Issuer
	clock         Clock
	deliverer     notify.LinkDeliverer
	audit         audit.Emitter
	logger        *slog.Logger
	publicBaseURL string
	tokenTTL      time.Duration
}

func NewAdmin(store review.Store, workItems workitem.Store, customers customer.Store, issuer *Issuer, clock Clock, deliverer notify.LinkDeliverer, emitter audit.Emitter, logger *slog.Logger, publicBaseURL string, tokenTTL time.Duration) *Admin {
	if clock == nil {
		clock = time.Now
	}
	return &Admin{
		store:         store,
		workItems:     workItems,
		customers:     customers,
		issuer:        issuer,
		clock:         clock,
		deliverer:     deliverer,
		audit:         emitter,
		logger:        logger,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		tokenTTL:      tokenTTL,
	}
}

// CreateRound opens a new draft round for the work item at the next free
// version.
func (a *Admin) CreateRound(ctx context.Context, workItemID uuid.UUID, publicNote string, deadline *time.Time) (*review.Round, error) {
	if _, err := a.workItems.FindByID(ctx, workItemID); err != nil {
		return nil, err
	}

	var round *review.Round
	err := a.store.RunInTx(ctx, workItemID.String(), func(ctx context.Context, s review.Store) error {
		version, err := s.Rounds().NextVersion(ctx, workItemID)
		if err != nil {
			return err
		}
		now := a.clock()
		round = &review.Round{
			ID:         uuid.New(),
			WorkItemID: workItemID,
			Version:    version,
			Status:     review.StatusDraft,
			Deadline:   deadline,
			PublicNote: publicNote,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return s.Rounds().Create(ctx, round)
	})
	if err != nil {
		return nil, err
	}
	return round, nil
}

// OpenForReview transitions the round to pending, fingerprints the payload
// the customer will see, issues the capability token, and hands the link to
// the deliverer. The transition, hash, and token commit together; delivery
// happens after commit and never unwinds it.
func (a *Admin) OpenForReview(ctx context.Context, roundID, recipientID uuid.UUID) (*review.Round, *review.Token, error) {
	contact, err := a.customers.FindByID(ctx, recipientID)
	if err != nil {
		return nil, nil, err
	}

	var (
		round *review.Round
		token *review.Token
	)
	err = a.store.RunInTx(ctx, roundID.String(), func(ctx context.Context, s review.Store) error {
		round, err = s.Rounds().FindByID(ctx, roundID)
		if err != nil {
			return err
		}
		item, err := a.workItems.FindByID(ctx, round.WorkItemID)
		if err != nil {
			return err
		}

		now := a.clock()
		if err := OpenForReview(round, now); err != nil {
			return err
		}
		hash, err := FingerprintRound(round, item)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "fingerprint review payload")
		}
		round.SnapshotHash = hash
		if err := s.Rounds().Update(ctx, round); err != nil {
			return err
		}

		token, err = a.issuer.Issue(ctx, s.Tokens(), round, recipientID, review.ScopeWorkItemReview, a.tokenTTL, contact.Email)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	link := a.ReviewLink(token.JTI)
	if err := a.deliverer.DeliverReviewLink(ctx, contact, link); err != nil {
		a.logger.Warn("review link delivery failed",
			"round_id", round.ID,
			"contact_id", contact.ID,
			"error", err,
		)
	}

	actor := requestcontext.Actor(ctx)
	a.audit.Emit(ctx, audit.Event{
		Action:  audit.EventReviewOpened,
		Actor:   actor,
		RoundID: round.ID,
		Detail:  map[string]string{"version": fmt.Sprintf("%d", round.Version)},
	})
	a.audit.Emit(ctx, audit.Event{
		Action:   audit.EventTokenIssued,
		Actor:    actor,
		RoundID:  round.ID,
		TokenJTI: token.JTI,
		Detail:   map[string]string{"recipient_id": recipientID.String()},
	})
	return round, token, nil
}

// CancelRound cancels an active round and revokes its outstanding tokens.
func (a *Admin) CancelRound(ctx context.Context, roundID uuid.UUID) (*review.Round, error) {
	var round *review.Round
	err := a.store.RunInTx(ctx, roundID.String(), func(ctx context.Context, s review.Store) error {
		var err error
		round, err = s.Rounds().FindByID(ctx, roundID)
		if err != nil {
			return err
		}
		if err := Cancel(round, a.clock()); err != nil {
			return err
		}
		if err := s.Rounds().Update(ctx, round); err != nil {
			return err
		}

		tokens, err := s.Tokens().ListByRound(ctx, roundID)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if _, err := a.issuer.Revoke(ctx, s.Tokens(), t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.audit.Emit(ctx, audit.Event{
		Action:  audit.EventReviewCancelled,
		Actor:   requestcontext.Actor(ctx),
		RoundID: roundID,
	})
	return round, nil
}

// RevokeToken revokes a single token out-of-band. Idempotent; reports
// whether this call performed the revocation.
func (a *Admin) RevokeToken(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := a.store.RunInTx(ctx, jti, func(ctx context.Context, s review.Store) error {
		token, err := s.Tokens().FindByJTIForUpdate(ctx, jti)
		if err != nil {
			return err
		}
		revoked, err = a.issuer.Revoke(ctx, s.Tokens(), token)
		return err
	})
	if err != nil {
		return false, err
	}
	if revoked {
		a.audit.Emit(ctx, audit.Event{
			Action:   audit.EventTokenRevoked,
			Actor:    requestcontext.Actor(ctx),
			TokenJTI: jti,
		})
	}
	return revoked, nil
}

// SweepExpired transitions every pending round whose deadline has passed to
// expired and revokes its outstanding tokens, which may still have TTL left.
// Returns the number of rounds expired. Intended for a periodic back-office
// job; the public path never expires rounds.
func (a *Admin) SweepExpired(ctx context.Context) (int, error) {
	now := a.clock()
	rounds, err := a.store.Rounds().ListExpirable(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, r := range rounds {
		err := a.store.RunInTx(ctx, r.ID.String(), func(ctx context.Context, s review.Store) error {
			round, err := s.Rounds().FindByID(ctx, r.ID)
			if err != nil {
				return err
			}
			if err := Expire(round, now); err != nil {
				return err
			}
			if err := s.Rounds().Update(ctx, round); err != nil {
				return err
			}

			tokens, err := s.Tokens().ListByRound(ctx, r.ID)
			if err != nil {
				return err
			}
			for _, t := range tokens {
				if _, err := a.issuer.Revoke(ctx, s.Tokens(), t); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			// Another sweep or a late decision may have closed it first.
			if dErrors.CodeOf(err) == dErrors.CodeInvalidTransition {
				continue
			}
			return expired, err
		}
		expired++
		a.audit.Emit(ctx, audit.Event{
			Action:  audit.EventReviewExpired,
			Actor:   "sweep",
			RoundID: r.ID,
		})
	}
	return expired, nil
}

// RoundDetail aggregates a round with its decisions and tokens for the
// back-office view.
type RoundDetail struct {
	Round     *review.Round
	Decisions []*review.Decision
	Tokens    []*review.Token
}

// GetRound loads a round with its decisions and tokens.
func (a *Admin) GetRound(ctx context.Context, roundID uuid.UUID) (*RoundDetail, error) {
	round, err := a.store.Rounds().FindByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	decisions, err := a.store.Decisions().ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	tokens, err := a.store.Tokens().ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return &RoundDetail{Round: round, Decisions: decisions, Tokens: tokens}, nil
}

// ReviewLink renders the public URL a token gates.
func (a *Admin) ReviewLink(jti string) string {
	return fmt.Sprintf("%s/public/review/item/%s/", a.publicBaseURL, jti)
}
