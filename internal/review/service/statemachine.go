package service

import (
	"fmt"
	"time"

	"worksign/internal/review"
	dErrors "worksign/pkg/domain-errors"
)

// The state machine functions mutate a round in memory and leave persistence
// to the caller, so the same rules apply inside and outside a transaction.
//
//	draft -> pending_review -> {accepted, change_requested, expired, cancelled}
//
// Terminal states are absorbing. pending -> pending is disallowed: a new
// decision cycle requires a new version, not a status loop.

// OpenForReview transitions draft -> pending.
func OpenForReview(r *review.Round, now time.Time) error {
	if r.Status != review.StatusDraft {
		return invalidTransition(r.Status, review.StatusPending)
	}
	r.Status = review.StatusPending
	r.UpdatedAt = now
	return nil
}

// CloseWithOutcome transitions pending -> accepted | change_requested and
// stamps closed_at exactly once.
func CloseWithOutcome(r *review.Round, outcome review.Status, now time.Time) error {
	if outcome != review.StatusAccepted && outcome != review.StatusChangeRequested {
		return dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("%q is not a decision outcome", outcome))
	}
	if r.Status != review.StatusPending {
		return invalidTransition(r.Status, outcome)
	}
	r.Status = outcome
	r.ClosedAt = &now
	r.UpdatedAt = now
	return nil
}

// Expire transitions pending -> expired, only past the deadline. Intended for
// the back-office sweep, never the public path.
func Expire(r *review.Round, now time.Time) error {
	if r.Status != review.StatusPending {
		return invalidTransition(r.Status, review.StatusExpired)
	}
	if !r.IsOverdue(now) {
		return dErrors.New(dErrors.CodeInvalidTransition, "review round deadline has not passed")
	}
	r.Status = review.StatusExpired
	r.ClosedAt = &now
	r.UpdatedAt = now
	return nil
}

// Cancel transitions any active state -> cancelled (back-office override).
func Cancel(r *review.Round, now time.Time) error {
	if r.Status.Terminal() {
		return invalidTransition(r.Status, review.StatusCancelled)
	}
	r.Status = review.StatusCancelled
	r.ClosedAt = &now
	r.UpdatedAt = now
	return nil
}

func invalidTransition(from, to review.Status) error {
	return dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("cannot transition review round from %q to %q", from, to))
}
