package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventAction identifies what happened.
type EventAction string

const (
	EventReviewOpened     EventAction = "review.opened"
	EventReviewCancelled  EventAction = "review.cancelled"
	EventReviewExpired    EventAction = "review.expired"
	EventTokenIssued      EventAction = "token.issued"
	EventTokenRevoked     EventAction = "token.revoked"
	EventDecisionRecorded EventAction = "decision.recorded"
	EventAuthDenied       EventAction = "auth.denied"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    EventAction
	Actor     string
	RoundID   uuid.UUID
	TokenJTI  string
	Detail    map[string]string
}
