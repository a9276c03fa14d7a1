// Package review holds the customer sign-off domain: review rounds, the
// single-use capability tokens that gate them, and the decisions customers
// record against them.
package review

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// ScopeWorkItemReview is the only capability this service issues. Scope is an
// exact-match check against this literal; hierarchical scopes are a future
// design choice.
const ScopeWorkItemReview = "workitem:review"

// Status is the lifecycle state of a review round.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPending         Status = "pending_review"
	StatusAccepted        Status = "accepted"
	StatusChangeRequested Status = "change_requested"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusChangeRequested, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Action is a customer's ruling on a review round.
type Action string

const (
	ActionAccepted        Action = "accepted"
	ActionChangeRequested Action = "change_requested"
)

// Valid reports whether a is one of the permissible decision actions.
func (a Action) Valid() bool {
	return a == ActionAccepted || a == ActionChangeRequested
}

// AllowedActions lists the permissible decision actions, in wire order.
func AllowedActions() []Action {
	return []Action{ActionAccepted, ActionChangeRequested}
}

// Round is one versioned review cycle for one unit of work. (work item,
// version) is unique; version numbering restarts per work item.
type Round struct {
	ID           uuid.UUID
	WorkItemID   uuid.UUID
	Version      int
	Status       Status
	Deadline     *time.Time
	PublicNote   string
	SnapshotHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

// IsActive reports whether the round still awaits an outcome.
func (r *Round) IsActive() bool {
	return (r.Status == StatusDraft || r.Status == StatusPending) && r.ClosedAt == nil
}

// IsOverdue reports whether the round is pending past its deadline.
func (r *Round) IsOverdue(now time.Time) bool {
	return r.Status == StatusPending && r.Deadline != nil && now.After(*r.Deadline)
}

// TokenState is the result of evaluating a token's validity.
type TokenState string

const (
	TokenActive        TokenState = "active"
	TokenRevoked       TokenState = "revoked"
	TokenUsed          TokenState = "used"
	TokenExpired       TokenState = "expired"
	TokenScopeMismatch TokenState = "scope_mismatch"
)

// Token is a bearer capability granting one recipient a bounded ability to
// decide one review round. The jti is the only credential; it is generated
// once and never regenerated after issuance.
type Token struct {
	ID          uuid.UUID
	RoundID     uuid.UUID
	RecipientID uuid.UUID
	JTI         string
	Scope       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
	RevokedAt   *time.Time
	DeliveredTo string
	Meta        map[string]string
}

// Validity evaluates the token against the current time and an expected
// scope. It is a pure predicate; repeated evaluation without mutation yields
// the same result. Revocation dominates every other state because it is an
// explicit administrative override, then consumption, then expiry, then
// scope.
func (t *Token) Validity(now time.Time, scope string) TokenState {
	switch {
	case t.RevokedAt != nil:
		return TokenRevoked
	case t.UsedAt != nil:
		return TokenUsed
	case !now.Before(t.ExpiresAt):
		return TokenExpired
	case t.Scope != scope:
		return TokenScopeMismatch
	default:
		return TokenActive
	}
}

// Attachment is opaque metadata for a document or photo a customer referenced
// in a decision. The bytes live in the object store; only metadata is kept
// with the decision.
type Attachment struct {
	Name        string `json:"name"`
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// Decision is the immutable record of a customer's ruling on one review
// round. A recipient decides a given round at most once; records are
// append-only.
type Decision struct {
	ID           uuid.UUID
	RoundID      uuid.UUID
	RecipientID  uuid.UUID
	Action       Action
	Comment      string
	Geom         orb.Geometry // storage CRS; nil when absent
	Attachments  []Attachment
	SnapshotHash string
	DecidedAt    time.Time
	IPAddress    string
	UserAgent    string
}
