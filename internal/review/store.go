package review

import (
	"context"
	"time"

	"github.com/google/uuid"

	dErrors "worksign/pkg/domain-errors"
)

// Store errors shared by the memory and Postgres implementations.
var (
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

	// ErrDuplicateJTI signals a jti collision on insert. Practically
	// impossible at 256 bits of entropy, but it must surface so the issuer
	// can retry rather than silently shadow an existing token.
	ErrDuplicateJTI = dErrors.New(dErrors.CodeConstraintViolation, "duplicate token identifier")

	// ErrDuplicateDecision signals a second decision by the same recipient
	// on the same round.
	ErrDuplicateDecision = dErrors.New(dErrors.CodeAlreadyDecided, "recipient already decided this review round")
)

// RoundStore persists review rounds.
type RoundStore interface {
	Create(ctx context.Context, round *Round) error
	FindByID(ctx context.Context, id uuid.UUID) (*Round, error)
	Update(ctx context.Context, round *Round) error
	// NextVersion returns max(version)+1 for the work item, starting at 1.
	NextVersion(ctx context.Context, workItemID uuid.UUID) (int, error)
	// ListExpirable returns pending rounds whose deadline has passed.
	ListExpirable(ctx context.Context, now time.Time) ([]*Round, error)
}

// TokenStore persists capability tokens.
type TokenStore interface {
	Create(ctx context.Context, token *Token) error
	FindByJTI(ctx context.Context, jti string) (*Token, error)
	// FindByJTIForUpdate resolves a token while holding the exclusive
	// acquisition required by the write path. Outside a transaction it
	// behaves like FindByJTI.
	FindByJTIForUpdate(ctx context.Context, jti string) (*Token, error)
	Update(ctx context.Context, token *Token) error
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]*Token, error)
}

// DecisionStore persists customer decisions, append-only.
type DecisionStore interface {
	Create(ctx context.Context, decision *Decision) error
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]*Decision, error)
}

// Store bundles the three repositories with a transactional boundary.
type Store interface {
	Rounds() RoundStore
	Tokens() TokenStore
	Decisions() DecisionStore

	// RunInTx executes fn atomically. key identifies the contended token
	// resource (its jti) so lock implementations can serialize per token;
	// the Postgres implementation relies on row locks instead and treats
	// key as advisory. All mutations inside fn commit or roll back
	// together.
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, s Store) error) error
}
