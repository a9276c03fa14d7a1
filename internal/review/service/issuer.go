package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"worksign/internal/review"
	dErrors "worksign/pkg/domain-errors"
)

// jtiBytes gives 256 bits of entropy in the URL-embedded identifier.
const jtiBytes = 32

// jtiRetries bounds collision retries before giving up. A collision is
// practically impossible; hitting the bound means something is wrong with the
// entropy source.
const jtiRetries = 3

// Issuer mints and manages the single-use capability tokens that gate review
// rounds.
type Issuer struct {
	clock Clock
}

func NewIssuer(clock Clock) *Issuer {
	if clock == nil {
		clock = time.Now
	}
	return &Issuer{clock: clock}
}

// Issue mints a token bound to one round and one recipient. The tokens store
// is passed per call so issuance composes with transactions.
func (i *Issuer) Issue(ctx context.Context, tokens review.TokenStore, round *review.Round, recipientID uuid.UUID, scope string, ttl time.Duration, deliveredTo string) (*review.Token, error) {
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "token ttl must be positive")
	}
	now := i.clock()
	for attempt := 0; attempt < jtiRetries; attempt++ {
		jti, err := newJTI()
		if err != nil {
			return nil, fmt.Errorf("generate jti: %w", err)
		}
		token := &review.Token{
			ID:          uuid.New(),
			RoundID:     round.ID,
			RecipientID: recipientID,
			JTI:         jti,
			Scope:       scope,
			IssuedAt:    now,
			ExpiresAt:   now.Add(ttl),
			DeliveredTo: deliveredTo,
		}
		err = tokens.Create(ctx, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, review.ErrDuplicateJTI) {
			return nil, err
		}
	}
	return nil, dErrors.New(dErrors.CodeConstraintViolation, "could not generate a unique token identifier")
}

// Consume marks the token used, only if it is Active for the given scope at
// this instant. Returns false as a no-op otherwise. Concurrency safety comes
// from the exclusive token acquisition the caller holds (write-path
// transaction).
func (i *Issuer) Consume(ctx context.Context, tokens review.TokenStore, token *review.Token, scope string) (bool, error) {
	now := i.clock()
	if token.Validity(now, scope) != review.TokenActive {
		return false, nil
	}
	token.UsedAt = &now
	if err := tokens.Update(ctx, token); err != nil {
		return false, err
	}
	return true, nil
}

// Revoke marks the token revoked. Idempotent: revoking a revoked token is a
// no-op returning false.
func (i *Issuer) Revoke(ctx context.Context, tokens review.TokenStore, token *review.Token) (bool, error) {
	if token.RevokedAt != nil {
		return false, nil
	}
	now := i.clock()
	token.RevokedAt = &now
	if err := tokens.Update(ctx, token); err != nil {
		return false, err
	}
	return true, nil
}

func newJTI() (string, error) {
	buf := make([]byte, jtiBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
