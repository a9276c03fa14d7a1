// Package jwtauth signs and validates the short-lived bearer tokens used by
// back-office staff against the internal API. Customer access never uses
// these; customers act through single-use review links.
package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "worksign/pkg/domain-errors"
)

const (
	issuer   = "worksign"
	audience = "worksign-internal"
)

// Claims carries the back-office actor identity.
type Claims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation with an HMAC signing key.
type Service struct {
	signingKey []byte
	clock      func() time.Time
}

func New(signingKey string) *Service {
	return &Service{signingKey: []byte(signingKey), clock: time.Now}
}

// Sign issues a bearer token for a back-office actor.
func (s *Service) Sign(actor string, expiresIn time.Duration) (string, error) {
	now := s.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  []string{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})
	return token.SignedString(s.signingKey)
}

// Validate checks signature, expiry, and audience, returning the actor.
func (s *Service) Validate(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Actor == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims.Actor, nil
}
