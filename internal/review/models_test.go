package review

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

// TokenValiditySuite tests the token validity predicate.
type TokenValiditySuite struct {
	suite.Suite

	now time.Time
}

func TestTokenValiditySuite(t *testing.T) {
	suite.Run(t, new(TokenValiditySuite))
}

func (s *TokenValiditySuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *TokenValiditySuite) activeToken() *Token {
	return &Token{
		ID:          uuid.New(),
		RoundID:     uuid.New(),
		RecipientID: uuid.New(),
		JTI:         "test-jti",
		Scope:       ScopeWorkItemReview,
		IssuedAt:    s.now.Add(-time.Hour),
		ExpiresAt:   s.now.Add(time.Hour),
	}
}

// TestPriority verifies the evaluation order when several conditions hold:
// revoked dominates used dominates expired dominates scope.
func (s *TokenValiditySuite) TestPriority() {
	past := s.now.Add(-time.Minute)

	cases := []struct {
		name   string
		mutate func(t *Token)
		want   TokenState
	}{
		{
			name:   "pristine token is active",
			mutate: func(*Token) {},
			want:   TokenActive,
		},
		{
			name: "revoked wins over everything",
			mutate: func(t *Token) {
				t.RevokedAt = &past
				t.UsedAt = &past
				t.ExpiresAt = past
				t.Scope = "other"
			},
			want: TokenRevoked,
		},
		{
			name: "used wins over expired and scope",
			mutate: func(t *Token) {
				t.UsedAt = &past
				t.ExpiresAt = past
				t.Scope = "other"
			},
			want: TokenUsed,
		},
		{
			name: "expired wins over scope",
			mutate: func(t *Token) {
				t.ExpiresAt = past
				t.Scope = "other"
			},
			want: TokenExpired,
		},
		{
			name: "wrong scope on an otherwise good token",
			mutate: func(t *Token) {
				t.Scope = "other"
			},
			want: TokenScopeMismatch,
		},
		{
			name: "expiry boundary is exclusive",
			mutate: func(t *Token) {
				t.ExpiresAt = s.now
			},
			want: TokenExpired,
		},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			token := s.activeToken()
			tc.mutate(token)
			s.Equal(tc.want, token.Validity(s.now, ScopeWorkItemReview))
		})
	}
}

// TestPureEvaluation verifies repeated evaluation without mutation is stable.
func (s *TokenValiditySuite) TestPureEvaluation() {
	token := s.activeToken()
	for i := 0; i < 5; i++ {
		s.Equal(TokenActive, token.Validity(s.now, ScopeWorkItemReview))
	}
	s.Equal(TokenExpired, token.Validity(s.now.Add(2*time.Hour), ScopeWorkItemReview))
	s.Equal(TokenActive, token.Validity(s.now, ScopeWorkItemReview))
}

// RoundSuite tests round state predicates.
type RoundSuite struct {
	suite.Suite
}

func TestRoundSuite(t *testing.T) {
	suite.Run(t, new(RoundSuite))
}

func (s *RoundSuite) TestTerminal() {
	s.False(StatusDraft.Terminal())
	s.False(StatusPending.Terminal())
	s.True(StatusAccepted.Terminal())
	s.True(StatusChangeRequested.Terminal())
	s.True(StatusExpired.Terminal())
	s.True(StatusCancelled.Terminal())
}

func (s *RoundSuite) TestIsActive() {
	now := time.Now()
	r := &Round{Status: StatusDraft}
	s.True(r.IsActive())

	r.Status = StatusPending
	s.True(r.IsActive())

	r.ClosedAt = &now
	s.False(r.IsActive())

	r = &Round{Status: StatusAccepted, ClosedAt: &now}
	s.False(r.IsActive())
}

func (s *RoundSuite) TestIsOverdue() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Hour)

	s.True((&Round{Status: StatusPending, Deadline: &deadline}).IsOverdue(now))
	s.False((&Round{Status: StatusPending}).IsOverdue(now))
	s.False((&Round{Status: StatusDraft, Deadline: &deadline}).IsOverdue(now))

	future := now.Add(time.Hour)
	s.False((&Round{Status: StatusPending, Deadline: &future}).IsOverdue(now))
}

func (s *RoundSuite) TestAllowedActions() {
	s.Equal([]Action{ActionAccepted, ActionChangeRequested}, AllowedActions())
	s.True(ActionAccepted.Valid())
	s.True(ActionChangeRequested.Valid())
	s.False(Action("maybe").Valid())
	s.False(Action("").Valid())
}
