//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/suite"

	"worksign/internal/review"
	"worksign/internal/review/store"
	"worksign/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite

	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time

	workItemID uuid.UUID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.postgres.TruncateTables(ctx, "review_decisions", "review_tokens", "review_rounds", "work_items"))

	s.workItemID = uuid.New()
	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO work_items (id, label, operation_type, quantity, unit, status) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.workItemID, "D12 pothole repair", "asphalt_patching", 34.5, "m2", "completed")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRound(version int) *review.Round {
	return &review.Round{
		ID:         uuid.New(),
		WorkItemID: s.workItemID,
		Version:    version,
		Status:     review.StatusPending,
		PublicNote: "please confirm",
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
}

func (s *PostgresStoreSuite) newToken(roundID uuid.UUID, jti string) *review.Token {
	return &review.Token{
		ID:          uuid.New(),
		RoundID:     roundID,
		RecipientID: uuid.New(),
		JTI:         jti,
		Scope:       review.ScopeWorkItemReview,
		IssuedAt:    s.now,
		ExpiresAt:   s.now.Add(72 * time.Hour),
	}
}

func (s *PostgresStoreSuite) TestRoundLifecycle() {
	ctx := context.Background()
	round := s.newRound(1)
	s.Require().NoError(s.store.Rounds().Create(ctx, round))

	found, err := s.store.Rounds().FindByID(ctx, round.ID)
	s.Require().NoError(err)
	s.Equal(round.Version, found.Version)
	s.Equal(review.StatusPending, found.Status)
	s.Nil(found.ClosedAt)

	closed := s.now.Add(time.Hour)
	found.Status = review.StatusAccepted
	found.ClosedAt = &closed
	found.UpdatedAt = closed
	s.Require().NoError(s.store.Rounds().Update(ctx, found))

	again, err := s.store.Rounds().FindByID(ctx, round.ID)
	s.Require().NoError(err)
	s.Equal(review.StatusAccepted, again.Status)
	s.Require().NotNil(again.ClosedAt)
	s.WithinDuration(closed, *again.ClosedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestVersionUniquePerWorkItem() {
	ctx := context.Background()
	s.Require().NoError(s.store.Rounds().Create(ctx, s.newRound(1)))

	err := s.store.Rounds().Create(ctx, s.newRound(1))
	s.Require().Error(err)

	next, err := s.store.Rounds().NextVersion(ctx, s.workItemID)
	s.Require().NoError(err)
	s.Equal(2, next)
}

func (s *PostgresStoreSuite) TestNextVersionStartsAtOne() {
	next, err := s.store.Rounds().NextVersion(context.Background(), uuid.New())
	s.Require().NoError(err)
	s.Equal(1, next)
}

func (s *PostgresStoreSuite) TestDuplicateJTI() {
	ctx := context.Background()
	round := s.newRound(1)
	s.Require().NoError(s.store.Rounds().Create(ctx, round))

	s.Require().NoError(s.store.Tokens().Create(ctx, s.newToken(round.ID, "same-jti")))
	err := s.store.Tokens().Create(ctx, s.newToken(round.ID, "same-jti"))
	s.ErrorIs(err, review.ErrDuplicateJTI)
}

func (s *PostgresStoreSuite) TestDuplicateDecision() {
	ctx := context.Background()
	round := s.newRound(1)
	s.Require().NoError(s.store.Rounds().Create(ctx, round))

	recipient := uuid.New()
	first := &review.Decision{
		ID:          uuid.New(),
		RoundID:     round.ID,
		RecipientID: recipient,
		Action:      review.ActionAccepted,
		DecidedAt:   s.now,
	}
	s.Require().NoError(s.store.Decisions().Create(ctx, first))

	second := &review.Decision{
		ID:          uuid.New(),
		RoundID:     round.ID,
		RecipientID: recipient,
		Action:      review.ActionChangeRequested,
		Comment:     "second thoughts",
		DecidedAt:   s.now,
	}
	err := s.store.Decisions().Create(ctx, second)
	s.ErrorIs(err, review.ErrDuplicateDecision)
}

func (s *PostgresStoreSuite) TestListExpirable() {
	ctx := context.Background()

	overdue := s.newRound(1)
	past := s.now.Add(-time.Hour)
	overdue.Deadline = &past
	s.Require().NoError(s.store.Rounds().Create(ctx, overdue))

	current := s.newRound(2)
	future := s.now.Add(time.Hour)
	current.Deadline = &future
	s.Require().NoError(s.store.Rounds().Create(ctx, current))

	open := s.newRound(3)
	s.Require().NoError(s.store.Rounds().Create(ctx, open))

	expirable, err := s.store.Rounds().ListExpirable(ctx, s.now)
	s.Require().NoError(err)
	s.Require().Len(expirable, 1)
	s.Equal(overdue.ID, expirable[0].ID)
}

// TestConcurrentConsumption verifies the row lock serializes concurrent
// write-path transactions: exactly one consumes the token.
func (s *PostgresStoreSuite) TestConcurrentConsumption() {
	ctx := context.Background()
	round := s.newRound(1)
	s.Require().NoError(s.store.Rounds().Create(ctx, round))
	token := s.newToken(round.ID, "contended-jti")
	s.Require().NoError(s.store.Tokens().Create(ctx, token))

	const goroutines = 10
	var wg sync.WaitGroup
	var consumed atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.store.RunInTx(ctx, token.JTI, func(ctx context.Context, tx review.Store) error {
				locked, err := tx.Tokens().FindByJTIForUpdate(ctx, token.JTI)
				if err != nil {
					return err
				}
				if locked.UsedAt != nil {
					return errors.New("already used")
				}
				now := time.Now().UTC()
				locked.UsedAt = &now
				if err := tx.Tokens().Update(ctx, locked); err != nil {
					return err
				}
				consumed.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	s.Equal(int32(1), consumed.Load())

	final, err := s.store.Tokens().FindByJTI(ctx, token.JTI)
	s.Require().NoError(err)
	s.NotNil(final.UsedAt)
}

// TestRollback verifies a failing transaction leaves no partial writes.
func (s *PostgresStoreSuite) TestRollback() {
	ctx := context.Background()
	round := s.newRound(1)
	s.Require().NoError(s.store.Rounds().Create(ctx, round))
	token := s.newToken(round.ID, "rollback-jti")
	s.Require().NoError(s.store.Tokens().Create(ctx, token))

	sentinel := errors.New("abort")
	err := s.store.RunInTx(ctx, token.JTI, func(ctx context.Context, tx review.Store) error {
		locked, err := tx.Tokens().FindByJTIForUpdate(ctx, token.JTI)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		locked.UsedAt = &now
		if err := tx.Tokens().Update(ctx, locked); err != nil {
			return err
		}
		if err := tx.Decisions().Create(ctx, &review.Decision{
			ID:          uuid.New(),
			RoundID:     round.ID,
			RecipientID: token.RecipientID,
			Action:      review.ActionAccepted,
			DecidedAt:   now,
		}); err != nil {
			return err
		}
		return sentinel
	})
	s.ErrorIs(err, sentinel)

	final, err := s.store.Tokens().FindByJTI(ctx, token.JTI)
	s.Require().NoError(err)
	s.Nil(final.UsedAt)

	decisions, err := s.store.Decisions().ListByRound(ctx, round.ID)
	s.Require().NoError(err)
	s.Empty(decisions)
}

// TestDecisionRoundTripsGeometry verifies geometry and attachments survive
// storage.
func (s *PostgresStoreSuite) TestDecisionRoundTripsGeometry() {
	ctx := context.Background()
	round := s.newRound(1)
	s.Require().NoError(s.store.Rounds().Create(ctx, round))

	decision := &review.Decision{
		ID:          uuid.New(),
		RoundID:     round.ID,
		RecipientID: uuid.New(),
		Action:      review.ActionChangeRequested,
		Comment:     "cracking at the north edge",
		Geom:        orb.Point{461000, 5072000},
		Attachments: []review.Attachment{
			{Name: "photo.jpg", ObjectKey: "k/photo.jpg", ContentType: "image/jpeg", Size: 12345},
		},
		SnapshotHash: "hash",
		DecidedAt:    s.now,
		IPAddress:    "198.51.100.7",
		UserAgent:    "integration-test",
	}
	s.Require().NoError(s.store.Decisions().Create(ctx, decision))

	listed, err := s.store.Decisions().ListByRound(ctx, round.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(decision.Comment, listed[0].Comment)
	s.NotNil(listed[0].Geom)
	s.Require().Len(listed[0].Attachments, 1)
	s.Equal("photo.jpg", listed[0].Attachments[0].Name)
}
