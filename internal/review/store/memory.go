// Package store provides the persistence implementations for the review
// domain: an in-memory store for tests and single-node deployments, and a
// Postgres store for production.
package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"worksign/internal/review"
)

// numShards spreads per-token transaction locks to limit contention.
const numShards = 128

// Memory keeps everything in maps guarded by a single RWMutex. It
// intentionally favors clarity over performance.
//
// RunInTx serializes on a per-token shard lock rather than a database
// transaction. Mutations inside the transaction are journaled and undone in
// reverse order when fn returns an error, so a failed write path leaves no
// partial state behind.
type Memory struct {
	mu        sync.RWMutex
	rounds    map[uuid.UUID]review.Round
	tokens    map[string]review.Token // keyed by jti
	decisions map[uuid.UUID][]review.Decision
	decided   map[string]struct{} // roundID|recipientID uniqueness

	locker Locker
}

// NewMemory builds an empty in-memory store using in-process shard locks.
func NewMemory() *Memory {
	return NewMemoryWithLocker(nil)
}

// NewMemoryWithLocker builds an in-memory store with an external Locker,
// e.g. the Redis lease lock for multi-instance deployments.
func NewMemoryWithLocker(locker Locker) *Memory {
	m := &Memory{
		rounds:    make(map[uuid.UUID]review.Round),
		tokens:    make(map[string]review.Token),
		decisions: make(map[uuid.UUID][]review.Decision),
		decided:   make(map[string]struct{}),
		locker:    locker,
	}
	if m.locker == nil {
		m.locker = NewShardLocker()
	}
	return m
}

func (m *Memory) Rounds() review.RoundStore       { return (*memoryRounds)(m) }
func (m *Memory) Tokens() review.TokenStore       { return (*memoryTokens)(m) }
func (m *Memory) Decisions() review.DecisionStore { return (*memoryDecisions)(m) }

func (m *Memory) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, s review.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release, err := m.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	tx := &memoryTx{m: m}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx journals every mutation made through it so the store can undo
// them when the transaction function fails.
type memoryTx struct {
	m    *Memory
	undo []func()
}

func (t *memoryTx) Rounds() review.RoundStore       { return txRounds{t} }
func (t *memoryTx) Tokens() review.TokenStore       { return txTokens{t} }
func (t *memoryTx) Decisions() review.DecisionStore { return txDecisions{t} }

// RunInTx inside an open transaction joins it: the shard lock is already
// held and the journal is shared.
func (t *memoryTx) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context, s review.Store) error) error {
	return fn(ctx, t)
}

func (t *memoryTx) rollback() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

type txRounds struct{ tx *memoryTx }

func (t txRounds) Create(_ context.Context, round *review.Round) error {
	m := t.tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	id := round.ID
	t.tx.undo = append(t.tx.undo, func() { delete(m.rounds, id) })
	m.rounds[id] = *round
	return nil
}

func (t txRounds) Update(_ context.Context, round *review.Round) error {
	m := t.tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.rounds[round.ID]
	if !ok {
		return review.ErrNotFound
	}
	id := round.ID
	t.tx.undo = append(t.tx.undo, func() { m.rounds[id] = prev })
	m.rounds[id] = *round
	return nil
}

func (t txRounds) FindByID(ctx context.Context, id uuid.UUID) (*review.Round, error) {
	return (*memoryRounds)(t.tx.m).FindByID(ctx, id)
}

func (t txRounds) NextVersion(ctx context.Context, workItemID uuid.UUID) (int, error) {
	return (*memoryRounds)(t.tx.m).NextVersion(ctx, workItemID)
}

func (t txRounds) ListExpirable(ctx context.Context, now time.Time) ([]*review.Round, error) {
	return (*memoryRounds)(t.tx.m).ListExpirable(ctx, now)
}

type txTokens struct{ tx *memoryTx }

func (t txTokens) Create(_ context.Context, token *review.Token) error {
	m := t.tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[token.JTI]; exists {
		return review.ErrDuplicateJTI
	}
	jti := token.JTI
	t.tx.undo = append(t.tx.undo, func() { delete(m.tokens, jti) })
	m.tokens[jti] = *token
	return nil
}

func (t txTokens) Update(_ context.Context, token *review.Token) error {
	m := t.tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.tokens[token.JTI]
	if !ok {
		return review.ErrNotFound
	}
	jti := token.JTI
	t.tx.undo = append(t.tx.undo, func() { m.tokens[jti] = prev })
	m.tokens[jti] = *token
	return nil
}

func (t txTokens) FindByJTI(ctx context.Context, jti string) (*review.Token, error) {
	return (*memoryTokens)(t.tx.m).FindByJTI(ctx, jti)
}

func (t txTokens) FindByJTIForUpdate(ctx context.Context, jti string) (*review.Token, error) {
	return (*memoryTokens)(t.tx.m).FindByJTIForUpdate(ctx, jti)
}

func (t txTokens) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*review.Token, error) {
	return (*memoryTokens)(t.tx.m).ListByRound(ctx, roundID)
}

type txDecisions struct{ tx *memoryTx }

func (t txDecisions) Create(_ context.Context, decision *review.Decision) error {
	m := t.tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	key := decision.RoundID.String() + "|" + decision.RecipientID.String()
	if _, exists := m.decided[key]; exists {
		return review.ErrDuplicateDecision
	}
	id := decision.ID
	roundID := decision.RoundID
	t.tx.undo = append(t.tx.undo, func() {
		delete(m.decided, key)
		list := m.decisions[roundID]
		for i, d := range list {
			if d.ID == id {
				m.decisions[roundID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	})
	m.decided[key] = struct{}{}
	m.decisions[decision.RoundID] = append(m.decisions[decision.RoundID], *decision)
	return nil
}

func (t txDecisions) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*review.Decision, error) {
	return (*memoryDecisions)(t.tx.m).ListByRound(ctx, roundID)
}

type memoryRounds Memory

func (m *memoryRounds) Create(_ context.Context, round *review.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[round.ID] = *round
	return nil
}

func (m *memoryRounds) FindByID(_ context.Context, id uuid.UUID) (*review.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rounds[id]; ok {
		out := r
		return &out, nil
	}
	return nil, review.ErrNotFound
}

func (m *memoryRounds) Update(_ context.Context, round *review.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rounds[round.ID]; !ok {
		return review.ErrNotFound
	}
	m.rounds[round.ID] = *round
	return nil
}

func (m *memoryRounds) NextVersion(_ context.Context, workItemID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, r := range m.rounds {
		if r.WorkItemID == workItemID && r.Version > max {
			max = r.Version
		}
	}
	return max + 1, nil
}

func (m *memoryRounds) ListExpirable(_ context.Context, now time.Time) ([]*review.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*review.Round
	for _, r := range m.rounds {
		if r.IsOverdue(now) {
			copied := r
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memoryTokens Memory

func (m *memoryTokens) Create(_ context.Context, token *review.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[token.JTI]; exists {
		return review.ErrDuplicateJTI
	}
	m.tokens[token.JTI] = *token
	return nil
}

func (m *memoryTokens) FindByJTI(_ context.Context, jti string) (*review.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tokens[jti]; ok {
		out := t
		return &out, nil
	}
	return nil, review.ErrNotFound
}

// FindByJTIForUpdate is identical to FindByJTI here; exclusivity comes from
// the RunInTx shard lock held by the caller.
func (m *memoryTokens) FindByJTIForUpdate(ctx context.Context, jti string) (*review.Token, error) {
	return m.FindByJTI(ctx, jti)
}

func (m *memoryTokens) Update(_ context.Context, token *review.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.JTI]; !ok {
		return review.ErrNotFound
	}
	m.tokens[token.JTI] = *token
	return nil
}

func (m *memoryTokens) ListByRound(_ context.Context, roundID uuid.UUID) ([]*review.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*review.Token
	for _, t := range m.tokens {
		if t.RoundID == roundID {
			copied := t
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memoryDecisions Memory

func (m *memoryDecisions) Create(_ context.Context, decision *review.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := decision.RoundID.String() + "|" + decision.RecipientID.String()
	if _, exists := m.decided[key]; exists {
		return review.ErrDuplicateDecision
	}
	m.decided[key] = struct{}{}
	m.decisions[decision.RoundID] = append(m.decisions[decision.RoundID], *decision)
	return nil
}

func (m *memoryDecisions) ListByRound(_ context.Context, roundID uuid.UUID) ([]*review.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.decisions[roundID]
	out := make([]*review.Decision, 0, len(list))
	for _, d := range list {
		copied := d
		out = append(out, &copied)
	}
	return out, nil
}

// shardFor hashes a lock key onto a shard with FNV-1a.
func shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numShards)
}
