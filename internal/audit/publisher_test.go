package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksign/internal/platform/logger"
)

func TestPublisherSyncMode(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, logger.New())

	roundID := uuid.New()
	pub.Emit(context.Background(), Event{
		RoundID: roundID,
		Action:  EventDecisionRecorded,
	})

	events, err := pub.List(context.Background(), roundID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventDecisionRecorded, events[0].Action)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisherAsyncMode(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, logger.New(), WithAsyncBuffer(10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pub.Run(ctx) }()

	roundID := uuid.New()
	pub.Emit(context.Background(), Event{RoundID: roundID, Action: EventTokenIssued})

	require.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), roundID)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisherAuthDenied(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, logger.New())

	pub.AuthDenied(context.Background(), "/internal/reviews", "missing bearer token")

	store.mu.RLock()
	defer store.mu.RUnlock()
	require.Len(t, store.events, 1)
	assert.Equal(t, EventAuthDenied, store.events[0].Action)
	assert.Equal(t, "missing bearer token", store.events[0].Detail["reason"])
}
