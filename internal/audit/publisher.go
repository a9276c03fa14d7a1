// Package audit records an append-only trail of workflow events. The review
// core depends only on the Emitter interface; what consumes the trail is a
// collaborator concern.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Emitter is the narrow interface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Store persists events, append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]Event, error)
}

// Publisher captures structured audit events. In sync mode it appends
// inline; with an async buffer it hands events to the worker and never blocks
// the request path.
type Publisher struct {
	store  Store
	logger *slog.Logger
	inbox  chan Event
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given
// channel capacity. Run must be started for events to drain.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

func NewPublisher(store Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records an event. Audit failures are logged, never propagated: the
// trail observes the workflow, it does not gate it.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		}
		return
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit append failed", "action", event.Action, "error", err)
	}
}

// Run drains the async inbox until ctx is cancelled. No-op in sync mode.
func (p *Publisher) Run(ctx context.Context) error {
	if p.inbox == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-p.inbox:
			if err := p.store.Append(context.WithoutCancel(ctx), event); err != nil {
				p.logger.Error("audit append failed", "action", event.Action, "error", err)
			}
		}
	}
}

// List returns the trail for one review round.
func (p *Publisher) List(ctx context.Context, roundID uuid.UUID) ([]Event, error) {
	return p.store.ListByRound(ctx, roundID)
}

// AuthDenied implements the login-activity observer at the collaborator
// boundary for the back-office API.
func (p *Publisher) AuthDenied(ctx context.Context, path, reason string) {
	p.Emit(ctx, Event{
		Action: EventAuthDenied,
		Detail: map[string]string{"path": path, "reason": reason},
	})
}
