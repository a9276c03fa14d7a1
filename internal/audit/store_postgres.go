package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore persists audit events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	var roundID any
	if event.RoundID != uuid.Nil {
		roundID = event.RoundID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, action, actor, round_id, token_jti, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.Timestamp, event.Action, event.Actor, roundID, event.TokenJTI, detail)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRound(ctx context.Context, roundID uuid.UUID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, action, actor, round_id, token_jti, detail
		FROM audit_events WHERE round_id = $1 ORDER BY occurred_at
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var round uuid.NullUUID
		var detail []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.Actor, &round, &e.TokenJTI, &detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if round.Valid {
			e.RoundID = round.UUID
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
