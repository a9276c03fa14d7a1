package workitem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"worksign/internal/geometry"
)

// PostgresStore reads work items from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	var item WorkItem
	var performedAt sql.NullTime
	var routeLine, polygon []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, operation_type, quantity, unit, performed_at, status, route_line, processed_polygon
		FROM work_items WHERE id = $1
	`, id).Scan(&item.ID, &item.Label, &item.OperationType, &item.Quantity, &item.Unit, &performedAt, &item.Status, &routeLine, &polygon)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find work item: %w", err)
	}
	if performedAt.Valid {
		item.PerformedAt = &performedAt.Time
	}
	if len(routeLine) > 0 {
		if item.RouteLine, err = geometry.Decode(routeLine); err != nil {
			return nil, fmt.Errorf("decode route line: %w", err)
		}
	}
	if len(polygon) > 0 {
		if item.ProcessedPolygon, err = geometry.Decode(polygon); err != nil {
			return nil, fmt.Errorf("decode processed polygon: %w", err)
		}
	}
	return &item, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE work_items SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set work item status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
