package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"worksign/internal/geometry"
	"worksign/internal/review"
	dErrors "worksign/pkg/domain-errors"
	"worksign/pkg/platform/tx"
)

// Postgres persists the review domain in PostgreSQL. Write-path exclusivity
// comes from SELECT ... FOR UPDATE on the token row inside RunInTx.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Rounds() review.RoundStore       { return (*postgresRounds)(p) }
func (p *Postgres) Tokens() review.TokenStore       { return (*postgresTokens)(p) }
func (p *Postgres) Decisions() review.DecisionStore { return (*postgresDecisions)(p) }

// RunInTx wraps fn in a database transaction carried through context. The
// key parameter is advisory here; serialization happens on the token row
// lock taken by FindByJTIForUpdate.
func (p *Postgres) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context, s review.Store) error) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx.WithTx(ctx, sqlTx), p); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier abstracts over *sql.DB and *sql.Tx so stores run inside or outside
// a transaction transparently.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return p.db
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}

type postgresRounds Postgres

func (p *postgresRounds) Create(ctx context.Context, r *review.Round) error {
	_, err := (*Postgres)(p).q(ctx).ExecContext(ctx, `
		INSERT INTO review_rounds (id, work_item_id, version, status, deadline, public_note, snapshot_hash, created_at, updated_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.WorkItemID, r.Version, r.Status, r.Deadline, r.PublicNote, r.SnapshotHash, r.CreatedAt, r.UpdatedAt, r.ClosedAt)
	if err != nil {
		if isUniqueViolation(err, "review_rounds_work_item_version_key") {
			return dErrors.Wrap(err, dErrors.CodeConstraintViolation, "review version already exists for this work item")
		}
		return fmt.Errorf("create review round: %w", err)
	}
	return nil
}

func (p *postgresRounds) FindByID(ctx context.Context, id uuid.UUID) (*review.Round, error) {
	row := (*Postgres)(p).q(ctx).QueryRowContext(ctx, `
		SELECT id, work_item_id, version, status, deadline, public_note, snapshot_hash, created_at, updated_at, closed_at
		FROM review_rounds WHERE id = $1
	`, id)
	return scanRound(row)
}

func (p *postgresRounds) Update(ctx context.Context, r *review.Round) error {
	res, err := (*Postgres)(p).q(ctx).ExecContext(ctx, `
		UPDATE review_rounds
		SET status = $2, deadline = $3, public_note = $4, snapshot_hash = $5, updated_at = $6, closed_at = $7
		WHERE id = $1
	`, r.ID, r.Status, r.Deadline, r.PublicNote, r.SnapshotHash, r.UpdatedAt, r.ClosedAt)
	if err != nil {
		return fmt.Errorf("update review round: %w", err)
	}
	return requireRow(res)
}

func (p *postgresRounds) NextVersion(ctx context.Context, workItemID uuid.UUID) (int, error) {
	var next int
	err := (*Postgres)(p).q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM review_rounds WHERE work_item_id = $1
	`, workItemID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next review version: %w", err)
	}
	return next, nil
}

func (p *postgresRounds) ListExpirable(ctx context.Context, now time.Time) ([]*review.Round, error) {
	rows, err := (*Postgres)(p).q(ctx).QueryContext(ctx, `
		SELECT id, work_item_id, version, status, deadline, public_note, snapshot_hash, created_at, updated_at, closed_at
		FROM review_rounds
		WHERE status = $1 AND deadline IS NOT NULL AND deadline < $2
	`, review.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("list expirable rounds: %w", err)
	}
	defer rows.Close()

	var out []*review.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type postgresTokens Postgres

func (p *postgresTokens) Create(ctx context.Context, t *review.Token) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return fmt.Errorf("marshal token meta: %w", err)
	}
	_, err = (*Postgres)(p).q(ctx).ExecContext(ctx, `
		INSERT INTO review_tokens (id, round_id, recipient_id, jti, scope, issued_at, expires_at, used_at, revoked_at, delivered_to, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.RoundID, t.RecipientID, t.JTI, t.Scope, t.IssuedAt, t.ExpiresAt, t.UsedAt, t.RevokedAt, t.DeliveredTo, meta)
	if err != nil {
		if isUniqueViolation(err, "review_tokens_jti_key") {
			return review.ErrDuplicateJTI
		}
		return fmt.Errorf("create review token: %w", err)
	}
	return nil
}

func (p *postgresTokens) FindByJTI(ctx context.Context, jti string) (*review.Token, error) {
	return p.find(ctx, jti, false)
}

// FindByJTIForUpdate takes the row-level exclusive lock that serializes
// concurrent decision attempts on the same token. Must run inside RunInTx.
func (p *postgresTokens) FindByJTIForUpdate(ctx context.Context, jti string) (*review.Token, error) {
	return p.find(ctx, jti, true)
}

func (p *postgresTokens) find(ctx context.Context, jti string, forUpdate bool) (*review.Token, error) {
	query := `
		SELECT id, round_id, recipient_id, jti, scope, issued_at, expires_at, used_at, revoked_at, delivered_to, meta
		FROM review_tokens WHERE jti = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	return scanToken((*Postgres)(p).q(ctx).QueryRowContext(ctx, query, jti))
}

func (p *postgresTokens) Update(ctx context.Context, t *review.Token) error {
	res, err := (*Postgres)(p).q(ctx).ExecContext(ctx, `
		UPDATE review_tokens SET used_at = $2, revoked_at = $3, delivered_to = $4 WHERE jti = $1
	`, t.JTI, t.UsedAt, t.RevokedAt, t.DeliveredTo)
	if err != nil {
		return fmt.Errorf("update review token: %w", err)
	}
	return requireRow(res)
}

func (p *postgresTokens) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*review.Token, error) {
	rows, err := (*Postgres)(p).q(ctx).QueryContext(ctx, `
		SELECT id, round_id, recipient_id, jti, scope, issued_at, expires_at, used_at, revoked_at, delivered_to, meta
		FROM review_tokens WHERE round_id = $1 ORDER BY issued_at DESC
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list tokens by round: %w", err)
	}
	defer rows.Close()

	var out []*review.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type postgresDecisions Postgres

func (p *postgresDecisions) Create(ctx context.Context, d *review.Decision) error {
	attachments, err := json.Marshal(d.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	geom, err := geometry.Encode(d.Geom)
	if err != nil {
		return fmt.Errorf("encode decision geometry: %w", err)
	}
	var geomArg any
	if geom != nil {
		geomArg = []byte(geom)
	}
	_, err = (*Postgres)(p).q(ctx).ExecContext(ctx, `
		INSERT INTO review_decisions (id, round_id, recipient_id, action, comment, geom, attachments, snapshot_hash, decided_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.RoundID, d.RecipientID, d.Action, d.Comment, geomArg, attachments, d.SnapshotHash, d.DecidedAt, d.IPAddress, d.UserAgent)
	if err != nil {
		if isUniqueViolation(err, "review_decisions_round_recipient_key") {
			return review.ErrDuplicateDecision
		}
		return fmt.Errorf("create decision: %w", err)
	}
	return nil
}

func (p *postgresDecisions) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*review.Decision, error) {
	rows, err := (*Postgres)(p).q(ctx).QueryContext(ctx, `
		SELECT id, round_id, recipient_id, action, comment, geom, attachments, snapshot_hash, decided_at, ip_address, user_agent
		FROM review_decisions WHERE round_id = $1 ORDER BY decided_at DESC
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list decisions by round: %w", err)
	}
	defer rows.Close()

	var out []*review.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*review.Round, error) {
	var r review.Round
	var deadline, closedAt sql.NullTime
	err := row.Scan(&r.ID, &r.WorkItemID, &r.Version, &r.Status, &deadline, &r.PublicNote, &r.SnapshotHash, &r.CreatedAt, &r.UpdatedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, fmt.Errorf("scan review round: %w", err)
	}
	if deadline.Valid {
		r.Deadline = &deadline.Time
	}
	if closedAt.Valid {
		r.ClosedAt = &closedAt.Time
	}
	return &r, nil
}

func scanToken(row rowScanner) (*review.Token, error) {
	var t review.Token
	var usedAt, revokedAt sql.NullTime
	var meta []byte
	err := row.Scan(&t.ID, &t.RoundID, &t.RecipientID, &t.JTI, &t.Scope, &t.IssuedAt, &t.ExpiresAt, &usedAt, &revokedAt, &t.DeliveredTo, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, fmt.Errorf("scan review token: %w", err)
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal token meta: %w", err)
		}
	}
	return &t, nil
}

func scanDecision(row rowScanner) (*review.Decision, error) {
	var d review.Decision
	var geom, attachments []byte
	err := row.Scan(&d.ID, &d.RoundID, &d.RecipientID, &d.Action, &d.Comment, &geom, &attachments, &d.SnapshotHash, &d.DecidedAt, &d.IPAddress, &d.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, fmt.Errorf("scan decision: %w", err)
	}
	if len(geom) > 0 {
		g, err := geometry.Decode(geom)
		if err != nil {
			return nil, fmt.Errorf("decode decision geometry: %w", err)
		}
		d.Geom = g
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &d.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return &d, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return review.ErrNotFound
	}
	return nil
}
