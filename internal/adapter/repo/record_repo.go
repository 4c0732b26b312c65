package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vastuchitra/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// DBTX is the subset of pgx used by repositories. Satisfied by
// *pgxpool.Pool and stubbed in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordRepositoryPG implements domain.RecordRepository backed by PostgreSQL.
type RecordRepositoryPG struct {
	db DBTX
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db DBTX) *RecordRepositoryPG {
	return &RecordRepositoryPG{db: db}
}

// Save inserts a completed generation record. Records are immutable once
// created; there are no update or delete paths.
func (r *RecordRepositoryPG) Save(ctx context.Context, rec *domain.GenerationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
INSERT INTO generation_records (id, owner_id, prompt, style, image_url, storage_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	if _, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.Prompt,
		rec.Style,
		rec.ImageURL,
		rec.StorageKey,
		rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("records: insert: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's records, newest first. The limit is
// clamped so a gallery page can never request an unbounded scan.
func (r *RecordRepositoryPG) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.GenerationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT id, owner_id, prompt, style, image_url, storage_key, created_at
FROM generation_records
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	defer rows.Close()

	var out []domain.GenerationRecord
	for rows.Next() {
		var rec domain.GenerationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.OwnerID,
			&rec.Prompt,
			&rec.Style,
			&rec.ImageURL,
			&rec.StorageKey,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("records: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: iterate: %w", err)
	}
	return out, nil
}
