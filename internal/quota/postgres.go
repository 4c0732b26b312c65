package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vastuchitra/internal/domain"
)

// DB is the subset of pgx needed by the Postgres ledger. Satisfied by
// *pgxpool.Pool and stubbed in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger stores quota records in the user_quotas table. All
// mutation happens inside single SQL statements, so concurrent requests
// for the same user serialize on the row and never undercount.
type PostgresLedger struct {
	db    DB
	limit int
}

// NewPostgresLedger builds a ledger over db with the given daily limit for
// lazily created records.
func NewPostgresLedger(db DB, limit int) *PostgresLedger {
	if limit <= 0 {
		limit = domain.DefaultDailyQuota
	}
	return &PostgresLedger{db: db, limit: limit}
}

// CheckAndReserve implements domain.Ledger. The record is created lazily;
// the day rollover is a conditional UPDATE so two concurrent requests
// cannot both observe stale usage.
func (l *PostgresLedger) CheckAndReserve(ctx context.Context, userID string) error {
	if _, err := l.db.Exec(ctx, `
INSERT INTO user_quotas (user_id, daily_limit, used_today, last_reset_at)
VALUES ($1, $2, 0, NOW())
ON CONFLICT (user_id) DO NOTHING;
`, userID, l.limit); err != nil {
		return fmt.Errorf("quota: ensure record: %w", err)
	}

	if _, err := l.db.Exec(ctx, `
UPDATE user_quotas
SET used_today = 0,
    last_reset_at = NOW()
WHERE user_id = $1
  AND last_reset_at < date_trunc('day', NOW());
`, userID); err != nil {
		return fmt.Errorf("quota: day rollover: %w", err)
	}

	var limit, used int
	row := l.db.QueryRow(ctx, `SELECT daily_limit, used_today FROM user_quotas WHERE user_id = $1`, userID)
	if err := row.Scan(&limit, &used); err != nil {
		return fmt.Errorf("quota: read record: %w", err)
	}
	if used >= limit {
		return domain.E(domain.KindResourceExhausted, "daily quota exceeded")
	}
	return nil
}

// Commit implements domain.Ledger via an atomic in-database increment.
func (l *PostgresLedger) Commit(ctx context.Context, userID string) error {
	if _, err := l.db.Exec(ctx, `
UPDATE user_quotas
SET used_today = used_today + 1
WHERE user_id = $1;
`, userID); err != nil {
		return fmt.Errorf("quota: commit: %w", err)
	}
	return nil
}

// Usage implements domain.Ledger.
func (l *PostgresLedger) Usage(ctx context.Context, userID string) (domain.QuotaRecord, error) {
	rec := domain.QuotaRecord{UserID: userID, DailyLimit: l.limit}
	row := l.db.QueryRow(ctx, `
SELECT daily_limit,
       CASE WHEN last_reset_at < date_trunc('day', NOW()) THEN 0 ELSE used_today END,
       last_reset_at
FROM user_quotas
WHERE user_id = $1;
`, userID)
	if err := row.Scan(&rec.DailyLimit, &rec.UsedToday, &rec.LastResetAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, nil
		}
		return rec, fmt.Errorf("quota: read usage: %w", err)
	}
	return rec, nil
}
