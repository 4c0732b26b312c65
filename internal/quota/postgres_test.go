package quota

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vastuchitra/internal/domain"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// stubQuotaDB interprets the ledger's SQL against an in-memory table.
type stubQuotaDB struct {
	mu   sync.Mutex
	rows map[string]*domain.QuotaRecord
	now  time.Time
}

func newStubQuotaDB(now time.Time) *stubQuotaDB {
	return &stubQuotaDB{rows: make(map[string]*domain.QuotaRecord), now: now}
}

func (s *stubQuotaDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(sql, "INSERT INTO user_quotas"):
		userID := args[0].(string)
		if _, ok := s.rows[userID]; !ok {
			s.rows[userID] = &domain.QuotaRecord{
				UserID:      userID,
				DailyLimit:  args[1].(int),
				LastResetAt: s.now,
			}
		}
	case strings.Contains(sql, "SET used_today = 0"):
		userID := args[0].(string)
		if rec, ok := s.rows[userID]; ok {
			day := time.Date(s.now.Year(), s.now.Month(), s.now.Day(), 0, 0, 0, 0, s.now.Location())
			if rec.LastResetAt.Before(day) {
				rec.UsedToday = 0
				rec.LastResetAt = s.now
			}
		}
	case strings.Contains(sql, "SET used_today = used_today + 1"):
		userID := args[0].(string)
		if rec, ok := s.rows[userID]; ok {
			rec.UsedToday++
		}
	default:
		return pgconn.CommandTag{}, errors.New("unsupported exec: " + sql)
	}
	return pgconn.CommandTag{}, nil
}

func (s *stubQuotaDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := args[0].(string)
	rec, ok := s.rows[userID]
	if !ok {
		return stubRow{}
	}
	limit, used, reset := rec.DailyLimit, rec.UsedToday, rec.LastResetAt
	return stubRow{scan: func(dest ...any) error {
		if len(dest) < 2 {
			return errors.New("unexpected scan arity")
		}
		*(dest[0].(*int)) = limit
		*(dest[1].(*int)) = used
		if len(dest) > 2 {
			*(dest[2].(*time.Time)) = reset
		}
		return nil
	}}
}

func TestPostgresLedgerLazyCreateAndExhaustion(t *testing.T) {
	db := newStubQuotaDB(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	l := NewPostgresLedger(db, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckAndReserve(ctx, "u1"); err != nil {
			t.Fatalf("check %d returned error: %v", i, err)
		}
		if err := l.Commit(ctx, "u1"); err != nil {
			t.Fatalf("commit %d returned error: %v", i, err)
		}
	}

	err := l.CheckAndReserve(ctx, "u1")
	if domain.KindOf(err) != domain.KindResourceExhausted {
		t.Fatalf("expected resource exhausted, got %v", err)
	}
}

func TestPostgresLedgerDayRollover(t *testing.T) {
	db := newStubQuotaDB(time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC))
	l := NewPostgresLedger(db, 1)
	ctx := context.Background()

	if err := l.CheckAndReserve(ctx, "u1"); err != nil {
		t.Fatalf("check returned error: %v", err)
	}
	if err := l.Commit(ctx, "u1"); err != nil {
		t.Fatalf("commit returned error: %v", err)
	}
	if err := l.CheckAndReserve(ctx, "u1"); domain.KindOf(err) != domain.KindResourceExhausted {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	// Midnight passes; the conditional rollover zeroes the counter and a
	// new request is allowed even though yesterday's limit was reached.
	db.mu.Lock()
	db.now = time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)
	db.mu.Unlock()

	if err := l.CheckAndReserve(ctx, "u1"); err != nil {
		t.Fatalf("check after rollover returned error: %v", err)
	}
}

func TestPostgresLedgerUsageForUnknownUser(t *testing.T) {
	db := newStubQuotaDB(time.Now())
	l := NewPostgresLedger(db, 7)

	rec, err := l.Usage(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Usage returned error: %v", err)
	}
	if rec.DailyLimit != 7 || rec.UsedToday != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
