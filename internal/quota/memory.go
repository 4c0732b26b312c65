package quota

import (
	"context"
	"sync"
	"time"

	"vastuchitra/internal/domain"
)

// MemoryLedger keeps quota records in process memory behind a mutex, so
// concurrent commits for the same user never lose updates. Intended for
// development and tests; deployments use the Postgres or Redis ledgers.
type MemoryLedger struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	records map[string]*domain.QuotaRecord
}

// NewMemoryLedger builds an empty in-memory ledger with the given daily limit.
func NewMemoryLedger(limit int) *MemoryLedger {
	if limit <= 0 {
		limit = domain.DefaultDailyQuota
	}
	return &MemoryLedger{
		limit:   limit,
		now:     time.Now,
		records: make(map[string]*domain.QuotaRecord),
	}
}

// SetNow overrides the clock. Test hook for day-rollover scenarios.
func (l *MemoryLedger) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// CheckAndReserve implements domain.Ledger.
func (l *MemoryLedger) CheckAndReserve(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.load(userID)
	if rec.UsedToday >= rec.DailyLimit {
		return domain.E(domain.KindResourceExhausted, "daily quota exceeded")
	}
	return nil
}

// Commit implements domain.Ledger.
func (l *MemoryLedger) Commit(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load(userID).UsedToday++
	return nil
}

// Usage implements domain.Ledger.
func (l *MemoryLedger) Usage(ctx context.Context, userID string) (domain.QuotaRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.QuotaRecord{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.load(userID), nil
}

// load fetches the record for userID, creating it lazily and zeroing the
// counter when the last reset predates the start of the current day.
// Callers must hold l.mu.
func (l *MemoryLedger) load(userID string) *domain.QuotaRecord {
	now := l.now()
	rec, ok := l.records[userID]
	if !ok {
		rec = &domain.QuotaRecord{
			UserID:      userID,
			DailyLimit:  l.limit,
			UsedToday:   0,
			LastResetAt: now,
		}
		l.records[userID] = rec
		return rec
	}
	if rec.LastResetAt.Before(startOfDay(now)) {
		rec.UsedToday = 0
		rec.LastResetAt = now
	}
	return rec
}

// startOfDay returns midnight of t's calendar day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
