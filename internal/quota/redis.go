package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vastuchitra/internal/domain"
)

// keyTTL keeps yesterday's counter around briefly for inspection, then
// lets it expire. Rollover itself is handled by the date-scoped key.
const keyTTL = 48 * time.Hour

// RedisLedger counts daily usage in Redis under a date-scoped key, so the
// midnight reset falls out of the key name and INCR gives the atomic
// per-user increment.
type RedisLedger struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

// NewRedisLedger builds a ledger over client with the given daily limit.
func NewRedisLedger(client *redis.Client, limit int) *RedisLedger {
	if limit <= 0 {
		limit = domain.DefaultDailyQuota
	}
	return &RedisLedger{client: client, limit: limit, now: time.Now}
}

// CheckAndReserve implements domain.Ledger.
func (l *RedisLedger) CheckAndReserve(ctx context.Context, userID string) error {
	used, err := l.used(ctx, userID)
	if err != nil {
		return err
	}
	if used >= l.limit {
		return domain.E(domain.KindResourceExhausted, "daily quota exceeded")
	}
	return nil
}

// Commit implements domain.Ledger. INCR and EXPIRE travel in one pipeline.
func (l *RedisLedger) Commit(ctx context.Context, userID string) error {
	key := l.key(userID)
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quota: commit: %w", err)
	}
	return nil
}

// Usage implements domain.Ledger.
func (l *RedisLedger) Usage(ctx context.Context, userID string) (domain.QuotaRecord, error) {
	used, err := l.used(ctx, userID)
	if err != nil {
		return domain.QuotaRecord{}, err
	}
	return domain.QuotaRecord{
		UserID:      userID,
		DailyLimit:  l.limit,
		UsedToday:   used,
		LastResetAt: startOfDay(l.now()),
	}, nil
}

func (l *RedisLedger) used(ctx context.Context, userID string) (int, error) {
	used, err := l.client.Get(ctx, l.key(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota: read counter: %w", err)
	}
	return used, nil
}

func (l *RedisLedger) key(userID string) string {
	return "quota:" + userID + ":" + l.now().Format("2006-01-02")
}
