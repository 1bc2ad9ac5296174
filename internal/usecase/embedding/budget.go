// Package embedding owns budget enforcement and observability around the
// embedding provider. The tracker replaces ad-hoc global counters with an
// explicitly constructed, injected component: the hot path (Check) is
// in-memory only, and persistence goes through atomic write-behind updates.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
)

// BudgetAction defines behavior when the token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore is the persistence interface for budget counters.
// IncrBy must be atomic on the backing store.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// window is one budget period: a cap, the tokens consumed in the current
// period, and the instant the period began.
type window struct {
	limit   int64 // 0 = unlimited
	used    int64
	resetAt time.Time
}

func (w *window) exceeded() bool {
	return w.limit > 0 && w.used >= w.limit
}

func (w *window) remaining() int64 {
	if w.limit == 0 {
		return -1 // unlimited
	}
	if left := w.limit - w.used; left > 0 {
		return left
	}
	return 0
}

// BudgetTracker tracks daily and monthly embedding token consumption.
// Check never round-trips to the store; Record updates memory first and then
// writes behind to the store.
type BudgetTracker struct {
	mu       sync.Mutex
	daily    window
	monthly  window
	action   BudgetAction
	provider string
	store    BudgetStore
	logger   *zap.Logger
}

// NewBudgetTracker creates a budget tracker with the given limits.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	now := time.Now().UTC()
	return &BudgetTracker{
		daily:    window{limit: dailyLimit, resetAt: truncateToDay(now)},
		monthly:  window{limit: monthlyLimit, resetAt: truncateToMonth(now)},
		action:   action,
		provider: provider,
		logger:   logger,
	}
}

// WithStore attaches a persistence store and loads the current counters.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	now := time.Now().UTC()

	if val, err := store.Get(ctx, b.dailyKey(now)); err == nil {
		b.daily.used = val
	} else {
		b.logger.Warn("Failed to load daily quota from store", zap.Error(err))
	}
	if val, err := store.Get(ctx, b.monthlyKey(now)); err == nil {
		b.monthly.used = val
	} else {
		b.logger.Warn("Failed to load monthly quota from store", zap.Error(err))
	}

	b.logger.Info("Embedding budget loaded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("monthly_used", b.monthly.used),
	)
	return b
}

func (b *BudgetTracker) dailyKey(t time.Time) string {
	return fmt.Sprintf("%squota:%s:daily:%s", domain.KeyPrefix, b.provider, t.Format("2006-01-02"))
}

func (b *BudgetTracker) monthlyKey(t time.Time) string {
	return fmt.Sprintf("%squota:%s:monthly:%s", domain.KeyPrefix, b.provider, t.Format("2006-01"))
}

// Check verifies the budget allows a new request. In-memory only (hot path).
// On reject it returns a QuotaError carrying the remaining tokens, so the
// refusal can be surfaced as "try again later" rather than a generic error.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()

	if !b.daily.exceeded() && !b.monthly.exceeded() {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.NewQuotaError(b.daily.remaining(), b.monthly.remaining())
	}

	// action=warn: log but let the request through
	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("daily_limit", b.daily.limit),
		zap.Int64("monthly_used", b.monthly.used),
		zap.Int64("monthly_limit", b.monthly.limit),
	)
	return nil
}

// Record registers consumed tokens after a request: memory first, then
// write-behind to the store with a background-context timeout so persistence
// never blocks the caller on a stuck store.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.resetIfNeeded()
	b.daily.used += tokens
	b.monthly.used += tokens
	store := b.store
	now := time.Now().UTC()
	dailyKey := b.dailyKey(now)
	monthlyKey := b.monthlyKey(now)
	b.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, dailyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist daily quota", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist monthly quota", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return b.daily.remaining()
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return b.monthly.remaining()
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (b *BudgetTracker) resetIfNeeded() {
	now := time.Now().UTC()
	if today := truncateToDay(now); today.After(b.daily.resetAt) {
		b.daily.used = 0
		b.daily.resetAt = today
	}
	if thisMonth := truncateToMonth(now); thisMonth.After(b.monthly.resetAt) {
		b.monthly.used = 0
		b.monthly.resetAt = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
