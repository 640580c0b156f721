package rpc

import (
	"errors"
	"sync"
	"time"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/metrics"
)

var (
	// ErrQuotaExceeded means the daily call budget is spent. It is fatal
	// for the current scan; the budget resets at the next UTC midnight.
	ErrQuotaExceeded = errors.New("rpc: daily call quota exceeded")

	// ErrRateLimited means the upstream kept throttling after the retry
	// budget was exhausted.
	ErrRateLimited = errors.New("rpc: rate limited after retries")

	// ErrUnavailable means the upstream kept failing after the retry
	// budget was exhausted.
	ErrUnavailable = errors.New("rpc: upstream unavailable after retries")
)

// Budget tracks RPC calls consumed against a daily cap. The counter rolls
// to zero the first time it is touched on a new UTC day. A limit of zero
// disables the cap; the counter still tracks usage for reporting.
type Budget struct {
	mu        sync.Mutex
	limit     int
	used      int
	resetDate string

	now func() time.Time
}

func NewBudget(limit int) *Budget {
	return &Budget{
		limit: limit,
		now:   time.Now,
	}
}

// Acquire checks that a call may be made. It does not consume the budget;
// Commit does, so failed attempts that never reached the provider (marshal
// errors, dial failures) stay free.
func (b *Budget) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDate()
	if b.limit > 0 && b.used >= b.limit {
		return ErrQuotaExceeded
	}
	return nil
}

// Commit records one consumed call.
func (b *Budget) Commit() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDate()
	b.used++
	metrics.RPCQuotaUsed.Set(float64(b.used))
}

// Snapshot returns the current usage and its UTC reset date for persistence.
func (b *Budget) Snapshot() (used int, resetDate string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDate()
	return b.used, b.resetDate
}

// Restore seeds the counter from a persisted checkpoint. A stale reset date
// is discarded so a restart never resurrects yesterday's usage. A same-day
// restore only raises the counter: calls spent by a run that failed before
// persisting are already counted in memory and must not be forgotten.
func (b *Budget) Restore(used int, resetDate string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDate()
	if resetDate == b.resetDate && used > b.used {
		b.used = used
	}
	metrics.RPCQuotaUsed.Set(float64(b.used))
}

func (b *Budget) rollDate() {
	today := b.today()
	if b.resetDate != today {
		b.resetDate = today
		b.used = 0
	}
}

func (b *Budget) today() string {
	return b.now().UTC().Format(model.BudgetDateLayout)
}
