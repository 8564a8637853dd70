// internal/tenant/quota.go
//
// Per-tenant quotas and rate limits.
//
// Context
// -------
// Three independent budgets hang off a tenant:
//
//   - a daily operation counter, reset at UTC midnight
//   - a concurrency cap (x/sync/semaphore)
//   - a request rate (x/time/rate)
//
// Usage state lives outside the tenant entry so idle eviction of a tenant's
// config never resets its counters.
//
// Notes
// -----
//   - IncrementTransformationCount checks and increments under one lock,
//     so the pair is atomic within the process.  Cross-process accounting
//     is out of scope.
//   - A zero quota means unlimited.
package tenant

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type usage struct {
	mu    sync.Mutex
	day   string
	count int64

	sem     *semaphore.Weighted
	semSize int64

	limiter *rate.Limiter
	rl      RateLimit
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (p *Provider) usageFor(t *Tenant) *usage {
	if v, ok := p.usage.Load(t.id); ok {
		return v.(*usage)
	}
	v, _ := p.usage.LoadOrStore(t.id, &usage{})
	return v.(*usage)
}

// roll resets the counter when the UTC day has changed.  Caller holds u.mu.
func (u *usage) roll(now time.Time) {
	if d := dayKey(now); d != u.day {
		u.day = d
		u.count = 0
	}
}

// HasTransformationQuota reports whether the scoped tenant may run another
// operation today.
func (p *Provider) HasTransformationQuota(ctx context.Context) bool {
	t := p.Current(ctx)
	limit := t.quotas.MaxOperationsPerDay
	if limit <= 0 {
		return true
	}
	u := p.usageFor(t)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll(p.now())
	return u.count < limit
}

// IncrementTransformationCount records one operation and returns today's
// total.  It fails with ErrQuotaExceeded, leaving the count unchanged,
// once the daily limit is reached.
func (p *Provider) IncrementTransformationCount(ctx context.Context) (int64, error) {
	t := p.Current(ctx)
	u := p.usageFor(t)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll(p.now())
	if limit := t.quotas.MaxOperationsPerDay; limit > 0 && u.count >= limit {
		return u.count, quotaExceeded(t.id, "daily")
	}
	u.count++
	return u.count, nil
}

// TransformationCount returns today's count for the scoped tenant.
func (p *Provider) TransformationCount(ctx context.Context) int64 {
	u := p.usageFor(p.Current(ctx))
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll(p.now())
	return u.count
}

// AcquireOperation claims one concurrent-operation slot without blocking.
// The returned release is idempotent.
func (p *Provider) AcquireOperation(ctx context.Context) (func(), error) {
	t := p.Current(ctx)
	limit := t.quotas.MaxConcurrentOperations
	if limit <= 0 {
		return func() {}, nil
	}

	u := p.usageFor(t)
	u.mu.Lock()
	if u.sem == nil || u.semSize != limit {
		u.sem = semaphore.NewWeighted(limit)
		u.semSize = limit
	}
	sem := u.sem
	u.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, quotaExceeded(t.id, "concurrency")
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

// Allow reports whether the scoped tenant may make a request now.
func (p *Provider) Allow(ctx context.Context) bool {
	l := p.limiterFor(p.Current(ctx))
	return l == nil || l.Allow()
}

// Wait blocks until the scoped tenant's limiter admits a request or ctx
// ends.
func (p *Provider) Wait(ctx context.Context) error {
	l := p.limiterFor(p.Current(ctx))
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return ErrRateLimited
	}
	return nil
}

func (p *Provider) limiterFor(t *Tenant) *rate.Limiter {
	rl := t.rateLimit
	if rl.RequestsPerSecond <= 0 {
		return nil
	}
	u := p.usageFor(t)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.limiter == nil || u.rl != rl {
		burst := rl.Burst
		if burst <= 0 {
			burst = int(rl.RequestsPerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		u.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
		u.rl = rl
	}
	return u.limiter
}

// pruneUsage drops usage records that carry nothing worth keeping: no
// count for today and no limiter or semaphore state.
func (p *Provider) pruneUsage(now time.Time) {
	today := dayKey(now)
	p.usage.Range(func(k, v any) bool {
		u := v.(*usage)
		u.mu.Lock()
		idle := u.day != today && u.sem == nil && u.limiter == nil
		u.mu.Unlock()
		if idle {
			p.usage.Delete(k)
		}
		return true
	})
}
