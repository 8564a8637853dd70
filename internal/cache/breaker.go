// internal/cache/breaker.go
//
// Circuit breaker in front of the L2 store.
//
// Context
// -------
// When Redis is down every L2 call would otherwise wait out its full
// timeout before the engine falls back to L1.  The breaker trips after a
// run of failures and then fails fast with gobreaker.ErrOpenState until
// the probe window elapses, so a dead L2 costs microseconds per request.
//
// A cache miss (ErrNotFound) is a successful round-trip and never counts
// towards tripping.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/metrics"
)

// BreakerOptions tunes NewBreakerStore.  Zero values pick the defaults.
type BreakerOptions struct {
	Name             string
	ConsecutiveFails uint32        // trip threshold
	OpenTimeout      time.Duration // how long to stay open before probing
	HalfOpenRequests uint32
}

// BreakerStore wraps any Store with a gobreaker.CircuitBreaker.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore returns next guarded by a circuit breaker.
func NewBreakerStore(next Store, opts BreakerOptions) *BreakerStore {
	if opts.Name == "" {
		opts.Name = "l2"
	}
	if opts.ConsecutiveFails == 0 {
		opts.ConsecutiveFails = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.HalfOpenRequests == 0 {
		opts.HalfOpenRequests = 1
	}

	threshold := opts.ConsecutiveFails
	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.HalfOpenRequests,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.S().Warnw("l2 breaker state change",
				"store", name, "from", from.String(), "to", to.String())
			metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State exposes the breaker state for health reporting.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (b *BreakerStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, key, val, ttl)
	})
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}

func (b *BreakerStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.DeletePrefix(ctx, prefix)
	})
	n, _ := v.(int)
	return n, err
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Ping(ctx)
	})
	return err
}

func (b *BreakerStore) Close() error { return b.next.Close() }
