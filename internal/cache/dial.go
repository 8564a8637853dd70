// internal/cache/dial.go
//
// L2 bootstrap.
//
// Context
// -------
// Dial builds the shared tier from configuration.  L2 is optional: when it
// is disabled, or unreachable after a short retry loop, Dial logs a
// warning and returns a nil Store.  The tiered engine treats a nil Store
// as L1-only mode, so a missing Redis never stops the process from
// starting.  Set Required to turn an unreachable L2 into a startup error.
//
// Workflow
// --------
//  1. Build the go-redis client from Addr / Password / DB.
//  2. PING with exponential backoff, bounded by ConnectRetries.
//  3. Wrap in a BreakerStore unless the breaker is disabled.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions mirrors config.Redis without importing it.
type RedisOptions struct {
	Enabled        bool
	Required       bool
	Addr           string
	Password       string
	DB             int
	Prefix         string
	DialTimeout    time.Duration
	OpTimeout      time.Duration
	ConnectRetries uint64
	Breaker        BreakerOptions
	DisableBreaker bool
}

// Dial returns the configured L2 store or nil for L1-only mode.
func Dial(ctx context.Context, opts RedisOptions, log *zap.SugaredLogger) (Store, error) {
	if log == nil {
		log = zap.S()
	}
	if !opts.Enabled || opts.Addr == "" {
		log.Infow("l2 disabled, running l1-only")
		return nil, nil
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,
	})
	store := NewRedisStore(client, opts.Prefix, opts.OpTimeout)

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.ConnectRetries), ctx)
	err := backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
		return store.Ping(pingCtx)
	}, b)
	if err != nil {
		_ = client.Close()
		if opts.Required {
			return nil, fmt.Errorf("l2 ping %s: %w", opts.Addr, err)
		}
		log.Warnw("l2 unreachable, running l1-only", "addr", opts.Addr, "err", err)
		return nil, nil
	}

	log.Infow("l2 online", "addr", opts.Addr, "db", opts.DB)
	if opts.DisableBreaker {
		return store, nil
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "redis"
	}
	return NewBreakerStore(store, opts.Breaker), nil
}
