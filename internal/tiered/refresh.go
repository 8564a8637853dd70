// internal/tiered/refresh.go
//
// Read-through fetching and stale-while-revalidate.
//
// Context
// -------
// GetOrFetch answers from the cache when it can and calls the FetchFunc
// when it must.  Two paths:
//
//   - Absent, or stale without SWR: fetch synchronously.  Concurrent misses
//     for the same key share one call through singleflight; each waiter
//     still honours its own ctx.
//   - Stale with SWR: return the stale value at once and start at most one
//     background refresh per key.
//
// Background refreshes
// --------------------
//   - The in-flight marker is claimed synchronously, before the goroutine
//     starts, so two callers can never both schedule a refresh.
//   - The refresh context drops the caller's cancellation but keeps its
//     values, so the tenant stays in scope, and adds RefreshTimeout.
//   - A semaphore bounds concurrent refreshes.  When it is full the
//     refresh is skipped; the next stale read will try again.
//   - Failures and timeouts are logged and counted, never returned.  A
//     fetch that overruns its timeout keeps its semaphore slot and the
//     in-flight marker until it actually returns, and its late result is
//     discarded.
package tiered

import (
	"context"
	"errors"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yanizio/tenantcache/internal/metrics"
)

// GetOrFetch returns the cached value for k or computes it with fetch.
// Errors from fetch are wrapped with ErrFetch and CodeExecutionFailed.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, k K, fetch FetchFunc[V], opts ...FetchOption) (V, error) {
	var fo fetchOpts
	for _, fn := range opts {
		fn(&fo)
	}

	ctx, span := c.tracer.Start(ctx, "tiered.GetOrFetch", trace.WithAttributes(
		attribute.String("cache.name", c.name),
		attribute.String("cache.type", string(k.CacheType())),
		attribute.String("tenant.id", k.TenantID()),
	))
	defer span.End()

	if e, ok := c.lookup(ctx, k); ok {
		if !e.Stale {
			span.SetAttributes(attribute.String("cache.result", "hit"))
			return e.Value, nil
		}
		if fo.swr {
			c.m.inc(evStaleServe)
			c.refresh(ctx, k, fetch, fo)
			span.SetAttributes(attribute.String("cache.result", "stale"))
			return e.Value, nil
		}
	}
	span.SetAttributes(attribute.String("cache.result", "miss"))

	v, err := c.fetchShared(ctx, k, fetch, fo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		var zero V
		return zero, err
	}
	return v, nil
}

func (c *Cache[K, V]) fetchShared(ctx context.Context, k K, fetch FetchFunc[V], fo fetchOpts) (V, error) {
	id := k.String()
	ch := c.sfg.DoChan(id, func() (interface{}, error) {
		c.m.inc(evFetch)
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, k, v, fo.set...); err != nil {
			c.log.Warnw("fetched value not cached", "key", id, "err", err)
		}
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, fetchErr(ctx.Err(), id)
	case res := <-ch:
		if res.Err != nil {
			return zero, fetchErr(res.Err, id)
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

func fetchErr(err error, key string) error {
	wrapped := platformerrors.Wrap(errors.Join(ErrFetch, err), platformerrors.CodeExecutionFailed, "fetch "+key)
	return platformerrors.WithContext(wrapped, "key", key)
}

// refresh schedules a background revalidation of k unless one is already
// running.
func (c *Cache[K, V]) refresh(ctx context.Context, k K, fetch FetchFunc[V], fo fetchOpts) {
	id := k.String()
	if _, busy := c.inflight.LoadOrStore(id, struct{}{}); busy {
		return
	}
	if !c.sem.TryAcquire(1) {
		c.inflight.Delete(id)
		c.log.Debugw("refresh skipped, limit reached", "key", id)
		return
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		c.sem.Release(1)
		c.inflight.Delete(id)
		return
	}
	c.wg.Add(1)
	c.mu.RUnlock()

	c.m.inc(evRefresh)
	gauge := metrics.RefreshInflight.WithLabelValues(c.name)
	gauge.Inc()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
	go func() {
		defer c.wg.Done()
		defer cancel()

		rctx, span := c.tracer.Start(rctx, "tiered.refresh", trace.WithAttributes(
			attribute.String("cache.name", c.name),
			attribute.String("tenant.id", k.TenantID()),
		))
		defer span.End()

		type result struct {
			v   V
			err error
		}
		done := make(chan result, 1)
		started := c.now()
		go func() {
			defer c.inflight.Delete(id)
			defer gauge.Dec()
			defer c.sem.Release(1)
			v, err := fetch(rctx)
			done <- result{v, err}
		}()

		select {
		case r := <-done:
			if r.err != nil {
				c.m.inc(evRefreshFailure)
				span.RecordError(r.err)
				c.log.Warnw("background refresh failed", "key", id, "err", r.err)
				return
			}
			if err := c.Set(rctx, k, r.v, fo.set...); err != nil {
				c.m.inc(evRefreshFailure)
				c.log.Warnw("refreshed value not cached", "key", id, "err", err)
			}
		case <-rctx.Done():
			c.m.inc(evRefreshFailure)
			span.SetStatus(codes.Error, "timeout")
			c.log.Warnw("background refresh timed out", "key", id,
				"after", c.now().Sub(started).Round(time.Millisecond))
		}
	}()
}
