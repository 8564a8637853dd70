// internal/tiered/engine.go
//
// Two-tier cache engine.
//
// Context
// -------
// L1 is a bounded in-process LRU; L2 is an optional shared Store (Redis in
// production).  Reads try L1, then L2, and promote fresh L2 hits into L1.
// Writes go to both tiers.  Any L2 failure is logged, counted, and treated
// as a miss, so the cache keeps answering from L1 when the shared tier is
// down.
//
// Workflow (lookup)
// -----------------
//  1. L1 fresh → hit.  L1 stale is remembered as a candidate; L1 expired
//     is removed.  Either way the lookup counts as an L1 miss.
//  2. L2 fresh → hit, promoted with FreshUntil = min(now + L1 TTL, the L2
//     deadline).  L2 stale or absent → L2 miss; a stale L2 envelope may
//     replace an older L1 candidate.
//  3. Return the stale candidate (Stale=true) or report absent.
//
// Notes
// -----
//   - Get returns fresh values only; GetEntry also returns stale ones.
//   - Keys carry their tenant, so two tenants can never read each other's
//     entries even when the hash matches.
package tiered

import (
	"context"
	"errors"
	"sync"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/metrics"
)

// Key is anything that can address a tenant-scoped entry.
type Key interface {
	comparable
	String() string
	TenantID() string
	CacheType() keyspace.Type
}

// FetchFunc computes a value on a miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// ErrFetch wraps every error returned from a FetchFunc.
var ErrFetch = errors.New("cache fetch failed")

// Cache is the tiered engine.
type Cache[K Key, V any] struct {
	name   string
	l1     *cache.LRU[K, record[V]]
	l2     cache.Store
	cfg    Config[V]
	codec  Codec[V]
	now    func() time.Time
	log    *zap.SugaredLogger
	tracer trace.Tracer
	m      *Metrics

	sfg      singleflight.Group
	inflight sync.Map // key string → struct{}
	sem      *semaphore.Weighted

	mu     sync.RWMutex // guards closed against wg.Add
	closed bool
	wg     sync.WaitGroup
}

// New builds a Cache.  Zero Config fields take package defaults.
func New[K Key, V any](cfg Config[V], opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.StaleWindow < 0 {
		cfg.StaleWindow = 0
	} else if cfg.StaleWindow == 0 {
		cfg.StaleWindow = DefaultStaleWindow
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.MaxRefreshes <= 0 {
		cfg.MaxRefreshes = DefaultMaxRefreshes
	}
	if cfg.CompressAt == 0 {
		cfg.CompressAt = DefaultCompressAt
	}
	if cfg.TTLs == nil {
		cfg.TTLs = DefaultTTLs()
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec[V]{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.S()
	}

	c := &Cache[K, V]{
		name:   cfg.Name,
		l2:     cfg.L2,
		cfg:    cfg,
		codec:  cfg.Codec,
		now:    o.now,
		log:    cfg.Logger.With("cache", cfg.Name),
		tracer: otel.Tracer("github.com/yanizio/tenantcache/internal/tiered"),
		m:      newMetrics(cfg.Name),
		sem:    semaphore.NewWeighted(cfg.MaxRefreshes),
	}

	sizeOf := func(r record[V]) int64 { return 1 }
	if cfg.SizeOf != nil {
		sizeOf = func(r record[V]) int64 { return cfg.SizeOf(r.value) }
	} else if cfg.MaxBytes > 0 {
		sizeOf = func(r record[V]) int64 {
			b, err := c.codec.Marshal(r.value)
			if err != nil {
				return 1
			}
			return int64(len(b))
		}
	}
	l1, err := cache.NewLRU(cache.LRUOptions[K, record[V]]{
		MaxEntries: cfg.MaxEntries,
		MaxBytes:   cfg.MaxBytes,
		SizeOf:     sizeOf,
		OnEvict:    func(K, record[V]) { c.m.inc(evEviction) },
	})
	if err != nil {
		// Only reachable with MaxEntries < 1, which the defaults rule out.
		panic(err)
	}
	c.l1 = l1

	if c.l2 == nil {
		c.log.Warnw("shared tier unavailable, running L1-only")
	}
	return c
}

// Name returns the cache's label.
func (c *Cache[K, V]) Name() string { return c.name }

// Degraded reports whether the cache runs without a shared tier.
func (c *Cache[K, V]) Degraded() bool { return c.l2 == nil }

// Metrics returns a snapshot of the counters.
func (c *Cache[K, V]) Metrics() Snapshot { return c.m.Snapshot() }

// ResetMetrics zeroes the counters.
func (c *Cache[K, V]) ResetMetrics() { c.m.Reset() }

// Len reports L1 entry count.
func (c *Cache[K, V]) Len() int { return c.l1.Len() }

// Close waits for in-flight background refreshes and stops new ones.  The
// L2 store is owned by the caller and stays open.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

//
// TTL resolution
//

func (c *Cache[K, V]) ttlFor(ctx context.Context, t keyspace.Type, explicit time.Duration) keyspace.TTL {
	ttl, ok := c.cfg.TTLs[t]
	if !ok {
		ttl = t.DefaultTTL()
	}
	override := explicit
	if override <= 0 && c.cfg.TTLOverride != nil {
		if d, ok := c.cfg.TTLOverride(ctx, t); ok {
			override = d
		}
	}
	if override > 0 {
		ttl.L2 = override
		if override < ttl.L1 {
			ttl.L1 = override
		}
	}
	return ttl
}

//
// Reads
//

// Get returns a fresh value for k.
func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, bool) {
	e, ok := c.lookup(ctx, k)
	if !ok || e.Stale {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// GetEntry returns the entry for k, stale or fresh.
func (c *Cache[K, V]) GetEntry(ctx context.Context, k K) (Entry[V], bool) {
	return c.lookup(ctx, k)
}

func (c *Cache[K, V]) lookup(ctx context.Context, k K) (Entry[V], bool) {
	now := c.now()

	var (
		cand    Entry[V]
		hasCand bool
	)
	if r, ok := c.l1.Get(k); ok {
		switch {
		case now.Before(r.freshUntil):
			c.m.inc(evL1Hit)
			return r.entry(TierL1, now), true
		case now.Before(r.expiresAt):
			cand, hasCand = r.entry(TierL1, now), true
		default:
			c.l1.Remove(k)
			c.observeL1()
		}
	}
	c.m.inc(evL1Miss)

	if c.l2 == nil {
		c.m.inc(evL2Miss)
		return cand, hasCand
	}

	data, err := c.l2.Get(ctx, k.String())
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.m.inc(evError)
			c.log.Warnw("l2 get failed", "key", k.String(), "err", err)
		}
		c.m.inc(evL2Miss)
		return cand, hasCand
	}

	env, err := decodeEnvelope(data)
	var val V
	if err == nil {
		val, err = c.codec.Unmarshal(env.V)
	}
	if err != nil {
		c.m.inc(evError)
		c.m.inc(evL2Miss)
		c.log.Warnw("l2 entry undecodable", "key", k.String(), "err", err)
		return cand, hasCand
	}

	setAt := time.UnixMilli(env.SetAt)
	l2Fresh := time.UnixMilli(env.FreshUntil)
	if !now.Before(l2Fresh) {
		c.m.inc(evL2Miss)
		if now.Before(l2Fresh.Add(c.cfg.StaleWindow)) && (!hasCand || setAt.After(cand.SetAt)) {
			return Entry[V]{
				Value:      val,
				SetAt:      setAt,
				FreshUntil: l2Fresh,
				ExpiresAt:  l2Fresh.Add(c.cfg.StaleWindow),
				Tier:       TierL2,
				Stale:      true,
			}, true
		}
		return cand, hasCand
	}

	c.m.inc(evL2Hit)
	ttl := c.ttlFor(ctx, k.CacheType(), 0)
	fresh := now.Add(ttl.L1)
	if l2Fresh.Before(fresh) {
		fresh = l2Fresh
	}
	r := record[V]{value: val, setAt: setAt, freshUntil: fresh, expiresAt: fresh.Add(c.cfg.StaleWindow)}
	if _, err := c.l1.Add(k, r); err != nil {
		c.log.Debugw("l1 promotion skipped", "key", k.String(), "err", err)
	}
	c.observeL1()
	return r.entry(TierL2, now), true
}

//
// Writes
//

// Set writes v to both tiers.  Only encoding failures are returned; L2
// write failures are logged and counted.
func (c *Cache[K, V]) Set(ctx context.Context, k K, v V, opts ...SetOption) error {
	var wo writeOpts
	for _, fn := range opts {
		fn(&wo)
	}
	now := c.now()
	ttl := c.ttlFor(ctx, k.CacheType(), wo.ttl)

	var payload []byte
	if c.l2 != nil {
		var err error
		if payload, err = c.codec.Marshal(v); err != nil {
			return platformerrors.WithContext(
				platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "encode cache value"),
				"key", k.String())
		}
	}

	r := record[V]{
		value:      v,
		setAt:      now,
		freshUntil: now.Add(ttl.L1),
		expiresAt:  now.Add(ttl.L1 + c.cfg.StaleWindow),
	}
	if _, err := c.l1.Add(k, r); err != nil {
		c.log.Debugw("l1 write skipped", "key", k.String(), "err", err)
	}
	c.observeL1()
	c.m.inc(evWrite)

	if c.l2 == nil {
		return nil
	}
	data, err := encodeEnvelope(payload, now, now.Add(ttl.L2), c.cfg.CompressAt)
	if err != nil {
		return platformerrors.WithContext(
			platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "encode cache envelope"),
			"key", k.String())
	}
	if err := c.l2.Set(ctx, k.String(), data, ttl.L2+c.cfg.StaleWindow); err != nil {
		c.m.inc(evError)
		c.log.Warnw("l2 set failed", "key", k.String(), "err", err)
	}
	return nil
}

// Delete removes k from both tiers.
func (c *Cache[K, V]) Delete(ctx context.Context, k K) {
	c.l1.Remove(k)
	c.observeL1()
	c.m.inc(evInvalidation)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Delete(ctx, k.String()); err != nil {
		c.m.inc(evError)
		c.log.Warnw("l2 delete failed", "key", k.String(), "err", err)
	}
}

// DeleteTenant removes every entry owned by tenantID, L1 first, then L2.
// Entries written to L2 while the scan runs may survive it.  The returned
// count covers both tiers.
func (c *Cache[K, V]) DeleteTenant(ctx context.Context, tenantID string) (int, error) {
	prefix, err := keyspace.TenantPrefix(tenantID)
	if err != nil {
		return 0, err
	}
	n := c.l1.RemoveFunc(func(k K) bool { return k.TenantID() == tenantID })
	c.observeL1()
	c.m.inc(evInvalidation)

	if c.l2 == nil {
		return n, nil
	}
	removed, err := c.l2.DeletePrefix(ctx, prefix)
	if err != nil {
		c.m.inc(evError)
		c.log.Warnw("l2 tenant purge incomplete", "tenant", tenantID, "removed", removed, "err", err)
	}
	c.log.Infow("tenant purged", "tenant", tenantID, "l1", n, "l2", removed)
	return n + removed, nil
}

func (c *Cache[K, V]) observeL1() {
	metrics.L1Entries.WithLabelValues(c.name).Set(float64(c.l1.Len()))
	metrics.L1Bytes.WithLabelValues(c.name).Set(float64(c.l1.Bytes()))
}
