// internal/contentcache/cache.go
//
// Tenant-scoped, content-addressable cache.
//
// Context
// -------
// Results of expensive transformations are stored under the hash of the
// content they were computed from, so the same text reached under a
// different file name still hits.  The tenant segment of every key comes
// from the request context, never from a parameter, so callers cannot
// address another tenant's entries by mistake.
//
// All tiering (L1/L2, promotion, stale-while-revalidate, metrics) is done
// by the shared tiered engine.  This package only owns hashing and key
// construction.
//
// Notes
// -----
//   - Values are raw JSON; GetAs and SetAs handle typed payloads.
//   - Errors are returned for invalid key input only.  Shared-tier
//     failures are logged and counted by the engine.
package contentcache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/tenant"
	"github.com/yanizio/tenantcache/internal/tiered"
)

// Options selects the entry within a tenant's namespace.
type Options struct {
	Type      keyspace.Type
	Qualifier string

	// StaleWhileRevalidate applies to GetOrCompute only.
	StaleWhileRevalidate bool
}

func (o Options) typ() keyspace.Type {
	if o.Type == "" {
		return keyspace.TypeTransform
	}
	return o.Type
}

// Config configures New.
type Config struct {
	Name           string
	MaxEntries     int
	MaxBytes       int64
	L2             cache.Store
	TTLs           map[keyspace.Type]keyspace.TTL
	StaleWindow    time.Duration
	RefreshTimeout time.Duration
	MaxRefreshes   int64
	CompressAt     int
	Logger         *zap.SugaredLogger

	// Resolver picks the tenant for a context.  Defaults to tenant.Current.
	Resolver tenant.Resolver
}

// Cache is the content-addressable cache.
type Cache struct {
	engine  *tiered.Cache[keyspace.Key, json.RawMessage]
	resolve tenant.Resolver
}

// New builds a Cache.  Tenant TTL overrides are wired through the resolver.
func New(cfg Config, opts ...tiered.Option) *Cache {
	if cfg.Name == "" {
		cfg.Name = "content"
	}
	if cfg.Resolver == nil {
		cfg.Resolver = tenant.Current
	}
	engine := tiered.New[keyspace.Key](tiered.Config[json.RawMessage]{
		Name:           cfg.Name,
		MaxEntries:     cfg.MaxEntries,
		MaxBytes:       cfg.MaxBytes,
		SizeOf:         func(v json.RawMessage) int64 { return int64(len(v)) },
		L2:             cfg.L2,
		TTLs:           cfg.TTLs,
		TTLOverride:    tenant.TTLOverride(cfg.Resolver),
		StaleWindow:    cfg.StaleWindow,
		RefreshTimeout: cfg.RefreshTimeout,
		MaxRefreshes:   cfg.MaxRefreshes,
		CompressAt:     cfg.CompressAt,
		Codec:          rawCodec{},
		Logger:         cfg.Logger,
	}, opts...)
	return &Cache{engine: engine, resolve: cfg.Resolver}
}

// BuildCacheKey addresses hash within the scoped tenant's namespace.
func (c *Cache) BuildCacheKey(ctx context.Context, hash string, t keyspace.Type, qualifier string) (keyspace.Key, error) {
	return keyspace.New(c.resolve(ctx).ID(), t, hash, qualifier)
}

func (c *Cache) keyFor(ctx context.Context, content string, o Options) (keyspace.Key, error) {
	return c.BuildCacheKey(ctx, GenerateContentHash(content), o.typ(), o.Qualifier)
}

// Get looks content up for the scoped tenant.
func (c *Cache) Get(ctx context.Context, content string, o Options) (json.RawMessage, bool, error) {
	k, err := c.keyFor(ctx, content, o)
	if err != nil {
		return nil, false, err
	}
	v, ok := c.engine.Get(ctx, k)
	return v, ok, nil
}

// GetByHash looks up a precomputed hash.
func (c *Cache) GetByHash(ctx context.Context, hash string, o Options) (json.RawMessage, bool, error) {
	k, err := c.BuildCacheKey(ctx, hash, o.typ(), o.Qualifier)
	if err != nil {
		return nil, false, err
	}
	v, ok := c.engine.Get(ctx, k)
	return v, ok, nil
}

// Set stores value for content in both tiers.
func (c *Cache) Set(ctx context.Context, content string, value json.RawMessage, o Options) error {
	if err := checkValue(value); err != nil {
		return err
	}
	k, err := c.keyFor(ctx, content, o)
	if err != nil {
		return err
	}
	return c.engine.Set(ctx, k, value)
}

// SetByHash stores value under a precomputed hash.
func (c *Cache) SetByHash(ctx context.Context, hash string, value json.RawMessage, o Options) error {
	if err := checkValue(value); err != nil {
		return err
	}
	k, err := c.BuildCacheKey(ctx, hash, o.typ(), o.Qualifier)
	if err != nil {
		return err
	}
	return c.engine.Set(ctx, k, value)
}

// GetOrCompute returns the cached result for content or runs compute.
func (c *Cache) GetOrCompute(ctx context.Context, content string, o Options, compute tiered.FetchFunc[json.RawMessage]) (json.RawMessage, error) {
	k, err := c.keyFor(ctx, content, o)
	if err != nil {
		return nil, err
	}
	var fo []tiered.FetchOption
	if o.StaleWhileRevalidate {
		fo = append(fo, tiered.WithStaleWhileRevalidate())
	}
	return c.engine.GetOrFetch(ctx, k, compute, fo...)
}

// Invalidate removes the entry for content.
func (c *Cache) Invalidate(ctx context.Context, content string, o Options) error {
	k, err := c.keyFor(ctx, content, o)
	if err != nil {
		return err
	}
	c.engine.Delete(ctx, k)
	return nil
}

// InvalidateByHash removes the entry stored under a precomputed hash.
func (c *Cache) InvalidateByHash(ctx context.Context, hash string, o Options) error {
	k, err := c.BuildCacheKey(ctx, hash, o.typ(), o.Qualifier)
	if err != nil {
		return err
	}
	c.engine.Delete(ctx, k)
	return nil
}

// InvalidateTenant removes every entry of the scoped tenant and returns
// how many were dropped across both tiers.
func (c *Cache) InvalidateTenant(ctx context.Context) (int, error) {
	return c.engine.DeleteTenant(ctx, c.resolve(ctx).ID())
}

// Name reports the cache name used in metrics.
func (c *Cache) Name() string { return c.engine.Name() }

// Metrics returns the engine counters.
func (c *Cache) Metrics() tiered.Snapshot { return c.engine.Metrics() }

// ResetMetrics zeroes the engine counters.
func (c *Cache) ResetMetrics() { c.engine.ResetMetrics() }

// Degraded reports whether the shared tier is absent.
func (c *Cache) Degraded() bool { return c.engine.Degraded() }

// Close waits for background refreshes.
func (c *Cache) Close() error { return c.engine.Close() }

//
// Typed helpers
//

// GetAs decodes a cached value into T.
func GetAs[T any](ctx context.Context, c *Cache, content string, o Options) (T, bool, error) {
	var out T
	raw, ok, err := c.Get(ctx, content, o)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// SetAs encodes v as JSON and stores it.
func SetAs[T any](ctx context.Context, c *Cache, content string, v T, o Options) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, content, raw, o)
}

// rawCodec passes JSON through untouched.
type rawCodec struct{}

func (rawCodec) Marshal(v json.RawMessage) ([]byte, error) { return v, nil }

func (rawCodec) Unmarshal(b []byte) (json.RawMessage, error) {
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out, nil
}
