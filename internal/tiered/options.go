package tiered

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/keyspace"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxEntries     = 10000
	DefaultStaleWindow    = 5 * time.Minute
	DefaultRefreshTimeout = 10 * time.Second
	DefaultMaxRefreshes   = 16
	DefaultCompressAt     = 1024
)

// DefaultTTLs is the built-in per-type TTL table.
func DefaultTTLs() map[keyspace.Type]keyspace.TTL {
	out := make(map[keyspace.Type]keyspace.TTL)
	for _, t := range keyspace.Types() {
		out[t] = t.DefaultTTL()
	}
	return out
}

// Config describes one Cache instance.
type Config[V any] struct {
	// Name labels log lines and metrics.
	Name string

	// L1 bounds.  MaxBytes of zero disables the byte budget.
	MaxEntries int
	MaxBytes   int64
	SizeOf     func(V) int64

	// L2 is the shared tier.  nil runs the cache L1-only.
	L2 cache.Store

	// TTLs per cache type; missing types use keyspace defaults.
	TTLs map[keyspace.Type]keyspace.TTL

	// TTLOverride supplies a per-tenant TTL.  When it reports ok, the value
	// replaces the L2 TTL and caps the L1 TTL.
	TTLOverride func(ctx context.Context, t keyspace.Type) (time.Duration, bool)

	StaleWindow    time.Duration
	RefreshTimeout time.Duration
	MaxRefreshes   int64

	// CompressAt gzips L2 envelopes of at least this many bytes.  Negative
	// disables compression.
	CompressAt int

	Codec  Codec[V]
	Logger *zap.SugaredLogger
}

// Option adjusts a Cache at construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now.  Tests use it to move entries between states.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

//
// Per-call options
//

// SetOption adjusts a single write.
type SetOption func(*writeOpts)

type writeOpts struct {
	ttl time.Duration
}

// WithTTL writes with an explicit L2 TTL, capping L1 to it as well.
func WithTTL(d time.Duration) SetOption {
	return func(o *writeOpts) { o.ttl = d }
}

// FetchOption adjusts GetOrFetch.
type FetchOption func(*fetchOpts)

type fetchOpts struct {
	swr bool
	set []SetOption
}

// WithStaleWhileRevalidate serves stale entries immediately and refreshes
// them in the background.
func WithStaleWhileRevalidate() FetchOption {
	return func(o *fetchOpts) { o.swr = true }
}

// WithFetchTTL applies WithTTL to the value written after a fetch.
func WithFetchTTL(d time.Duration) FetchOption {
	return func(o *fetchOpts) { o.set = append(o.set, WithTTL(d)) }
}
