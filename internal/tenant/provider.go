// internal/tenant/provider.go
//
// Lazy, coalesced tenant loading.
//
// Context
// -------
// The Provider turns a tenant id into a *Tenant on first use and keeps it in
// a sync.Map until the evictor drops it.  Concurrent first requests for the
// same id share one Source call through singleflight.
//
// Workflow
// --------
//  1. Validate the id (restricted charset, safe as a key namespace).
//  2. Fast path: sync.Map hit, bump lastSeen, return.
//  3. Slow path: singleflight on id, double-check the map, then Source
//     lookup.  A missing or malformed config falls back to the provider
//     defaults bound to the requested id and logs a warning.  Fallback
//     entries expire after FallbackTTL so a recovered source is picked up.
//  4. Store the entry and update gauges.
//
// Notes
// -----
//   - A nil Source means single-tenant mode: every id gets the defaults
//     without a warning.
//   - Loads run on context.WithoutCancel so one caller's cancellation does
//     not fail the others waiting on the same flight.
package tenant

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/metrics"
)

// Static defaults.  Override through Options.
const (
	IdleTTL       = 30 * time.Minute
	MaxEntries    = 1000
	EvictInterval = 5 * time.Minute
	FallbackTTL   = time.Minute
)

// Options configures New.  Zero values take the package defaults.
type Options struct {
	Source        Source
	Defaults      *Config
	IdleTTL       time.Duration
	MaxEntries    int
	EvictInterval time.Duration
	FallbackTTL   time.Duration
	Logger        *zap.SugaredLogger
	Now           func() time.Time
}

// Provider resolves and caches tenants.
type Provider struct {
	src         Source
	defaults    Config
	def         *Tenant
	sfg         singleflight.Group
	m           sync.Map // id → *entry
	usage       sync.Map // id → *usage
	idleTTL     time.Duration
	maxEntries  int
	fallbackTTL time.Duration
	evictTicker *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
	log         *zap.SugaredLogger
	now         func() time.Time
}

// New constructs a Provider and starts the background evictor.
func New(opts Options) (*Provider, error) {
	p := &Provider{
		src:         opts.Source,
		defaults:    DefaultConfig(),
		idleTTL:     opts.IdleTTL,
		maxEntries:  opts.MaxEntries,
		fallbackTTL: opts.FallbackTTL,
		done:        make(chan struct{}),
		log:         opts.Logger,
		now:         opts.Now,
	}
	if opts.Defaults != nil {
		p.defaults = *opts.Defaults
	}
	if p.idleTTL <= 0 {
		p.idleTTL = IdleTTL
	}
	if p.maxEntries == 0 {
		p.maxEntries = MaxEntries
	}
	if p.fallbackTTL <= 0 {
		p.fallbackTTL = FallbackTTL
	}
	if p.log == nil {
		p.log = zap.S()
	}
	if p.now == nil {
		p.now = time.Now
	}

	def, err := build(DefaultID, p.defaults)
	if err != nil {
		return nil, err
	}
	p.def = def

	interval := opts.EvictInterval
	if interval <= 0 {
		interval = EvictInterval
	}
	p.evictTicker = time.NewTicker(interval)
	go p.evictLoop()
	return p, nil
}

// Close stops the evictor.  Safe to call more than once.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.evictTicker.Stop()
		close(p.done)
	})
	return nil
}

// Default returns the provider's default tenant.
func (p *Provider) Default() *Tenant { return p.def }

// Current returns the tenant carried by ctx or the provider default.
func (p *Provider) Current(ctx context.Context) *Tenant {
	if t := FromContext(ctx); t != nil {
		return t
	}
	return p.def
}

// WithTenantContext loads id and runs fn with it as the active tenant.  The
// caller's ctx is never modified, so the previous tenant is back in effect
// as soon as fn returns.
func (p *Provider) WithTenantContext(ctx context.Context, id string, fn func(context.Context) error) error {
	t, err := p.Load(ctx, id)
	if err != nil {
		return err
	}
	return fn(WithTenant(ctx, t))
}

// Load returns the Tenant for id, loading it on demand.
func (p *Provider) Load(ctx context.Context, id string) (*Tenant, error) {
	if !keyspace.ValidTenantID(id) {
		return nil, invalidID(id)
	}
	if t, ok := p.cached(id); ok {
		return t, nil
	}

	v, err, _ := p.sfg.Do(id, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if t, ok := p.cached(id); ok {
			return t, nil
		}
		t := p.resolve(context.WithoutCancel(ctx), id)
		ent := &entry{tenant: t}
		ent.touch(p.now())
		if t.fallback && p.src != nil {
			ent.expiresAt = p.now().Add(p.fallbackTTL).UnixNano()
		}
		if _, loaded := p.m.Swap(id, ent); !loaded {
			metrics.ActiveTenants.Inc()
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tenant), nil
}

func (p *Provider) cached(id string) (*Tenant, bool) {
	v, ok := p.m.Load(id)
	if !ok {
		return nil, false
	}
	ent := v.(*entry)
	now := p.now()
	if ent.expired(now) {
		return nil, false
	}
	ent.touch(now)
	return ent.tenant, true
}

// resolve never fails: anything short of a valid config becomes the
// defaults bound to id.
func (p *Provider) resolve(ctx context.Context, id string) *Tenant {
	if p.src == nil {
		t := mustBuild(id, p.defaults)
		metrics.TenantLoadTotal.Inc()
		return t
	}

	cfg, err := p.src.Lookup(ctx, id)
	if err == nil {
		t, berr := build(id, cfg)
		if berr == nil {
			metrics.TenantLoadTotal.Inc()
			return t
		}
		err = berr
	}

	reason := "malformed"
	switch {
	case errors.Is(err, ErrNotFound):
		reason = "not found"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	}
	p.log.Warnw("tenant config unavailable, using defaults",
		"tenant", id, "reason", reason, "err", err)
	metrics.TenantLoadFallbackTotal.Inc()

	t := mustBuild(id, p.defaults)
	t.fallback = true
	return t
}

// Invalidate drops a loaded tenant so the next Load re-reads its source.
func (p *Provider) Invalidate(id string) {
	if _, ok := p.m.LoadAndDelete(id); ok {
		metrics.ActiveTenants.Dec()
	}
}

// Warm loads every tenant the source can enumerate.  Sources that cannot
// enumerate are skipped.
func (p *Provider) Warm(ctx context.Context) (int, error) {
	l, ok := p.src.(Lister)
	if !ok {
		return 0, nil
	}
	ids, err := l.IDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := p.Load(ctx, id); err != nil {
			p.log.Warnw("tenant warm-up skipped", "tenant", id, "err", err)
			continue
		}
		n++
	}
	return n, nil
}

// Loaded lists the ids currently held in memory.
func (p *Provider) Loaded() []string {
	var ids []string
	p.m.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}
