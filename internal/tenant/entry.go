// internal/tenant/entry.go
//
// Tenant aggregate and provider cache entry.
//
// Context
// -------
// A Tenant is everything the cache layer needs to know about the caller's
// organisation: feature flags, persona allow-list, quotas, per-type TTL
// overrides, and rate-limit overrides.  It is built once from a Config
// and never mutated afterwards, so it can be shared freely between
// goroutines and stored in a context.Context.
//
// The provider keeps a pointer to each loaded Tenant inside `entry`, along
// with a `lastSeen` UnixNano timestamp used by the evictor for idle
// eviction.
//
// Notes
// -----
//   - All Tenant fields are unexported; accessors return copies.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yanizio/tenantcache/internal/keyspace"
)

//
// Feature flags
//

// Feature is an enumerated capability a tenant may have switched on.
type Feature string

const (
	FeatureSummaries    Feature = "summaries"
	FeatureADR          Feature = "adr"
	FeatureChangelog    Feature = "changelog"
	FeatureFolderLookup Feature = "folder_lookup"
	FeaturePersonas     Feature = "personas"
)

// AllFeatures lists every known feature.
func AllFeatures() []Feature {
	return []Feature{
		FeatureSummaries, FeatureADR, FeatureChangelog,
		FeatureFolderLookup, FeaturePersonas,
	}
}

func (f Feature) valid() bool {
	for _, k := range AllFeatures() {
		if f == k {
			return true
		}
	}
	return false
}

//
// Raw configuration (what sources return)
//

// Quotas bounds how much work a tenant may trigger.  Zero means unlimited.
type Quotas struct {
	MaxOperationsPerDay     int64 `koanf:"max_operations_per_day"`
	MaxConcurrentOperations int64 `koanf:"max_concurrent_operations"`
}

// RateLimit overrides the request rate for a tenant.  Zero means unlimited.
type RateLimit struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// Config is the source-level description of a tenant.
type Config struct {
	Name      string                   `koanf:"name"`
	Features  []string                 `koanf:"features"`
	Personas  []string                 `koanf:"personas"`
	Quotas    Quotas                   `koanf:"quotas"`
	CacheTTLs map[string]time.Duration `koanf:"cache_ttl"`
	RateLimit RateLimit                `koanf:"rate_limit"`
}

// DefaultConfig is used for single-tenant deployments and whenever a
// tenant's own configuration cannot be loaded.
func DefaultConfig() Config {
	fs := make([]string, 0, len(AllFeatures()))
	for _, f := range AllFeatures() {
		fs = append(fs, string(f))
	}
	return Config{Name: "Default", Features: fs}
}

//
// Tenant aggregate
//

// Tenant is the immutable, resolved view of one tenant.
type Tenant struct {
	id        string
	name      string
	features  map[Feature]struct{}
	personas  map[string]struct{}
	quotas    Quotas
	ttls      map[keyspace.Type]time.Duration
	rateLimit RateLimit
	fallback  bool
}

// build validates cfg and returns the Tenant for id.
func build(id string, cfg Config) (*Tenant, error) {
	if !keyspace.ValidTenantID(id) {
		return nil, invalidID(id)
	}
	t := &Tenant{
		id:        id,
		name:      cfg.Name,
		features:  make(map[Feature]struct{}, len(cfg.Features)),
		personas:  make(map[string]struct{}, len(cfg.Personas)),
		quotas:    cfg.Quotas,
		ttls:      make(map[keyspace.Type]time.Duration, len(cfg.CacheTTLs)),
		rateLimit: cfg.RateLimit,
	}
	if t.name == "" {
		t.name = id
	}
	for _, f := range cfg.Features {
		if !Feature(f).valid() {
			return nil, fmt.Errorf("tenant %s: unknown feature %q", id, f)
		}
		t.features[Feature(f)] = struct{}{}
	}
	for _, p := range cfg.Personas {
		t.personas[p] = struct{}{}
	}
	for name, d := range cfg.CacheTTLs {
		typ, err := keyspace.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", id, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("tenant %s: cache_ttl.%s must be positive", id, name)
		}
		t.ttls[typ] = d
	}
	if t.quotas.MaxOperationsPerDay < 0 || t.quotas.MaxConcurrentOperations < 0 {
		return nil, fmt.Errorf("tenant %s: negative quota", id)
	}
	if t.rateLimit.RequestsPerSecond < 0 || t.rateLimit.Burst < 0 {
		return nil, fmt.Errorf("tenant %s: negative rate limit", id)
	}
	return t, nil
}

// NewTenant builds a Tenant directly from a Config.  Used by tests and by
// callers that resolve tenants outside a Provider.
func NewTenant(id string, cfg Config) (*Tenant, error) { return build(id, cfg) }

func (t *Tenant) ID() string   { return t.id }
func (t *Tenant) Name() string { return t.name }

// IsFallback reports whether the tenant was built from defaults because
// its own configuration was missing or malformed.
func (t *Tenant) IsFallback() bool { return t.fallback }

// HasFeature reports whether f is enabled.
func (t *Tenant) HasFeature(f Feature) bool {
	_, ok := t.features[f]
	return ok
}

// Features returns the enabled features, sorted.
func (t *Tenant) Features() []Feature {
	out := make([]Feature, 0, len(t.features))
	for f := range t.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllowsPersona reports whether persona may be used.  The personas feature
// must be on; an empty allow-list then permits every persona.
func (t *Tenant) AllowsPersona(persona string) bool {
	if !t.HasFeature(FeaturePersonas) {
		return false
	}
	if len(t.personas) == 0 {
		return true
	}
	_, ok := t.personas[persona]
	return ok
}

func (t *Tenant) Quotas() Quotas       { return t.quotas }
func (t *Tenant) RateLimit() RateLimit { return t.rateLimit }

// CacheTTLOverride returns the tenant's TTL for typ when one is set.
func (t *Tenant) CacheTTLOverride(typ keyspace.Type) (time.Duration, bool) {
	d, ok := t.ttls[typ]
	return d, ok
}

// CacheTTL returns the override for typ or the global L2 default.
func (t *Tenant) CacheTTL(typ keyspace.Type) time.Duration {
	if d, ok := t.ttls[typ]; ok {
		return d
	}
	return typ.DefaultTTL().L2
}

//
// Provider cache entry
//

type entry struct {
	tenant    *Tenant
	lastSeen  atomic.Int64 // UnixNano
	expiresAt int64        // UnixNano, 0 = only idle eviction applies
}

func (e *entry) touch(now time.Time) { e.lastSeen.Store(now.UnixNano()) }

func (e *entry) expired(now time.Time) bool {
	return e.expiresAt != 0 && now.UnixNano() >= e.expiresAt
}
