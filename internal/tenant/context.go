// internal/tenant/context.go
//
// Ambient tenant propagation through context.Context.
//
// Context
// -------
// The active tenant travels with the request context, so every goroutine
// spawned from a scoped context sees the same tenant and nothing else.
// Scopes nest naturally: a child context shadows the parent's tenant and
// the parent is untouched when the child goes out of scope.
//
// Notes
// -----
//   - The key type is unexported; only this package can read or write it.
//   - Current never returns nil.
package tenant

import (
	"context"
	"time"

	"github.com/yanizio/tenantcache/internal/keyspace"
)

// DefaultID is the tenant identifier used outside any tenant scope.
const DefaultID = "default"

type ctxKey struct{}

var builtinDefault = mustBuild(DefaultID, DefaultConfig())

func mustBuild(id string, cfg Config) *Tenant {
	t, err := build(id, cfg)
	if err != nil {
		panic(err)
	}
	return t
}

// WithTenant returns a child context carrying t.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext extracts the tenant set by WithTenant, or nil.
func FromContext(ctx context.Context) *Tenant {
	t, _ := ctx.Value(ctxKey{}).(*Tenant)
	return t
}

// Current returns the scoped tenant, or the built-in default tenant when
// ctx carries none.
func Current(ctx context.Context) *Tenant {
	if t := FromContext(ctx); t != nil {
		return t
	}
	return builtinDefault
}

// CurrentID is shorthand for Current(ctx).ID().
func CurrentID(ctx context.Context) string { return Current(ctx).ID() }

// Resolver picks the tenant for a context.  Provider.Current satisfies it;
// so does the package-level Current.
type Resolver func(ctx context.Context) *Tenant

// TTLOverride adapts a Resolver into the hook the tiered cache consults
// for per-tenant TTLs.
func TTLOverride(resolve Resolver) func(context.Context, keyspace.Type) (ttl time.Duration, ok bool) {
	if resolve == nil {
		resolve = Current
	}
	return func(ctx context.Context, typ keyspace.Type) (time.Duration, bool) {
		return resolve(ctx).CacheTTLOverride(typ)
	}
}

// IsFeatureEnabled reports whether the scoped tenant has f switched on.
func IsFeatureEnabled(ctx context.Context, f Feature) bool {
	return Current(ctx).HasFeature(f)
}

// IsPersonaAllowed reports whether the scoped tenant may use persona.
func IsPersonaAllowed(ctx context.Context, persona string) bool {
	return Current(ctx).AllowsPersona(persona)
}

// CacheTTL returns the scoped tenant's TTL for typ, or the global default.
func CacheTTL(ctx context.Context, typ keyspace.Type) time.Duration {
	return Current(ctx).CacheTTL(typ)
}
