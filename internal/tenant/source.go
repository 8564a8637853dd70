// internal/tenant/source.go
//
// Tenant configuration sources.
//
// Context
// -------
// A Source answers one question: "what is the configuration for tenant
// X?"  The provider calls it once per cold load.  Three implementations
// ship with the engine:
//
//   - StaticSource  in-memory map, for tests and single-binary setups.
//   - FileSource    YAML file parsed with koanf (source_file.go).
//   - SQLSource     control-plane MySQL tables (source_sql.go).
//
// Sources return ErrNotFound for unknown tenants; any other error is
// treated as a load failure.  The provider falls back to defaults in both
// cases, so Sources never need to synthesise a default themselves.
package tenant

import (
	"context"
	"sort"
	"sync"
)

// Source loads a tenant's raw configuration.
type Source interface {
	Lookup(ctx context.Context, id string) (Config, error)
}

// Lister is implemented by sources that can enumerate their tenants.
// Provider.Warm uses it to preload every tenant at startup.
type Lister interface {
	IDs(ctx context.Context) ([]string, error)
}

// StaticSource serves configurations from memory.
type StaticSource struct {
	mu      sync.RWMutex
	tenants map[string]Config
}

// NewStaticSource copies m into a new StaticSource.
func NewStaticSource(m map[string]Config) *StaticSource {
	s := &StaticSource{tenants: make(map[string]Config, len(m))}
	for id, cfg := range m {
		s.tenants[id] = cfg
	}
	return s
}

func (s *StaticSource) Lookup(_ context.Context, id string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.tenants[id]
	if !ok {
		return Config{}, ErrNotFound
	}
	return cfg, nil
}

// IDs lists every configured tenant.
func (s *StaticSource) IDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Put adds or replaces a configuration.  Already loaded tenants keep the
// old one until the provider invalidates them.
func (s *StaticSource) Put(id string, cfg Config) {
	s.mu.Lock()
	s.tenants[id] = cfg
	s.mu.Unlock()
}
