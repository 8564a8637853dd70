// internal/tenant/source_file.go
//
// YAML-backed tenant source.
//
// Context
// -------
// Small deployments keep tenant settings next to the main config in
// `conf/tenants.yaml`:
//
//	tenants:
//	  acme:
//	    name: Acme Corp
//	    features: [summaries, adr, personas]
//	    personas: [leadership, engineering]
//	    quotas:
//	      max_operations_per_day: 500
//	    cache_ttl:
//	      transform: 10m
//	    rate_limit:
//	      requests_per_second: 20
//	      burst: 40
//
// The file is parsed with koanf on first Lookup and kept in memory until
// Reload.  Durations are Go duration strings.
//
// Notes
// -----
//   - A missing file is a load error, not ErrNotFound, so the provider
//     logs it as a source failure.
package tenant

import (
	"context"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

// FileSource reads tenants from a YAML file.
type FileSource struct {
	path string

	mu sync.RWMutex
	k  *koanf.Koanf
}

// NewFileSource returns a FileSource for path.  Nothing is read until the
// first Lookup.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Reload re-reads the file.  On error the previous contents stay active.
func (s *FileSource) Reload() error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(s.path), yaml.Parser()); err != nil {
		return err
	}
	s.mu.Lock()
	s.k = k
	s.mu.Unlock()
	return nil
}

// IDs lists every tenant defined in the file.
func (s *FileSource) IDs(context.Context) ([]string, error) {
	k, err := s.tree()
	if err != nil {
		return nil, err
	}
	return k.MapKeys("tenants"), nil
}

func (s *FileSource) tree() (*koanf.Koanf, error) {
	s.mu.RLock()
	k := s.k
	s.mu.RUnlock()
	if k != nil {
		return k, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k, nil
}

func (s *FileSource) Lookup(_ context.Context, id string) (Config, error) {
	k, err := s.tree()
	if err != nil {
		return Config{}, err
	}
	path := "tenants." + id
	if !k.Exists(path) {
		return Config{}, ErrNotFound
	}
	var cfg Config
	if err := k.UnmarshalWithConf(path, &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
