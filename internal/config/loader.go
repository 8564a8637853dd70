// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `TCACHE_`, where `__` maps to “.”
     (e.g., `TCACHE_REDIS__ADDR → redis.addr`).

After merging, string values of the form `vault:<mount>/<path>#<key>` are
swapped for the secret they name.  The tree is then unmarshalled into
typed structs, defaulted, validated, enriched with the runtime root path,
and cached in an `atomic.Pointer` for lock-free reads.  `Reload()` calls
`Load()` again and swaps the pointer.

Instrumentation
---------------
  • DEBUG  root discovery, YAML read, secret resolution.
  • ERROR  YAML parse, env overlay, unmarshal, validation failures.
  • INFO   final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`, so
    `go run ./cmd/tcached` works from any sub-directory.
  • Every error returned carries platformerrors.CodeInvalidConfig.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "TCACHE_"

// SecretPrefix marks values resolved through a SecretResolver.
const SecretPrefix = "vault:"

// SecretResolver turns "mount/path#key" into the secret it names.
// *vault.Client satisfies it.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves TCACHE_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv(EnvPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load discovers the root directory and loads from it.
func Load(ctx context.Context, secrets SecretResolver) (*Config, error) {
	return LoadRoot(ctx, rootDir(), secrets)
}

// LoadRoot reads .env, YAML, env overrides, and secrets under root, then
// validates and caches the result.  secrets may be nil when no value uses
// the vault: prefix.
func LoadRoot(ctx context.Context, root string, secrets SecretResolver) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, invalid(err, "load "+yamlPath)
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: TCACHE_REDIS__ADDR → redis.addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, invalid(err, "env overlay")
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, invalid(err, "unmarshal")
	}

	cfg.applyDefaults()
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, invalid(err, "validate")
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"redis", cfg.Redis.Enabled,
		"tenant_source", cfg.Tenants.Source,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces every vault: reference in k.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets SecretResolver) error {
	for path, val := range k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, SecretPrefix) {
			continue
		}
		if secrets == nil {
			return invalid(fmt.Errorf("%s references a secret but no resolver is configured", path), "secrets")
		}
		plain, err := secrets.Resolve(ctx, strings.TrimPrefix(s, SecretPrefix))
		if err != nil {
			return platformerrors.WithContext(invalid(err, "resolve secret"), "key", path)
		}
		if err := k.Set(path, plain); err != nil {
			return invalid(err, "set secret")
		}
		zap.S().Debugw("config secret resolved", "key", path)
	}
	return nil
}

func invalid(err error, msg string) error {
	return platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "config: "+msg)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

func Reload(ctx context.Context, secrets SecretResolver) error {
	_, err := Load(ctx, secrets)
	return err
}
