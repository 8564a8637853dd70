// internal/config/model.go
//
// Typed configuration model for tcached.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/global.yaml`                        – primary static file,
//   • `TCACHE_`-prefixed environment overrides  – highest precedence.
//
// Any string value beginning with `vault:` is resolved through the secret
// resolver *before* unmarshalling, so the model never stores Vault
// references, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Zero durations and sizes are replaced by applyDefaults.
package config

import (
	"time"

	"github.com/yanizio/tenantcache/internal/keyspace"
)

//
// HTTP section
//

// HTTP holds admin-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Log section
//

// Log controls the zap logger.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `koanf:"dir"`
	Tee   bool   `koanf:"tee"`
}

//
// Cache section
//

// Cache tunes the tiered engine shared by every cache instance.
type Cache struct {
	MaxEntries     int                     `koanf:"max_entries"     validate:"gte=0"`
	MaxBytes       int64                   `koanf:"max_bytes"       validate:"gte=0"`
	StaleWindow    time.Duration           `koanf:"stale_window"    validate:"gte=0"`
	RefreshTimeout time.Duration           `koanf:"refresh_timeout" validate:"gte=0"`
	MaxRefreshes   int64                   `koanf:"max_refreshes"   validate:"gte=0"`
	CompressAt     int                     `koanf:"compress_at"`
	TTLs           map[string]keyspace.TTL `koanf:"ttl"             validate:"dive,keys,cache_type,endkeys"`
}

//
// Redis section
//

// Breaker tunes the L2 circuit breaker.
type Breaker struct {
	Disabled         bool          `koanf:"disabled"`
	ConsecutiveFails uint32        `koanf:"consecutive_fails"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

// Redis describes the shared L2 tier.  `Required` turns an unreachable
// Redis at boot into a fatal error instead of L1-only mode.
type Redis struct {
	Enabled        bool          `koanf:"enabled"`
	Required       bool          `koanf:"required"`
	Addr           string        `koanf:"addr"            validate:"required_if=Enabled true"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"              validate:"gte=0"`
	Prefix         string        `koanf:"prefix"`
	DialTimeout    time.Duration `koanf:"dial_timeout"`
	OpTimeout      time.Duration `koanf:"op_timeout"`
	ConnectRetries uint64        `koanf:"connect_retries"`
	Breaker        Breaker       `koanf:"breaker"`
}

//
// Tenants section
//

// Tenants selects where tenant configuration comes from.
type Tenants struct {
	Source      string        `koanf:"source"       validate:"omitempty,oneof=static file sql"`
	File        string        `koanf:"file"         validate:"required_if=Source file"`
	Header      string        `koanf:"header"`
	IdleTTL     time.Duration `koanf:"idle_ttl"`
	MaxEntries  int           `koanf:"max_entries"  validate:"gte=0"`
	FallbackTTL time.Duration `koanf:"fallback_ttl"`
	Preload     []string      `koanf:"preload"      validate:"dive,tenant_id"`
}

//
// Database section
//

// Database points at the control-plane MySQL holding the `tenant` tables.
// Only read when Tenants.Source is "sql".
type Database struct {
	DSN          string        `koanf:"dsn"`
	MaxOpen      int           `koanf:"max_open"      validate:"gte=0"`
	MaxIdle      int           `koanf:"max_idle"      validate:"gte=0"`
	Retries      uint64        `koanf:"retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // TCACHE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Log      Log      `koanf:"log"`
	Cache    Cache    `koanf:"cache"`
	Redis    Redis    `koanf:"redis"`
	Tenants  Tenants  `koanf:"tenants"`
	Database Database `koanf:"database"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills zero values.  Engine-level defaults (TTL table,
// stale window, refresh limits) stay zero here and are applied by the
// tiered package itself.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "tcache:"
	}
	if c.Tenants.Source == "" {
		c.Tenants.Source = "static"
	}
	if c.Tenants.Header == "" {
		c.Tenants.Header = "X-Tenant-ID"
	}
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 5
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 2
	}
	if c.Database.RetryBackoff == 0 {
		c.Database.RetryBackoff = 500 * time.Millisecond
	}
}

// TypedTTLs converts the YAML TTL table into keyspace types.  Keys were
// checked by the cache_type validation rule.
func (c Cache) TypedTTLs() map[keyspace.Type]keyspace.TTL {
	if len(c.TTLs) == 0 {
		return nil
	}
	out := make(map[keyspace.Type]keyspace.TTL, len(keyspace.Types()))
	for _, t := range keyspace.Types() {
		out[t] = t.DefaultTTL()
	}
	for name, ttl := range c.TTLs {
		typ := keyspace.Type(name)
		def := out[typ]
		if ttl.L1 == 0 {
			ttl.L1 = def.L1
		}
		if ttl.L2 == 0 {
			ttl.L2 = def.L2
		}
		out[typ] = ttl
	}
	return out
}
