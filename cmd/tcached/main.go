// cmd/tcached/main.go
//
// tcached – tenant cache daemon entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (host-wide file → .env fallback).
//
//  2. Connect to Vault when VAULT_ADDR is set, so `vault:` references in
//     global.yaml can be resolved.
//
//  3. Load and validate configuration.
//
//  4. Start daily rotating logger (tees to console when running in a TTY).
//
//  5. Dial the shared L2 tier.  Unreachable Redis means L1-only mode unless
//     redis.required is set.
//
//  6. Build the tenant provider on the configured source (static, file,
//     or sql) and preload tenants.
//
//  7. Build the content cache and mount the admin API.
//
//  8. Serve until SIGINT/SIGTERM, then drain refreshes and close tiers.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/admin"
	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/config"
	"github.com/yanizio/tenantcache/internal/contentcache"
	"github.com/yanizio/tenantcache/internal/database"
	"github.com/yanizio/tenantcache/internal/logger"
	"github.com/yanizio/tenantcache/internal/server"
	"github.com/yanizio/tenantcache/internal/tenant"
	"github.com/yanizio/tenantcache/internal/vault"
)

const serverEnvPath = "/usr/local/etc/tcached/global.env"

// loadEnv prefers the host-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("tcached: %v", err)
	}
}

func run(ctx context.Context) error {
	//
	// ── 1.  Secrets and configuration ───────────────────────────────────
	//
	var secrets config.SecretResolver
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, vault.Options{})
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		secrets = vc
	}
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		return err
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	logDir := cfg.Log.Dir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(cfg.Paths.Root, logDir)
	}
	logOut, err := logger.New(logger.Options{
		Dir:   logDir,
		Level: cfg.Log.Level,
		Tee:   cfg.Log.Tee || runningInTTY(),
	})
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 3.  Shared L2 tier ──────────────────────────────────────────────
	//
	l2, err := cache.Dial(ctx, cache.RedisOptions{
		Enabled:        cfg.Redis.Enabled,
		Required:       cfg.Redis.Required,
		Addr:           cfg.Redis.Addr,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		Prefix:         cfg.Redis.Prefix,
		DialTimeout:    cfg.Redis.DialTimeout,
		OpTimeout:      cfg.Redis.OpTimeout,
		ConnectRetries: cfg.Redis.ConnectRetries,
		DisableBreaker: cfg.Redis.Breaker.Disabled,
		Breaker: cache.BreakerOptions{
			Name:             "redis",
			ConsecutiveFails: cfg.Redis.Breaker.ConsecutiveFails,
			OpenTimeout:      cfg.Redis.Breaker.OpenTimeout,
		},
	}, logOut)
	if err != nil {
		return fmt.Errorf("l2: %w", err)
	}
	if l2 != nil {
		defer l2.Close()
	}

	//
	// ── 4.  Tenant provider ─────────────────────────────────────────────
	//
	src, db, err := tenantSource(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	provider, err := tenant.New(tenant.Options{
		Source:      src,
		IdleTTL:     cfg.Tenants.IdleTTL,
		MaxEntries:  cfg.Tenants.MaxEntries,
		FallbackTTL: cfg.Tenants.FallbackTTL,
		Logger:      logOut,
	})
	if err != nil {
		return fmt.Errorf("tenant provider: %w", err)
	}
	defer provider.Close()

	if n, err := provider.Warm(ctx); err != nil {
		logOut.Warnw("tenant warm-up failed", "err", err)
	} else if n > 0 {
		logOut.Infow("tenants warmed", "count", n)
	}
	for _, id := range cfg.Tenants.Preload {
		if _, err := provider.Load(ctx, id); err != nil {
			logOut.Warnw("tenant preload failed", "tenant", id, "err", err)
		}
	}

	//
	// ── 5.  Content cache ───────────────────────────────────────────────
	//
	content := contentcache.New(contentcache.Config{
		MaxEntries:     cfg.Cache.MaxEntries,
		MaxBytes:       cfg.Cache.MaxBytes,
		L2:             l2,
		TTLs:           cfg.Cache.TypedTTLs(),
		StaleWindow:    cfg.Cache.StaleWindow,
		RefreshTimeout: cfg.Cache.RefreshTimeout,
		MaxRefreshes:   cfg.Cache.MaxRefreshes,
		CompressAt:     cfg.Cache.CompressAt,
		Logger:         logOut,
		Resolver:       provider.Current,
	})
	defer content.Close()

	//
	// ── 6.  Admin API ───────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, admin.Routes(admin.Options{
		Provider: provider,
		Content:  content,
		Caches:   []admin.Purger{content},
		L2:       l2,
		Header:   cfg.Tenants.Header,
		Logger:   logOut,
	}))
	return server.Run(ctx, srv, logOut)
}

// tenantSource picks the tenant configuration backend.  "static" runs
// single-tenant: every request resolves to the default tenant.
func tenantSource(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (tenant.Source, *sqlx.DB, error) {
	switch cfg.Tenants.Source {
	case "file":
		path := cfg.Tenants.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Paths.Root, path)
		}
		log.Infow("tenant source", "kind", "file", "path", path)
		return tenant.NewFileSource(path), nil, nil
	case "sql":
		db, err := database.OpenWithOptions(ctx, cfg.Database.DSN, database.Options{
			MaxOpen:      cfg.Database.MaxOpen,
			MaxIdle:      cfg.Database.MaxIdle,
			Retries:      cfg.Database.Retries,
			RetryBackoff: cfg.Database.RetryBackoff,
			Logger:       log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("control-plane db: %w", err)
		}
		log.Infow("tenant source", "kind", "sql")
		return tenant.NewSQLSource(db), db, nil
	default:
		log.Infow("tenant source", "kind", "static")
		return nil, nil, nil
	}
}
