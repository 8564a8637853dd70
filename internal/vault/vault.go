// internal/vault/vault.go
//
// Vault client wrapper for tcached.
//
// Context
// -------
//   - Provides a concurrency-safe client around the HashiCorp Vault Go SDK.
//   - Adds background token renewal, a small KV-v2 helper, and per-key caching.
//   - Implements config.SecretResolver, so `vault:secret/redis#password` in
//     global.yaml becomes the plain password before the config is validated.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, vault.Options{Logger: log})   // during boot.
//  2. pw,  err := cli.GetKV(ctx, path, key, ttl)               // anywhere.
//  3. config.Load(ctx, cli)                                    // resolver.
//
// Build tags: none.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long Resolve keeps a secret before asking again.
const DefaultCacheTTL = 5 * time.Minute

//
// SECTION 1.  Public façade
//

// Options configures New.  Empty Addr and Token fall back to VAULT_ADDR,
// VAULT_TOKEN, and ~/.vault-token as read by the SDK.
type Options struct {
	Addr     string
	Token    string
	CacheTTL time.Duration
	Logger   *zap.SugaredLogger
}

// Client is safe for concurrent use.  Create once at startup and pass it to
// whoever needs secrets.  Zero value is invalid.
type Client struct {
	api      *vault.Client
	log      *zap.SugaredLogger
	cacheTTL time.Duration
	now      func() time.Time

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client and starts a background token-renewal loop
// bound to ctx.
func New(ctx context.Context, opts Options) (*Client, error) {
	c, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	go c.renewLoop(ctx)
	return c, nil
}

// newClient builds the client without the renewal loop.
func newClient(opts Options) (*Client, error) {
	cfg := vault.DefaultConfig()
	if cfg.Error != nil {
		return nil, fmt.Errorf("vault env cfg: %w", cfg.Error)
	}
	if opts.Addr != "" {
		cfg.Address = opts.Addr
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if opts.Token != "" {
		apiCli.SetToken(opts.Token)
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Client{
		api:      apiCli,
		log:      opts.Logger,
		cacheTTL: opts.CacheTTL,
		now:      time.Now,
		cache:    make(map[string]cached),
	}, nil
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.  Subsequent callers within the TTL receive the
// cached copy.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", platformerrors.New(platformerrors.CodeInvalidInput, "vault: secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && c.now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}

	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: c.now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	c.log.Debugw("vault secret read", "path", secretPath, "key", key)

	return sval, nil
}

// Resolve reads a "mount/path#key" reference using the client's cache TTL.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok {
		return "", platformerrors.WithContext(
			platformerrors.New(platformerrors.CodeInvalidInput, "vault: reference must be mount/path#key"),
			"ref", ref)
	}
	return c.GetKV(ctx, path, key, c.cacheTTL)
}

// Forget drops every cached secret.
func (c *Client) Forget() {
	c.cacheMu.Lock()
	c.cache = make(map[string]cached)
	c.cacheMu.Unlock()
}

//
// SECTION 2.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		// Probe the current token.
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			c.log.Warnw("vault token renew-self failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}

		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			c.log.Infow("vault token is not renewable, sleeping", "for", time.Hour)
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
			Grace:  15 * time.Second,
		})
		if err != nil {
			c.log.Errorw("vault watcher init failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}

		go watcher.Start()
		if !c.watch(ctx, watcher) {
			return
		}
		backoff(ctx, 15*time.Second)
	}
}

// watch relays renewal events until the watcher stops (true) or ctx ends
// (false).
func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher) bool {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-w.DoneCh():
			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.Warnw("vault token renewal stopped", "err", err)
			}
			return true
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debugw("vault token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 3.  Helpers
//

func splitMount(p string) (mount, rel string) {
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
