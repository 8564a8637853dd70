// internal/tenant/helpers.go
//
// Key-value to Config conversion for the SQL source.
//
// Context
// -------
// `tenant_config` rows are flat strings.  These helpers fold them into a
// Config using dotted keys that mirror the YAML layout:
//
//	features                                  summaries,adr
//	personas                                  leadership,engineering
//	quotas.max_operations_per_day             500
//	quotas.max_concurrent_operations          4
//	rate_limit.requests_per_second            20
//	rate_limit.burst                          40
//	cache_ttl.<type>                          10m  (or bare seconds)
//
// Unknown keys are ignored so the table can carry settings for other
// services.
//
// Notes
// -----
// • No logging here; caller decides what to log.
package tenant

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const ttlPrefix = "cache_ttl."

// configFromKV builds a Config from tenant_config rows.
func configFromKV(name string, kv map[string]string) (Config, error) {
	cfg := Config{Name: name}
	var err error

	cfg.Features = splitList(kv["features"])
	cfg.Personas = splitList(kv["personas"])

	if cfg.Quotas.MaxOperationsPerDay, err = parseInt(kv, "quotas.max_operations_per_day"); err != nil {
		return Config{}, err
	}
	if cfg.Quotas.MaxConcurrentOperations, err = parseInt(kv, "quotas.max_concurrent_operations"); err != nil {
		return Config{}, err
	}
	if v, ok := kv["rate_limit.requests_per_second"]; ok {
		if cfg.RateLimit.RequestsPerSecond, err = strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return Config{}, fmt.Errorf("rate_limit.requests_per_second: %w", err)
		}
	}
	burst, err := parseInt(kv, "rate_limit.burst")
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimit.Burst = int(burst)

	for k, v := range kv {
		if !strings.HasPrefix(k, ttlPrefix) {
			continue
		}
		d, err := parseTTL(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", k, err)
		}
		if cfg.CacheTTLs == nil {
			cfg.CacheTTLs = make(map[string]time.Duration)
		}
		cfg.CacheTTLs[strings.TrimPrefix(k, ttlPrefix)] = d
	}
	return cfg, nil
}

// splitList turns "a, b,,c" into [a b c].
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(kv map[string]string, key string) (int64, error) {
	v, ok := kv[key]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// parseTTL accepts a Go duration ("90s", "10m") or bare seconds ("600").
func parseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(n) * time.Second, nil
}
