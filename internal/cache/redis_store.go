// internal/cache/redis_store.go
//
// Redis-backed L2 store.
//
// Context
// -------
// Keys are namespaced with a fixed prefix so the cache can share a Redis
// database with other services.  Every call carries its own deadline so a
// slow server never holds a request longer than OpTimeout.
//
// Tenant-wide deletes use SCAN with a cursor and UNLINK in pipelined
// batches rather than KEYS, which would block the server on large
// keyspaces.  The trade-off is eventual consistency: entries written
// behind the cursor during a long scan are not removed.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Static defaults.
const (
	DefaultRedisPrefix    = "tcache:"
	DefaultRedisOpTimeout = 2 * time.Second
	DefaultScanCount      = 500
)

// RedisStore implements Store on a go-redis client.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
	scanCount int64
}

// NewRedisStore wraps an existing client.  Zero values pick the defaults.
func NewRedisStore(client *redis.Client, prefix string, opTimeout time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if opTimeout <= 0 {
		opTimeout = DefaultRedisOpTimeout
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
		scanCount: DefaultScanCount,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+key, val, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Unlink(ctx, s.prefix+key).Err()
}

// DeletePrefix removes every key beginning with prefix and returns how many
// were unlinked.  The keyspace is scanned to completion before anything is
// unlinked, since deleting mid-scan can make the cursor skip keys.  Each
// SCAN page and UNLINK batch gets a fresh deadline.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	match := s.prefix + escapeGlob(prefix) + "*"

	seen := make(map[string]struct{})
	var (
		keys   []string
		cursor uint64
	)
	for {
		pageCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		page, next, err := s.client.Scan(pageCtx, cursor, match, s.scanCount).Result()
		cancel()
		if err != nil {
			return 0, err
		}
		// SCAN may return a key more than once.
		for _, k := range page {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	batch := int(s.scanCount)
	if batch <= 0 {
		batch = len(keys)
	}
	removed := 0
	for len(keys) > 0 {
		n := min(batch, len(keys))
		chunk := keys[:n]
		keys = keys[n:]

		batchCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		n64, err := s.client.Unlink(batchCtx, chunk...).Result()
		cancel()
		if err != nil {
			return removed, err
		}
		removed += int(n64)
	}
	return removed, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
