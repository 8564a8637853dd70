// internal/tiered/engine_test.go
//
// Unit-tests for the tiered engine: promotion, degraded mode, TTLs,
// tenant purge, and L2 encoding.  Refresh behaviour lives in
// refresh_test.go.
//
// Run: go test ./internal/tiered -v

package tiered

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/keyspace"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func key(t *testing.T, tenantID string, typ keyspace.Type, hash string) keyspace.Key {
	t.Helper()
	k, err := keyspace.New(tenantID, typ, hash, "")
	if err != nil {
		t.Fatalf("keyspace.New: %v", err)
	}
	return k
}

func newStore(t *testing.T) (cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t:", time.Second)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func newCache(t *testing.T, cfg Config[string], clk *clock) *Cache[keyspace.Key, string] {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Name == "" {
		cfg.Name = t.Name()
	}
	c := New[keyspace.Key](cfg, WithClock(clk.Now))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// brokenStore fails every call.
type brokenStore struct{}

var errBroken = errors.New("l2 down")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errBroken }
func (brokenStore) Delete(context.Context, string) error { return errBroken }
func (brokenStore) DeletePrefix(context.Context, string) (int, error) { return 0, errBroken }
func (brokenStore) Ping(context.Context) error { return errBroken }
func (brokenStore) Close() error { return nil }

func TestPromotionFromL2(t *testing.T) {
	store, _ := newStore(t)
	clk := newClock()
	writer := newCache(t, Config[string]{L2: store}, clk)
	reader := newCache(t, Config[string]{L2: store}, clk)
	ctx := context.Background()
	k := key(t, "acme", keyspace.TypeTransform, "abc")

	if err := writer.Set(ctx, k, "summary"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok := reader.Get(ctx, k)
	if !ok || v != "summary" {
		t.Fatalf("first Get = %q, %v", v, ok)
	}
	m := reader.Metrics()
	if m.L1Misses != 1 || m.L2Hits != 1 {
		t.Fatalf("after L2 read: %+v", m)
	}

	if _, ok := reader.Get(ctx, k); !ok {
		t.Fatal("promoted entry missing from L1")
	}
	if m := reader.Metrics(); m.L1Hits != 1 || m.L2Hits != 1 {
		t.Fatalf("after promotion: %+v", m)
	}
	if got := reader.Metrics().HitRate(); got != 1 {
		t.Fatalf("HitRate = %v, want 1", got)
	}
}

func TestMissCountsBothTiers(t *testing.T) {
	store, _ := newStore(t)
	c := newCache(t, Config[string]{L2: store}, newClock())
	if _, ok := c.Get(context.Background(), key(t, "acme", keyspace.TypeDocument, "nope")); ok {
		t.Fatal("Get on empty cache hit")
	}
	if m := c.Metrics(); m.L1Misses != 1 || m.L2Misses != 1 || m.HitRate() != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestDegradedMode(t *testing.T) {
	c := newCache(t, Config[string]{}, newClock())
	if !c.Degraded() {
		t.Fatal("nil L2 should report degraded")
	}
	ctx := context.Background()
	k := key(t, "acme", keyspace.TypeDocument, "h")
	if err := c.Set(ctx, k, "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := c.Get(ctx, k); !ok || v != "v" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	// Without a shared tier every lookup that reaches it is an L2 miss.
	if _, ok := c.Get(ctx, key(t, "acme", keyspace.TypeDocument, "absent")); ok {
		t.Fatal("absent key hit")
	}
	if m := c.Metrics(); m.L1Hits != 1 || m.L1Misses != 1 || m.L2Misses != 1 {
		t.Fatalf("degraded metrics = %+v", m)
	}
}

func TestL2FailuresAreMisses(t *testing.T) {
	c := newCache(t, Config[string]{L2: brokenStore{}}, newClock())
	ctx := context.Background()
	k := key(t, "acme", keyspace.TypeDocument, "h")

	if err := c.Set(ctx, k, "v"); err != nil {
		t.Fatalf("Set surfaced an L2 failure: %v", err)
	}
	if v, ok := c.Get(ctx, k); !ok || v != "v" {
		t.Fatalf("L1 should still answer: %q, %v", v, ok)
	}
	if _, ok := c.Get(ctx, key(t, "acme", keyspace.TypeDocument, "other")); ok {
		t.Fatal("broken L2 produced a hit")
	}
	if m := c.Metrics(); m.Errors != 2 {
		t.Fatalf("Errors = %d, want 2 (set + get)", m.Errors)
	}
	c.Delete(ctx, k)
	if _, ok := c.Get(ctx, k); ok {
		t.Fatal("Delete left L1 entry")
	}
}

func TestFreshStaleAbsent(t *testing.T) {
	clk := newClock()
	c := newCache(t, Config[string]{
		TTLs:        map[keyspace.Type]keyspace.TTL{keyspace.TypeTransform: {L1: time.Minute, L2: time.Minute}},
		StaleWindow: 2 * time.Minute,
	}, clk)
	ctx := context.Background()
	k := key(t, "acme", keyspace.TypeTransform, "h")
	_ = c.Set(ctx, k, "v")

	clk.Advance(90 * time.Second)
	if _, ok := c.Get(ctx, k); ok {
		t.Fatal("Get returned a stale value")
	}
	e, ok := c.GetEntry(ctx, k)
	if !ok || !e.Stale || e.Value != "v" || e.Tier != TierL1 {
		t.Fatalf("GetEntry = %+v, %v", e, ok)
	}
	if !e.ExpiresAt.Equal(e.FreshUntil.Add(2 * time.Minute)) {
		t.Fatalf("ExpiresAt = %v, FreshUntil = %v", e.ExpiresAt, e.FreshUntil)
	}

	clk.Advance(2 * time.Minute)
	if _, ok := c.GetEntry(ctx, k); ok {
		t.Fatal("entry survived past ExpiresAt")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry still held, Len = %d", c.Len())
	}
}

func TestTTLOverrideCapsL1(t *testing.T) {
	clk := newClock()
	c := newCache(t, Config[string]{
		StaleWindow: -1,
		TTLOverride: func(_ context.Context, typ keyspace.Type) (time.Duration, bool) {
			return 30 * time.Second, typ == keyspace.TypeTransform
		},
	}, clk)
	ctx := context.Background()
	tr := key(t, "acme", keyspace.TypeTransform, "h")
	doc := key(t, "acme", keyspace.TypeDocument, "h")
	_ = c.Set(ctx, tr, "t")
	_ = c.Set(ctx, doc, "d")

	clk.Advance(31 * time.Second)
	if _, ok := c.Get(ctx, tr); ok {
		t.Fatal("override did not cap L1 TTL")
	}
	if _, ok := c.Get(ctx, doc); !ok {
		t.Fatal("override leaked onto another type")
	}
}

func TestDeleteTenantIsScoped(t *testing.T) {
	store, mr := newStore(t)
	c := newCache(t, Config[string]{L2: store}, newClock())
	ctx := context.Background()

	keys := []keyspace.Key{
		key(t, "acme", keyspace.TypeDocument, "1"),
		key(t, "acme", keyspace.TypeTransform, "2"),
		key(t, "acme2", keyspace.TypeDocument, "1"),
		key(t, "globex", keyspace.TypeDocument, "1"),
	}
	for _, k := range keys {
		_ = c.Set(ctx, k, "v")
	}

	n, err := c.DeleteTenant(ctx, "acme")
	if err != nil {
		t.Fatalf("DeleteTenant: %v", err)
	}
	if n != 4 { // two from each tier
		t.Fatalf("removed %d, want 4", n)
	}
	for _, k := range keys[:2] {
		if _, ok := c.Get(ctx, k); ok {
			t.Fatalf("%s survived purge", k)
		}
	}
	for _, k := range keys[2:] {
		if _, ok := c.Get(ctx, k); !ok {
			t.Fatalf("%s removed by another tenant's purge", k)
		}
		if !mr.Exists("t:" + k.String()) {
			t.Fatalf("%s removed from L2", k)
		}
	}

	if _, err := c.DeleteTenant(ctx, "bad:id"); err == nil {
		t.Fatal("DeleteTenant accepted an invalid id")
	}
}

func TestL2EnvelopeCompression(t *testing.T) {
	store, mr := newStore(t)
	clk := newClock()
	w := newCache(t, Config[string]{L2: store, CompressAt: 64}, clk)
	r := newCache(t, Config[string]{L2: store}, clk)
	ctx := context.Background()
	k := key(t, "acme", keyspace.TypeKnowledge, "big")
	big := strings.Repeat("architecture decision ", 50)

	if err := w.Set(ctx, k, big); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, err := mr.Get("t:" + k.String())
	if err != nil {
		t.Fatalf("miniredis Get: %v", err)
	}
	if !bytes.HasPrefix([]byte(raw), gzipMagic) {
		t.Fatal("large envelope not compressed")
	}
	if v, ok := r.Get(ctx, k); !ok || v != big {
		t.Fatal("compressed envelope did not round-trip")
	}
}

func TestL1ByteBudget(t *testing.T) {
	c := newCache(t, Config[string]{
		MaxBytes: 10,
		SizeOf:   func(s string) int64 { return int64(len(s)) },
	}, newClock())
	ctx := context.Background()
	a := key(t, "acme", keyspace.TypeDocument, "a")
	b := key(t, "acme", keyspace.TypeDocument, "b")
	_ = c.Set(ctx, a, "123456")
	_ = c.Set(ctx, b, "123456")
	if _, ok := c.Get(ctx, a); ok {
		t.Fatal("byte budget not enforced")
	}
	if m := c.Metrics(); m.Evictions != 1 {
		t.Fatalf("Evictions = %d", m.Evictions)
	}
}

func TestOversizedWriteReplacesL1Entry(t *testing.T) {
	c := newCache(t, Config[string]{
		MaxBytes: 10,
		SizeOf:   func(s string) int64 { return int64(len(s)) },
	}, newClock())
	ctx := context.Background()
	k := key(t, "acme", keyspace.TypeDocument, "h")

	_ = c.Set(ctx, k, "old")
	if err := c.Set(ctx, k, "new-value-too-large"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := c.Get(ctx, k); ok {
		t.Fatalf("Get = %q after overwrite, want miss", v)
	}
}

func TestResetMetrics(t *testing.T) {
	c := newCache(t, Config[string]{}, newClock())
	c.Get(context.Background(), key(t, "acme", keyspace.TypeDocument, "x"))
	c.ResetMetrics()
	if m := c.Metrics(); m != (Snapshot{}) {
		t.Fatalf("after reset: %+v", m)
	}
}
