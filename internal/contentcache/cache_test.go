// internal/contentcache/cache_test.go
//
// Unit-tests for content hashing and tenant-isolated lookups.
//
// Run: go test ./internal/contentcache -v

package contentcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/tenant"
)

func TestNormalizeAndHash(t *testing.T) {
	if got := Normalize("  a \t b\r\n\r\nc  "); got != "a b c" {
		t.Fatalf("Normalize = %q", got)
	}

	same := []string{"a b", "a  b\n", "\ta\r\nb ", "a\rb"}
	want := GenerateContentHash(same[0])
	for _, s := range same[1:] {
		if got := GenerateContentHash(s); got != want {
			t.Fatalf("hash(%q) = %s, want %s", s, got, want)
		}
	}
	if GenerateContentHash("a b") == GenerateContentHash("ab") {
		t.Fatal(`"a b" and "ab" must not collide`)
	}
	if len(want) != HashLen {
		t.Fatalf("hash length = %d", len(want))
	}
	if GenerateContentHash("x") != GenerateContentHash(Normalize("x")) {
		t.Fatal("hash not idempotent under Normalize")
	}
}

func scoped(t *testing.T, id string) context.Context {
	t.Helper()
	ten, err := tenant.NewTenant(id, tenant.Config{})
	if err != nil {
		t.Fatalf("tenant.NewTenant: %v", err)
	}
	return tenant.WithTenant(context.Background(), ten)
}

func newCache(t *testing.T, l2 cache.Store) *Cache {
	t.Helper()
	c := New(Config{Name: t.Name(), L2: l2, Logger: zap.NewNop().Sugar()})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type summary struct {
	Summary string `json:"summary"`
}

func TestReportScenario(t *testing.T) {
	c := newCache(t, nil)
	acme := scoped(t, "acme")
	opts := Options{Type: keyspace.TypeTransform, Qualifier: "leadership"}

	if err := SetAs(acme, c, "  Report body.  ", summary{"ok"}, opts); err != nil {
		t.Fatalf("SetAs: %v", err)
	}

	got, ok, err := GetAs[summary](acme, c, "Report body.", opts)
	if err != nil || !ok || got.Summary != "ok" {
		t.Fatalf("GetAs = %+v, %v, %v", got, ok, err)
	}

	if _, ok, _ := c.Get(scoped(t, "other"), "Report body.", opts); ok {
		t.Fatal("other tenant read acme's entry")
	}
	if _, ok, _ := c.Get(acme, "Report body.", Options{Type: keyspace.TypeTransform, Qualifier: "engineering"}); ok {
		t.Fatal("qualifier ignored")
	}
}

func TestKeyShape(t *testing.T) {
	c := newCache(t, nil)
	k, err := c.BuildCacheKey(scoped(t, "acme"), "deadbeef", keyspace.TypeTransform, "leadership")
	if err != nil {
		t.Fatalf("BuildCacheKey: %v", err)
	}
	if k.String() != "acme:transform:deadbeef:leadership" {
		t.Fatalf("key = %s", k)
	}

	// Outside any scope the default tenant owns the key.
	k, _ = c.BuildCacheKey(context.Background(), "deadbeef", keyspace.TypeDocument, "")
	if k.String() != tenant.DefaultID+":document:deadbeef" {
		t.Fatalf("default key = %s", k)
	}
}

func TestInvalidInput(t *testing.T) {
	c := newCache(t, nil)
	ctx := scoped(t, "acme")

	_, _, err := c.GetByHash(ctx, "", Options{})
	if !errors.Is(err, keyspace.ErrInvalidKey) {
		t.Fatalf("empty hash err = %v", err)
	}
	if err := c.Set(ctx, "x", json.RawMessage(`{bad`), Options{}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("bad json err = %v", err)
	}
	err = c.Set(ctx, "x", json.RawMessage(`1`), Options{Type: "bogus"})
	if platformerrors.GetCode(err) != platformerrors.CodeInvalidInput {
		t.Fatalf("bad type code = %s", platformerrors.GetCode(err))
	}
}

func TestInvalidateThenMiss(t *testing.T) {
	c := newCache(t, nil)
	ctx := scoped(t, "acme")
	o := Options{Type: keyspace.TypeDocument}

	_ = c.Set(ctx, "doc", json.RawMessage(`"v"`), o)
	if err := c.Invalidate(ctx, "  doc ", o); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "doc", o); ok {
		t.Fatal("entry survived Invalidate")
	}
}

func TestInvalidateTenantAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tc:", time.Second)
	defer store.Close()

	a := newCache(t, store)
	b := newCache(t, store)
	acme, globex := scoped(t, "acme"), scoped(t, "globex")
	o := Options{}

	_ = a.Set(acme, "one", json.RawMessage(`1`), o)
	_ = a.Set(acme, "two", json.RawMessage(`2`), o)
	_ = a.Set(globex, "one", json.RawMessage(`1`), o)

	// b sees a's writes through L2.
	if v, ok, _ := b.Get(acme, "one", o); !ok || string(v) != "1" {
		t.Fatalf("shared read = %s, %v", v, ok)
	}

	n, err := a.InvalidateTenant(acme)
	if err != nil {
		t.Fatalf("InvalidateTenant: %v", err)
	}
	if n < 2 {
		t.Fatalf("removed %d entries", n)
	}
	if _, ok, _ := a.Get(acme, "two", o); ok {
		t.Fatal("acme entry survived purge")
	}
	if _, ok, _ := a.Get(globex, "one", o); !ok {
		t.Fatal("globex entry lost in acme purge")
	}
}

func TestGetOrCompute(t *testing.T) {
	c := newCache(t, nil)
	ctx := scoped(t, "acme")
	calls := 0
	compute := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"summary":"fresh"}`), nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute(ctx, "Report body.", Options{}, compute)
		if err != nil || string(v) != `{"summary":"fresh"}` {
			t.Fatalf("GetOrCompute = %s, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("compute ran %d times", calls)
	}
	m := c.Metrics()
	if m.Fetches != 1 || m.L1Hits != 2 {
		t.Fatalf("metrics = %+v", m)
	}
	c.ResetMetrics()
	if c.Metrics().L1Hits != 0 {
		t.Fatal("ResetMetrics did not clear")
	}
}
