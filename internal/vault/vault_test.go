// internal/vault/vault_test.go
//
// KV-v2 reads against an httptest stand-in for Vault.

package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

const kvBody = `{
  "request_id": "1",
  "lease_id": "",
  "renewable": false,
  "lease_duration": 0,
  "data": {
    "data": {"password": "hunter2", "port": 6379},
    "metadata": {
      "created_time": "2026-01-02T03:04:05Z",
      "custom_metadata": null,
      "deletion_time": "",
      "destroyed": false,
      "version": 4
    }
  }
}`

func newTestClient(t *testing.T) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1/secret/data/redis" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kvBody))
	}))
	t.Cleanup(srv.Close)

	c, err := newClient(Options{Addr: srv.URL, Token: "root", CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c, &hits
}

func TestResolveCachesSecret(t *testing.T) {
	c, hits := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Resolve(ctx, "secret/redis#password")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "hunter2" {
			t.Fatalf("Resolve = %q", got)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("vault hit %d times, want 1", n)
	}

	c.Forget()
	if _, err := c.Resolve(ctx, "secret/redis#password"); err != nil {
		t.Fatalf("Resolve after Forget: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("vault hit %d times after Forget, want 2", n)
	}
}

func TestGetKVExpiresCache(t *testing.T) {
	c, hits := newTestClient(t)
	now := time.Now()
	c.now = func() time.Time { return now }

	if _, err := c.GetKV(context.Background(), "secret/redis", "password", time.Second); err != nil {
		t.Fatalf("GetKV: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := c.GetKV(context.Background(), "secret/redis", "password", time.Second); err != nil {
		t.Fatalf("GetKV: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("vault hit %d times, want 2 after expiry", n)
	}
}

func TestGetKVErrors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := c.GetKV(ctx, "secret/redis", "missing", 0); err == nil {
		t.Fatal("missing key accepted")
	}
	if _, err := c.GetKV(ctx, "secret/redis", "port", 0); err == nil {
		t.Fatal("non-string value accepted")
	}
	if _, err := c.GetKV(ctx, "secret/other", "password", 0); err == nil {
		t.Fatal("absent secret accepted")
	}
	_, err := c.Resolve(ctx, "secret/redis")
	if platformerrors.GetCode(err) != platformerrors.CodeInvalidInput {
		t.Fatalf("reference without key: code = %s", platformerrors.GetCode(err))
	}
}

func TestSplitMount(t *testing.T) {
	cases := map[string][2]string{
		"secret/redis":      {"secret", "redis"},
		"kv/team/app/redis": {"kv", "team/app/redis"},
		"solo":              {"solo", ""},
		"":                  {"", ""},
	}
	for in, want := range cases {
		m, r := splitMount(in)
		if m != want[0] || r != want[1] {
			t.Errorf("splitMount(%q) = %q, %q", in, m, r)
		}
	}
}
