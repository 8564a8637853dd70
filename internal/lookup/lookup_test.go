package lookup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/tenant"
)

func scoped(t *testing.T, id string, features ...string) context.Context {
	t.Helper()
	ten, err := tenant.NewTenant(id, tenant.Config{Features: features})
	if err != nil {
		t.Fatalf("tenant.NewTenant: %v", err)
	}
	return tenant.WithTenant(context.Background(), ten)
}

func opts() Options { return Options{Logger: zap.NewNop().Sugar()} }

func TestFolderResolver(t *testing.T) {
	var calls atomic.Int32
	src := FolderSourceFunc(func(_ context.Context, p string) (string, error) {
		calls.Add(1)
		if p != "docs/adr" {
			t.Errorf("source saw %q, want cleaned path", p)
		}
		return "fld-123", nil
	})
	r := NewFolderResolver(src, opts())
	defer r.Close()
	ctx := scoped(t, "acme", "folder_lookup")

	for _, p := range []string{"docs/adr", "/Docs//ADR/", " docs/adr "} {
		id, err := r.Resolve(ctx, p)
		if err != nil || id != "fld-123" {
			t.Fatalf("Resolve(%q) = %q, %v", p, id, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("source called %d times", n)
	}

	if err := r.Forget(ctx, "DOCS/adr"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	_, _ = r.Resolve(ctx, "docs/adr")
	if n := calls.Load(); n != 2 {
		t.Fatalf("after Forget source called %d times", n)
	}
}

func TestFolderResolverIsTenantScoped(t *testing.T) {
	src := FolderSourceFunc(func(ctx context.Context, _ string) (string, error) {
		return "fld-" + tenant.CurrentID(ctx), nil
	})
	r := NewFolderResolver(src, opts())
	defer r.Close()

	a, _ := r.Resolve(scoped(t, "acme", "folder_lookup"), "docs")
	b, _ := r.Resolve(scoped(t, "globex", "folder_lookup"), "docs")
	if a != "fld-acme" || b != "fld-globex" {
		t.Fatalf("a=%q b=%q", a, b)
	}
}

func TestFeatureGate(t *testing.T) {
	r := NewFolderResolver(FolderSourceFunc(func(context.Context, string) (string, error) {
		t.Error("source reached with feature off")
		return "", nil
	}), opts())
	defer r.Close()

	_, err := r.Resolve(scoped(t, "acme"), "docs")
	if !errors.Is(err, ErrFeatureDisabled) || platformerrors.GetCode(err) != platformerrors.CodeForbidden {
		t.Fatalf("err = %v", err)
	}
}

func TestKnowledgeBase(t *testing.T) {
	var calls atomic.Int32
	src := KBSourceFunc(func(_ context.Context, kind keyspace.Type, id string) (KBEntry, error) {
		calls.Add(1)
		if kind == keyspace.TypeChangelog {
			return KBEntry{}, errors.New("changelog store offline")
		}
		return KBEntry{ID: id, Title: "Use Redis for L2", Status: "accepted", Date: time.Unix(0, 0).UTC()}, nil
	})
	kb := NewKnowledgeBase(src, opts())
	defer kb.Close()
	ctx := scoped(t, "acme", "adr", "changelog")

	for i := 0; i < 3; i++ {
		e, err := kb.ADR(ctx, "ADR-0042")
		if err != nil || e.Title != "Use Redis for L2" {
			t.Fatalf("ADR = %+v, %v", e, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("source called %d times", n)
	}

	if _, err := kb.Changelog(ctx, "v1.4.0"); platformerrors.GetCode(err) != platformerrors.CodeExecutionFailed {
		t.Fatalf("changelog err = %v", err)
	}

	if _, err := kb.ADR(scoped(t, "acme", "changelog"), "ADR-0042"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("gated ADR err = %v", err)
	}
	if kb.Metrics().Fetches != 2 {
		t.Fatalf("fetches = %d", kb.Metrics().Fetches)
	}
}
