// internal/keyspace/key_test.go
//
// Unit-tests for key rendering and validation.

package keyspace

import (
	"errors"
	"strings"
	"testing"

	platformerrors "github.com/jmgilman/go/errors"
)

func TestKeyString(t *testing.T) {
	k, err := New("acme", TypeTransform, "abc123", "leadership")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := k.String(), "acme:transform:abc123:leadership"; got != want {
		t.Fatalf("String = %q, want %q", got, want)
	}

	k, err = New("acme", TypeDocument, "abc123", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := k.String(), "acme:document:abc123"; got != want {
		t.Fatalf("String = %q, want %q", got, want)
	}
}

func TestNewRejectsForgedTenant(t *testing.T) {
	cases := []string{
		"",
		"acme:transform",
		"acme*",
		"-leading",
		"has space",
		strings.Repeat("a", 65),
	}
	for _, id := range cases {
		_, err := New(id, TypeTransform, "h", "")
		if err == nil {
			t.Fatalf("tenant %q accepted", id)
		}
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("tenant %q: error %v is not ErrInvalidKey", id, err)
		}
		if platformerrors.GetCode(err) != platformerrors.CodeInvalidInput {
			t.Fatalf("tenant %q: code = %s", id, platformerrors.GetCode(err))
		}
	}
}

func TestNewRejectsBadSegments(t *testing.T) {
	if _, err := New("acme", Type("bogus"), "h", ""); err == nil {
		t.Fatal("unknown type accepted")
	}
	if _, err := New("acme", TypeDocument, "", ""); err == nil {
		t.Fatal("empty hash accepted")
	}
	if _, err := New("acme", TypeDocument, "a:b", ""); err == nil {
		t.Fatal("hash with delimiter accepted")
	}
	if _, err := New("acme", TypeDocument, "h", "line\nbreak"); err == nil {
		t.Fatal("qualifier with newline accepted")
	}
}

func TestTenantPrefixDoesNotOverlap(t *testing.T) {
	p, err := TenantPrefix("acme")
	if err != nil {
		t.Fatalf("TenantPrefix: %v", err)
	}
	other, _ := New("acme2", TypeDocument, "h", "")
	if strings.HasPrefix(other.String(), p) {
		t.Fatalf("prefix %q matches foreign key %q", p, other.String())
	}
	own, _ := New("acme", TypeDocument, "h", "")
	if !strings.HasPrefix(own.String(), p) {
		t.Fatalf("prefix %q misses own key %q", p, own.String())
	}
}

func TestDefaultTTLs(t *testing.T) {
	for _, typ := range Types() {
		ttl := typ.DefaultTTL()
		if ttl.L1 <= 0 || ttl.L2 < ttl.L1 {
			t.Fatalf("%s: bad default ttl %+v", typ, ttl)
		}
	}
	if _, err := ParseType("folder_id"); err != nil {
		t.Fatalf("ParseType: %v", err)
	}
	if _, err := ParseType("nope"); err == nil {
		t.Fatal("ParseType accepted unknown type")
	}
}
