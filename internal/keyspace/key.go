// internal/keyspace/key.go
//
// Tenant-scoped cache keys.
//
// Context
// -------
// Every entry, in both tiers, is addressed by a Key rendered as
//
//	{tenant}:{type}:{hash}
//	{tenant}:{type}:{hash}:{qualifier}
//
// The tenant segment comes first so one prefix scan reaches everything a
// tenant owns.  Tenant ids are restricted to letters, digits, `_`, and `-`,
// and hashes may not contain the delimiter, which makes the rendering
// injective: no input for tenant A can produce a string inside tenant B's
// namespace.
//
// Notes
// -----
//   - Key is a comparable value and is used directly as the L1 map key.
//   - Validation failures carry platformerrors.CodeInvalidInput.
package keyspace

import (
	"errors"
	"regexp"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
)

// Delimiter separates key segments.
const Delimiter = ":"

// ErrInvalidKey is the sentinel behind every key validation failure.
var ErrInvalidKey = errors.New("keyspace: invalid key")

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidTenantID reports whether id may be embedded in a key.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// Key identifies one cache entry.
type Key struct {
	Tenant    string
	Type      Type
	Hash      string
	Qualifier string
}

// New validates the segments and returns a Key.
func New(tenantID string, t Type, hash, qualifier string) (Key, error) {
	switch {
	case !ValidTenantID(tenantID):
		return Key{}, invalid("tenant_id", tenantID)
	case !t.Valid():
		return Key{}, invalid("cache_type", string(t))
	case hash == "" || strings.Contains(hash, Delimiter):
		return Key{}, invalid("hash", hash)
	case strings.ContainsAny(qualifier, "\r\n"):
		return Key{}, invalid("qualifier", qualifier)
	}
	return Key{Tenant: tenantID, Type: t, Hash: hash, Qualifier: qualifier}, nil
}

// String renders the wire form of the key.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(k.Tenant) + len(k.Type) + len(k.Hash) + len(k.Qualifier) + 3)
	b.WriteString(k.Tenant)
	b.WriteString(Delimiter)
	b.WriteString(string(k.Type))
	b.WriteString(Delimiter)
	b.WriteString(k.Hash)
	if k.Qualifier != "" {
		b.WriteString(Delimiter)
		b.WriteString(k.Qualifier)
	}
	return b.String()
}

// TenantID returns the owning tenant.
func (k Key) TenantID() string { return k.Tenant }

// CacheType returns the entry's cache type.
func (k Key) CacheType() Type { return k.Type }

// TenantPrefix returns the prefix shared by every key of tenantID.  The
// trailing delimiter keeps "acme" from matching "acme2".
func TenantPrefix(tenantID string) (string, error) {
	if !ValidTenantID(tenantID) {
		return "", invalid("tenant_id", tenantID)
	}
	return tenantID + Delimiter, nil
}

func invalid(field, value string) error {
	err := platformerrors.Wrap(ErrInvalidKey, platformerrors.CodeInvalidInput, "invalid "+field)
	return platformerrors.WithContext(err, field, value)
}
