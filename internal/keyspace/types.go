// internal/keyspace/types.go
//
// Cache types and their default freshness windows.
//
// Context
// -------
// A cache type names the kind of value an entry holds.  It selects the
// default L1 and L2 TTLs and forms the second segment of every key, so two
// types never share entries even when their hashes match.
//
//	type        L1      L2
//	document    5m      15m
//	folder_id   10m     60m
//	transform   5m      30m
//	adr         5m      30m
//	changelog   5m      30m
//	kb          5m      30m
//
// L1 optimises for burst reuse inside one process, L2 for reuse across
// processes, so the L1 window is always the shorter one.
package keyspace

import (
	"fmt"
	"time"
)

// Type is the enumerated cache-type domain.
type Type string

const (
	TypeDocument  Type = "document"
	TypeFolderID  Type = "folder_id"
	TypeTransform Type = "transform"
	TypeADR       Type = "adr"
	TypeChangelog Type = "changelog"
	TypeKnowledge Type = "kb"
)

// TTL pairs the per-tier freshness windows for one cache type.
type TTL struct {
	L1 time.Duration `koanf:"l1"`
	L2 time.Duration `koanf:"l2"`
}

var defaultTTLs = map[Type]TTL{
	TypeDocument:  {L1: 5 * time.Minute, L2: 15 * time.Minute},
	TypeFolderID:  {L1: 10 * time.Minute, L2: 60 * time.Minute},
	TypeTransform: {L1: 5 * time.Minute, L2: 30 * time.Minute},
	TypeADR:       {L1: 5 * time.Minute, L2: 30 * time.Minute},
	TypeChangelog: {L1: 5 * time.Minute, L2: 30 * time.Minute},
	TypeKnowledge: {L1: 5 * time.Minute, L2: 30 * time.Minute},
}

// Types returns every known cache type in a stable order.
func Types() []Type {
	return []Type{
		TypeDocument, TypeFolderID, TypeTransform,
		TypeADR, TypeChangelog, TypeKnowledge,
	}
}

// Valid reports whether t is a known cache type.
func (t Type) Valid() bool {
	_, ok := defaultTTLs[t]
	return ok
}

// DefaultTTL returns the built-in TTL pair for t.  Unknown types get the
// transform windows.
func (t Type) DefaultTTL() TTL {
	if ttl, ok := defaultTTLs[t]; ok {
		return ttl
	}
	return defaultTTLs[TypeTransform]
}

// ParseType converts a config or query-string value into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("keyspace: unknown cache type %q", s)
	}
	return t, nil
}
