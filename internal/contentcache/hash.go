// internal/contentcache/hash.go
//
// Content normalisation and hashing.
//
// Context
// -------
// Identical documents reached through different paths, or saved with
// different line endings or indentation, must land on the same cache
// entry.  Normalize folds those cosmetic differences away; the hash is a
// SHA-256 of the normalised text truncated to HashLen hex characters
// (128 bits), which keeps keys short while leaving the birthday bound far
// beyond any realistic cache size.
package contentcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashLen is the number of hex characters kept from the digest.
const HashLen = 32

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize converts CRLF and CR to LF, trims the ends, and collapses
// every internal whitespace run to a single space.
func Normalize(s string) string {
	s = lineEndings.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// GenerateContentHash returns the truncated hex SHA-256 of Normalize(s).
func GenerateContentHash(s string) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])[:HashLen]
}
