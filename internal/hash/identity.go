// Package hash provides the fallback identity hashing used when a notification
// carries no explicit identifier.
package hash

import (
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// fieldSep separates hashed fields so that ("ab","c") and ("a","bc") differ.
const fieldSep = "\x00"

// Fingerprint hashes the given fields into a 64-bit value.
//
// Parameters:
//   - seed: Hash seed (0 means unseeded)
//   - fields: Stable content fields, order-sensitive
//
// Returns:
//   - uint64: xxh3 hash of the joined fields
func Fingerprint(seed uint64, fields ...string) uint64 {
	joined := strings.Join(fields, fieldSep)
	if seed != 0 {
		return xxh3.HashStringSeed(joined, seed)
	}

	return xxh3.HashString(joined)
}

// Bucket truncates t to the given bucket width and renders it as Unix seconds.
//
// A non-positive width yields the empty string so the time component drops out
// of the fingerprint entirely.
func Bucket(t time.Time, width time.Duration) string {
	if width <= 0 || t.IsZero() {
		return ""
	}

	return strconv.FormatInt(t.Truncate(width).Unix(), 10)
}

// Key renders a fingerprint as a compact, prefixed identity key.
//
// The "~" prefix keeps synthesized keys from colliding with explicit IDs.
func Key(h uint64) string {
	return "~" + strconv.FormatUint(h, 36)
}
