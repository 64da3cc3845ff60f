package types

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ident is RFC 4648 Base32 without padding, lowercased on encode.
var ident = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh 26-character lowercase Base32 identifier
// derived from 128 random bits.
func NewID() string {
	u := uuid.New()
	return strings.ToLower(ident.EncodeToString(u[:]))
}

// CID returns the content identifier for a blob: the lowercase Base32
// encoding of its SHA-256 digest.
func CID(data []byte) CidType {
	sum := sha256.Sum256(data)
	return CidType(strings.ToLower(ident.EncodeToString(sum[:])))
}

// IsID reports whether s looks like an opaque identifier: non-empty and
// restricted to the Base32 alphabet [a-z2-7]. Room names are allowed to
// use characters outside this set, which is how the two are told apart.
func IsID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}

// FormatTime renders t as RFC 3339 UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format("2006-01-02T15:04:05.000Z")
}
