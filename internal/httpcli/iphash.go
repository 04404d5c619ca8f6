package httpcli

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// IPHasher produces a stable, opaque per-peer token for audit logging,
// reinstating copyparty's `HMaccas` (broker_mpw.py: `self.iphash =
// HMaccas(...)`) as an HMAC-SHA256 keyed hash rather than a persisted
// on-disk keyfile, so raw client addresses never need to hit the upload
// audit file (see SPEC_FULL.md §C).
type IPHasher struct {
	key []byte
}

// NewIPHasher builds a hasher keyed with key. Callers typically generate
// key once at process start and hand the one hasher to the Engine.
func NewIPHasher(key []byte) *IPHasher {
	cp := make([]byte, len(key))
	copy(cp, key)
	return &IPHasher{key: cp}
}

// Hash returns a truncated hex HMAC of addr, stable for the lifetime of
// the keyed hasher.
func (h *IPHasher) Hash(addr string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(addr))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}
