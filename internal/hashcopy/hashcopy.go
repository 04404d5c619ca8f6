// Package hashcopy implements the hash-while-copy collaborator (spec C4):
// it copies an input stream to a sink while computing a running SHA-512
// digest, so callers never need to buffer the whole body to hash it.
package hashcopy

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
)

// chunkSize is the read/write granularity; tunable per spec §4.4.
const chunkSize = 64 * 1024

// Copy streams src to dst in chunkSize reads, returning the total bytes
// written and the full SHA-512 hex digest of everything written.
// Truncating the digest to 56 hex chars (SHA-512/224-equivalent) is the
// caller's responsibility when displaying it, per spec §4.4.
func Copy(dst io.Writer, src io.Reader) (written int64, sha512hex string, err error) {
	h := sha512.New()
	buf := make([]byte, chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, hex.EncodeToString(h.Sum(nil)), werr
			}
			h.Write(buf[:n])
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, hex.EncodeToString(h.Sum(nil)), rerr
		}
	}
	return written, hex.EncodeToString(h.Sum(nil)), nil
}

// Truncated56 returns the SHA-512/224-equivalent truncated hex prefix used
// in audit log lines (spec §4.4, §4.5.6).
func Truncated56(full string) string {
	if len(full) <= 56 {
		return full
	}
	return full[:56]
}
