package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeTraceHash computes the deterministic hash of a canonical trace encoding.
//
// The input must already be canonical (see ExecutionTrace.CanonicalJSON), so the
// hash covers the sorted event order rather than insertion order.
// The result is sha256 over the bytes, hex-encoded.
func ComputeTraceHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}
