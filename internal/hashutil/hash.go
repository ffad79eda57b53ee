// Package hashutil provides the stable content digests used for chunk
// dedup (§4.3) and summary idempotency keys (§4.7).
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChunkHash returns the lowercase hex SHA-256 digest of text (§2 Hasher,
// property 4: deterministic, platform-independent, 64 lowercase hex chars).
func ChunkHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SummaryKey computes the deterministic idempotency digest: sha256 of the
// concatenation (no separators) of projectID, start, end, and each source
// memory id in order — matching the Rust original's compute_summary_key
// and spec §8 scenario S7 exactly.
func SummaryKey(projectID, start, end string, sourceMemoryIDs []string) string {
	h := sha256.New()
	h.Write([]byte(projectID))
	h.Write([]byte(start))
	h.Write([]byte(end))
	for _, id := range sourceMemoryIDs {
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}
