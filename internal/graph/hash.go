package graph

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// ContentHash returns the hex-encoded BLAKE3-256 digest of content. The
// indexer compares it against the stored hash to skip unchanged files.
func ContentHash(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
