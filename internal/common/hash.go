package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex digests raw bytes to lowercase hex. Replay and idempotency keys
// are derived from request bodies through this.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
