// Package checksum fingerprints document content so that a run can tell
// whether a file changed between loading and committing it.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Unchanged reports whether data still has the digest sum. An empty sum
// means the content was never fingerprinted and always matches.
func Unchanged(data []byte, sum string) bool {
	return sum == "" || Sum(data) == sum
}
