// Package sha256 provides content digests for archived crawl artifacts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 digest of the input. Archived documents carry
// their digest so identical content can be spotted across snapshots.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
