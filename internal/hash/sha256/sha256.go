// Package sha256 derives stable keys for scraped listings.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// separator keeps ("ab", "c") and ("a", "bc") from colliding.
const separator = "\x1f"

// Key returns the hex SHA-256 digest of parts joined by a unit separator.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(sum[:])
}
