// Package sha256 derives stable fingerprints for record identity.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the hex SHA-256 digest of the case-folded, trimmed
// parts joined by NUL. Equal parts always give equal fingerprints.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for i, part := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(part))))
	}
	return hex.EncodeToString(h.Sum(nil))
}
