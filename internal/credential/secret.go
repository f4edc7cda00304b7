package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	secretPrefix = "adp_"
	secretBytes  = 32
	prefixLen    = 12
)

// newSecret draws a random key of the form adp_<base64url>.
func newSecret() (IssuedSecret, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return IssuedSecret{}, fmt.Errorf("generating secret: %w", err)
	}
	return IssuedSecret{value: secretPrefix + base64.RawURLEncoding.EncodeToString(buf)}, nil
}

// HashSecret returns the lower-case hex SHA-256 digest stored for raw.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func prefixOf(raw string) string {
	if len(raw) <= prefixLen {
		return raw
	}
	return raw[:prefixLen]
}
