package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewURLToken returns a URL-safe random token of n source bytes.
func NewURLToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
