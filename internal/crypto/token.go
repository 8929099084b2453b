package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// DefaultTokenBytes is the entropy of approval tokens.
const DefaultTokenBytes = 32

// NewToken returns n random bytes from crypto/rand, hex encoded.
func NewToken(n int) (string, error) {
	if n < 16 {
		return "", ErrTokenSize
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// TokensEqual compares two tokens in constant time. Empty tokens never match.
func TokensEqual(expected, supplied string) bool {
	if expected == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
