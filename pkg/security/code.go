package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// GenerateNumericCode returns a uniformly random decimal code of the given length.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 || length > 12 {
		return "", fmt.Errorf("code length must be between 1 and 12")
	}
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// HashCode returns the hex sha256 of salt and a one-time code. Codes are short lived
// and attempt-capped, so a fast hash is sufficient.
func HashCode(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// CodeMatches compares a submitted code against a stored hash in constant time.
func CodeMatches(salt, code, storedHash string) bool {
	computed := HashCode(salt, code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
