package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	minCodeBytes = 3
	maxCodeBytes = 16
)

// NewRecoveryCode returns an upper-hex recovery code derived from n bytes of
// CSPRNG output. The delivered code is 2n characters long.
func NewRecoveryCode(n int) (string, error) {
	if n < minCodeBytes || n > maxCodeBytes {
		return "", errors.New("invalid code byte count")
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(raw)), nil
}

// HashCode returns the SHA-256 digest of a recovery code. Only digests are
// persisted; the plaintext code exists in the delivery message and nowhere
// else.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// RandomInt returns a uniform random value in [0, max) from the CSPRNG.
func RandomInt(max int64) (int64, error) {
	if max <= 0 {
		return 0, errors.New("invalid random bound")
	}

	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
