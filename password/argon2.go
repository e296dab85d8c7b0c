package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcAlgorithm = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPasswordLen        = 10
)

// ErrPolicy reports a candidate password that fails the length policy.
var ErrPolicy = errors.New("password does not meet policy")

// Config sets the argon2id cost parameters and the minimum accepted
// password length in bytes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// Hasher produces and checks argon2id hashes. Immutable after construction
// and safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg against the package floors and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	case cfg.MinLength < minPasswordLen:
		return nil, errors.New("password minimum length must be >= 10")
	}

	return &Hasher{config: cfg}, nil
}

// Hash derives a fresh-salt argon2id hash of password and returns it in PHC
// format. Candidates shorter than the configured minimum fail with
// [ErrPolicy].
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < h.config.MinLength {
		return "", ErrPolicy
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. The comparison runs
// with the parameters embedded in the hash, not the Hasher's own, so hashes
// from older cost settings still verify.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	stored, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey(
		[]byte(password),
		stored.salt,
		stored.time,
		stored.memory,
		stored.parallelism,
		uint32(len(stored.key)),
	)

	return subtle.ConstantTimeCompare(key, stored.key) == 1, nil
}

// NeedsRehash reports whether encodedHash was produced with weaker
// parameters than the Hasher's current configuration.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	stored, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	weaker := stored.memory < h.config.Memory ||
		stored.time < h.config.Time ||
		stored.parallelism < h.config.Parallelism ||
		uint32(len(stored.key)) != h.config.KeyLength

	return weaker, nil
}

type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decodePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != phcAlgorithm {
		return nil, errors.New("unsupported hash algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var stored phcHash
	var parallelism uint32
	n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &stored.memory, &stored.time, &parallelism)
	if err != nil || n != 3 {
		return nil, errors.New("invalid argon2 parameters")
	}
	if stored.memory < minMemoryKB || stored.time < 1 || parallelism < 1 || parallelism > 255 {
		return nil, errors.New("invalid argon2 parameters")
	}
	stored.parallelism = uint8(parallelism)

	stored.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(stored.salt)) < minSaltLength {
		return nil, errors.New("invalid salt")
	}

	stored.key, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(stored.key) == 0 {
		return nil, errors.New("invalid hash")
	}

	return &stored, nil
}
