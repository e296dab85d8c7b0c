package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired reports a token whose exp claim is in the past.
	ErrExpired = errors.New("token expired")
	// ErrNotYetValid reports a token whose nbf claim is in the future.
	ErrNotYetValid = errors.New("token not yet valid")
	// ErrBadSignature reports a token whose signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrMalformed reports a token that could not be parsed at all, or whose
	// issuer/audience claims do not match the manager's configuration.
	ErrMalformed = errors.New("token malformed")
)

// Config fixes the signing parameters at construction. The secret and
// algorithm are process-wide configuration; they are never derived from
// request data.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// Manager signs and verifies recovery binding tokens. Safe for concurrent
// use; it holds no mutable state.
type Manager struct {
	config Config
}

// Claims is the decoded token body. Data carries the caller-defined payload.
type Claims struct {
	Data map[string]string `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	cfg.Secret = append([]byte(nil), cfg.Secret...)
	return &Manager{config: cfg}, nil
}

// Issue signs a token carrying data, valid from now until now+TTL.
func (m *Manager) Issue(data map[string]string) (string, error) {
	now := time.Now()

	claims := Claims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.config.Secret)
}

// Parse verifies the signature, then the time and identity claims, and
// returns the decoded claims. Failures map onto the package sentinels.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		return ErrMalformed
	}
}
