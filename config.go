package credkit

import (
	"errors"
	"time"
)

// Config carries every tunable of the recovery core. Build validates it once;
// after that the Engine treats it as immutable.
type Config struct {
	RateLimit RateLimitConfig
	Token     TokenConfig
	Code      CodeConfig
	Session   SessionConfig
	Password  PasswordConfig
	Captcha   CaptchaConfig
	Dispatch  DispatchConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// RateLimitConfig tunes the fixed-window limiter. Separate budgets apply to
// recovery requests (keyed by identifier and client IP) and code submissions
// (keyed by session and client IP).
type RateLimitConfig struct {
	RequestLimit  int
	RequestWindow time.Duration
	CodeLimit     int
	CodeWindow    time.Duration

	// FailOpen admits traffic when the limiter's Redis backend is down.
	// Leave false for security-sensitive deployments; outages then reject
	// with ErrDependencyDown.
	FailOpen bool

	RedisPrefix string
}

// TokenConfig configures the signed session token issuer.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// CodeConfig tunes recovery code generation and verification.
type CodeConfig struct {
	// Bytes of entropy per code; the delivered code is the upper-hex
	// encoding, so its length is 2*Bytes characters.
	Bytes       int
	TTL         time.Duration
	MaxAttempts int

	// MaxAge is a hard ceiling on elapsed time since issuance, checked
	// before the store's own TTL as a guard against clock or storage
	// anomalies. Must be >= TTL.
	MaxAge time.Duration

	RedisPrefix string
}

// SessionConfig tunes recovery session records.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

// PasswordConfig carries argon2id parameters and the minimum accepted
// password length.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// CaptchaConfig bounds the external captcha verification call.
type CaptchaConfig struct {
	Enabled bool
	Timeout time.Duration
}

// DispatchConfig bounds best-effort message delivery.
type DispatchConfig struct {
	Timeout     time.Duration
	CodeSubject string
	DoneSubject string
}

// AuditConfig controls dispatcher buffering behavior.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the starting configuration used by the Builder.
// Callers override fields and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			RequestLimit:  5,
			RequestWindow: 15 * time.Minute,
			CodeLimit:     5,
			CodeWindow:    15 * time.Minute,
			RedisPrefix:   "crl",
		},
		Token: TokenConfig{
			Issuer:   "credkit",
			Audience: "credkit/recovery",
			TTL:      15 * time.Minute,
			Leeway:   30 * time.Second,
		},
		Code: CodeConfig{
			Bytes:       3,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			MaxAge:      15 * time.Minute,
			RedisPrefix: "crc",
		},
		Session: SessionConfig{
			RedisPrefix: "crs",
			TTL:         30 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
		},
		Captcha: CaptchaConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
		Dispatch: DispatchConfig{
			Timeout:     5 * time.Second,
			CodeSubject: "Your recovery code",
			DoneSubject: "Your password was changed",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations that would weaken the flow's guarantees.
func (c Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("token secret must be at least 32 bytes")
	}
	if c.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token leeway out of range")
	}
	if c.RateLimit.RequestLimit <= 0 || c.RateLimit.CodeLimit <= 0 {
		return errors.New("rate limits must be positive")
	}
	if c.RateLimit.RequestWindow < time.Second || c.RateLimit.CodeWindow < time.Second {
		return errors.New("rate limit windows must be at least one second")
	}
	if c.Code.Bytes < 3 || c.Code.Bytes > 16 {
		return errors.New("code bytes must be between 3 and 16")
	}
	if c.Code.TTL <= 0 {
		return errors.New("code TTL must be positive")
	}
	if c.Code.MaxAttempts < 1 {
		return errors.New("code max attempts must be at least 1")
	}
	if c.Code.MaxAge < c.Code.TTL {
		return errors.New("code max age must not undercut code TTL")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Password.MinLength < 10 {
		return errors.New("minimum password length must be at least 10")
	}
	if c.Captcha.Enabled && c.Captcha.Timeout <= 0 {
		return errors.New("captcha timeout must be positive when captcha is enabled")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.Token.Secret = cloneBytes(c.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
