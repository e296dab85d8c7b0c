package credkit

import (
	"context"
	"io"

	internalaudit "github.com/credkit/credkit/internal/audit"
	internalmetrics "github.com/credkit/credkit/internal/metrics"
	"github.com/credkit/credkit/internal/sessions"
)

// RecoveryState is the position of a recovery session in the flow's state
// machine. Transitions only ever move forward; any gate failure leaves the
// state where it was.
type RecoveryState = sessions.State

const (
	// StateAnonymous is the initial state of a fresh recovery session.
	StateAnonymous = sessions.StateAnonymous
	// StateRequested is reached after a recovery code has been issued.
	StateRequested = sessions.StateRequested
	// StateCodeVerified is reached after the code verified; only this state
	// admits a password change.
	StateCodeVerified = sessions.StateCodeVerified
	// StatePasswordChanged is terminal; the session is destroyed with it.
	StatePasswordChanged = sessions.StatePasswordChanged
)

// AccountRecord is the minimal account view the recovery core needs.
// Destination is the out-of-band channel (email address, phone number) the
// recovery code is delivered to.
type AccountRecord struct {
	AccountID    string
	Identifier   string
	Destination  string
	PasswordHash string
}

// AccountProvider is the interface the embedding application implements to
// connect credkit to its user database. Lookups must return
// [ErrAccountNotFound] (possibly wrapped) for unknown identifiers.
type AccountProvider interface {
	GetByIdentifier(ctx context.Context, identifier string) (AccountRecord, error)
	GetByID(ctx context.Context, accountID string) (AccountRecord, error)
	UpdatePasswordHash(ctx context.Context, accountID, newHash string) error
}

// CaptchaVerifier gates recovery requests. Implementations must bound their
// own transport; the Engine additionally applies Config.Captcha.Timeout and
// treats a timeout as rejection.
type CaptchaVerifier interface {
	Verify(ctx context.Context, response string) (bool, error)
}

// MessageDispatcher delivers recovery codes and confirmations out of band.
// Delivery is best-effort: the Engine logs and audits a failure but never
// fails the flow for it.
type MessageDispatcher interface {
	Send(ctx context.Context, destination, subject, body string) error
}

// SessionView is the caller-visible projection of a recovery session.
// CSRFToken is populated only by calls that (re)issue a token.
type SessionView struct {
	SessionID string
	State     RecoveryState
	CSRFToken string
}

// RecoveryRequest carries the inputs of the first flow step.
type RecoveryRequest struct {
	Identifier      string
	CSRFHeader      string
	CSRFBody        string
	CaptchaResponse string
}

// CodeSubmission carries the inputs of the code verification step.
type CodeSubmission struct {
	Code       string
	CSRFHeader string
	CSRFBody   string
}

// PasswordChange carries the inputs of the terminal step.
type PasswordChange struct {
	NewPassword     string
	ConfirmPassword string
	CSRFHeader      string
	CSRFBody        string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricRecoveryRequested counts recovery requests that issued a code.
	MetricRecoveryRequested = internalmetrics.MetricRecoveryRequested
	// MetricRecoveryMasked counts recovery requests for unknown identifiers
	// answered with a synthetic success.
	MetricRecoveryMasked = internalmetrics.MetricRecoveryMasked
	// MetricRecoveryFailure counts recovery requests stopped by a gate.
	MetricRecoveryFailure = internalmetrics.MetricRecoveryFailure
	// MetricCodeVerified counts successful code verifications.
	MetricCodeVerified = internalmetrics.MetricCodeVerified
	// MetricCodeRejected counts failed code verifications.
	MetricCodeRejected = internalmetrics.MetricCodeRejected
	// MetricCodeAttemptsExceeded counts codes destroyed by the attempt cap.
	MetricCodeAttemptsExceeded = internalmetrics.MetricCodeAttemptsExceeded
	// MetricPasswordChanged counts completed password changes.
	MetricPasswordChanged = internalmetrics.MetricPasswordChanged
	// MetricPasswordChangeFailure counts password change attempts stopped
	// by a gate.
	MetricPasswordChangeFailure = internalmetrics.MetricPasswordChangeFailure
	// MetricCaptchaRejected counts rejected captcha gates.
	MetricCaptchaRejected = internalmetrics.MetricCaptchaRejected
	// MetricRateLimitHit counts fixed-window rejections.
	MetricRateLimitHit = internalmetrics.MetricRateLimitHit
	// MetricDispatchFailure counts best-effort deliveries that failed.
	MetricDispatchFailure = internalmetrics.MetricDispatchFailure
	// MetricSessionDestroyed counts destroyed recovery sessions.
	MetricSessionDestroyed = internalmetrics.MetricSessionDestroyed
)

// Metrics holds atomic counters for the recovery flow.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(cfg.Enabled)
}
