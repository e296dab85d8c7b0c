package credkit

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrBadRequest reports malformed or missing caller input, such as an
	// empty identifier or a password confirmation that does not match.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized reports a failed security gate: CSRF mismatch, missing
	// code-verified flag, or a broken session/token binding.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCaptchaRejected reports a captcha challenge that was rejected or
	// could not be verified within its deadline.
	ErrCaptchaRejected = errors.New("captcha rejected")
	// ErrAccountNotFound reports an identifier with no matching account.
	// Recovery requests never surface it to callers (see RequestRecovery);
	// it escapes only from flows that already proved account knowledge.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSessionNotFound reports an unknown, expired, or destroyed recovery
	// session identifier.
	ErrSessionNotFound = errors.New("recovery session not found")
	// ErrRecoveryRateLimited reports a fixed-window budget exhaustion. Use
	// [RetryAfter] to recover the wait hint carried by the error.
	ErrRecoveryRateLimited = errors.New("recovery rate limited")
	// ErrRecoveryInvalid reports a recovery code that did not verify. Wrong
	// and expired codes map here identically so remote callers cannot probe
	// code liveness; audit metadata records the precise reason.
	ErrRecoveryInvalid = errors.New("recovery code invalid")
	// ErrRecoveryAttempts reports a recovery code destroyed after too many
	// failed verification attempts.
	ErrRecoveryAttempts = errors.New("recovery code attempts exceeded")
	// ErrPasswordPolicy reports a new password that fails policy checks.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrDependencyDown reports an unavailable backing dependency (Redis,
	// hasher). Security-sensitive paths fail closed with this error.
	ErrDependencyDown = errors.New("backing dependency unavailable")
	// ErrEngineNotReady reports an Engine used before Build wired it.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ThrottledError wraps ErrRecoveryRateLimited with the duration after which
// the caller's window reopens. errors.Is(err, ErrRecoveryRateLimited) matches.
type ThrottledError struct {
	After time.Duration
}

func (e *ThrottledError) Error() string {
	return "recovery rate limited, retry after " + e.After.String()
}

func (e *ThrottledError) Is(target error) bool {
	return target == ErrRecoveryRateLimited
}

// RetryAfter extracts the back-off hint from a rate-limit rejection.
// The second return is false when err carries no throttle information.
func RetryAfter(err error) (time.Duration, bool) {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return throttled.After, true
	}
	return 0, false
}

// HTTPStatus maps a credkit error to the HTTP status code a transport layer
// should answer with. Unknown errors map to 500 so that unexpected failures
// never leak detail as a client fault.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrPasswordPolicy):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrRecoveryInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCaptchaRejected):
		return http.StatusForbidden
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRecoveryRateLimited), errors.Is(err, ErrRecoveryAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
