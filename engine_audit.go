package credkit

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRecoveryRequest = "recovery_request"
	auditEventCodeSubmit      = "recovery_code_submit"
	auditEventPasswordChange  = "recovery_password_change"
	auditEventDispatch        = "recovery_dispatch"
	auditEventRateLimit       = "rate_limit_triggered"
	auditEventSessionStart    = "recovery_session_start"
)

// auditErrorCode collapses an error into the short stable code recorded in
// audit events, so sinks never see raw error strings.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrCaptchaRejected):
		return "captcha_rejected"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrRecoveryRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRecoveryAttempts):
		return "attempts_exceeded"
	case errors.Is(err, ErrRecoveryInvalid):
		return "code_invalid"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrDependencyDown):
		return "backend_unavailable"
	case errors.Is(err, ErrEngineNotReady):
		return "engine_not_ready"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     auditErrorCode(err),
		Metadata:  metadata,
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, auditEventRateLimit, false, "", "", nil, func() map[string]string {
		base := map[string]string{"scope": scope}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}
