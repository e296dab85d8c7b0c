// Package internaldefs is the shared metric naming table for the exporter
// packages. It exists so the Prometheus and OpenTelemetry exporters publish
// identical names and help strings.
package internaldefs

import (
	credkit "github.com/credkit/credkit"
)

// CounterDef ties an engine counter to its exported name.
type CounterDef struct {
	ID   credkit.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter, in engine ID order.
var CounterDefs = []CounterDef{
	{ID: credkit.MetricRecoveryRequested, Name: "credkit_recovery_requested_total", Help: "Recovery requests that issued a code."},
	{ID: credkit.MetricRecoveryMasked, Name: "credkit_recovery_masked_total", Help: "Recovery requests for unknown identifiers answered with a synthetic success."},
	{ID: credkit.MetricRecoveryFailure, Name: "credkit_recovery_failure_total", Help: "Recovery requests stopped by a gate."},
	{ID: credkit.MetricCodeVerified, Name: "credkit_code_verified_total", Help: "Successful recovery code verifications."},
	{ID: credkit.MetricCodeRejected, Name: "credkit_code_rejected_total", Help: "Failed recovery code verifications."},
	{ID: credkit.MetricCodeAttemptsExceeded, Name: "credkit_code_attempts_exceeded_total", Help: "Recovery codes destroyed by the attempt cap."},
	{ID: credkit.MetricPasswordChanged, Name: "credkit_password_changed_total", Help: "Completed recovery password changes."},
	{ID: credkit.MetricPasswordChangeFailure, Name: "credkit_password_change_failure_total", Help: "Password change attempts stopped by a gate."},
	{ID: credkit.MetricCaptchaRejected, Name: "credkit_captcha_rejected_total", Help: "Rejected captcha verifications."},
	{ID: credkit.MetricRateLimitHit, Name: "credkit_rate_limit_hit_total", Help: "Fixed-window rate limit rejections."},
	{ID: credkit.MetricDispatchFailure, Name: "credkit_dispatch_failure_total", Help: "Best-effort message deliveries that failed."},
	{ID: credkit.MetricSessionDestroyed, Name: "credkit_session_destroyed_total", Help: "Destroyed recovery sessions."},
}

// AuditDroppedName is the exported name of the audit backpressure counter.
const AuditDroppedName = "credkit_audit_dropped_total"

// AuditDroppedHelp describes the audit backpressure counter.
const AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."
