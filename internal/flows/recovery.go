package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/credkit/credkit/csrf"
	"github.com/credkit/credkit/internal"
	"github.com/credkit/credkit/internal/metrics"
	"github.com/credkit/credkit/internal/rate"
	"github.com/credkit/credkit/internal/sessions"
	"github.com/credkit/credkit/internal/stores"
	"github.com/credkit/credkit/token"
)

// Account is the account view the flow steps operate on.
type Account struct {
	AccountID    string
	Identifier   string
	Destination  string
	PasswordHash string
}

// Errors carries the engine's sentinel errors into the flow logic.
type Errors struct {
	NotReady        error
	BadRequest      error
	Unauthorized    error
	CaptchaRejected error
	SessionNotFound error
	Invalid         error
	Attempts        error
	PasswordPolicy  error
	DependencyDown  error
}

// Events names the audit event types the steps emit.
type Events struct {
	Request  string
	Submit   string
	Change   string
	Dispatch string
}

// Deps is everything a step needs. The engine fills it once at build time.
type Deps struct {
	Sessions       *sessions.Store
	Codes          *stores.CodeStore
	RequestLimiter *rate.Limiter
	CodeLimiter    *rate.Limiter
	Tokens         *token.Manager

	CodeBytes       int
	CodeTTL         time.Duration
	CodeMaxAge      time.Duration
	CodeMaxAttempts int

	CaptchaEnabled  bool
	CaptchaTimeout  time.Duration
	DispatchTimeout time.Duration
	CodeSubject     string
	DoneSubject     string

	GetAccountByIdentifier func(ctx context.Context, identifier string) (Account, error)
	GetAccountByID         func(ctx context.Context, accountID string) (Account, error)
	UpdatePasswordHash     func(ctx context.Context, accountID, newHash string) error
	IsAccountNotFound      func(error) bool
	VerifyCaptcha          func(ctx context.Context, response string) (bool, error)
	SendMessage            func(ctx context.Context, destination, subject, body string) error
	HashPassword           func(password string) (string, error)
	IsPasswordPolicy       func(error) bool

	ClientIP       func(ctx context.Context) string
	Now            func() time.Time
	SleepMaskDelay func(ctx context.Context) error

	MetricInc     func(id metrics.MetricID)
	EmitAudit     func(ctx context.Context, event string, success bool, accountID, sessionID string, err error, meta func() map[string]string)
	EmitRateLimit func(ctx context.Context, scope string, meta func() map[string]string)
	Throttled     func(after time.Duration) error

	Events Events
	Errors Errors
}

// RunRequestRecovery executes the first flow step. On success the session
// holds the binding token and is in the requested state; for unknown
// identifiers the session reaches the same state with no account attached,
// so the response is indistinguishable from the real thing.
func (d *Deps) RunRequestRecovery(ctx context.Context, session *sessions.Session, identifier, csrfHeader, csrfBody, captchaResponse string) error {
	normalizeDeps(d)

	if d.Sessions == nil || d.Codes == nil || d.RequestLimiter == nil || d.Tokens == nil ||
		d.GetAccountByIdentifier == nil || d.SendMessage == nil {
		return d.Errors.NotReady
	}

	// A session that already verified a code must not regress. Re-requesting
	// from the requested state is fine; it replaces the pending code.
	if session.State != sessions.StateAnonymous && session.State != sessions.StateRequested {
		d.MetricInc(metrics.MetricRecoveryFailure)
		d.EmitAudit(ctx, d.Events.Request, false, session.AccountID, session.ID, d.Errors.Unauthorized, reason("state"))
		return d.Errors.Unauthorized
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		d.EmitAudit(ctx, d.Events.Request, false, "", session.ID, d.Errors.BadRequest, reason("empty_identifier"))
		return d.Errors.BadRequest
	}

	if d.CaptchaEnabled {
		if err := d.verifyCaptcha(ctx, captchaResponse); err != nil {
			d.MetricInc(metrics.MetricCaptchaRejected)
			d.MetricInc(metrics.MetricRecoveryFailure)
			d.EmitAudit(ctx, d.Events.Request, false, "", session.ID, err, reason("captcha"))
			return err
		}
	}

	ip := d.ClientIP(ctx)
	decision, err := d.RequestLimiter.ConsumeAll(ctx, "id:"+identifier, ipKey(ip))
	if err != nil {
		d.EmitAudit(ctx, d.Events.Request, false, "", session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}
	if !decision.Allowed {
		throttled := d.Throttled(decision.RetryAfter)
		d.MetricInc(metrics.MetricRateLimitHit)
		d.MetricInc(metrics.MetricRecoveryFailure)
		d.EmitAudit(ctx, d.Events.Request, false, "", session.ID, throttled, nil)
		d.EmitRateLimit(ctx, "recovery_request", reason("request_window"))
		return throttled
	}

	if err := csrf.Validate(session.CSRFToken, csrfHeader, csrfBody); err != nil {
		d.MetricInc(metrics.MetricRecoveryFailure)
		d.EmitAudit(ctx, d.Events.Request, false, "", session.ID, d.Errors.Unauthorized, reason("csrf"))
		return d.Errors.Unauthorized
	}

	account, err := d.GetAccountByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !d.IsAccountNotFound(err) {
			d.EmitAudit(ctx, d.Events.Request, false, "", session.ID, d.Errors.DependencyDown, nil)
			return errors.Join(d.Errors.DependencyDown, err)
		}
		return d.maskUnknownIdentifier(ctx, session, identifier)
	}

	code, err := internal.NewRecoveryCode(d.CodeBytes)
	if err != nil {
		d.EmitAudit(ctx, d.Events.Request, false, account.AccountID, session.ID, d.Errors.DependencyDown, reason("code_generation"))
		return errors.Join(d.Errors.DependencyDown, err)
	}

	now := d.Now()
	codeHash := internal.HashCode(code)
	err = d.Codes.Save(ctx, session.ID, &stores.Record{
		CodeHash:  codeHash,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(d.CodeTTL).Unix(),
	}, d.CodeTTL)
	if err != nil {
		d.EmitAudit(ctx, d.Events.Request, false, account.AccountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	bindToken, err := d.Tokens.Issue(map[string]string{"aid": account.AccountID})
	if err != nil {
		d.EmitAudit(ctx, d.Events.Request, false, account.AccountID, session.ID, d.Errors.DependencyDown, reason("bind_token"))
		return errors.Join(d.Errors.DependencyDown, err)
	}

	session.AccountID = account.AccountID
	session.Identifier = account.Identifier
	session.BindToken = bindToken
	session.CodeIssuedAt = now.Unix()
	session.State = sessions.StateRequested
	if err := d.Sessions.Save(ctx, session); err != nil {
		d.EmitAudit(ctx, d.Events.Request, false, account.AccountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	d.deliver(ctx, session, account.AccountID, account.Destination, d.CodeSubject,
		"Your recovery code is "+code+". It expires in "+d.CodeTTL.String()+".")

	// A completed request hands its window back; only attempts that fail a
	// gate accumulate against the budget.
	if err := d.RequestLimiter.Reset(ctx, "id:"+identifier, ipKey(ip)); err != nil {
		d.EmitAudit(ctx, d.Events.Request, true, account.AccountID, session.ID, nil, reason("limiter_reset_failed"))
	}

	d.MetricInc(metrics.MetricRecoveryRequested)
	d.EmitAudit(ctx, d.Events.Request, true, account.AccountID, session.ID, nil, nil)
	return nil
}

// maskUnknownIdentifier walks the session through the same transition as a
// real request, after a random delay on the same order as code generation
// plus delivery handoff.
func (d *Deps) maskUnknownIdentifier(ctx context.Context, session *sessions.Session, identifier string) error {
	if err := d.SleepMaskDelay(ctx); err != nil {
		return err
	}

	session.CodeIssuedAt = d.Now().Unix()
	session.State = sessions.StateRequested
	if err := d.Sessions.Save(ctx, session); err != nil {
		d.EmitAudit(ctx, d.Events.Request, false, "", session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	// Same reset as the real path, so limiter state cannot tell them apart.
	if err := d.RequestLimiter.Reset(ctx, "id:"+identifier, ipKey(d.ClientIP(ctx))); err != nil {
		d.EmitAudit(ctx, d.Events.Request, true, "", session.ID, nil, reason("limiter_reset_failed"))
	}

	d.MetricInc(metrics.MetricRecoveryMasked)
	d.EmitAudit(ctx, d.Events.Request, true, "", session.ID, nil, reason("masked"))
	return nil
}

// RunSubmitCode executes the code verification step. On success the session
// is re-keyed under a fresh ID with a fresh anti-forgery token.
func (d *Deps) RunSubmitCode(ctx context.Context, session *sessions.Session, code, csrfHeader, csrfBody string) error {
	normalizeDeps(d)

	if d.Sessions == nil || d.Codes == nil || d.CodeLimiter == nil {
		return d.Errors.NotReady
	}

	if session.State != sessions.StateRequested {
		d.MetricInc(metrics.MetricCodeRejected)
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.Invalid, reason("no_pending_code"))
		return d.Errors.Invalid
	}

	// Absolute ceiling on code age, independent of the store TTL and of any
	// clock drift the record's own expiry might hide.
	now := d.Now()
	if session.CodeIssuedAt == 0 || now.Sub(time.Unix(session.CodeIssuedAt, 0)) > d.CodeMaxAge {
		_ = d.Codes.Delete(ctx, session.ID)
		d.MetricInc(metrics.MetricCodeRejected)
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.Invalid, reason("code_too_old"))
		return d.Errors.Invalid
	}

	ip := d.ClientIP(ctx)
	decision, err := d.CodeLimiter.ConsumeAll(ctx, "sess:"+session.ID, ipKey(ip))
	if err != nil {
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}
	if !decision.Allowed {
		throttled := d.Throttled(decision.RetryAfter)
		d.MetricInc(metrics.MetricRateLimitHit)
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, throttled, nil)
		d.EmitRateLimit(ctx, "code_submission", reason("code_window"))
		return throttled
	}

	if err := csrf.Validate(session.CSRFToken, csrfHeader, csrfBody); err != nil {
		d.MetricInc(metrics.MetricCodeRejected)
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.Unauthorized, reason("csrf"))
		return d.Errors.Unauthorized
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		d.MetricInc(metrics.MetricCodeRejected)
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.BadRequest, reason("empty_code"))
		return d.Errors.BadRequest
	}

	if _, err := d.Codes.Consume(ctx, session.ID, internal.HashCode(code), d.CodeMaxAttempts); err != nil {
		return d.submitConsumeFailure(ctx, session, err)
	}

	freshCSRF, err := csrf.NewToken()
	if err != nil {
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	// Regenerate rewrites session.ID in place; the limiter counters live
	// under the ID the attempts were charged to.
	oldID := session.ID
	session.CSRFToken = freshCSRF
	session.State = sessions.StateCodeVerified
	if err := d.Sessions.Regenerate(ctx, session); err != nil {
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	if err := d.CodeLimiter.Reset(ctx, "sess:"+oldID, ipKey(ip)); err != nil {
		// The counters expire on their own; a failed reset is not worth
		// failing a verified submission over.
		d.EmitAudit(ctx, d.Events.Submit, true, session.AccountID, session.ID, nil, reason("limiter_reset_failed"))
	}

	d.MetricInc(metrics.MetricCodeVerified)
	d.EmitAudit(ctx, d.Events.Submit, true, session.AccountID, session.ID, nil, nil)
	return nil
}

func (d *Deps) submitConsumeFailure(ctx context.Context, session *sessions.Session, err error) error {
	switch {
	case errors.Is(err, stores.ErrCodeAttemptsExceeded):
		d.MetricInc(metrics.MetricCodeAttemptsExceeded)
		d.MetricInc(metrics.MetricCodeRejected)
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.Attempts, reason("attempts_exceeded"))
		return d.Errors.Attempts
	case errors.Is(err, stores.ErrCodeMismatch),
		errors.Is(err, stores.ErrCodeExpired),
		errors.Is(err, stores.ErrCodeNotFound):
		d.MetricInc(metrics.MetricCodeRejected)
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.Invalid, nil)
		return d.Errors.Invalid
	default:
		d.EmitAudit(ctx, d.Events.Submit, false, session.AccountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}
}

// RunChangePassword executes the terminal step. The target account comes
// from the session's binding token, never from client input, and success
// destroys the session.
func (d *Deps) RunChangePassword(ctx context.Context, session *sessions.Session, newPassword, confirmPassword, csrfHeader, csrfBody string) error {
	normalizeDeps(d)

	if d.Sessions == nil || d.Tokens == nil || d.RequestLimiter == nil || d.CodeLimiter == nil ||
		d.GetAccountByID == nil || d.UpdatePasswordHash == nil || d.HashPassword == nil {
		return d.Errors.NotReady
	}

	if session.State != sessions.StateCodeVerified {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		d.EmitAudit(ctx, d.Events.Change, false, session.AccountID, session.ID, d.Errors.Unauthorized, reason("state"))
		return d.Errors.Unauthorized
	}

	if newPassword == "" || newPassword != confirmPassword {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		d.EmitAudit(ctx, d.Events.Change, false, session.AccountID, session.ID, d.Errors.BadRequest, reason("confirmation_mismatch"))
		return d.Errors.BadRequest
	}

	if err := csrf.Validate(session.CSRFToken, csrfHeader, csrfBody); err != nil {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		d.EmitAudit(ctx, d.Events.Change, false, session.AccountID, session.ID, d.Errors.Unauthorized, reason("csrf"))
		return d.Errors.Unauthorized
	}

	claims, err := d.Tokens.Parse(session.BindToken)
	if err != nil {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		d.EmitAudit(ctx, d.Events.Change, false, session.AccountID, session.ID, d.Errors.Unauthorized, reason("bind_token"))
		return d.Errors.Unauthorized
	}
	accountID := claims.Data["aid"]
	if accountID == "" || accountID != session.AccountID {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		d.EmitAudit(ctx, d.Events.Change, false, session.AccountID, session.ID, d.Errors.Unauthorized, reason("bind_mismatch"))
		return d.Errors.Unauthorized
	}

	account, err := d.GetAccountByID(ctx, accountID)
	if err != nil {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		if d.IsAccountNotFound(err) {
			d.EmitAudit(ctx, d.Events.Change, false, accountID, session.ID, d.Errors.Unauthorized, reason("account_gone"))
			return d.Errors.Unauthorized
		}
		d.EmitAudit(ctx, d.Events.Change, false, accountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	// The budget is keyed on the resolved identifier, so it is not consumed
	// until the binding has proved which account is being changed.
	ip := d.ClientIP(ctx)
	decision, err := d.CodeLimiter.ConsumeAll(ctx, "chg:"+account.Identifier, ipKey(ip))
	if err != nil {
		d.EmitAudit(ctx, d.Events.Change, false, accountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}
	if !decision.Allowed {
		throttled := d.Throttled(decision.RetryAfter)
		d.MetricInc(metrics.MetricRateLimitHit)
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		d.EmitAudit(ctx, d.Events.Change, false, accountID, session.ID, throttled, nil)
		d.EmitRateLimit(ctx, "password_change", reason("change_window"))
		return throttled
	}

	newHash, err := d.HashPassword(newPassword)
	if err != nil {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		if d.IsPasswordPolicy(err) {
			d.EmitAudit(ctx, d.Events.Change, false, accountID, session.ID, d.Errors.PasswordPolicy, reason("policy"))
			return d.Errors.PasswordPolicy
		}
		d.EmitAudit(ctx, d.Events.Change, false, accountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	if err := d.UpdatePasswordHash(ctx, accountID, newHash); err != nil {
		d.MetricInc(metrics.MetricPasswordChangeFailure)
		d.EmitAudit(ctx, d.Events.Change, false, accountID, session.ID, d.Errors.DependencyDown, nil)
		return errors.Join(d.Errors.DependencyDown, err)
	}

	d.deliver(ctx, session, accountID, account.Destination, d.DoneSubject,
		"The password for your account was just changed through recovery. If this was not you, contact support immediately.")

	if err := d.RequestLimiter.Reset(ctx, "id:"+account.Identifier, ipKey(ip)); err != nil {
		d.EmitAudit(ctx, d.Events.Change, true, accountID, session.ID, nil, reason("limiter_reset_failed"))
	}
	_ = d.CodeLimiter.Reset(ctx, "chg:"+account.Identifier, ipKey(ip))

	session.State = sessions.StatePasswordChanged
	if err := d.Sessions.Destroy(ctx, session.ID); err != nil {
		// The password is already changed; report success but leave a trace.
		d.EmitAudit(ctx, d.Events.Change, true, accountID, session.ID, nil, reason("session_destroy_failed"))
	} else {
		d.MetricInc(metrics.MetricSessionDestroyed)
	}

	d.MetricInc(metrics.MetricPasswordChanged)
	d.EmitAudit(ctx, d.Events.Change, true, accountID, session.ID, nil, nil)
	return nil
}

func (d *Deps) verifyCaptcha(ctx context.Context, response string) error {
	if d.VerifyCaptcha == nil {
		return d.Errors.NotReady
	}
	if response == "" {
		return d.Errors.CaptchaRejected
	}

	verifyCtx := ctx
	if d.CaptchaTimeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, d.CaptchaTimeout)
		defer cancel()
	}

	// A verifier error or timeout rejects the request.
	ok, err := d.VerifyCaptcha(verifyCtx, response)
	if err != nil || !ok {
		return d.Errors.CaptchaRejected
	}
	return nil
}

// deliver sends out of band with its own timeout. Failures are counted and
// audited but never fail the flow.
func (d *Deps) deliver(ctx context.Context, session *sessions.Session, accountID, destination, subject, body string) {
	sendCtx := ctx
	if d.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.DispatchTimeout)
		defer cancel()
	}

	if err := d.SendMessage(sendCtx, destination, subject, body); err != nil {
		d.MetricInc(metrics.MetricDispatchFailure)
		d.EmitAudit(ctx, d.Events.Dispatch, false, accountID, session.ID, err, nil)
	}
}

func ipKey(ip string) string {
	if ip == "" {
		return ""
	}
	return "ip:" + ip
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}

func normalizeDeps(d *Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ClientIP == nil {
		d.ClientIP = func(context.Context) string { return "" }
	}
	if d.SleepMaskDelay == nil {
		d.SleepMaskDelay = func(context.Context) error { return nil }
	}
	if d.MetricInc == nil {
		d.MetricInc = func(metrics.MetricID) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if d.EmitRateLimit == nil {
		d.EmitRateLimit = func(context.Context, string, func() map[string]string) {}
	}
	if d.IsAccountNotFound == nil {
		d.IsAccountNotFound = func(error) bool { return false }
	}
	if d.IsPasswordPolicy == nil {
		d.IsPasswordPolicy = func(error) bool { return false }
	}
	if d.Throttled == nil {
		d.Throttled = func(time.Duration) error { return d.Errors.DependencyDown }
	}
}
