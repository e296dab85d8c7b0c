package credkit

import (
	"context"
	"errors"

	"github.com/credkit/credkit/csrf"
	"github.com/credkit/credkit/internal/sessions"
)

// StartSession opens a fresh anonymous recovery session and issues its first
// anti-forgery token. The returned view carries both the session ID and the
// token the client must echo back.
func (e *Engine) StartSession(ctx context.Context) (SessionView, error) {
	if !e.ready() {
		return SessionView{}, ErrEngineNotReady
	}

	session, err := e.sessions.Create(ctx)
	if err != nil {
		return SessionView{}, errors.Join(ErrDependencyDown, err)
	}

	token, err := csrf.NewToken()
	if err != nil {
		return SessionView{}, errors.Join(ErrDependencyDown, err)
	}
	session.CSRFToken = token
	if err := e.sessions.Save(ctx, session); err != nil {
		return SessionView{}, errors.Join(ErrDependencyDown, err)
	}

	e.emitAudit(ctx, auditEventSessionStart, true, "", session.ID, nil, nil)
	return sessionView(session, true), nil
}

// IssueCSRF rotates the session's anti-forgery token and returns it. The
// previous token stops validating immediately.
func (e *Engine) IssueCSRF(ctx context.Context, sessionID string) (SessionView, error) {
	if !e.ready() {
		return SessionView{}, ErrEngineNotReady
	}

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}

	token, err := csrf.NewToken()
	if err != nil {
		return SessionView{}, errors.Join(ErrDependencyDown, err)
	}
	session.CSRFToken = token
	if err := e.sessions.Save(ctx, session); err != nil {
		return SessionView{}, errors.Join(ErrDependencyDown, err)
	}

	return sessionView(session, true), nil
}

// Session returns the current view of a recovery session without touching
// it. The view never includes the anti-forgery token.
func (e *Engine) Session(ctx context.Context, sessionID string) (SessionView, error) {
	if !e.ready() {
		return SessionView{}, ErrEngineNotReady
	}

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return sessionView(session, false), nil
}

// RequestRecovery runs the first flow step: captcha, rate limit, and CSRF
// gates, then code issuance and delivery. Unknown identifiers get the same
// success response as known ones.
func (e *Engine) RequestRecovery(ctx context.Context, sessionID string, req RecoveryRequest) (SessionView, error) {
	if !e.ready() {
		return SessionView{}, ErrEngineNotReady
	}

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}

	if err := e.flow.RunRequestRecovery(ctx, session, req.Identifier, req.CSRFHeader, req.CSRFBody, req.CaptchaResponse); err != nil {
		return SessionView{}, err
	}
	return sessionView(session, false), nil
}

// SubmitCode runs the code verification step. On success the session moves
// to the code-verified state under a fresh session ID, and the returned view
// carries both the new ID and a fresh anti-forgery token.
func (e *Engine) SubmitCode(ctx context.Context, sessionID string, sub CodeSubmission) (SessionView, error) {
	if !e.ready() {
		return SessionView{}, ErrEngineNotReady
	}

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}

	if err := e.flow.RunSubmitCode(ctx, session, sub.Code, sub.CSRFHeader, sub.CSRFBody); err != nil {
		return SessionView{}, err
	}
	return sessionView(session, true), nil
}

// ChangePassword runs the terminal step. On success the account's password
// hash is replaced and the recovery session is destroyed; its ID and tokens
// stop working.
func (e *Engine) ChangePassword(ctx context.Context, sessionID string, chg PasswordChange) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}

	return e.flow.RunChangePassword(ctx, session, chg.NewPassword, chg.ConfirmPassword, chg.CSRFHeader, chg.CSRFBody)
}

// DestroySession abandons a recovery session early. Destroying an unknown
// session is not an error.
func (e *Engine) DestroySession(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	if err := e.codes.Delete(ctx, sessionID); err != nil {
		return errors.Join(ErrDependencyDown, err)
	}
	if err := e.sessions.Destroy(ctx, sessionID); err != nil {
		return errors.Join(ErrDependencyDown, err)
	}

	e.metricInc(MetricSessionDestroyed)
	return nil
}

func (e *Engine) loadSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Join(ErrDependencyDown, err)
	}
	return session, nil
}

func sessionView(session *sessions.Session, withCSRF bool) SessionView {
	view := SessionView{
		SessionID: session.ID,
		State:     session.State,
	}
	if withCSRF {
		view.CSRFToken = session.CSRFToken
	}
	return view
}
