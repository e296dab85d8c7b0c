package credkit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/credkit/credkit/internal"
	internalaudit "github.com/credkit/credkit/internal/audit"
	"github.com/credkit/credkit/internal/flows"
	"github.com/credkit/credkit/internal/rate"
	"github.com/credkit/credkit/internal/sessions"
	"github.com/credkit/credkit/internal/stores"
	"github.com/credkit/credkit/password"
	"github.com/credkit/credkit/token"
)

// Engine is the credential recovery core. Construct it with [New] and the
// Builder; a zero Engine is not usable. All methods are safe for concurrent
// use.
type Engine struct {
	config Config

	accounts   AccountProvider
	captcha    CaptchaVerifier
	dispatcher MessageDispatcher

	hasher         *password.Hasher
	tokens         *token.Manager
	requestLimiter *rate.Limiter
	codeLimiter    *rate.Limiter
	codes          *stores.CodeStore
	sessions       *sessions.Store

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	log     zerolog.Logger

	flow flows.Deps
}

// Close flushes and stops the audit dispatcher. The Engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under buffer
// pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) ready() bool {
	return e != nil && e.sessions != nil && e.accounts != nil
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// sleepMaskDelay holds an unknown-identifier request for 20 to 40ms so its
// latency matches a request that generated and handed off a real code.
func (e *Engine) sleepMaskDelay(ctx context.Context) error {
	jitter, err := internal.RandomInt(21)
	if err != nil {
		jitter = 10
	}

	timer := time.NewTimer(time.Duration(20+jitter) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		Sessions:       e.sessions,
		Codes:          e.codes,
		RequestLimiter: e.requestLimiter,
		CodeLimiter:    e.codeLimiter,
		Tokens:         e.tokens,

		CodeBytes:       e.config.Code.Bytes,
		CodeTTL:         e.config.Code.TTL,
		CodeMaxAge:      e.config.Code.MaxAge,
		CodeMaxAttempts: e.config.Code.MaxAttempts,

		CaptchaEnabled:  e.config.Captcha.Enabled,
		CaptchaTimeout:  e.config.Captcha.Timeout,
		DispatchTimeout: e.config.Dispatch.Timeout,
		CodeSubject:     e.config.Dispatch.CodeSubject,
		DoneSubject:     e.config.Dispatch.DoneSubject,

		GetAccountByIdentifier: func(ctx context.Context, identifier string) (flows.Account, error) {
			record, err := e.accounts.GetByIdentifier(ctx, identifier)
			return flowAccount(record), err
		},
		GetAccountByID: func(ctx context.Context, accountID string) (flows.Account, error) {
			record, err := e.accounts.GetByID(ctx, accountID)
			return flowAccount(record), err
		},
		UpdatePasswordHash: func(ctx context.Context, accountID, newHash string) error {
			return e.accounts.UpdatePasswordHash(ctx, accountID, newHash)
		},
		IsAccountNotFound: func(err error) bool {
			return errors.Is(err, ErrAccountNotFound)
		},
		VerifyCaptcha: e.verifyCaptcha,
		SendMessage:   e.sendMessage,
		HashPassword: func(pw string) (string, error) {
			return e.hasher.Hash(pw)
		},
		IsPasswordPolicy: func(err error) bool {
			return errors.Is(err, password.ErrPolicy)
		},

		ClientIP:       clientIPFromContext,
		Now:            time.Now,
		SleepMaskDelay: e.sleepMaskDelay,

		MetricInc:     e.metricInc,
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Throttled: func(after time.Duration) error {
			return &ThrottledError{After: after}
		},

		Events: flows.Events{
			Request:  auditEventRecoveryRequest,
			Submit:   auditEventCodeSubmit,
			Change:   auditEventPasswordChange,
			Dispatch: auditEventDispatch,
		},
		Errors: flows.Errors{
			NotReady:        ErrEngineNotReady,
			BadRequest:      ErrBadRequest,
			Unauthorized:    ErrUnauthorized,
			CaptchaRejected: ErrCaptchaRejected,
			SessionNotFound: ErrSessionNotFound,
			Invalid:         ErrRecoveryInvalid,
			Attempts:        ErrRecoveryAttempts,
			PasswordPolicy:  ErrPasswordPolicy,
			DependencyDown:  ErrDependencyDown,
		},
	}
}

func (e *Engine) verifyCaptcha(ctx context.Context, response string) (bool, error) {
	if e.captcha == nil {
		return false, ErrEngineNotReady
	}

	ok, err := e.captcha.Verify(ctx, response)
	if err != nil {
		e.log.Warn().Err(err).Msg("captcha verification failed")
	}
	return ok, err
}

func (e *Engine) sendMessage(ctx context.Context, destination, subject, body string) error {
	err := e.dispatcher.Send(ctx, destination, subject, body)
	if err != nil {
		e.log.Warn().Err(err).Str("subject", subject).Msg("message dispatch failed")
	}
	return err
}

func flowAccount(record AccountRecord) flows.Account {
	return flows.Account{
		AccountID:    record.AccountID,
		Identifier:   record.Identifier,
		Destination:  record.Destination,
		PasswordHash: record.PasswordHash,
	}
}
