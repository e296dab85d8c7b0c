package credkit

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[string]AccountRecord

	lookupCalls int
	updateCalls int
}

func newMockAccounts(records ...AccountRecord) *mockAccounts {
	m := &mockAccounts{accounts: make(map[string]AccountRecord)}
	for _, r := range records {
		m.accounts[r.Identifier] = r
	}
	return m
}

func (m *mockAccounts) GetByIdentifier(_ context.Context, identifier string) (AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupCalls++

	record, ok := m.accounts[identifier]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return record, nil
}

func (m *mockAccounts) GetByID(_ context.Context, accountID string) (AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range m.accounts {
		if record.AccountID == accountID {
			return record, nil
		}
	}
	return AccountRecord{}, ErrAccountNotFound
}

func (m *mockAccounts) UpdatePasswordHash(_ context.Context, accountID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	for identifier, record := range m.accounts {
		if record.AccountID == accountID {
			record.PasswordHash = newHash
			m.accounts[identifier] = record
			return nil
		}
	}
	return ErrAccountNotFound
}

func (m *mockAccounts) hashFor(identifier string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[identifier].PasswordHash
}

type mockCaptcha struct {
	accept bool
	calls  int
}

func (m *mockCaptcha) Verify(context.Context, string) (bool, error) {
	m.calls++
	return m.accept, nil
}

type mockDispatcher struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (m *mockDispatcher) Send(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("relay down")
	}
	m.messages = append(m.messages, body)
	return nil
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

var codePattern = regexp.MustCompile(`[0-9A-F]{6}`)

func (m *mockDispatcher) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) == 0 {
		t.Fatal("no message dispatched")
	}
	code := codePattern.FindString(m.messages[len(m.messages)-1])
	if code == "" {
		t.Fatalf("no code in message %q", m.messages[len(m.messages)-1])
	}
	return code
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	// Headroom over Code.MaxAttempts so the attempt ceiling, not the
	// submission window, is what trips first.
	cfg.RateLimit.CodeLimit = 10
	return cfg
}

func newTestEngine(t *testing.T, accounts *mockAccounts, captcha *mockCaptcha, dispatcher *mockDispatcher) *Engine {
	t.Helper()
	engine, _ := newTestEngineWithConfig(t, testConfig(), accounts, captcha, dispatcher)
	return engine
}

func newTestEngineWithConfig(t *testing.T, cfg Config, accounts *mockAccounts, captcha *mockCaptcha, dispatcher *mockDispatcher) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccounts(accounts).
		WithCaptcha(captcha).
		WithDispatcher(dispatcher).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

func testAccount() AccountRecord {
	return AccountRecord{
		AccountID:    "acct-1",
		Identifier:   "user@example.com",
		Destination:  "user@example.com",
		PasswordHash: "$argon2id$old",
	}
}

func TestFullRecoveryScenario(t *testing.T) {
	accounts := newMockAccounts(testAccount())
	dispatcher := &mockDispatcher{}
	engine := newTestEngine(t, accounts, &mockCaptcha{accept: true}, dispatcher)
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if start.State != StateAnonymous || start.CSRFToken == "" {
		t.Fatalf("unexpected start view: %+v", start)
	}

	requested, err := engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	})
	if err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	if requested.State != StateRequested {
		t.Fatalf("State = %v, want requested", requested.State)
	}

	verified, err := engine.SubmitCode(ctx, start.SessionID, CodeSubmission{
		Code:     dispatcher.lastCode(t),
		CSRFBody: start.CSRFToken,
	})
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	if verified.State != StateCodeVerified {
		t.Fatalf("State = %v, want code_verified", verified.State)
	}
	if verified.SessionID == start.SessionID {
		t.Fatal("session ID not rotated on verification")
	}
	if verified.CSRFToken == "" || verified.CSRFToken == start.CSRFToken {
		t.Fatal("anti-forgery token not rotated on verification")
	}

	err = engine.ChangePassword(ctx, verified.SessionID, PasswordChange{
		NewPassword:     "brand new passphrase",
		ConfirmPassword: "brand new passphrase",
		CSRFHeader:      verified.CSRFToken,
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if accounts.hashFor("user@example.com") == "$argon2id$old" {
		t.Fatal("password hash not updated")
	}
	if dispatcher.count() != 2 {
		t.Fatalf("messages = %d, want code plus confirmation", dispatcher.count())
	}

	// The session is gone; nothing in the flow works against it anymore.
	if _, err := engine.Session(ctx, verified.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRecoveryRequested] != 1 ||
		snap.Counters[MetricCodeVerified] != 1 ||
		snap.Counters[MetricPasswordChanged] != 1 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}
}

func TestRequestUnknownIdentifierIsMasked(t *testing.T) {
	accounts := newMockAccounts(testAccount())
	dispatcher := &mockDispatcher{}
	engine := newTestEngine(t, accounts, &mockCaptcha{accept: true}, dispatcher)
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	view, err := engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
		Identifier:      "nobody@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	})
	if err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	// Indistinguishable from a hit: same state, no error, but nothing sent.
	if view.State != StateRequested {
		t.Fatalf("State = %v, want requested", view.State)
	}
	if dispatcher.count() != 0 {
		t.Fatal("dispatcher called for unknown identifier")
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRecoveryMasked] != 1 || snap.Counters[MetricRecoveryRequested] != 0 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}
}

func TestRequestGates(t *testing.T) {
	t.Run("captcha rejected", func(t *testing.T) {
		engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: false}, &mockDispatcher{})
		ctx := context.Background()

		start, err := engine.StartSession(ctx)
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}

		_, err = engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
			Identifier:      "user@example.com",
			CSRFHeader:      start.CSRFToken,
			CaptchaResponse: "whatever",
		})
		if !errors.Is(err, ErrCaptchaRejected) {
			t.Fatalf("got %v, want ErrCaptchaRejected", err)
		}
	})

	t.Run("csrf mismatch", func(t *testing.T) {
		engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})
		ctx := context.Background()

		start, err := engine.StartSession(ctx)
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}

		_, err = engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
			Identifier:      "user@example.com",
			CSRFHeader:      "forged-token",
			CaptchaResponse: "captcha-ok",
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("empty identifier", func(t *testing.T) {
		engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})
		ctx := context.Background()

		start, err := engine.StartSession(ctx)
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}

		_, err = engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
			Identifier:      "   ",
			CSRFHeader:      start.CSRFToken,
			CaptchaResponse: "captcha-ok",
		})
		if !errors.Is(err, ErrBadRequest) {
			t.Fatalf("got %v, want ErrBadRequest", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})

		_, err := engine.RequestRecovery(context.Background(), "no-such-session", RecoveryRequest{
			Identifier: "user@example.com",
		})
		if !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("got %v, want ErrSessionNotFound", err)
		}
	})
}

func TestRequestRateLimited(t *testing.T) {
	engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// Gate failures charge the budget and never reach the success reset.
	forged := RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      "forged-token",
		CaptchaResponse: "captcha-ok",
	}
	for i := 0; i < 5; i++ {
		if _, err := engine.RequestRecovery(ctx, start.SessionID, forged); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("request %d: got %v, want ErrUnauthorized", i, err)
		}
	}

	_, err = engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	})
	if !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("got %v, want ErrRecoveryRateLimited", err)
	}

	after, ok := RetryAfter(err)
	if !ok || after <= 0 || after > 15*time.Minute {
		t.Fatalf("RetryAfter = %v ok=%v, want hint within window", after, ok)
	}
}

func TestSuccessfulRequestsDoNotExhaustBudget(t *testing.T) {
	engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// Twice the window budget; each completed request resets its counters.
	req := RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	}
	for i := 0; i < 10; i++ {
		if _, err := engine.RequestRecovery(ctx, start.SessionID, req); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	// The masked path resets too; otherwise limiter state would reveal
	// whether the identifier exists.
	masked := RecoveryRequest{
		Identifier:      "nobody@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	}
	for i := 0; i < 10; i++ {
		if _, err := engine.RequestRecovery(ctx, start.SessionID, masked); err != nil {
			t.Fatalf("masked request %d: %v", i, err)
		}
	}
}

func TestSubmitWrongCodeUntilCeiling(t *testing.T) {
	dispatcher := &mockDispatcher{}
	engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, dispatcher)
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	}); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	// MaxAttempts is 5; the fifth wrong submission destroys the code.
	sub := CodeSubmission{Code: "000000", CSRFHeader: start.CSRFToken}
	for i := 0; i < 4; i++ {
		if _, err := engine.SubmitCode(ctx, start.SessionID, sub); !errors.Is(err, ErrRecoveryInvalid) {
			t.Fatalf("attempt %d: got %v, want ErrRecoveryInvalid", i, err)
		}
	}
	if _, err := engine.SubmitCode(ctx, start.SessionID, sub); !errors.Is(err, ErrRecoveryAttempts) {
		t.Fatalf("got %v, want ErrRecoveryAttempts", err)
	}

	// Even the right code is dead now.
	if _, err := engine.SubmitCode(ctx, start.SessionID, CodeSubmission{
		Code:       dispatcher.lastCode(t),
		CSRFHeader: start.CSRFToken,
	}); !errors.Is(err, ErrRecoveryInvalid) {
		t.Fatalf("got %v, want ErrRecoveryInvalid after ceiling", err)
	}
}

func TestSubmitWithoutPendingCode(t *testing.T) {
	engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	_, err = engine.SubmitCode(ctx, start.SessionID, CodeSubmission{
		Code:       "A1B2C3",
		CSRFHeader: start.CSRFToken,
	})
	if !errors.Is(err, ErrRecoveryInvalid) {
		t.Fatalf("got %v, want ErrRecoveryInvalid", err)
	}
}

func TestChangePasswordGates(t *testing.T) {
	t.Run("fresh session is unauthorized", func(t *testing.T) {
		engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})
		ctx := context.Background()

		start, err := engine.StartSession(ctx)
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}

		err = engine.ChangePassword(ctx, start.SessionID, PasswordChange{
			NewPassword:     "brand new passphrase",
			ConfirmPassword: "brand new passphrase",
			CSRFHeader:      start.CSRFToken,
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		engine, view := verifiedSession(t)

		err := engine.ChangePassword(context.Background(), view.SessionID, PasswordChange{
			NewPassword:     "brand new passphrase",
			ConfirmPassword: "different passphrase!",
			CSRFHeader:      view.CSRFToken,
		})
		if !errors.Is(err, ErrBadRequest) {
			t.Fatalf("got %v, want ErrBadRequest", err)
		}
	})

	t.Run("policy violation", func(t *testing.T) {
		engine, view := verifiedSession(t)

		err := engine.ChangePassword(context.Background(), view.SessionID, PasswordChange{
			NewPassword:     "short",
			ConfirmPassword: "short",
			CSRFHeader:      view.CSRFToken,
		})
		if !errors.Is(err, ErrPasswordPolicy) {
			t.Fatalf("got %v, want ErrPasswordPolicy", err)
		}
	})

	t.Run("csrf mismatch", func(t *testing.T) {
		engine, view := verifiedSession(t)

		err := engine.ChangePassword(context.Background(), view.SessionID, PasswordChange{
			NewPassword:     "brand new passphrase",
			ConfirmPassword: "brand new passphrase",
			CSRFHeader:      "forged-token",
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})
}

// verifiedSession walks a session through request and code verification.
func verifiedSession(t *testing.T) (*Engine, SessionView) {
	t.Helper()

	dispatcher := &mockDispatcher{}
	engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, dispatcher)
	return engine, verifySession(t, engine, dispatcher)
}

// verifySession runs request and code verification against an existing
// engine and returns the code-verified view.
func verifySession(t *testing.T, engine *Engine, dispatcher *mockDispatcher) SessionView {
	t.Helper()
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	}); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	view, err := engine.SubmitCode(ctx, start.SessionID, CodeSubmission{
		Code:       dispatcher.lastCode(t),
		CSRFHeader: start.CSRFToken,
	})
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	return view
}

func TestChangePasswordGateFailuresDoNotChargeLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.CodeLimit = 2
	dispatcher := &mockDispatcher{}
	engine, _ := newTestEngineWithConfig(t, cfg, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, dispatcher)
	view := verifySession(t, engine, dispatcher)
	ctx := context.Background()

	// Confirmation and anti-forgery checks run before the limiter, so
	// failing them repeatedly leaves the change budget untouched.
	for i := 0; i < 5; i++ {
		err := engine.ChangePassword(ctx, view.SessionID, PasswordChange{
			NewPassword:     "brand new passphrase",
			ConfirmPassword: "different passphrase!",
			CSRFHeader:      view.CSRFToken,
		})
		if !errors.Is(err, ErrBadRequest) {
			t.Fatalf("mismatch %d: got %v, want ErrBadRequest", i, err)
		}

		err = engine.ChangePassword(ctx, view.SessionID, PasswordChange{
			NewPassword:     "brand new passphrase",
			ConfirmPassword: "brand new passphrase",
			CSRFHeader:      "forged-token",
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("forged %d: got %v, want ErrUnauthorized", i, err)
		}
	}

	if err := engine.ChangePassword(ctx, view.SessionID, PasswordChange{
		NewPassword:     "brand new passphrase",
		ConfirmPassword: "brand new passphrase",
		CSRFHeader:      view.CSRFToken,
	}); err != nil {
		t.Fatalf("ChangePassword after gate failures: %v", err)
	}
}

func TestChangePasswordRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.CodeLimit = 2
	dispatcher := &mockDispatcher{}
	engine, _ := newTestEngineWithConfig(t, cfg, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, dispatcher)
	view := verifySession(t, engine, dispatcher)
	ctx := context.Background()

	// Policy failures sit past the limiter and charge the account's budget.
	short := PasswordChange{
		NewPassword:     "short",
		ConfirmPassword: "short",
		CSRFHeader:      view.CSRFToken,
	}
	for i := 0; i < 2; i++ {
		if err := engine.ChangePassword(ctx, view.SessionID, short); !errors.Is(err, ErrPasswordPolicy) {
			t.Fatalf("attempt %d: got %v, want ErrPasswordPolicy", i, err)
		}
	}

	if err := engine.ChangePassword(ctx, view.SessionID, short); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("got %v, want ErrRecoveryRateLimited", err)
	}
}

func TestSubmitSuccessClearsRetiredSessionCounters(t *testing.T) {
	dispatcher := &mockDispatcher{}
	engine, mr := newTestEngineWithConfig(t, testConfig(), newMockAccounts(testAccount()), &mockCaptcha{accept: true}, dispatcher)
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	}); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	// Charge the code limiter under the pre-rotation session ID.
	wrong := CodeSubmission{Code: "000000", CSRFHeader: start.CSRFToken}
	for i := 0; i < 2; i++ {
		if _, err := engine.SubmitCode(ctx, start.SessionID, wrong); !errors.Is(err, ErrRecoveryInvalid) {
			t.Fatalf("attempt %d: got %v, want ErrRecoveryInvalid", i, err)
		}
	}

	if _, err := engine.SubmitCode(ctx, start.SessionID, CodeSubmission{
		Code:       dispatcher.lastCode(t),
		CSRFHeader: start.CSRFToken,
	}); err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}

	// The rotated-away ID must leave nothing behind: no session record, no
	// pending code, no limiter buckets.
	for _, key := range mr.Keys() {
		if strings.Contains(key, start.SessionID) {
			t.Fatalf("stale key %q for the retired session ID", key)
		}
	}
}

func TestDispatchFailureDoesNotFailRequest(t *testing.T) {
	dispatcher := &mockDispatcher{fail: true}
	engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, dispatcher)
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	view, err := engine.RequestRecovery(ctx, start.SessionID, RecoveryRequest{
		Identifier:      "user@example.com",
		CSRFHeader:      start.CSRFToken,
		CaptchaResponse: "captcha-ok",
	})
	if err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	if view.State != StateRequested {
		t.Fatalf("State = %v, want requested", view.State)
	}

	if engine.MetricsSnapshot().Counters[MetricDispatchFailure] != 1 {
		t.Fatal("dispatch failure not counted")
	}
}

func TestDestroySession(t *testing.T) {
	engine := newTestEngine(t, newMockAccounts(testAccount()), &mockCaptcha{accept: true}, &mockDispatcher{})
	ctx := context.Background()

	start, err := engine.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := engine.DestroySession(ctx, start.SessionID); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	if _, err := engine.Session(ctx, start.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}
}
