package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockUserStore struct {
	mu      sync.Mutex
	byName  map[string]*Identity
	byID    map[string]*Identity
	secrets map[string]string
	err     error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byName:  make(map[string]*Identity),
		byID:    make(map[string]*Identity),
		secrets: make(map[string]string),
	}
}

func (m *mockUserStore) put(identifier, secret string, identity Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := identity
	m.byName[identifier] = &id
	m.byID[identity.ID] = &id
	m.secrets[identifier] = secret
}

func (m *mockUserStore) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockUserStore) FindByCredentials(ctx context.Context, identifier, secret string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	identity, ok := m.byName[identifier]
	if !ok || m.secrets[identifier] != secret {
		return nil, nil
	}
	cp := *identity
	return &cp, nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *identity
	return &cp, nil
}

func newEngineTest(t *testing.T, mutate func(*Config)) (*Engine, *miniredis.Miniredis, *mockUserStore, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Lockout.Threshold = 3
	cfg.Lockout.Window = time.Minute
	cfg.Lockout.Duration = time.Minute
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMockUserStore()
	users.put("alice@example.com", "correct-horse", Identity{
		ID: "u-1", Role: "member", Plan: "premium", Active: true,
	})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return engine, mr, users, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func loginCtx() context.Context {
	ctx := WithClientIP(context.Background(), "203.0.113.9")
	return WithUserAgent(ctx, "test-agent/1.0")
}

func TestLoginIssuesCredentialsAndSession(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	res, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both credentials")
	}
	if res.SessionID == "" || res.CSRFToken == "" {
		t.Fatal("expected a session id and csrf token")
	}
	if res.Identity.ID != "u-1" {
		t.Fatalf("identity = %+v", res.Identity)
	}
	if !res.RefreshExpiresAt.After(res.AccessExpiresAt) {
		t.Fatal("refresh credential should outlive the access credential")
	}

	auth, err := engine.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.Identity.ID != "u-1" || auth.SessionID != res.SessionID {
		t.Fatalf("auth result mismatch: %+v", auth)
	}

	sessions, err := engine.ListSessions(ctx, "u-1")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(sessions))
	}
}

func TestLoginWrongPassword(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()

	_, err := engine.Login(loginCtx(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()

	_, err := engine.Login(loginCtx(), "nobody@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	engine, _, users, done := newEngineTest(t, nil)
	defer done()

	users.put("bob@example.com", "hunter2-hunter2", Identity{
		ID: "u-2", Role: "member", Active: false,
	})

	_, err := engine.Login(loginCtx(), "bob@example.com", "hunter2-hunter2")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestLockoutAfterRepeatedFailuresAndRecovery(t *testing.T) {
	engine, mr, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	for i := 0; i < 3; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}

	// Correct credentials are refused while locked.
	_, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut, got %v", err)
	}
	var ra *RetryAfterError
	if !errors.As(err, &ra) {
		t.Fatalf("expected RetryAfterError, got %T", err)
	}
	if ra.RetryAfter <= 0 || ra.RetryAfter > time.Minute {
		t.Fatalf("retry-after = %v, want (0, 1m]", ra.RetryAfter)
	}

	mr.FastForward(61 * time.Second)

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("login after lockout elapsed: %v", err)
	}
}

func TestSuccessfulLoginClearsFailureCount(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The counter restarted: two more failures stay under the threshold.
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset failure %d: %v", i+1, err)
		}
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("login after sub-threshold failures: %v", err)
	}
}

func TestRefreshIssuesNewAccessWithoutRotation(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	res, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatal("expected a new access credential")
	}
	if res.SessionID != login.SessionID {
		t.Fatal("refresh must stay within the original session")
	}

	if _, err := engine.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("authenticate with refreshed credential: %v", err)
	}

	// The refresh credential is reusable until it expires or is revoked.
	if _, err := engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("second refresh with the same credential: %v", err)
	}
}

func TestRefreshRejectedAfterSessionRevoked(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	revoked, err := engine.RevokeSession(ctx, "u-1", login.SessionID)
	if err != nil || !revoked {
		t.Fatalf("revoke session: revoked=%v err=%v", revoked, err)
	}

	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after session revocation, got %v", err)
	}
}

func TestLogoutBlacklistsBothCredentials(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := engine.Logout(ctx, login.RefreshToken, login.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// The still-unexpired access credential must be rejected immediately.
	if _, err := engine.Authenticate(ctx, login.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for revoked access credential, got %v", err)
	}

	// The refresh credential is blacklisted as well.
	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for revoked refresh credential, got %v", err)
	}
}

func TestLogoutAllSparesCurrentSession(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	var current *LoginResult
	for i := 0; i < 3; i++ {
		res, err := engine.Login(ctx, "alice@example.com", "correct-horse")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		current = res
	}

	count, err := engine.LogoutAll(ctx, "u-1", current.SessionID)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if count != 2 {
		t.Fatalf("revoked = %d, want 2", count)
	}

	if _, err := engine.Refresh(ctx, current.RefreshToken); err != nil {
		t.Fatalf("current session should survive logout-all: %v", err)
	}
}

func TestRevokeSessionEnforcesOwnership(t *testing.T) {
	engine, _, users, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	users.put("eve@example.com", "evil-password", Identity{
		ID: "u-666", Role: "member", Active: true,
	})

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := engine.RevokeSession(ctx, "u-666", login.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ownership rejection, got %v", err)
	}

	// The session survives the failed hijack.
	if _, err := engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}

func TestValidateCSRF(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := engine.ValidateCSRF(ctx, login.SessionID, login.CSRFToken, login.CSRFToken); err != nil {
		t.Fatalf("valid csrf pair rejected: %v", err)
	}

	err = engine.ValidateCSRF(ctx, login.SessionID, "forged-token", login.CSRFToken)
	if !errors.Is(err, ErrCSRFRejected) {
		t.Fatalf("expected ErrCSRFRejected, got %v", err)
	}

	err = engine.ValidateCSRF(ctx, login.SessionID, "", "")
	if !errors.Is(err, ErrCSRFRejected) {
		t.Fatalf("expected ErrCSRFRejected for missing values, got %v", err)
	}
}

func TestAuthenticateFailsClosedOnStoreOutage(t *testing.T) {
	engine, mr, _, done := newEngineTest(t, func(cfg *Config) {
		cfg.Session.EnableFallback = false
		cfg.StoreTimeout = 200 * time.Millisecond
	})
	defer done()
	ctx := loginCtx()

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	mr.Close()

	if _, err := engine.Authenticate(ctx, login.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected fail-closed ErrUnauthenticated, got %v", err)
	}
}

func TestAuthenticateCollapsesFailureDetail(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	cases := []string{
		"",
		"garbage",
		"aaaa.bbbb.cccc",
	}
	for _, tokenStr := range cases {
		if _, err := engine.Authenticate(ctx, tokenStr); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("token %q: expected ErrUnauthenticated, got %v", tokenStr, err)
		}
	}
}

func TestRefreshTokenNotAcceptedAsAccess(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := engine.Authenticate(ctx, login.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected class rejection, got %v", err)
	}
	if _, err := engine.Refresh(ctx, login.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected class rejection, got %v", err)
	}
}

func TestSessionCapacityEnforcedAcrossLogins(t *testing.T) {
	engine, _, _, done := newEngineTest(t, func(cfg *Config) {
		cfg.Session.MaxSessionsPerUser = 2
	})
	defer done()
	ctx := loginCtx()

	first, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		time.Sleep(1100 * time.Millisecond)
	}

	sessions, err := engine.ListSessions(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want capacity 2", len(sessions))
	}

	// The evicted (oldest) session's refresh credential is now useless.
	if _, err := engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected evicted session refresh to fail, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSessionEvicted] != 1 {
		t.Fatalf("evicted count = %d, want 1", snap.Counters[MetricSessionEvicted])
	}
}

func TestMetricsSnapshotCounts(t *testing.T) {
	engine, _, _, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected failure: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success count = %d, want 1", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure count = %d, want 1", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("session created count = %d, want 1", snap.Counters[MetricSessionCreated])
	}
}

func TestLoginServedByFallbackCountsDegradation(t *testing.T) {
	engine, mr, _, done := newEngineTest(t, func(cfg *Config) {
		cfg.Session.EnableFallback = true
	})
	defer done()
	ctx := loginCtx()

	mr.Close()

	res, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("degraded login should succeed via fallback: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected a fallback session")
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSessionFallback] == 0 {
		t.Fatal("session served by fallback but fallback count = 0")
	}
}

func TestUserStoreOutageDoesNotTriggerLockout(t *testing.T) {
	engine, _, users, done := newEngineTest(t, nil)
	defer done()
	ctx := loginCtx()

	users.failWith(errors.New("connection refused"))
	for i := 0; i < 5; i++ {
		_, err := engine.Login(ctx, "alice@example.com", "correct-horse")
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("attempt %d: expected ErrStoreUnavailable, got %v", i, err)
		}
	}

	// Outage attempts must not count as credential failures.
	users.failWith(nil)
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("login after user store recovery: %v", err)
	}
}
