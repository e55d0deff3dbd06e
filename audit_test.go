package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newAuditedEngine(t *testing.T, sink AuditSink, mutate func(*Config)) (*Engine, *miniredis.Miniredis, func()) {
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
	cfg.Audit.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMockUserStore()
	users.put("alice@example.com", "correct-horse", Identity{
		ID: "u-1", Role: "member", Active: true,
	})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return engine, mr, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func waitForEvent(t *testing.T, events <-chan AuditEvent, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func TestLoginEmitsAuditTrail(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, done := newAuditedEngine(t, sink, nil)
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	res, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	ev := waitForEvent(t, sink.Events(), "login_success")
	if !ev.Success || ev.UserID != "u-1" || ev.SessionID != res.SessionID {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.IP != "203.0.113.9" {
		t.Fatalf("event ip = %q", ev.IP)
	}
}

func TestFailedLoginAuditKeepsRealReason(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, done := newAuditedEngine(t, sink, nil)
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	ev := waitForEvent(t, sink.Events(), "login_failure")
	if ev.Success {
		t.Fatal("failure event marked success")
	}
	if ev.Error != "invalid_credentials" {
		t.Fatalf("event error = %q, want invalid_credentials", ev.Error)
	}
}

func TestAuthRejectionAuditedWithoutExternalDetail(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, done := newAuditedEngine(t, sink, nil)
	defer done()

	ctx := context.Background()
	if _, err := engine.Authenticate(ctx, "garbage-token"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	ev := waitForEvent(t, sink.Events(), "auth_rejected")
	if ev.Success {
		t.Fatal("rejection event marked success")
	}
	if ev.Metadata["reason"] != "invalid" {
		t.Fatalf("metadata reason = %q, want invalid", ev.Metadata["reason"])
	}
}

func TestCapacityEvictionAudited(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, done := newAuditedEngine(t, sink, func(cfg *Config) {
		cfg.Session.MaxSessionsPerUser = 1
	})
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}

	ev := waitForEvent(t, sink.Events(), "session_evicted")
	if ev.UserID != "u-1" {
		t.Fatalf("event user = %q, want u-1", ev.UserID)
	}
	if ev.Metadata["evicted"] != "1" {
		t.Fatalf("metadata evicted = %q, want 1", ev.Metadata["evicted"])
	}
}

func TestStoreDegradationAudited(t *testing.T) {
	sink := NewChannelSink(64)
	engine, mr, done := newAuditedEngine(t, sink, func(cfg *Config) {
		cfg.Session.EnableFallback = true
	})
	defer done()

	mr.Close()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("degraded login should succeed via fallback: %v", err)
	}

	ev := waitForEvent(t, sink.Events(), "store_degraded")
	if ev.Success {
		t.Fatal("degradation event marked success")
	}
	if ev.Error != "store_unavailable" {
		t.Fatalf("event error = %q, want store_unavailable", ev.Error)
	}
	if ev.Metadata["op"] != "create" {
		t.Fatalf("metadata op = %q, want create", ev.Metadata["op"])
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, blockingSink{})
	defer d.Close()

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer and blocking sink")
	}
}

type blockingSink struct{}

func (blockingSink) Emit(ctx context.Context, event AuditEvent) {
	time.Sleep(100 * time.Millisecond)
}
