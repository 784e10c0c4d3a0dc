package authkit

import (
	"context"
	"testing"
	"time"
)

func collectAuditEvents(t *testing.T, sink *ChannelSink, engine *Engine, n int) []AuditEvent {
	t.Helper()
	engine.Close() // flush the dispatcher

	events := make([]AuditEvent, 0, n)
	for len(events) < n {
		select {
		case e := <-sink.Events():
			events = append(events, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestAuditTrailForLockout(t *testing.T) {
	store := newMockStore()
	cfg := testConfig()
	sink := NewChannelSink(32)

	engine, err := New().WithConfig(cfg).WithStore(store).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	registerTestUser(t, engine, "bob@example.com", "Secret123", RoleUser)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	for i := 0; i < cfg.Lockout.Threshold; i++ {
		engine.Login(ctx, "bob@example.com", "wrong-pass")
	}
	engine.Login(ctx, "bob@example.com", "Secret123")

	// register + 4 failures + lockout trigger + locked rejection.
	events := collectAuditEvents(t, sink, engine, cfg.Lockout.Threshold+2)

	if events[0].EventType != "register_success" {
		t.Fatalf("expected register first, got %q", events[0].EventType)
	}
	for i := 1; i < cfg.Lockout.Threshold; i++ {
		e := events[i]
		if e.EventType != "login_failure" || e.Success || e.Error != "invalid_credentials" {
			t.Fatalf("event %d: unexpected %+v", i, e)
		}
		if e.IP != "203.0.113.7" {
			t.Fatalf("event %d: expected client IP, got %q", i, e.IP)
		}
	}

	trigger := events[cfg.Lockout.Threshold]
	if trigger.EventType != "lockout_triggered" || trigger.Error != "account_locked" {
		t.Fatalf("expected lockout trigger, got %+v", trigger)
	}
	if trigger.Metadata["attempts"] != "5" || trigger.Metadata["lock_until"] == "" {
		t.Fatalf("expected lockout metadata, got %v", trigger.Metadata)
	}

	locked := events[cfg.Lockout.Threshold+1]
	if locked.EventType != "login_locked" || locked.Error != "account_locked" {
		t.Fatalf("expected locked rejection, got %+v", locked)
	}
}

func TestAuditDisabled(t *testing.T) {
	store := newMockStore()
	cfg := testConfig()
	cfg.Audit.Enabled = false
	engine := newTestEngine(t, cfg, store)

	// No dispatcher; operations still work and nothing is counted dropped.
	registerTestUser(t, engine, "alice@example.com", "Secret123", RoleUser)
	login(t, engine, "alice@example.com", "Secret123")
	if engine.AuditDropped() != 0 {
		t.Fatal("expected zero drops with audit disabled")
	}
}
