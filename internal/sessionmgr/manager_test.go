package sessionmgr

import (
	"testing"
	"time"
)

func TestGetOrCreateReturnsSameSessionForSameConversation(t *testing.T) {
	m := New(Config{}, nil)
	defer m.Close()

	a := m.GetOrCreate("telegram", "user-1", "")
	b := m.GetOrCreate("telegram", "user-1", "")
	if a.ID() != b.ID() {
		t.Fatalf("expected the same session for repeated lookups, got %s and %s", a.ID(), b.ID())
	}
}

func TestGetOrCreateDistinguishesGroupConversations(t *testing.T) {
	m := New(Config{}, nil)
	defer m.Close()

	dm := m.GetOrCreate("telegram", "user-1", "")
	group := m.GetOrCreate("telegram", "user-1", "group-9")
	if dm.ID() == group.ID() {
		t.Fatal("expected distinct sessions for a DM and a group conversation with the same user")
	}
}

func TestGetOrCreateStartsFreshAfterTermination(t *testing.T) {
	m := New(Config{}, nil)
	defer m.Close()

	first := m.GetOrCreate("telegram", "user-1", "")
	_ = first.Activate()
	if err := m.End(first.ID()); err != nil {
		t.Fatal(err)
	}

	second := m.GetOrCreate("telegram", "user-1", "")
	if second.ID() == first.ID() {
		t.Fatal("expected a new session after the prior one ended")
	}
}

func TestListReturnsSummaries(t *testing.T) {
	m := New(Config{}, nil)
	defer m.Close()

	m.GetOrCreate("telegram", "user-1", "")
	m.GetOrCreate("slack", "user-2", "")

	summaries := m.List()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	m := New(Config{IdleTTL: 10 * time.Millisecond, SweepInterval: 5 * time.Millisecond}, nil)
	defer m.Close()

	s := m.GetOrCreate("telegram", "user-1", "")
	_ = s.Activate()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, ok := m.Get(s.ID()); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected idle session to be evicted within the deadline")
}

func TestTouchRefreshesLastActive(t *testing.T) {
	m := New(Config{}, nil)
	defer m.Close()

	s := m.GetOrCreate("telegram", "user-1", "")
	before := s.LastActiveAt()
	time.Sleep(time.Millisecond)
	if err := m.Touch(s.ID()); err != nil {
		t.Fatal(err)
	}
	if !s.LastActiveAt().After(before) {
		t.Fatal("expected LastActiveAt to advance after Touch")
	}
}

func TestTouchUnknownSessionErrors(t *testing.T) {
	m := New(Config{}, nil)
	defer m.Close()

	if err := m.Touch("does-not-exist"); err == nil {
		t.Fatal("expected an error touching an unknown session id")
	}
}

func TestContextKeyIncludesGroupOnlyWhenPresent(t *testing.T) {
	if got := ContextKey("telegram", "u1", ""); got != "telegram:u1" {
		t.Fatalf("unexpected dm key: %q", got)
	}
	if got := ContextKey("telegram", "u1", "g1"); got != "telegram:u1:g1" {
		t.Fatalf("unexpected group key: %q", got)
	}
}
