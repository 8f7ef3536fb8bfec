package supervisor

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestHeartbeatKeepsChildHealthy(t *testing.T) {
	m := NewHealthMonitor(HealthConfig{HeartbeatInterval: time.Hour}, nil)
	defer m.Stop()

	m.Register("worker-pool")
	if !m.IsHealthy("worker-pool") {
		t.Fatal("expected freshly registered child to be healthy")
	}
}

func TestRecordCrashMarksUnhealthyAndEmits(t *testing.T) {
	rec := &eventRecorder{}
	m := NewHealthMonitor(HealthConfig{HeartbeatInterval: time.Hour}, rec.record)
	defer m.Stop()

	m.Register("telegram-adapter")
	m.RecordCrash("telegram-adapter", errors.New("panic: nil pointer"))

	if m.IsHealthy("telegram-adapter") {
		t.Fatal("expected child to be unhealthy after a crash")
	}
	history := m.CrashHistory("telegram-adapter")
	if len(history) != 1 || history[0].Reason != "panic: nil pointer" {
		t.Fatalf("unexpected crash history: %+v", history)
	}

	events := rec.snapshot()
	if len(events) != 1 || events[0].Kind != EventCrashed {
		t.Fatalf("expected a single crashed event, got %+v", events)
	}
}

func TestHeartbeatAfterUnhealthyEmitsHealthy(t *testing.T) {
	rec := &eventRecorder{}
	m := NewHealthMonitor(HealthConfig{HeartbeatInterval: time.Hour}, rec.record)
	defer m.Stop()

	m.Register("worker-pool")
	m.RecordCrash("worker-pool", errors.New("boom"))
	m.Heartbeat("worker-pool")

	if !m.IsHealthy("worker-pool") {
		t.Fatal("expected heartbeat to restore healthy state")
	}
	var sawHealthy bool
	for _, ev := range rec.snapshot() {
		if ev.Kind == EventHealthy {
			sawHealthy = true
		}
	}
	if !sawHealthy {
		t.Fatal("expected a healthy event after recovering from crash")
	}
}

func TestOverallHealthIsANDOfChildren(t *testing.T) {
	m := NewHealthMonitor(HealthConfig{HeartbeatInterval: time.Hour}, nil)
	defer m.Stop()

	if m.OverallHealth() {
		t.Fatal("expected overall health false with no children registered")
	}

	m.Register("a")
	m.Register("b")
	if !m.OverallHealth() {
		t.Fatal("expected overall health true with both children healthy")
	}

	m.RecordCrash("b", errors.New("oops"))
	if m.OverallHealth() {
		t.Fatal("expected overall health false once one child is unhealthy")
	}
}

func TestSweepFlagsMissedHeartbeatsUnhealthy(t *testing.T) {
	rec := &eventRecorder{}
	m := NewHealthMonitor(HealthConfig{HeartbeatInterval: 10 * time.Millisecond, MissedThreshold: 1}, rec.record)
	defer m.Stop()

	m.Register("canvas-adapter")

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !m.IsHealthy("canvas-adapter") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected missed-heartbeat sweep to mark the child unhealthy")
}
