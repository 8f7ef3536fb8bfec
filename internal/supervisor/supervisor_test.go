package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSuperviseRestartsOnFailure(t *testing.T) {
	health := NewHealthMonitor(HealthConfig{HeartbeatInterval: time.Hour}, nil)
	defer health.Stop()

	sup := New(health, RestartConfig{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil)

	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Supervise(ctx, "flaky", func(ctx context.Context) error {
		n := atomic.AddInt32(&runs, 1)
		if n < 3 {
			return errors.New("transient failure")
		}
		<-ctx.Done()
		return nil
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&runs) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&runs); got < 3 {
		t.Fatalf("expected at least 3 runs after restarts, got %d", got)
	}
}

func TestSuperviseGivesUpAfterCrashBudgetExceeded(t *testing.T) {
	health := NewHealthMonitor(HealthConfig{HeartbeatInterval: time.Hour}, nil)
	defer health.Stop()

	stateDir := t.TempDir()
	sup := New(health, RestartConfig{
		InitialDelay:       time.Millisecond,
		MaxDelay:           2 * time.Millisecond,
		CrashWindow:        time.Hour,
		MaxCrashesInWindow: 2,
		StateDir:           stateDir,
	}, nil)

	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Supervise(ctx, "always-fails", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("keeps dying")
	})

	deadline := time.Now().Add(time.Second)
	var record *GiveUpRecord
	for time.Now().Before(deadline) {
		rec, err := ReadGiveUp(stateDir)
		if err != nil {
			t.Fatal(err)
		}
		if rec != nil {
			record = rec
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if record == nil {
		t.Fatal("expected a give-up record once the crash budget was exceeded")
	}
	if record.Child != "always-fails" {
		t.Fatalf("unexpected child name in give-up record: %q", record.Child)
	}
}

func TestStopCancelsChildAndPreventsFurtherRestarts(t *testing.T) {
	health := NewHealthMonitor(HealthConfig{HeartbeatInterval: time.Hour}, nil)
	defer health.Stop()

	sup := New(health, RestartConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	started := make(chan struct{}, 1)
	ctx := context.Background()
	sup.Supervise(ctx, "long-runner", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil
	})

	<-started
	if err := sup.Stop("long-runner"); err != nil {
		t.Fatal(err)
	}
	if err := sup.Stop("long-runner"); err == nil {
		t.Fatal("expected an error stopping an already-stopped child")
	}
}

func TestGiveUpRecordRoundTrips(t *testing.T) {
	dir := t.TempDir()
	record := GiveUpRecord{Child: "c", Reason: "r", Crashes: 4, Window: "1h0m0s"}
	if err := WriteGiveUp(dir, record); err != nil {
		t.Fatal(err)
	}
	got, err := ConsumeGiveUp(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Child != "c" || got.Crashes != 4 {
		t.Fatalf("unexpected round-tripped record: %+v", got)
	}
	if again, err := ReadGiveUp(dir); err != nil || again != nil {
		t.Fatalf("expected record to be consumed (deleted), got %+v err=%v", again, err)
	}
}
