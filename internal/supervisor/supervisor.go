package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meridianlabs/agentgateway/internal/retry"
)

// Runnable is a supervised child: it blocks until ctx is cancelled (a
// clean shutdown, returning nil) or it fails (returning a non-nil
// error, triggering a restart).
type Runnable func(ctx context.Context) error

// RestartConfig governs the exponential-backoff restart policy and
// the rolling crash budget that eventually makes the supervisor give
// up on a child.
type RestartConfig struct {
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Factor             float64
	CrashWindow        time.Duration
	MaxCrashesInWindow int
	StateDir           string
}

func (c *RestartConfig) setDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Factor <= 0 {
		c.Factor = 2.0
	}
	if c.CrashWindow <= 0 {
		c.CrashWindow = 5 * time.Minute
	}
	if c.MaxCrashesInWindow <= 0 {
		c.MaxCrashesInWindow = 5
	}
}

// Supervisor restarts its children under RestartConfig's
// exponential-backoff policy, reusing internal/retry's backoff
// helper, and tracks each child's liveness through a shared
// HealthMonitor.
type Supervisor struct {
	mu      sync.Mutex
	health  *HealthMonitor
	restart RestartConfig
	logger  *slog.Logger

	children map[string]*supervisedChild
}

type supervisedChild struct {
	name       string
	run        Runnable
	cancel     context.CancelFunc
	crashTimes []time.Time
}

// New builds a Supervisor sharing health with the given monitor.
func New(health *HealthMonitor, restart RestartConfig, logger *slog.Logger) *Supervisor {
	restart.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		health:   health,
		restart:  restart,
		logger:   logger,
		children: make(map[string]*supervisedChild),
	}
}

// Supervise registers name, runs it, and restarts it under backoff
// whenever it returns a non-nil error, until either ctx is cancelled
// or the child's crash budget is exhausted. It returns immediately;
// the child runs in a background goroutine.
func (s *Supervisor) Supervise(ctx context.Context, name string, run Runnable) {
	childCtx, cancel := context.WithCancel(ctx)
	child := &supervisedChild{name: name, run: run, cancel: cancel}

	s.mu.Lock()
	s.children[name] = child
	s.mu.Unlock()

	s.health.Register(name)
	go s.superviseLoop(childCtx, child)
}

func (s *Supervisor) superviseLoop(ctx context.Context, child *supervisedChild) {
	attempt := 0
	for {
		err := child.run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			s.logger.Info("supervised child exited cleanly", "child", child.name)
			s.health.Unregister(child.name)
			return
		}

		s.health.RecordCrash(child.name, err)
		if s.crashBudgetExceeded(child) {
			s.giveUp(child, err)
			return
		}

		attempt++
		delay := retry.BackoffWithJitter(attempt, s.restart.InitialDelay, s.restart.MaxDelay, s.restart.Factor)
		s.logger.Warn("supervised child crashed, restarting",
			"child", child.name, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		s.health.RecordRestart(child.name)
	}
}

// crashBudgetExceeded reports whether child has crashed more than
// MaxCrashesInWindow times within the trailing CrashWindow.
func (s *Supervisor) crashBudgetExceeded(child *supervisedChild) bool {
	now := time.Now()
	cutoff := now.Add(-s.restart.CrashWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := child.crashTimes[:0]
	for _, t := range child.crashTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	child.crashTimes = kept

	return len(child.crashTimes) > s.restart.MaxCrashesInWindow
}

func (s *Supervisor) giveUp(child *supervisedChild, cause error) {
	s.logger.Error("supervised child exceeded crash budget, giving up",
		"child", child.name, "crashes", len(child.crashTimes), "error", cause)

	if err := WriteGiveUp(s.restart.StateDir, GiveUpRecord{
		Child:   child.name,
		Reason:  cause.Error(),
		Crashes: len(child.crashTimes),
		Window:  s.restart.CrashWindow.String(),
	}); err != nil {
		s.logger.Error("failed to persist give-up record", "child", child.name, "error", err)
	}

	s.mu.Lock()
	delete(s.children, child.name)
	s.mu.Unlock()
}

// Stop cancels and removes a supervised child, preventing further
// restarts.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	child, ok := s.children[name]
	if ok {
		delete(s.children, name)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("supervisor: no such child %q", name)
	}
	child.cancel()
	return nil
}

// StopAll cancels every supervised child.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	children := make([]*supervisedChild, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	s.children = make(map[string]*supervisedChild)
	s.mu.Unlock()

	for _, c := range children {
		c.cancel()
	}
}
