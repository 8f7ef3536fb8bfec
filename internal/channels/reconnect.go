package channels

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meridianlabs/agentgateway/internal/retry"
)

// ReconnectConfig controls how a Reconnector backs off between attempts.
type ReconnectConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		Jitter:       true,
	}
}

// Reconnector retries a connect operation with exponential backoff,
// recording each attempt against a BaseHealthAdapter when one is set.
type Reconnector struct {
	Config ReconnectConfig
	Logger *slog.Logger
	Health *BaseHealthAdapter
}

// Run calls connect until it succeeds, ctx is done, or MaxAttempts is
// exhausted, returning the last error.
func (r *Reconnector) Run(ctx context.Context, connect func(context.Context) error) error {
	if connect == nil {
		return errors.New("reconnector: connect func is nil")
	}
	cfg := r.Config
	defaults := DefaultReconnectConfig()
	if cfg.MaxAttempts == 0 {
		cfg = defaults
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.Factor <= 0 {
		cfg.Factor = defaults.Factor
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if retry.IsPermanent(err) {
			return err
		}

		attempt++
		if r.Health != nil {
			r.Health.RecordReconnectAttempt()
			r.Health.SetStatus(false, err.Error())
		}
		if r.Logger != nil {
			r.Logger.Warn("channel reconnect attempt failed", "attempt", attempt, "error", err)
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return err
		}

		delay := retry.Backoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.Factor)
		if cfg.Jitter {
			delay = retry.BackoffWithJitter(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.Factor)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
