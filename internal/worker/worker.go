package worker

import (
	"context"
	"log/slog"
)

// NewInlineBackend wraps run as a backend that executes every task in
// the caller's own goroutine. No isolation; useful for tests and for a
// deployment that has decided the isolation cost isn't worth paying.
func NewInlineBackend(run func(ctx context.Context, task Task) (Result, error)) backend {
	return newInlineBackend(run)
}

// NewSubprocessBackend returns the default, isolation-bearing backend:
// it re-execs the running binary with WorkerModeEnv set, and drives it
// over stdio pipes one task at a time.
func NewSubprocessBackend(logger *slog.Logger) backend {
	return newSubprocessBackend(logger)
}
