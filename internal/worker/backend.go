package worker

import (
	"context"
	"fmt"
)

// spawnedWorker is a single reusable execution unit the pool checks
// out, dispatches one task to at a time, and checks back in.
type spawnedWorker interface {
	// execute runs one task to completion, streaming progress through
	// onProgress as it arrives.
	execute(ctx context.Context, task Task, onProgress func(stage, text string, percent float64)) (Result, error)
	// alive reports whether the worker is still usable; a dead worker
	// is closed and dropped rather than returned to the idle pool.
	alive() bool
	close() error
}

// backend creates spawnedWorkers. Swapping the backend changes the
// isolation strategy without touching Pool's scheduling logic.
type backend interface {
	spawn(ctx context.Context) (spawnedWorker, error)
}

// inlineBackend runs a task in the calling goroutine via an injected
// runner, with no subprocess and therefore no crash isolation. It is
// the zero-configuration fallback: always available, useful for tests
// and for a deployment that has decided the isolation cost isn't worth
// paying.
type inlineBackend struct {
	run func(ctx context.Context, task Task) (Result, error)
}

func newInlineBackend(run func(ctx context.Context, task Task) (Result, error)) *inlineBackend {
	return &inlineBackend{run: run}
}

func (b *inlineBackend) spawn(ctx context.Context) (spawnedWorker, error) {
	return &inlineWorker{run: b.run}, nil
}

type inlineWorker struct {
	run func(ctx context.Context, task Task) (Result, error)
}

func (w *inlineWorker) execute(ctx context.Context, task Task, onProgress func(stage, text string, percent float64)) (Result, error) {
	if w.run == nil {
		return Result{}, fmt.Errorf("inline backend has no runner configured")
	}
	return w.run(ctx, task)
}

func (w *inlineWorker) alive() bool  { return true }
func (w *inlineWorker) close() error { return nil }
