package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoolExecuteRunsTaskThroughInlineBackend(t *testing.T) {
	b := newInlineBackend(func(ctx context.Context, task Task) (Result, error) {
		return outputResult("ran " + task.Tool), nil
	})
	p := NewPool(Config{MaxPoolSize: 2}, b, nil)

	res, err := p.Execute(context.Background(), Task{ID: "t1", Tool: "bash"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "ran bash" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
	stats := p.Stats()
	if stats.TotalTasks != 1 || stats.CompletedTasks != 1 || stats.FailedTasks != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func outputResult(output string) Result {
	return Result{Success: true, Output: output}
}

func TestPoolExecuteRejectsAlreadyCanceledContext(t *testing.T) {
	b := newInlineBackend(func(ctx context.Context, task Task) (Result, error) {
		t.Fatal("worker should never run for an already-canceled context")
		return Result{}, nil
	})
	p := NewPool(Config{MaxPoolSize: 1}, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Execute(ctx, Task{ID: "t1"}, nil); err == nil {
		t.Fatal("expected an error for a pre-canceled context")
	}
	if stats := p.Stats(); stats.TotalTasks != 0 {
		t.Fatalf("expected TotalTasks to stay 0 for a rejected task, got %+v", stats)
	}
}

func TestPoolExecuteTracksFailedTasks(t *testing.T) {
	b := newInlineBackend(func(ctx context.Context, task Task) (Result, error) {
		return Result{}, errors.New("boom")
	})
	p := NewPool(Config{MaxPoolSize: 1}, b, nil)

	if _, err := p.Execute(context.Background(), Task{ID: "t1"}, nil); err == nil {
		t.Fatal("expected the backend error to propagate")
	}
	stats := p.Stats()
	if stats.TotalTasks != 1 || stats.FailedTasks != 1 || stats.CompletedTasks != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPoolExecuteStreamsProgress(t *testing.T) {
	b := newInlineBackend(func(ctx context.Context, task Task) (Result, error) {
		return Result{Success: true}, nil
	})
	p := NewPool(Config{MaxPoolSize: 1}, b, nil)

	// inlineWorker ignores onProgress since it has no intermediate
	// frames of its own; this just confirms Execute accepts a nil sink
	// and a non-nil one without panicking.
	var seen []string
	_, err := p.Execute(context.Background(), Task{ID: "t1"}, func(stage, text string, percent float64) {
		seen = append(seen, stage)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPoolExecuteRejectsAfterClose(t *testing.T) {
	b := newInlineBackend(func(ctx context.Context, task Task) (Result, error) {
		return Result{Success: true}, nil
	})
	p := NewPool(Config{MaxPoolSize: 1}, b, nil)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if _, err := p.Execute(context.Background(), Task{ID: "t1"}, nil); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

type blockingBackend struct {
	release chan struct{}
}

func (b *blockingBackend) spawn(ctx context.Context) (spawnedWorker, error) {
	return &blockingWorker{release: b.release}, nil
}

type blockingWorker struct {
	release chan struct{}
}

func (w *blockingWorker) execute(ctx context.Context, task Task, onProgress func(stage, text string, percent float64)) (Result, error) {
	select {
	case <-w.release:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	return Result{Success: true}, nil
}

func (w *blockingWorker) alive() bool  { return true }
func (w *blockingWorker) close() error { return nil }

func TestPoolAcquireTimesOutWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	p := NewPool(Config{MaxPoolSize: 1, AcquireTimeout: 50 * time.Millisecond}, &blockingBackend{release: release}, nil)

	done := make(chan struct{})
	go func() {
		p.Execute(context.Background(), Task{ID: "holder"}, nil)
		close(done)
	}()
	// Give the first task a moment to occupy the only slot.
	time.Sleep(10 * time.Millisecond)

	if _, err := p.Execute(context.Background(), Task{ID: "second"}, nil); err == nil {
		t.Fatal("expected a timeout error while the only worker is busy")
	}

	close(release)
	<-done
}

func TestPoolCloseDrainsInFlightTasks(t *testing.T) {
	release := make(chan struct{})
	p := NewPool(Config{MaxPoolSize: 1, CloseDrainTimeout: 200 * time.Millisecond}, &blockingBackend{release: release}, nil)

	done := make(chan struct{})
	go func() {
		p.Execute(context.Background(), Task{ID: "t1"}, nil)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	<-done
}
