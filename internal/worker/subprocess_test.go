package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"
)

// newTestSubprocessWorker wires a subprocessWorker directly to an
// in-process pipe pair rather than a real child process, so the
// execute() protocol can be exercised without spawning anything.
func newTestSubprocessWorker(t *testing.T) (*subprocessWorker, io.Reader, io.WriteCloser) {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	w := &subprocessWorker{
		stdin:  stdinW,
		stdout: bufio.NewScanner(stdoutR),
	}
	return w, stdinR, stdoutW
}

func TestSubprocessWorkerExecuteRoundTrips(t *testing.T) {
	w, stdinR, stdoutW := newTestSubprocessWorker(t)

	go func() {
		reader := bufio.NewScanner(stdinR)
		if !reader.Scan() {
			return
		}
		var req message
		if err := json.Unmarshal(reader.Bytes(), &req); err != nil {
			t.Errorf("child failed to parse request: %v", err)
			return
		}
		if req.Kind != msgExecute || req.Task == nil {
			t.Errorf("unexpected request: %+v", req)
			return
		}

		progress, _ := json.Marshal(message{Kind: msgProgress, TaskID: req.TaskID, Stage: "running", Percent: 50})
		stdoutW.Write(append(progress, '\n'))

		result, _ := json.Marshal(Result{Success: true, Output: "done"})
		final, _ := json.Marshal(message{Kind: msgResult, TaskID: req.TaskID, Result: result})
		stdoutW.Write(append(final, '\n'))
	}()

	var gotStage string
	res, err := w.execute(context.Background(), Task{ID: "t1", Tool: "bash"}, func(stage, text string, percent float64) {
		gotStage = stage
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Output != "done" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotStage != "running" {
		t.Fatalf("expected progress callback to fire, got stage %q", gotStage)
	}
}

func TestSubprocessWorkerExecutePropagatesWorkerError(t *testing.T) {
	w, stdinR, stdoutW := newTestSubprocessWorker(t)

	go func() {
		reader := bufio.NewScanner(stdinR)
		if !reader.Scan() {
			return
		}
		var req message
		json.Unmarshal(reader.Bytes(), &req)
		errFrame, _ := json.Marshal(message{Kind: msgError, TaskID: req.TaskID, Error: "boom"})
		stdoutW.Write(append(errFrame, '\n'))
	}()

	if _, err := w.execute(context.Background(), Task{ID: "t1"}, nil); err == nil {
		t.Fatal("expected the worker's error frame to surface as an error")
	}
}

func TestSubprocessWorkerExecuteTimesOutOnContextCancel(t *testing.T) {
	w, _, _ := newTestSubprocessWorker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := w.execute(ctx, Task{ID: "t1"}, nil); err == nil {
		t.Fatal("expected a context deadline error when the child never responds")
	}
	if w.alive() {
		t.Fatal("expected the worker to be marked dead after a context timeout")
	}
}
