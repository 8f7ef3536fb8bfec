package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// WorkerModeEnv is set in a spawned worker's environment so its own
// main() knows to call RunWorkerMode instead of starting the gateway.
const WorkerModeEnv = "AGENTGATEWAY_WORKER_MODE"

// subprocessBackend spawns copies of the running binary, re-executed
// in worker mode, and talks newline-delimited JSON over their
// stdin/stdout pipes. This is the default, isolation-bearing backend.
type subprocessBackend struct {
	binary string
	logger *slog.Logger
}

func newSubprocessBackend(logger *slog.Logger) *subprocessBackend {
	if logger == nil {
		logger = slog.Default()
	}
	binary, err := os.Executable()
	if err != nil {
		binary = os.Args[0]
	}
	return &subprocessBackend{binary: binary, logger: logger.With("component", "worker")}
}

func (b *subprocessBackend) spawn(ctx context.Context) (spawnedWorker, error) {
	cmd := exec.CommandContext(ctx, b.binary)
	cmd.Env = append(os.Environ(), WorkerModeEnv+"=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	w := &subprocessWorker{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewScanner(stdout),
		logger: b.logger.With("pid", cmd.Process.Pid),
	}
	w.stdout.Buffer(make([]byte, 64*1024), 4<<20)

	if stderr != nil {
		go w.drainStderr(stderr)
	}
	return w, nil
}

// subprocessWorker drives one worker subprocess through exactly one
// task at a time; the protocol has no request IDs because there is
// never more than one in-flight execute message.
type subprocessWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	logger *slog.Logger

	mu   sync.Mutex
	dead bool
}

func (w *subprocessWorker) execute(ctx context.Context, task Task, onProgress func(stage, text string, percent float64)) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead {
		return Result{}, fmt.Errorf("worker process is no longer alive")
	}

	req := message{Kind: msgExecute, TaskID: task.ID, Task: &task}
	data, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal task: %w", err)
	}
	if _, err := w.stdin.Write(append(data, '\n')); err != nil {
		w.dead = true
		return Result{}, fmt.Errorf("write task to worker: %w", err)
	}

	done := make(chan struct{})
	var result Result
	var execErr error

	go func() {
		defer close(done)
		for w.stdout.Scan() {
			line := w.stdout.Text()
			if line == "" {
				continue
			}
			var msg message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				continue
			}
			if msg.TaskID != task.ID {
				continue
			}
			switch msg.Kind {
			case msgProgress:
				if onProgress != nil {
					onProgress(msg.Stage, msg.Text, msg.Percent)
				}
			case msgResult:
				_ = json.Unmarshal(msg.Result, &result)
				return
			case msgError:
				execErr = fmt.Errorf("%s", msg.Error)
				return
			}
		}
	}()

	select {
	case <-done:
		return result, execErr
	case <-ctx.Done():
		w.dead = true
		return Result{}, ctx.Err()
	}
}

func (w *subprocessWorker) alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.dead
}

func (w *subprocessWorker) close() error {
	w.mu.Lock()
	w.dead = true
	w.mu.Unlock()

	w.stdin.Close()
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	return w.cmd.Wait()
}

func (w *subprocessWorker) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			w.logger.Debug("worker stderr", "message", line)
		}
	}
}
