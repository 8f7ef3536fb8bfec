//go:build linux

package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"time"

	fc "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
)

// guestAgentPort is the vsock port the worker init inside the guest
// listens on for task frames.
const guestAgentPort = 52

// firecrackerBackend spawns one microVM per worker via firecracker-go-sdk.
// Each VM exposes a vsock-backed task channel that the guest init reads
// execute frames from, mirroring the host<->subprocessWorker protocol.
type firecrackerBackend struct {
	cfg    FirecrackerConfig
	logger *slog.Logger

	mu  sync.Mutex
	seq uint32
}

func newFirecrackerBackend(cfg FirecrackerConfig, logger *slog.Logger) *firecrackerBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &firecrackerBackend{cfg: cfg, logger: logger.With("component", "worker_firecracker")}
}

// NewFirecrackerBackend returns a backend that boots one microVM per
// worker. Only available on linux; see firecracker_other.go for the
// non-linux stub.
func NewFirecrackerBackend(cfg FirecrackerConfig, logger *slog.Logger) backend {
	return newFirecrackerBackend(cfg, logger)
}

func (b *firecrackerBackend) spawn(ctx context.Context) (spawnedWorker, error) {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.mu.Unlock()

	socketPath := filepath.Join(b.cfg.SocketDir, fmt.Sprintf("worker-%d.sock", id))
	vsockPath := filepath.Join(b.cfg.SocketDir, fmt.Sprintf("worker-%d-vsock.sock", id))
	cid := uint32(3) + id
	if b.cfg.VsockCIDGen != nil {
		cid = b.cfg.VsockCIDGen()
	}

	machineCfg := fc.Config{
		SocketPath:      socketPath,
		KernelImagePath: b.cfg.KernelPath,
		KernelArgs:      b.cfg.BootArgs,
		Drives: []models.Drive{{
			DriveID:      fc.String("rootfs"),
			PathOnHost:   fc.String(b.cfg.RootFSPath),
			IsRootDevice: fc.Bool(true),
			IsReadOnly:   fc.Bool(false),
		}},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  fc.Int64(b.cfg.VCPUs),
			MemSizeMib: fc.Int64(b.cfg.MemSizeMB),
			Smt:        fc.Bool(false),
		},
		VsockDevices: []fc.VsockDevice{{Path: vsockPath, CID: cid}},
	}

	cmd := fc.VMCommandBuilder{}.WithSocketPath(socketPath).Build(ctx)
	machine, err := fc.NewMachine(ctx, machineCfg, fc.WithProcessRunner(cmd))
	if err != nil {
		return nil, fmt.Errorf("build firecracker machine: %w", err)
	}
	if err := machine.Start(ctx); err != nil {
		return nil, fmt.Errorf("start firecracker machine: %w", err)
	}

	return &firecrackerWorker{
		machine:   machine,
		vsockPath: vsockPath,
		cid:       cid,
		logger:    b.logger.With("vm_id", id),
	}, nil
}

// firecrackerWorker dials the guest's vsock listener for each task
// rather than keeping a long-lived stream open, since heavyweight
// tasks are infrequent relative to a VM's lifetime. Firecracker exposes
// vsock to the host as a Unix socket; connecting to it and writing the
// CID/port header hands the stream off to the guest's listener on that
// port.
type firecrackerWorker struct {
	machine   *fc.Machine
	vsockPath string
	cid       uint32
	logger    *slog.Logger

	mu   sync.Mutex
	dead bool
}

func (w *firecrackerWorker) dialVsock(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", w.vsockPath)
	if err != nil {
		return nil, fmt.Errorf("dial vsock socket: %w", err)
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], w.cid)
	binary.LittleEndian.PutUint32(header[4:8], guestAgentPort)
	if _, err := conn.Write(header); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send vsock header: %w", err)
	}
	return conn, nil
}

func (w *firecrackerWorker) execute(ctx context.Context, task Task, onProgress func(stage, text string, percent float64)) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return Result{}, fmt.Errorf("firecracker worker is no longer alive")
	}

	conn, err := w.dialVsock(ctx)
	if err != nil {
		w.dead = true
		return Result{}, err
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(message{Kind: msgExecute, TaskID: task.ID, Task: &task}); err != nil {
		w.dead = true
		return Result{}, fmt.Errorf("send task over vsock: %w", err)
	}

	dec := json.NewDecoder(conn)
	for {
		var msg message
		if err := dec.Decode(&msg); err != nil {
			w.dead = true
			return Result{}, fmt.Errorf("read worker response: %w", err)
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
			var result Result
			_ = json.Unmarshal(msg.Result, &result)
			return result, nil
		case msgError:
			return Result{}, fmt.Errorf("%s", msg.Error)
		}
	}
}

func (w *firecrackerWorker) alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.dead
}

func (w *firecrackerWorker) close() error {
	w.mu.Lock()
	w.dead = true
	w.mu.Unlock()
	return w.machine.StopVMM()
}
