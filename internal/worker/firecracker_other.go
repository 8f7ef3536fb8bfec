//go:build !linux

package worker

import (
	"context"
	"errors"
	"log/slog"
)

// ErrFirecrackerUnsupported is returned by NewFirecrackerBackend on any
// platform other than linux.
var ErrFirecrackerUnsupported = errors.New("worker: firecracker backend is only supported on linux")

// NewFirecrackerBackend always fails on non-linux platforms.
func NewFirecrackerBackend(cfg FirecrackerConfig, logger *slog.Logger) backend {
	return unsupportedBackend{}
}

type unsupportedBackend struct{}

func (unsupportedBackend) spawn(ctx context.Context) (spawnedWorker, error) {
	return nil, ErrFirecrackerUnsupported
}
