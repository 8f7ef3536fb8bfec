package channels

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// BaseHealthAdapter gives an adapter shared status, metrics, and
// degraded-state tracking by embedding. Adapters call SetStatus/SetDegraded
// as their connection state changes; HealthCheck and Metrics are then free.
type BaseHealthAdapter struct {
	channelType models.ChannelType
	logger      *slog.Logger

	status   Status
	statusMu sync.RWMutex

	degraded atomic.Bool

	metrics *Metrics
}

func NewBaseHealthAdapter(channelType models.ChannelType, logger *slog.Logger) *BaseHealthAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseHealthAdapter{
		channelType: channelType,
		logger:      logger,
		status:      Status{Connected: false},
		metrics:     NewMetrics(channelType),
	}
}

func (b *BaseHealthAdapter) Status() Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	return b.status
}

func (b *BaseHealthAdapter) SetStatus(connected bool, errMsg string) {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	b.status = Status{
		Connected: connected,
		Error:     errMsg,
		LastPing:  time.Now().Unix(),
	}
}

func (b *BaseHealthAdapter) UpdateLastPing() {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	b.status.LastPing = time.Now().Unix()
}

func (b *BaseHealthAdapter) SetDegraded(value bool) {
	b.degraded.Store(value)
}

func (b *BaseHealthAdapter) IsDegraded() bool {
	return b.degraded.Load()
}

func (b *BaseHealthAdapter) Metrics() MetricsSnapshot {
	if b.metrics == nil {
		return MetricsSnapshot{ChannelType: b.channelType}
	}
	return b.metrics.Snapshot()
}

func (b *BaseHealthAdapter) RecordMessageSent()     { b.metrics.RecordMessageSent() }
func (b *BaseHealthAdapter) RecordMessageReceived() { b.metrics.RecordMessageReceived() }
func (b *BaseHealthAdapter) RecordMessageFailed()   { b.metrics.RecordMessageFailed() }
func (b *BaseHealthAdapter) RecordError(code ErrorCode) {
	b.metrics.RecordError(code)
}
func (b *BaseHealthAdapter) RecordSendLatency(d time.Duration)    { b.metrics.RecordSendLatency(d) }
func (b *BaseHealthAdapter) RecordReceiveLatency(d time.Duration) { b.metrics.RecordReceiveLatency(d) }
func (b *BaseHealthAdapter) RecordConnectionOpened()              { b.metrics.RecordConnectionOpened() }
func (b *BaseHealthAdapter) RecordConnectionClosed()              { b.metrics.RecordConnectionClosed() }
func (b *BaseHealthAdapter) RecordReconnectAttempt()              { b.metrics.RecordReconnectAttempt() }

// HealthCheck reports healthy only while connected with no recorded error.
func (b *BaseHealthAdapter) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	status := b.Status()
	healthy := status.Connected && status.Error == ""
	message := "ok"
	if !healthy {
		if status.Error != "" {
			message = status.Error
		} else {
			message = "not connected"
		}
	}
	return HealthStatus{
		Healthy:   healthy,
		Latency:   time.Since(start),
		Message:   message,
		LastCheck: time.Now(),
		Degraded:  b.IsDegraded(),
	}
}

func (b *BaseHealthAdapter) Logger() *slog.Logger {
	return b.logger
}
