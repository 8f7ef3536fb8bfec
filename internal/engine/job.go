package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// SteeringQueue is the seam the engine borrows a session's steering
// queue through. A run never owns the queue it drains: the session
// does, for the lifetime of the session, across every run started
// against it.
type SteeringQueue interface {
	// Enqueue adds a message, to be observed at the next turn boundary.
	Enqueue(models.SteeringMessage)
	// Drain removes and returns queued messages in delivery order,
	// applying whatever batching mode the queue is configured with.
	Drain() []models.SteeringMessage
}

// ToolDispatcher hands a heavyweight tool invocation off to an
// external executor (the worker pool) instead of running it inline in
// the engine's own goroutine.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, args json.RawMessage, tc *tools.Context) (tools.Result, error)
}

// ConfirmationResolver is consulted when the security policy flags a
// pending tool call as requiring confirmation. A nil resolver denies
// by default.
type ConfirmationResolver func(ctx context.Context, sessionID string, call models.ToolCall, reason string) (bool, error)

// Job describes one run: the conversation to continue, the tools and
// system prompt available to it, and which model to call.
type Job struct {
	SessionID    string
	Messages     []models.Message
	Tools        []models.ToolDefinition
	SystemPrompt string
	Model        string

	// Steering is the session's queue, borrowed for the run's
	// lifetime. May be nil for a steering-less run (e.g. a one-shot
	// tool-less completion).
	Steering SteeringQueue
}

// RunOptions configures a single run beyond what the Job itself
// carries.
type RunOptions struct {
	// MaxWallTime bounds total run duration; zero means no limit
	// beyond the caller's context.
	MaxWallTime time.Duration

	// ToolContext is the template passed to every tool invocation this
	// run makes. Its AbortSignal is overwritten with the run's own
	// cancellation signal; OnProgress, if set, additionally receives a
	// tool_progress event on the run's event stream.
	ToolContext *tools.Context

	// HeavyweightDispatcher, if set, receives tool calls the registry
	// classifies as Heavyweight instead of the engine calling
	// Registry.Execute inline.
	HeavyweightDispatcher ToolDispatcher

	// ConfirmationResolver obtains a user decision for tool calls the
	// security policy flags as requiring confirmation. Nil denies by
	// default.
	ConfirmationResolver ConfirmationResolver
}

// RunHandle is the caller's view of an in-flight or completed run.
type RunHandle struct {
	ref      string
	events   chan Event
	cancel   context.CancelFunc
	steering SteeringQueue
}

// Ref returns the run's unique reference, echoed in its ResumeToken.
func (h *RunHandle) Ref() string { return h.ref }

// Events returns the run's event stream. It is closed after exactly
// one of Completed or Error is sent; callers should drain it to the
// terminal event to release the run's goroutine.
func (h *RunHandle) Events() <-chan Event { return h.events }

// Cancel aborts the run. In-flight provider streams and tool
// invocations observe the cancellation on their context; the run
// emits a terminal Error event with ErrCancelled and stops.
func (h *RunHandle) Cancel() { h.cancel() }

// Steer enqueues msg on the run's steering queue. Messages enqueued
// while a provider stream is active take effect at the next turn
// boundary; they never interrupt an in-progress stream.
func (h *RunHandle) Steer(msg models.SteeringMessage) {
	if h.steering != nil {
		h.steering.Enqueue(msg)
	}
}
