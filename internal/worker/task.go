// Package worker dispatches heavyweight tool calls (bash, and anything
// else tagged tools.Heavyweight) to a bounded pool of reusable
// subprocess workers, so a slow or runaway tool call cannot stall the
// engine's own goroutine or take the whole process down with it.
package worker

import (
	"encoding/json"

	"github.com/meridianlabs/agentgateway/internal/security"
)

// Task is one heavyweight tool invocation handed to the pool. Only the
// fields a worker can reconstruct a tools.Context from are included:
// backends that hold live connections (memory, canvas, MCP, a payment
// signer) cannot cross the process boundary, so a worker-bound tool
// call never carries one.
type Task struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
	SessionID string          `json:"session_id"`
	Cwd       string          `json:"cwd"`

	WorkspaceRoot   string                 `json:"workspace_root"`
	Autonomy        security.AutonomyLevel `json:"autonomy"`
	AllowedCommands []string               `json:"allowed_commands,omitempty"`
	BlockedPaths    []string               `json:"blocked_paths,omitempty"`
}

// messageKind tags a parent<->worker IPC frame.
type messageKind string

const (
	msgExecute  messageKind = "execute"
	msgProgress messageKind = "progress"
	msgResult   messageKind = "result"
	msgError    messageKind = "error"
)

// message is the wire frame exchanged over a worker's stdin/stdout
// pipe, one JSON object per line.
type message struct {
	Kind    messageKind     `json:"kind"`
	TaskID  string          `json:"task_id"`
	Task    *Task           `json:"task,omitempty"`
	Stage   string          `json:"stage,omitempty"`
	Text    string          `json:"text,omitempty"`
	Percent float64         `json:"percent,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Result is what Pool.Execute returns for a completed task.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	TotalTasks     int64 `json:"total_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
	FailedTasks    int64 `json:"failed_tasks"`
	QueuedTasks    int64 `json:"queued_tasks"`
}
