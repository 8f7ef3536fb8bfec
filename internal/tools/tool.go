// Package tools implements the registry of named, validated operations
// an agent session can invoke: filesystem access, shell commands, web
// fetch/search, memory recall, canvas mutation, and a bridge to
// external Model-Context-Protocol servers. Every tool is checked
// against a security.Policy before it touches anything outside the
// process.
package tools

import (
	"context"
	"encoding/json"

	"github.com/meridianlabs/agentgateway/internal/security"
)

// Weight classifies how expensive a tool is to run. Heavyweight tools
// are candidates for dispatch to the worker pool rather than running
// inline in the engine's goroutine.
type Weight string

const (
	Lightweight Weight = "lightweight"
	Heavyweight Weight = "heavyweight"
)

// ValidationResult is the outcome of Tool.Validate.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Result is the outcome of Tool.Execute.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorResult builds a failed Result from a message.
func ErrorResult(message string) Result {
	return Result{Success: false, Error: message}
}

// OutputResult builds a successful Result carrying plain text output.
func OutputResult(output string) Result {
	return Result{Success: true, Output: output}
}

// ProgressUpdate is streamed from a running tool to its caller via
// Context.OnProgress, for long-running heavyweight tools.
type ProgressUpdate struct {
	Stage   string
	Message string
	Percent float64
}

// Context carries everything a tool needs beyond its own arguments:
// which session and directory it is acting on behalf of, the security
// policy to enforce, a cancellation signal, a progress sink, and
// whichever optional backends the tool set was wired with.
type Context struct {
	SessionID      string
	Cwd            string
	SecurityPolicy *security.Policy
	AbortSignal    <-chan struct{}
	OnProgress     func(ProgressUpdate)

	Memory MemoryBackend
	Canvas CanvasBackend
	Signer PaymentSigner
	Skills SkillBackend
	Search SearchBackend
	MCP    MCPBackend
}

// Progress reports an update if the context has a sink wired, and is a
// no-op otherwise so tools never need a nil check before reporting.
func (c *Context) Progress(update ProgressUpdate) {
	if c.OnProgress != nil {
		c.OnProgress(update)
	}
}

// Aborted reports whether the context's abort signal has fired.
func (c *Context) Aborted() bool {
	if c.AbortSignal == nil {
		return false
	}
	select {
	case <-c.AbortSignal:
		return true
	default:
		return false
	}
}

// Tool is the contract every registered operation implements.
type Tool interface {
	Name() string
	Description() string
	Weight() Weight
	ParameterSchema() json.RawMessage
	Validate(args json.RawMessage) ValidationResult
	Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error)
}

// Abortable is implemented by tools that can be asked to stop a
// already-running invocation, such as a long-lived background process
// spawned by bash.
type Abortable interface {
	Abort(reason string) error
}

// StateSnapshotter is implemented by tools whose Context carries a
// mutable backend (canvas, memory) that can be inspected without
// performing a full Execute call, e.g. for resuming a session.
type StateSnapshotter interface {
	GetStateSnapshot(args json.RawMessage, tc *Context) (json.RawMessage, error)
}
