package engine

import (
	"encoding/json"

	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Kind discriminates an Event. The event stream for a single run is a
// totally ordered sequence that begins with exactly one Started event
// and ends with exactly one of Completed or Error.
type Kind string

const (
	Started               Kind = "started"
	TextDelta             Kind = "text_delta"
	ToolStart             Kind = "tool_start"
	ToolProgress          Kind = "tool_progress"
	ToolEnd               Kind = "tool_end"
	ConfirmationRequested Kind = "confirmation_requested"
	Completed             Kind = "completed"
	Error                 Kind = "error"
)

// Usage carries the token accounting from the final provider turn of a
// completed run.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Event is one element of a RunHandle's event stream. Exactly the
// fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind Kind `json:"kind"`

	// Started
	ResumeToken *ResumeToken `json:"resume_token,omitempty"`

	// TextDelta
	Delta string `json:"delta,omitempty"`

	// ToolStart / ToolProgress / ToolEnd / ConfirmationRequested share
	// ToolCallID and ToolName.
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolArgs   json.RawMessage `json:"tool_args,omitempty"`

	// ToolProgress
	Progress *tools.ProgressUpdate `json:"progress,omitempty"`

	// ToolEnd
	ToolResult *models.ToolResult `json:"tool_result,omitempty"`

	// ConfirmationRequested
	ConfirmationReason string `json:"confirmation_reason,omitempty"`

	// Completed
	Answer          string `json:"answer,omitempty"`
	Usage           *Usage `json:"usage,omitempty"`
	ToolInvocations int    `json:"tool_invocations,omitempty"`

	// Error
	Err error `json:"-"`
}
