// Package models contains the wire and domain types shared across every
// subsystem of the gateway: messages, tool calls, sessions, memory
// entries, and canvas graph nodes. It depends on nothing else in this
// module so any package can import it without creating cycles.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates the tagged union a Message's content blocks
// carry when the content is not flat text.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentImage      ContentKind = "image"
	ContentToolInput  ContentKind = "tool_input"
	ContentToolOutput ContentKind = "tool_output"
)

// ContentBlock is one element of a Message's ordered content sequence.
// Payload is deliberately typed per Kind rather than carried as a
// dynamic map: translate at the module boundary (provider adapter,
// channel adapter) into the concrete payload type below.
type ContentBlock struct {
	Kind    ContentKind     `json:"kind"`
	Text    string          `json:"text,omitempty"`
	Image   *ImagePayload   `json:"image,omitempty"`
	ToolIn  *ToolCall       `json:"tool_input,omitempty"`
	ToolOut *ToolResult     `json:"tool_output,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// ImagePayload carries inline or referenced image content.
type ImagePayload struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message is a single entry in a session's append-only message log.
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content,omitempty"`
	Blocks     []ContentBlock `json:"blocks,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ToolCall is a provider-emitted request to invoke a registered tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResult is the outcome of executing a ToolCall, appended as a
// subsequent tool-role Message carrying the same ID.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Success    bool           `json:"success"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToolDefinition describes a tool's contract as exposed to a provider.
// Read-only once registered.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
