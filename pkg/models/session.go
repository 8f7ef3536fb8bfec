package models

import "time"

// SessionState is one node of the session lifecycle state machine.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionActive    SessionState = "active"
	SessionPaused    SessionState = "paused"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// AutonomyLevel governs when a tool call needs user confirmation.
type AutonomyLevel string

const (
	AutonomyReadonly   AutonomyLevel = "readonly"
	AutonomySupervised AutonomyLevel = "supervised"
	AutonomyFull       AutonomyLevel = "full"
)

// SessionConfig is the immutable-once-set model/provider/policy config
// a Session carries.
type SessionConfig struct {
	Model         string        `json:"model"`
	Provider      string        `json:"provider"`
	AutonomyLevel AutonomyLevel `json:"autonomy_level"`
	SystemPrompt  string        `json:"system_prompt,omitempty"`
}

// SessionStats accumulates monotonic counters over a session's lifetime.
type SessionStats struct {
	Iterations     int      `json:"iterations"`
	ToolInvocations int     `json:"tool_invocations"`
	LLMCalls       int      `json:"llm_calls"`
	Errors         []string `json:"errors,omitempty"`
}

// SteeringKind discriminates a SteeringMessage.
type SteeringKind string

const (
	SteeringInject   SteeringKind = "inject"
	SteeringReminder SteeringKind = "reminder"
	SteeringAbort    SteeringKind = "abort"
)

// SteeringMessage is a user-originated message enqueued between turns.
type SteeringMessage struct {
	Kind               SteeringKind `json:"kind"`
	Content            string       `json:"content"`
	Timestamp          time.Time    `json:"timestamp"`
	SkipRemainingTools bool         `json:"skip_remaining_tools,omitempty"`
}

// SessionSummary is the shape returned by list operations (control plane,
// session manager listings) — cheaper than the full Session.
type SessionSummary struct {
	SessionID    string       `json:"sessionId"`
	ChannelID    string       `json:"channelId,omitempty"`
	UserID       string       `json:"userId,omitempty"`
	Status       SessionState `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActiveAt time.Time    `json:"lastActiveAt"`
}
