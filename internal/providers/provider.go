// Package providers gives the engine a uniform streaming
// chat-completion contract over Anthropic, OpenAI, and AWS Bedrock, so
// it never branches on which backend a session is configured to use.
package providers

import (
	"context"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Provider is implemented by every LLM backend the gateway can route a
// session's completions through. Implementations must be safe for
// concurrent use — multiple sessions may call Complete on the same
// Provider instance at once.
type Provider interface {
	// Name is the stable, lowercase identifier used in session config
	// and logging, e.g. "anthropic".
	Name() string

	// Models lists the models this provider can serve.
	Models() []ModelInfo

	// SupportsTools reports whether this provider can receive tool
	// definitions and emit tool-call chunks.
	SupportsTools() bool

	// Complete streams a completion for req. The returned channel is
	// closed when the stream ends, successfully or not; the final
	// chunk sent before close always has Done set or Err set.
	Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error)
}

// ModelInfo describes one model a Provider can serve.
type ModelInfo struct {
	ID             string
	Name           string
	ContextWindow  int
	SupportsVision bool
}

// CompletionRequest is a provider-agnostic chat completion request.
type CompletionRequest struct {
	Model                string
	System               string
	Messages             []models.Message
	Tools                []models.ToolDefinition
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// CompletionChunk is one unit of a streamed completion. Exactly one of
// Text/Thinking/ToolCall is meaningfully populated per chunk, except
// for the terminal chunk which carries only Done (or Err) plus the
// final token usage.
type CompletionChunk struct {
	Text          string
	Thinking      string
	ThinkingStart bool
	ThinkingEnd   bool
	ToolCall      *models.ToolCall
	Done          bool
	Err           error
	InputTokens   int
	OutputTokens  int
}

// maxEmptyStreamEvents bounds how many consecutive content-free events
// a provider's stream reader tolerates before treating the connection
// as malformed and aborting — protects against a server that floods
// keep-alive events without ever producing a terminal event.
const maxEmptyStreamEvents = 300
