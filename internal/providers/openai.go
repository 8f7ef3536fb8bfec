package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// OpenAIProvider implements Provider against the Chat Completions
// streaming API.
type OpenAIProvider struct {
	client     *openai.Client
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIProvider builds an OpenAIProvider. A missing apiKey is
// accepted so the gateway can start without it configured; Complete
// then fails fast with a clear error instead of panicking.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	p := &OpenAIProvider{maxRetries: 3, retryDelay: time.Second}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) SupportsTools() bool { return true }

func (p *OpenAIProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextWindow: 16385, SupportsVision: false},
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("providers: openai API key not configured")
	}

	messages := convertMessagesToOpenAI(req.Messages, req.System)
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsToOpenAI(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("providers: converting tools: %w", err)
		}
		chatReq.Tools = tools
	}

	var stream *openai.ChatCompletionStream
	var err error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, err = p.client.CreateChatCompletionStream(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryableOpenAIError(err) {
			return nil, fmt.Errorf("providers: openai: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("providers: openai max retries exceeded: %w", err)
	}

	out := make(chan CompletionChunk)
	go p.processStream(ctx, stream, out)
	return out, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- CompletionChunk) {
	defer close(out)
	defer stream.Close()

	toolCalls := map[int]*models.ToolCall{}
	order := []int{}

	flush := func() {
		for _, idx := range order {
			tc := toolCalls[idx]
			if tc.ID != "" && tc.Name != "" {
				out <- CompletionChunk{ToolCall: tc}
			}
		}
		toolCalls = map[int]*models.ToolCall{}
		order = nil
	}

	for {
		select {
		case <-ctx.Done():
			out <- CompletionChunk{Err: ctx.Err(), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				out <- CompletionChunk{Done: true}
				return
			}
			out <- CompletionChunk{Err: fmt.Errorf("providers: openai stream: %w", err), Done: true}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			out <- CompletionChunk{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if toolCalls[idx] == nil {
				toolCalls[idx] = &models.ToolCall{}
				order = append(order, idx)
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args = json.RawMessage(string(toolCalls[idx].Args) + tc.Function.Arguments)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func convertMessagesToOpenAI(messages []models.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range messages {
		switch m.Role {
		case models.RoleUser, models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})

		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			if len(m.ToolCalls) > 0 {
				msg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					msg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Args),
						},
					}
				}
			}
			out = append(out, msg)

		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return out
}

func convertToolsToOpenAI(defs []models.ToolDefinition) ([]openai.Tool, error) {
	out := make([]openai.Tool, len(defs))
	for i, d := range defs {
		var schema map[string]any
		if len(d.Parameters) > 0 {
			if err := json.Unmarshal(d.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", d.Name, err)
			}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schema,
			},
		}
	}
	return out, nil
}

func isRetryableOpenAIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
