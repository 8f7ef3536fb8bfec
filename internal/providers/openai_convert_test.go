package providers

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

func TestConvertMessagesToOpenAI_PrependsSystemMessage(t *testing.T) {
	out := convertMessagesToOpenAI(nil, "be helpful")
	if len(out) != 1 || out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be helpful" {
		t.Fatalf("got %+v", out)
	}
}

func TestConvertMessagesToOpenAI_AssistantToolCalls(t *testing.T) {
	messages := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "grep", Args: json.RawMessage(`{"pattern":"foo"}`)},
			},
		},
	}
	out := convertMessagesToOpenAI(messages, "")
	if len(out) != 1 || len(out[0].ToolCalls) != 1 {
		t.Fatalf("got %+v", out)
	}
	if out[0].ToolCalls[0].Function.Name != "grep" {
		t.Fatalf("got %q", out[0].ToolCalls[0].Function.Name)
	}
}

func TestConvertMessagesToOpenAI_ToolResultCarriesCallID(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleTool, Content: "3 matches found", ToolCallID: "call_1"},
	}
	out := convertMessagesToOpenAI(messages, "")
	if len(out) != 1 || out[0].ToolCallID != "call_1" || out[0].Role != openai.ChatMessageRoleTool {
		t.Fatalf("got %+v", out)
	}
}

func TestConvertToolsToOpenAI_ParsesSchema(t *testing.T) {
	defs := []models.ToolDefinition{
		{Name: "grep", Description: "search files", Parameters: json.RawMessage(`{"type":"object"}`)},
	}
	out, err := convertToolsToOpenAI(defs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Function.Name != "grep" {
		t.Fatalf("got %+v", out)
	}
}

func TestConvertToolsToOpenAI_RejectsInvalidSchema(t *testing.T) {
	defs := []models.ToolDefinition{{Name: "bad", Parameters: json.RawMessage(`not json`)}}
	if _, err := convertToolsToOpenAI(defs); err == nil {
		t.Fatal("expected an error for invalid schema JSON")
	}
}

func TestIsRetryableOpenAIError(t *testing.T) {
	cases := map[string]bool{
		"rate limit exceeded":      true,
		"received 503":             true,
		"invalid api key":          false,
		"context deadline exceeded": true,
	}
	for msg, want := range cases {
		got := isRetryableOpenAIError(fmtError(msg))
		if got != want {
			t.Errorf("%q: got %v, want %v", msg, got, want)
		}
	}
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func fmtError(msg string) error { return simpleError(msg) }
