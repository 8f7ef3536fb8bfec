package engine

import (
	"encoding/json"
	"fmt"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// ResumeToken is an opaque, serialisable snapshot of a run's final
// state: messages, tools, system prompt, model, and the run ref and
// engine identity it was minted by. Replayable only by the same
// engine kind, via Resume.
type ResumeToken struct {
	EngineID     string                  `json:"engine_id"`
	Ref          string                  `json:"ref"`
	Messages     []models.Message        `json:"messages"`
	Tools        []models.ToolDefinition `json:"tools,omitempty"`
	SystemPrompt string                  `json:"system_prompt,omitempty"`
	Model        string                  `json:"model"`
}

// Marshal serialises the token for out-of-process storage.
func (t ResumeToken) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalResumeToken parses a token previously produced by Marshal.
func UnmarshalResumeToken(data []byte) (ResumeToken, error) {
	var t ResumeToken
	if err := json.Unmarshal(data, &t); err != nil {
		return ResumeToken{}, fmt.Errorf("engine: invalid resume token: %w", err)
	}
	return t, nil
}
