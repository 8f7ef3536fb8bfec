package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StaticSkillBackend is the default SkillBackend: an in-memory map of
// named instruction blocks, loaded once at startup.
type StaticSkillBackend struct {
	skills map[string]string
}

func NewStaticSkillBackend(skills map[string]string) *StaticSkillBackend {
	return &StaticSkillBackend{skills: skills}
}

func (b *StaticSkillBackend) Get(name string) (string, bool) {
	s, ok := b.skills[name]
	return s, ok
}

func (b *StaticSkillBackend) Names() []string {
	names := make([]string, 0, len(b.skills))
	for name := range b.skills {
		names = append(names, name)
	}
	return names
}

type loadSkillArgs struct {
	Name string `json:"name"`
}

// LoadSkillTool returns a named instruction block, letting the agent
// progressively disclose capability-specific guidance instead of
// carrying every skill's instructions in its system prompt at once.
type LoadSkillTool struct{}

func NewLoadSkillTool() *LoadSkillTool { return &LoadSkillTool{} }

func (t *LoadSkillTool) Name() string        { return "load_skill" }
func (t *LoadSkillTool) Description() string { return "Load a named instruction block for a specific capability." }
func (t *LoadSkillTool) Weight() Weight      { return Lightweight }

func (t *LoadSkillTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []string{"name"},
	})
}

func (t *LoadSkillTool) Validate(args json.RawMessage) ValidationResult {
	var in loadSkillArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name is required")
	}
	return ok()
}

func (t *LoadSkillTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	if tc.Skills == nil {
		return ErrorResult("no skills are configured"), nil
	}
	var in loadSkillArgs
	_ = json.Unmarshal(args, &in)

	instructions, found := tc.Skills.Get(in.Name)
	if !found {
		return ErrorResult(fmt.Sprintf("unknown skill: %s", in.Name)), nil
	}
	return Result{Success: true, Output: instructions, Metadata: map[string]any{"name": in.Name}}, nil
}
