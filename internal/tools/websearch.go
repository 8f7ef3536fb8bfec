package tools

import (
	"context"
	"encoding/json"
	"strings"
)

type webSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// WebSearchTool delegates to whichever SearchBackend the tool set was
// wired with (SearXNG, a vendor search API, or a test double), keeping
// the tool itself backend-agnostic.
type WebSearchTool struct {
	DefaultLimit int
}

func NewWebSearchTool(defaultLimit int) *WebSearchTool {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &WebSearchTool{DefaultLimit: defaultLimit}
}

func (t *WebSearchTool) Name() string        { return "web_search" }
func (t *WebSearchTool) Description() string { return "Search the web via the configured search backend." }
func (t *WebSearchTool) Weight() Weight      { return Lightweight }

func (t *WebSearchTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
		},
		"required": []string{"query"},
	})
}

func (t *WebSearchTool) Validate(args json.RawMessage) ValidationResult {
	var in webSearchArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if strings.TrimSpace(in.Query) == "" {
		return invalid("query is required")
	}
	return ok()
}

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	if tc.Search == nil {
		return ErrorResult("no search backend is configured"), nil
	}
	var in webSearchArgs
	_ = json.Unmarshal(args, &in)
	limit := in.Limit
	if limit <= 0 {
		limit = t.DefaultLimit
	} else if limit > 20 {
		limit = 20
	}

	results, err := tc.Search.Search(ctx, in.Query, limit)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	payload, _ := json.MarshalIndent(map[string]any{
		"query": in.Query, "backend": tc.Search.Name(), "results": results,
	}, "", "  ")
	return Result{Success: true, Output: string(payload), Metadata: map[string]any{"count": len(results)}}, nil
}
