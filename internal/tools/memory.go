package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

type memoryStoreArgs struct {
	Key      string         `json:"key"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// MemoryStoreTool upserts a namespaced entry into the memory backend.
type MemoryStoreTool struct{}

func NewMemoryStoreTool() *MemoryStoreTool { return &MemoryStoreTool{} }

func (t *MemoryStoreTool) Name() string        { return "memory_store" }
func (t *MemoryStoreTool) Description() string { return "Save or update a namespaced memory entry for later recall." }
func (t *MemoryStoreTool) Weight() Weight      { return Lightweight }

func (t *MemoryStoreTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key":      map[string]any{"type": "string", "description": "Hierarchical, colon-separated key, e.g. u:telegram:42:pref."},
			"content":  map[string]any{"type": "string"},
			"metadata": map[string]any{"type": "object"},
		},
		"required": []string{"key", "content"},
	})
}

func (t *MemoryStoreTool) Validate(args json.RawMessage) ValidationResult {
	var in memoryStoreArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	var errs []string
	errs = append(errs, requireNonEmpty("key", strings.TrimSpace(in.Key))...)
	errs = append(errs, requireNonEmpty("content", in.Content)...)
	if len(errs) > 0 {
		return invalid(errs...)
	}
	return ok()
}

func (t *MemoryStoreTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	if tc.Memory == nil {
		return ErrorResult("memory backend unavailable"), nil
	}
	var in memoryStoreArgs
	_ = json.Unmarshal(args, &in)

	if err := tc.Memory.StoreEntry(ctx, in.Key, in.Content, in.Metadata); err != nil {
		return ErrorResult(err.Error()), nil
	}
	return Result{Success: true, Output: "stored", Metadata: map[string]any{"key": in.Key}}, nil
}

type memoryRecallArgs struct {
	Query     string         `json:"query"`
	Limit     int            `json:"limit"`
	MinScore  float64        `json:"min_score"`
	KeyPrefix string         `json:"key_prefix"`
	Filter    map[string]any `json:"filter"`
}

// MemoryRecallTool runs a hybrid keyword+vector search over the memory
// backend.
type MemoryRecallTool struct{}

func NewMemoryRecallTool() *MemoryRecallTool { return &MemoryRecallTool{} }

func (t *MemoryRecallTool) Name() string        { return "memory_recall" }
func (t *MemoryRecallTool) Description() string { return "Search previously stored memory entries by keyword and semantic similarity." }
func (t *MemoryRecallTool) Weight() Weight      { return Lightweight }

func (t *MemoryRecallTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":      map[string]any{"type": "string"},
			"limit":      map[string]any{"type": "integer", "minimum": 1},
			"min_score":  map[string]any{"type": "number"},
			"key_prefix": map[string]any{"type": "string"},
			"filter":     map[string]any{"type": "object"},
		},
		"required": []string{"query"},
	})
}

func (t *MemoryRecallTool) Validate(args json.RawMessage) ValidationResult {
	var in memoryRecallArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if strings.TrimSpace(in.Query) == "" {
		return invalid("query is required")
	}
	return ok()
}

func (t *MemoryRecallTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	if tc.Memory == nil {
		return ErrorResult("memory backend unavailable"), nil
	}
	var in memoryRecallArgs
	_ = json.Unmarshal(args, &in)

	results, err := tc.Memory.Recall(ctx, in.Query, models.RecallOptions{
		Limit: in.Limit, MinScore: in.MinScore, KeyPrefix: in.KeyPrefix, Filter: in.Filter,
	})
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	payload, _ := json.MarshalIndent(map[string]any{"results": results}, "", "  ")
	return Result{Success: true, Output: string(payload), Metadata: map[string]any{"count": len(results)}}, nil
}
