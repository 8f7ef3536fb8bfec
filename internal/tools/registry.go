package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Registry is a thread-safe, keyed map of registered tools. Lookup and
// dispatch are concurrency-safe; registration is expected at startup
// but is not restricted to it.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas *schemaCache
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), schemas: newSchemaCache()}
}

// Register adds a tool, replacing any existing tool under the same
// name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions returns the ToolDefinition-shaped schema of every
// registered tool, in the form a provider.CompletionRequest expects.
func (r *Registry) Definitions() []ToolSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSummary, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolSummary{
			Name:        t.Name(),
			Description: t.Description(),
			Weight:      t.Weight(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return out
}

// ToolSummary is a tool's provider-facing contract, independent of its
// Go implementation.
type ToolSummary struct {
	Name        string
	Description string
	Weight      Weight
	Parameters  json.RawMessage
}

// Execute validates arguments, consults the registered tool, and runs
// it. Validation failures and unknown tool names come back as a
// failed Result rather than an error, mirroring how a provider-issued
// tool call is reported back into the conversation.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, tc *Context) (Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("tool not found: %s", name)), nil
	}
	if err := r.schemas.validateJSONSchema(name, tool.ParameterSchema(), args); err != nil {
		return Result{Success: false, Error: "invalid arguments", Metadata: map[string]any{"schema_error": err.Error()}}, nil
	}
	if v := tool.Validate(args); !v.Valid {
		return Result{Success: false, Error: "invalid arguments", Metadata: map[string]any{"errors": v.Errors}}, nil
	}
	return tool.Execute(ctx, args, tc)
}

// HeavyweightNames lists the registered tools the engine should prefer
// to dispatch onto the worker pool rather than run inline.
func (r *Registry) HeavyweightNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, t := range r.tools {
		if t.Weight() == Heavyweight {
			names = append(names, name)
		}
	}
	return names
}
