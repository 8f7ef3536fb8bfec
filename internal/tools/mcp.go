package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type mcpClientArgs struct {
	Server    string          `json:"server"`
	Action    string          `json:"action"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MCPClientTool is a universal bridge to any Model-Context-Protocol
// server: action=list_tools fetches and caches that server's tool
// catalog, action=call_tool invokes a named tool on it.
type MCPClientTool struct{}

func NewMCPClientTool() *MCPClientTool { return &MCPClientTool{} }

func (t *MCPClientTool) Name() string        { return "mcp_client" }
func (t *MCPClientTool) Description() string { return "List or call tools exposed by a configured Model-Context-Protocol server." }
func (t *MCPClientTool) Weight() Weight      { return Lightweight }

func (t *MCPClientTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"server":    map[string]any{"type": "string", "description": "Configured MCP server name."},
			"action":    map[string]any{"type": "string", "enum": []string{"list_tools", "call_tool"}},
			"name":      map[string]any{"type": "string", "description": "Tool name, required for call_tool."},
			"arguments": map[string]any{"type": "object", "description": "Tool arguments, for call_tool."},
		},
		"required": []string{"server", "action"},
	})
}

func (t *MCPClientTool) Validate(args json.RawMessage) ValidationResult {
	var in mcpClientArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	var errs []string
	errs = append(errs, requireNonEmpty("server", strings.TrimSpace(in.Server))...)
	switch in.Action {
	case "list_tools":
	case "call_tool":
		errs = append(errs, requireNonEmpty("name", strings.TrimSpace(in.Name))...)
	default:
		errs = append(errs, "action must be list_tools or call_tool")
	}
	if len(errs) > 0 {
		return invalid(errs...)
	}
	return ok()
}

func (t *MCPClientTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	if tc.MCP == nil {
		return ErrorResult("no MCP servers are configured"), nil
	}
	var in mcpClientArgs
	_ = json.Unmarshal(args, &in)

	switch in.Action {
	case "list_tools":
		defs, err := tc.MCP.ListTools(ctx, in.Server)
		if err != nil {
			return ErrorResult(err.Error()), nil
		}
		payload, _ := json.MarshalIndent(map[string]any{"tools": defs}, "", "  ")
		return Result{Success: true, Output: string(payload)}, nil

	case "call_tool":
		arguments := in.Arguments
		if len(arguments) == 0 {
			arguments = json.RawMessage(`{}`)
		}
		text, err := tc.MCP.CallTool(ctx, in.Server, in.Name, arguments)
		if err != nil {
			return ErrorResult(fmt.Sprintf("mcp:%s.%s: %v", in.Server, in.Name, err)), nil
		}
		return Result{Success: true, Output: text}, nil

	default:
		return ErrorResult("unsupported action"), nil
	}
}
