package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

const defaultCanvasNodeCap = 200

type canvasRenderArgs struct {
	Op         string                   `json:"op"`
	NodeID     string                   `json:"node_id"`
	Node       *models.CanvasNode       `json:"node"`
	Position   *models.CanvasPosition   `json:"position"`
	Connection *models.CanvasConnection `json:"connection"`
}

// CanvasRenderTool mutates a session's canvas graph: add, update,
// remove, move, connect, or clear. The node cap is enforced here
// rather than in the backend so every caller of CanvasBackend.Apply
// sees a uniform error regardless of which tool or channel triggered
// the mutation.
type CanvasRenderTool struct {
	NodeCap int
}

func NewCanvasRenderTool(nodeCap int) *CanvasRenderTool {
	if nodeCap <= 0 {
		nodeCap = defaultCanvasNodeCap
	}
	return &CanvasRenderTool{NodeCap: nodeCap}
}

func (t *CanvasRenderTool) Name() string        { return "canvas_render" }
func (t *CanvasRenderTool) Description() string { return "Add, update, move, connect, remove, or clear nodes on the session canvas." }
func (t *CanvasRenderTool) Weight() Weight      { return Lightweight }

func (t *CanvasRenderTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op":         map[string]any{"type": "string", "enum": []string{"add", "update", "remove", "move", "connect", "clear"}},
			"node_id":    map[string]any{"type": "string"},
			"node":       map[string]any{"type": "object"},
			"position":   map[string]any{"type": "object"},
			"connection": map[string]any{"type": "object"},
		},
		"required": []string{"op"},
	})
}

func (t *CanvasRenderTool) Validate(args json.RawMessage) ValidationResult {
	var in canvasRenderArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	switch CanvasOpKind(in.Op) {
	case CanvasAdd, CanvasUpdate:
		if in.Node == nil {
			return invalid("node is required for " + in.Op)
		}
	case CanvasRemove, CanvasMove:
		if strings.TrimSpace(in.NodeID) == "" {
			return invalid("node_id is required for " + in.Op)
		}
		if in.Op == string(CanvasMove) && in.Position == nil {
			return invalid("position is required for move")
		}
	case CanvasConnect:
		if in.Connection == nil {
			return invalid("connection is required for connect")
		}
	case CanvasClear:
	default:
		return invalid("unknown op: " + in.Op)
	}
	return ok()
}

func (t *CanvasRenderTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	if tc.Canvas == nil {
		return ErrorResult("canvas backend unavailable"), nil
	}
	var in canvasRenderArgs
	_ = json.Unmarshal(args, &in)

	kind := CanvasOpKind(in.Op)
	if kind == CanvasAdd && tc.Canvas.NodeCount() >= t.NodeCap {
		return ErrorResult(fmt.Sprintf("canvas node cap of %d reached", t.NodeCap)), nil
	}

	op := CanvasOp{
		Kind: kind, NodeID: in.NodeID, Node: in.Node,
		Position: in.Position, Connection: in.Connection,
	}
	if err := tc.Canvas.Apply(ctx, op); err != nil {
		return ErrorResult(err.Error()), nil
	}

	return Result{Success: true, Output: "applied", Metadata: map[string]any{"op": in.Op, "nodes": tc.Canvas.NodeCount()}}, nil
}
