// Package canvas implements the shared UI graph a session mirrors
// between an agent's canvas_render tool calls and a browser client
// connected over the canvas WebSocket channel: a keyed node map and a
// keyed connection map, per the "represent nodes in a keyed map and
// connections in a keyed map holding endpoint ids" guidance for
// cyclic-safe graph storage (no back-pointers, cascade delete by
// iterating connections on node removal).
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// NodeView is a CanvasNode addressed by its stable id, the shape used
// whenever a node crosses a wire (tool arguments, WS frames).
type NodeView struct {
	ID string `json:"id"`
	models.CanvasNode
}

// State is the full graph, as sent in a canvas snapshot frame.
type State struct {
	Nodes       []NodeView                `json:"nodes"`
	Connections []models.CanvasConnection `json:"connections"`
}

// Change describes one applied mutation, as sent in a canvas change
// frame; its shape mirrors the canvas_render tool's own arguments so a
// client can apply the identical op it would see logged server-side.
type Change struct {
	Op         string                   `json:"op"`
	NodeID     string                   `json:"node_id,omitempty"`
	Node       *NodeView                `json:"node,omitempty"`
	Position   *models.CanvasPosition   `json:"position,omitempty"`
	Connection *models.CanvasConnection `json:"connection,omitempty"`
}

// Broadcaster pushes an incremental change to whatever realtime
// transport a session has attached, e.g. the canvas WebSocket adapter.
// It is invoked under no lock, after the mutation it describes has
// fully committed.
type Broadcaster func(sessionID string, change *Change)

// Graph is an in-memory, session-scoped canvas state machine
// implementing tools.CanvasBackend. It is the concrete counterpart to
// the CanvasBackend interface every canvas_render call operates
// through; the node cap itself is enforced by the calling tool against
// NodeCount, so Graph only ever has to reject structurally invalid
// mutations (unknown node, dangling connection endpoints).
type Graph struct {
	sessionID   string
	broadcaster Broadcaster

	mu          sync.RWMutex
	nodes       map[string]*models.CanvasNode
	order       []string // insertion order; also the order zIndex was assigned in
	connections map[string]models.CanvasConnection
	nextZIndex  int
}

// NewGraph creates an empty graph for sessionID. broadcaster may be
// nil, in which case mutations are applied but never streamed anywhere
// (e.g. a session with no canvas client attached).
func NewGraph(sessionID string, broadcaster Broadcaster) *Graph {
	return &Graph{
		sessionID:   sessionID,
		broadcaster: broadcaster,
		nodes:       make(map[string]*models.CanvasNode),
		connections: make(map[string]models.CanvasConnection),
	}
}

// Apply performs one canvas_render mutation against the graph,
// enforcing: every connection references two existing nodes, removing
// a node cascades its incident connections, and zIndex is assigned
// monotonically in insertion order.
func (g *Graph) Apply(ctx context.Context, op tools.CanvasOp) error {
	change, err := g.apply(op)
	if err != nil {
		return err
	}
	if g.broadcaster != nil {
		g.broadcaster(g.sessionID, change)
	}
	return nil
}

func (g *Graph) apply(op tools.CanvasOp) (*Change, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch op.Kind {
	case tools.CanvasAdd:
		return g.applyAdd(op)
	case tools.CanvasUpdate:
		return g.applyUpdate(op)
	case tools.CanvasRemove:
		return g.applyRemove(op)
	case tools.CanvasMove:
		return g.applyMove(op)
	case tools.CanvasConnect:
		return g.applyConnect(op)
	case tools.CanvasClear:
		return g.applyClear()
	default:
		return nil, fmt.Errorf("canvas: unknown op %q", op.Kind)
	}
}

func (g *Graph) applyAdd(op tools.CanvasOp) (*Change, error) {
	if op.Node == nil {
		return nil, fmt.Errorf("canvas: add requires a node")
	}
	id := op.NodeID
	if id == "" {
		id = op.Node.Component.ID
	}
	if id == "" {
		return nil, fmt.Errorf("canvas: add requires a node id")
	}
	if _, exists := g.nodes[id]; exists {
		return nil, fmt.Errorf("canvas: node %q already exists", id)
	}

	node := *op.Node
	node.ZIndex = g.nextZIndex
	g.nextZIndex++
	g.nodes[id] = &node
	g.order = append(g.order, id)

	view := NodeView{ID: id, CanvasNode: node}
	return &Change{Op: string(tools.CanvasAdd), NodeID: id, Node: &view}, nil
}

func (g *Graph) applyUpdate(op tools.CanvasOp) (*Change, error) {
	if op.Node == nil {
		return nil, fmt.Errorf("canvas: update requires a node")
	}
	id := op.NodeID
	if id == "" {
		id = op.Node.Component.ID
	}
	existing, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("canvas: node %q does not exist", id)
	}

	updated := *op.Node
	updated.ZIndex = existing.ZIndex // zIndex reflects insertion order, never reassigned
	g.nodes[id] = &updated

	view := NodeView{ID: id, CanvasNode: updated}
	return &Change{Op: string(tools.CanvasUpdate), NodeID: id, Node: &view}, nil
}

func (g *Graph) applyRemove(op tools.CanvasOp) (*Change, error) {
	id := op.NodeID
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("canvas: node %q does not exist", id)
	}
	delete(g.nodes, id)
	for i, nodeID := range g.order {
		if nodeID == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	for connID, conn := range g.connections {
		if conn.FromID == id || conn.ToID == id {
			delete(g.connections, connID)
		}
	}
	return &Change{Op: string(tools.CanvasRemove), NodeID: id}, nil
}

func (g *Graph) applyMove(op tools.CanvasOp) (*Change, error) {
	if op.Position == nil {
		return nil, fmt.Errorf("canvas: move requires a position")
	}
	id := op.NodeID
	node, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("canvas: node %q does not exist", id)
	}
	node.Position = *op.Position
	return &Change{Op: string(tools.CanvasMove), NodeID: id, Position: op.Position}, nil
}

func (g *Graph) applyConnect(op tools.CanvasOp) (*Change, error) {
	if op.Connection == nil {
		return nil, fmt.Errorf("canvas: connect requires a connection")
	}
	conn := *op.Connection
	if _, ok := g.nodes[conn.FromID]; !ok {
		return nil, fmt.Errorf("canvas: connection references unknown node %q", conn.FromID)
	}
	if _, ok := g.nodes[conn.ToID]; !ok {
		return nil, fmt.Errorf("canvas: connection references unknown node %q", conn.ToID)
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	g.connections[conn.ID] = conn
	return &Change{Op: string(tools.CanvasConnect), Connection: &conn}, nil
}

func (g *Graph) applyClear() (*Change, error) {
	g.nodes = make(map[string]*models.CanvasNode)
	g.order = nil
	g.connections = make(map[string]models.CanvasConnection)
	g.nextZIndex = 0
	return &Change{Op: string(tools.CanvasClear)}, nil
}

// Snapshot returns every node in insertion order, matching the
// zIndex-is-monotone-in-insertion-order invariant: reading the slice
// front to back is reading it back-to-front-to-screen.
func (g *Graph) Snapshot() []models.CanvasNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]models.CanvasNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// NodeCount reports the live node count, the value canvas_render's
// node cap is enforced against.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// State returns the full graph (nodes keyed by id, plus connections),
// the shape pushed as a canvas snapshot frame to a newly connected
// client.
func (g *Graph) State() *State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	state := &State{
		Nodes:       make([]NodeView, 0, len(g.order)),
		Connections: make([]models.CanvasConnection, 0, len(g.connections)),
	}
	for _, id := range g.order {
		state.Nodes = append(state.Nodes, NodeView{ID: id, CanvasNode: *g.nodes[id]})
	}
	for _, conn := range g.connections {
		state.Connections = append(state.Connections, conn)
	}
	return state
}

// MarshalState encodes State as the raw JSON payload a canvas snapshot
// frame carries.
func (g *Graph) MarshalState() (json.RawMessage, error) {
	return json.Marshal(g.State())
}

var _ tools.CanvasBackend = (*Graph)(nil)
