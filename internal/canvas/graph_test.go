package canvas

import (
	"context"
	"testing"

	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

func addOp(id string) tools.CanvasOp {
	return tools.CanvasOp{
		Kind:   tools.CanvasAdd,
		NodeID: id,
		Node: &models.CanvasNode{
			Component: models.CanvasComponent{ID: id, Type: "text"},
			Position:  models.CanvasPosition{X: 1, Y: 1},
		},
	}
}

func TestGraphAddAssignsMonotoneZIndex(t *testing.T) {
	g := NewGraph("sess-1", nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := g.Apply(ctx, addOp(id)); err != nil {
			t.Fatalf("apply add %s: %v", id, err)
		}
	}

	nodes := g.Snapshot()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	for i, want := range []int{0, 1, 2} {
		if nodes[i].ZIndex != want {
			t.Fatalf("node %d: expected zIndex %d, got %d", i, want, nodes[i].ZIndex)
		}
	}
}

func TestGraphAddRejectsDuplicate(t *testing.T) {
	g := NewGraph("sess-1", nil)
	ctx := context.Background()
	if err := g.Apply(ctx, addOp("a")); err != nil {
		t.Fatalf("apply add: %v", err)
	}
	if err := g.Apply(ctx, addOp("a")); err == nil {
		t.Fatal("expected a duplicate add to error")
	}
}

func TestGraphConnectRequiresExistingNodes(t *testing.T) {
	g := NewGraph("sess-1", nil)
	ctx := context.Background()
	if err := g.Apply(ctx, addOp("a")); err != nil {
		t.Fatalf("apply add: %v", err)
	}

	connect := tools.CanvasOp{
		Kind:       tools.CanvasConnect,
		Connection: &models.CanvasConnection{FromID: "a", ToID: "missing"},
	}
	if err := g.Apply(ctx, connect); err == nil {
		t.Fatal("expected connect to a missing node to error")
	}

	connect.Connection.ToID = "a"
	if err := g.Apply(ctx, connect); err != nil {
		t.Fatalf("unexpected error connecting existing nodes: %v", err)
	}
	if len(g.State().Connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(g.State().Connections))
	}
}

func TestGraphRemoveCascadesConnections(t *testing.T) {
	g := NewGraph("sess-1", nil)
	ctx := context.Background()
	if err := g.Apply(ctx, addOp("a")); err != nil {
		t.Fatalf("apply add a: %v", err)
	}
	if err := g.Apply(ctx, addOp("b")); err != nil {
		t.Fatalf("apply add b: %v", err)
	}
	if err := g.Apply(ctx, tools.CanvasOp{
		Kind:       tools.CanvasConnect,
		Connection: &models.CanvasConnection{FromID: "a", ToID: "b"},
	}); err != nil {
		t.Fatalf("apply connect: %v", err)
	}

	if err := g.Apply(ctx, tools.CanvasOp{Kind: tools.CanvasRemove, NodeID: "a"}); err != nil {
		t.Fatalf("apply remove: %v", err)
	}

	state := g.State()
	if len(state.Nodes) != 1 {
		t.Fatalf("expected 1 node left, got %d", len(state.Nodes))
	}
	if len(state.Connections) != 0 {
		t.Fatalf("expected the connection to cascade-delete, got %d", len(state.Connections))
	}
}

func TestGraphRemoveUnknownNodeErrors(t *testing.T) {
	g := NewGraph("sess-1", nil)
	if err := g.Apply(context.Background(), tools.CanvasOp{Kind: tools.CanvasRemove, NodeID: "nope"}); err == nil {
		t.Fatal("expected removing an unknown node to error")
	}
}

func TestGraphMoveUpdatesPosition(t *testing.T) {
	g := NewGraph("sess-1", nil)
	ctx := context.Background()
	if err := g.Apply(ctx, addOp("a")); err != nil {
		t.Fatalf("apply add: %v", err)
	}
	pos := models.CanvasPosition{X: 9, Y: 9}
	if err := g.Apply(ctx, tools.CanvasOp{Kind: tools.CanvasMove, NodeID: "a", Position: &pos}); err != nil {
		t.Fatalf("apply move: %v", err)
	}
	nodes := g.Snapshot()
	if nodes[0].Position.X != 9 || nodes[0].Position.Y != 9 {
		t.Fatalf("expected node moved to (9,9), got %+v", nodes[0].Position)
	}
}

func TestGraphClearResetsEverything(t *testing.T) {
	g := NewGraph("sess-1", nil)
	ctx := context.Background()
	if err := g.Apply(ctx, addOp("a")); err != nil {
		t.Fatalf("apply add: %v", err)
	}
	if err := g.Apply(ctx, tools.CanvasOp{Kind: tools.CanvasClear}); err != nil {
		t.Fatalf("apply clear: %v", err)
	}
	if g.NodeCount() != 0 {
		t.Fatalf("expected 0 nodes after clear, got %d", g.NodeCount())
	}

	if err := g.Apply(ctx, addOp("a")); err != nil {
		t.Fatalf("apply add after clear: %v", err)
	}
	if g.Snapshot()[0].ZIndex != 0 {
		t.Fatalf("expected zIndex to restart at 0 after clear, got %d", g.Snapshot()[0].ZIndex)
	}
}

func TestGraphBroadcastsChangesOnApply(t *testing.T) {
	var got []*Change
	g := NewGraph("sess-1", func(sessionID string, change *Change) {
		if sessionID != "sess-1" {
			t.Fatalf("unexpected session id: %s", sessionID)
		}
		got = append(got, change)
	})
	if err := g.Apply(context.Background(), addOp("a")); err != nil {
		t.Fatalf("apply add: %v", err)
	}
	if len(got) != 1 || got[0].Op != string(tools.CanvasAdd) {
		t.Fatalf("expected one add change broadcast, got %+v", got)
	}
}

func TestManagerGraphForIsStablePerSession(t *testing.T) {
	m := NewManager(nil)
	g1 := m.GraphFor("sess-1")
	g2 := m.GraphFor("sess-1")
	if g1 != g2 {
		t.Fatal("expected the same graph instance for the same session id")
	}

	if err := g1.Apply(context.Background(), addOp("a")); err != nil {
		t.Fatalf("apply add: %v", err)
	}
	if _, ok := m.Snapshot("sess-1"); !ok {
		t.Fatal("expected a snapshot once the graph has a node")
	}
	m.Remove("sess-1")
	if _, ok := m.Snapshot("sess-1"); ok {
		t.Fatal("expected no snapshot after removal")
	}
}
