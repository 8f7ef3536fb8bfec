package tools

import (
	"context"
	"encoding/json"

	"github.com/meridianlabs/agentgateway/internal/tools/webfetch"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// MemoryBackend is the subset of internal/memory.Store the memory_store
// and memory_recall tools depend on.
type MemoryBackend interface {
	StoreEntry(ctx context.Context, key, content string, metadata map[string]any) error
	Recall(ctx context.Context, query string, opts models.RecallOptions) ([]models.MemoryResult, error)
}

// CanvasBackend is the mutable canvas graph the canvas_render tool
// operates on. A session's canvas channel (when one is attached) reads
// from the same backend to stream rendered frames to clients.
type CanvasBackend interface {
	Apply(ctx context.Context, op CanvasOp) error
	Snapshot() []models.CanvasNode
	NodeCount() int
}

// CanvasOpKind enumerates the mutations canvas_render supports.
type CanvasOpKind string

const (
	CanvasAdd     CanvasOpKind = "add"
	CanvasUpdate  CanvasOpKind = "update"
	CanvasRemove  CanvasOpKind = "remove"
	CanvasMove    CanvasOpKind = "move"
	CanvasConnect CanvasOpKind = "connect"
	CanvasClear   CanvasOpKind = "clear"
)

// CanvasOp is one canvas_render mutation.
type CanvasOp struct {
	Kind       CanvasOpKind
	NodeID     string
	Node       *models.CanvasNode
	Position   *models.CanvasPosition
	Connection *models.CanvasConnection
}

// PaymentSigner produces a signed x402 payment authorisation for a
// web_fetch 402 challenge. A session without a signer configured still
// runs web_fetch, it just surfaces x402Required instead of paying.
// It is an alias for webfetch.Signer so callers can satisfy either
// name without an adapter shim.
type PaymentSigner = webfetch.Signer

// SkillBackend resolves a named instruction block for load_skill's
// progressive capability disclosure.
type SkillBackend interface {
	Get(name string) (string, bool)
	Names() []string
}

// SearchBackend is the pluggable web-search provider web_search
// delegates to.
type SearchBackend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchResult is one hit returned by a SearchBackend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// MCPBackend is the subset of the mcpbridge client mcp_client
// delegates to, kept as an interface here so internal/tools does not
// import internal/tools/mcpbridge directly (mcp_client's own file
// does, behind this seam).
type MCPBackend interface {
	ListTools(ctx context.Context, server string) ([]models.ToolDefinition, error)
	CallTool(ctx context.Context, server, name string, arguments json.RawMessage) (string, error)
}
