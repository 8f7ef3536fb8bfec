package mcpbridge

import (
	"context"
	"encoding/json"
)

// transport is the wire-level contract a Client drives. Both the stdio
// and HTTP implementations satisfy the server-initiated request path
// (Requests/Respond) so sampling works uniformly regardless of which
// one a server config selects.
type transport interface {
	Connect(ctx context.Context) error
	Close() error

	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error

	Events() <-chan *JSONRPCNotification
	Requests() <-chan *JSONRPCRequest
	Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error

	Connected() bool
}

func newTransport(cfg *ServerConfig) transport {
	switch cfg.Transport {
	case TransportHTTP:
		return newHTTPTransport(cfg)
	default:
		return newStdioTransport(cfg)
	}
}
