package mcpbridge

import (
	"context"
	"encoding/json"
	"testing"
)

// fakeTransport is an in-memory transport double driven entirely by
// pre-scripted Call responses, so client behavior can be tested without
// spawning a process or opening a socket.
type fakeTransport struct {
	connected bool
	calls     []string
	responses map[string]json.RawMessage
	requests  chan *JSONRPCRequest
	events    chan *JSONRPCNotification
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: map[string]json.RawMessage{},
		requests:  make(chan *JSONRPCRequest, 4),
		events:    make(chan *JSONRPCNotification, 4),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Close() error                      { f.connected = false; return nil }

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.calls = append(f.calls, method)
	if resp, ok := f.responses[method]; ok {
		return resp, nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error {
	f.calls = append(f.calls, "notify:"+method)
	return nil
}

func (f *fakeTransport) Events() <-chan *JSONRPCNotification { return f.events }
func (f *fakeTransport) Requests() <-chan *JSONRPCRequest    { return f.requests }
func (f *fakeTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	return nil
}
func (f *fakeTransport) Connected() bool { return f.connected }

func newTestClient(ft *fakeTransport) *client {
	return &client{config: &ServerConfig{ID: "test"}, transport: ft}
}

func TestClientConnectRunsHandshakeAndCachesTools(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["initialize"], _ = json.Marshal(InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      ServerInfo{Name: "fs-server", Version: "0.1.0"},
	})
	ft.responses["tools/list"], _ = json.Marshal(ListToolsResult{
		Tools: []*Tool{{Name: "read_file", Description: "reads a file"}},
	})

	c := newTestClient(ft)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.ServerInfo().Name != "fs-server" {
		t.Fatalf("unexpected server info: %+v", c.ServerInfo())
	}
	tools := c.Tools()
	if len(tools) != 1 || tools[0].Name != "read_file" {
		t.Fatalf("expected cached tool list, got %+v", tools)
	}
}

func TestClientCallToolFlattensTextContent(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["tools/call"], _ = json.Marshal(ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "hello"}, {Type: "text", Text: "world"}},
	})

	c := newTestClient(ft)
	result, err := c.CallTool(context.Background(), "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	text, isError := flattenToolResult(result)
	if isError {
		t.Fatal("did not expect an error result")
	}
	if text != "hello\nworld" {
		t.Fatalf("unexpected flattened text: %q", text)
	}
}

func TestClientHandleSamplingRespondsThroughTransport(t *testing.T) {
	ft := newFakeTransport()
	c := newTestClient(ft)

	done := make(chan struct{})
	c.HandleSampling(func(ctx context.Context, req *SamplingRequest) (*SamplingResponse, error) {
		defer close(done)
		return &SamplingResponse{Role: "assistant", Content: MessageContent{Type: "text", Text: "ack"}}, nil
	})

	params, _ := json.Marshal(SamplingRequest{Messages: []SamplingMessage{{Role: "user"}}})
	ft.requests <- &JSONRPCRequest{JSONRPC: "2.0", ID: int64(1), Method: "sampling/createMessage", Params: params}

	<-done
}
