package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridianlabs/agentgateway/internal/providers"
	"github.com/meridianlabs/agentgateway/internal/security"
	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// fakeProvider replays one pre-scripted response per call to Complete,
// in order, mirroring how the upstream API's test doubles model a
// multi-turn conversation.
type fakeProvider struct {
	responses [][]providers.CompletionChunk
	call      int32
	onCall    func(req providers.CompletionRequest)
}

func (p *fakeProvider) Name() string                       { return "fake" }
func (p *fakeProvider) Models() []providers.ModelInfo       { return nil }
func (p *fakeProvider) SupportsTools() bool                 { return true }
func (p *fakeProvider) Complete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.CompletionChunk, error) {
	if p.onCall != nil {
		p.onCall(req)
	}
	idx := int(atomic.AddInt32(&p.call, 1)) - 1
	ch := make(chan providers.CompletionChunk, 16)
	go func() {
		defer close(ch)
		if idx >= len(p.responses) {
			ch <- providers.CompletionChunk{Done: true}
			return
		}
		for _, chunk := range p.responses[idx] {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				ch <- providers.CompletionChunk{Err: ctx.Err()}
				return
			}
		}
	}()
	return ch, nil
}

// slowProvider streams a fixed number of deltas with a small delay
// between each, so a test can exercise mid-stream cancellation.
type slowProvider struct {
	deltas int
	delay  time.Duration
}

func (p *slowProvider) Name() string                 { return "slow" }
func (p *slowProvider) Models() []providers.ModelInfo { return nil }
func (p *slowProvider) SupportsTools() bool           { return false }
func (p *slowProvider) Complete(ctx context.Context, req providers.CompletionRequest) (<-chan providers.CompletionChunk, error) {
	ch := make(chan providers.CompletionChunk, 1)
	go func() {
		defer close(ch)
		for i := 0; i < p.deltas; i++ {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				ch <- providers.CompletionChunk{Err: ctx.Err()}
				return
			}
			select {
			case ch <- providers.CompletionChunk{Text: "x"}:
			case <-ctx.Done():
				ch <- providers.CompletionChunk{Err: ctx.Err()}
				return
			}
		}
		ch <- providers.CompletionChunk{Done: true}
	}()
	return ch, nil
}

// echoTool is a minimal Tool used to exercise the execute-tools phase
// without depending on any of the real tool implementations.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input argument" }
func (echoTool) Weight() tools.Weight { return tools.Lightweight }

func (echoTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
}

func (echoTool) Validate(json.RawMessage) tools.ValidationResult {
	return tools.ValidationResult{Valid: true}
}

func (echoTool) Execute(ctx context.Context, args json.RawMessage, tc *tools.Context) (tools.Result, error) {
	var in struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(args, &in)
	return tools.OutputResult("echo: " + in.Text), nil
}

// memSteeringQueue is a tiny FIFO SteeringQueue test double.
type memSteeringQueue struct {
	mu    sync.Mutex
	queue []models.SteeringMessage
}

func (q *memSteeringQueue) Enqueue(msg models.SteeringMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, msg)
}

func (q *memSteeringQueue) Drain() []models.SteeringMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	msgs := q.queue
	q.queue = nil
	return msgs
}

func collect(t *testing.T, events <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestStartRunColdStartNoTools(t *testing.T) {
	provider := &fakeProvider{responses: [][]providers.CompletionChunk{
		{{Text: "Hi "}, {Text: "there."}, {Done: true, OutputTokens: 4}},
	}}
	e := New(provider, nil, Config{}, nil)

	handle, err := e.StartRun(context.Background(), Job{
		SessionID: "s1",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "Hello"}},
		Model:     "fake-model",
	}, RunOptions{})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	events := collect(t, handle.Events(), 2*time.Second)
	if len(events) < 2 {
		t.Fatalf("expected at least started+completed, got %d events", len(events))
	}
	if events[0].Kind != Started {
		t.Fatalf("expected first event to be Started, got %v", events[0].Kind)
	}
	last := events[len(events)-1]
	if last.Kind != Completed {
		t.Fatalf("expected terminal Completed, got %v: %v", last.Kind, last.Err)
	}
	if last.Answer != "Hi there." {
		t.Fatalf("unexpected answer: %q", last.Answer)
	}
}

func TestStartRunMissingModel(t *testing.T) {
	e := New(&fakeProvider{}, nil, Config{}, nil)
	_, err := e.StartRun(context.Background(), Job{}, RunOptions{})
	if !errors.Is(err, ErrNoModel) {
		t.Fatalf("expected ErrNoModel, got %v", err)
	}
}

func TestStartRunToolRoundTrip(t *testing.T) {
	provider := &fakeProvider{responses: [][]providers.CompletionChunk{
		{{ToolCall: &models.ToolCall{ID: "call1", Name: "echo", Args: json.RawMessage(`{"text":"hi"}`)}}, {Done: true}},
		{{Text: "done"}, {Done: true}},
	}}
	registry := tools.NewRegistry()
	registry.Register(echoTool{})
	e := New(provider, registry, Config{}, nil)

	handle, err := e.StartRun(context.Background(), Job{
		SessionID: "s1",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "list files"}},
		Model:     "fake-model",
	}, RunOptions{})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	events := collect(t, handle.Events(), 2*time.Second)

	var sawToolStart, sawToolEnd, sawCompleted bool
	for _, ev := range events {
		switch ev.Kind {
		case ToolStart:
			sawToolStart = true
			if ev.ToolName != "echo" {
				t.Fatalf("unexpected tool name: %q", ev.ToolName)
			}
		case ToolEnd:
			sawToolEnd = true
			if ev.ToolResult == nil || !ev.ToolResult.Success || ev.ToolResult.Output != "echo: hi" {
				t.Fatalf("unexpected tool result: %+v", ev.ToolResult)
			}
		case Completed:
			sawCompleted = true
			if ev.Answer != "done" {
				t.Fatalf("unexpected final answer: %q", ev.Answer)
			}
		}
	}
	if !sawToolStart || !sawToolEnd || !sawCompleted {
		t.Fatalf("missing expected events: start=%v end=%v completed=%v", sawToolStart, sawToolEnd, sawCompleted)
	}
}

func TestStartRunCancellationMidStream(t *testing.T) {
	provider := &slowProvider{deltas: 10, delay: 20 * time.Millisecond}
	e := New(provider, nil, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := e.StartRun(ctx, Job{
		SessionID: "s1",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "stream"}},
		Model:     "fake-model",
	}, RunOptions{})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	go func() {
		time.Sleep(70 * time.Millisecond)
		cancel()
	}()

	events := collect(t, handle.Events(), 3*time.Second)
	last := events[len(events)-1]
	if last.Kind != Error {
		t.Fatalf("expected terminal Error event, got %v", last.Kind)
	}
	if !errors.Is(last.Err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", last.Err)
	}
	var deltaCount int
	for _, ev := range events {
		if ev.Kind == TextDelta {
			deltaCount++
		}
		if ev.Kind == Completed {
			t.Fatal("did not expect a Completed event after cancellation")
		}
	}
	if deltaCount >= 10 {
		t.Fatalf("expected cancellation to cut the stream short, got %d deltas", deltaCount)
	}
}

func TestStartRunSteeringAppliedBetweenTurns(t *testing.T) {
	var seenSystemMessages []string
	provider := &fakeProvider{
		responses: [][]providers.CompletionChunk{
			{{ToolCall: &models.ToolCall{ID: "call1", Name: "echo", Args: json.RawMessage(`{"text":"hi"}`)}}, {Done: true}},
			{{Text: "mentioned X"}, {Done: true}},
		},
		onCall: func(req providers.CompletionRequest) {
			for _, m := range req.Messages {
				seenSystemMessages = append(seenSystemMessages, m.Content)
			}
		},
	}
	registry := tools.NewRegistry()
	registry.Register(echoTool{})
	e := New(provider, registry, Config{}, nil)

	queue := &memSteeringQueue{}
	handle, err := e.StartRun(context.Background(), Job{
		SessionID: "s1",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "go"}},
		Model:     "fake-model",
		Steering:  queue,
	}, RunOptions{})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	handle.Steer(models.SteeringMessage{Kind: models.SteeringInject, Content: "Also mention X"})

	events := collect(t, handle.Events(), 2*time.Second)
	last := events[len(events)-1]
	if last.Kind != Completed || last.Answer != "mentioned X" {
		t.Fatalf("unexpected terminal event: %+v", last)
	}

	var foundInjected bool
	for _, content := range seenSystemMessages {
		if content == "Also mention X" {
			foundInjected = true
		}
	}
	if !foundInjected {
		t.Fatalf("expected the steering message to appear in a later provider call, saw: %v", seenSystemMessages)
	}
}

func TestResumeValidatesEngineIdentity(t *testing.T) {
	e := New(&fakeProvider{}, nil, Config{ID: "engine-a"}, nil)
	_, err := e.Resume(context.Background(), ResumeToken{EngineID: "engine-b"}, "hi", RunOptions{})
	if !errors.Is(err, ErrResumeTokenMismatch) {
		t.Fatalf("expected ErrResumeTokenMismatch, got %v", err)
	}
}

func TestResumeStartsFreshRunFromSnapshot(t *testing.T) {
	provider := &fakeProvider{responses: [][]providers.CompletionChunk{
		{{Text: "ok"}, {Done: true}},
	}}
	e := New(provider, nil, Config{ID: "engine-a"}, nil)

	token := ResumeToken{
		EngineID: "engine-a",
		Ref:      "run-1",
		Messages: []models.Message{{Role: models.RoleUser, Content: "earlier"}},
		Model:    "fake-model",
	}

	handle, err := e.Resume(context.Background(), token, "continue please", RunOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	events := collect(t, handle.Events(), 2*time.Second)
	if events[0].Kind != Started {
		t.Fatalf("expected first event to be Started, got %v", events[0].Kind)
	}
	if events[0].ResumeToken == nil || events[0].ResumeToken.EngineID != "engine-a" {
		t.Fatalf("unexpected resume token on started event: %+v", events[0].ResumeToken)
	}
}

func TestConfirmationDeniedByDefaultWithoutResolver(t *testing.T) {
	provider := &fakeProvider{responses: [][]providers.CompletionChunk{
		{{ToolCall: &models.ToolCall{ID: "call1", Name: "echo", Args: json.RawMessage(`{"text":"hi"}`)}}, {Done: true}},
		{{Text: "done"}, {Done: true}},
	}}
	registry := tools.NewRegistry()
	registry.Register(echoTool{})
	e := New(provider, registry, Config{}, nil)

	policy := security.NewPolicy("/workspace", security.AutonomyReadonly, nil, nil)
	handle, err := e.StartRun(context.Background(), Job{
		SessionID: "s1",
		Messages:  []models.Message{{Role: models.RoleUser, Content: "write something"}},
		Model:     "fake-model",
	}, RunOptions{ToolContext: &tools.Context{SecurityPolicy: policy}})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	events := collect(t, handle.Events(), 2*time.Second)

	var sawConfirmation bool
	var toolResult *models.ToolResult
	for _, ev := range events {
		if ev.Kind == ConfirmationRequested {
			sawConfirmation = true
		}
		if ev.Kind == ToolEnd {
			toolResult = ev.ToolResult
		}
	}
	if !sawConfirmation {
		t.Fatal("expected a confirmation_requested event for a write-classified tool under readonly autonomy")
	}
	if toolResult == nil || toolResult.Success {
		t.Fatalf("expected the tool call to be denied, got %+v", toolResult)
	}
}
