// Package engine drives the provider-tool iteration that turns one
// inbound session message into a streamed answer: call the provider,
// translate its stream into events, execute any requested tools, and
// repeat until the provider produces a tool-free turn or the run is
// cancelled.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/agentgateway/internal/providers"
	"github.com/meridianlabs/agentgateway/internal/security"
	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Config tunes an Engine's turn algorithm. Zero values fall back to
// sane defaults in New.
type Config struct {
	// ID identifies this engine instance; stamped into every
	// ResumeToken it mints, and checked by Resume.
	ID string

	// MaxIterations bounds the number of provider turns a single run
	// may take before it is aborted as non-convergent.
	MaxIterations int

	// MaxToolCallsPerTurn bounds how many tool calls one provider turn
	// may request; zero means unlimited.
	MaxToolCallsPerTurn int

	// MaxTokens is the default max-tokens budget passed to the
	// provider when the job specifies none.
	MaxTokens int

	// DefaultModel and DefaultSystemPrompt back-fill a Job that
	// specifies neither.
	DefaultModel        string
	DefaultSystemPrompt string
}

func (c *Config) setDefaults() {
	if c.ID == "" {
		c.ID = "engine-" + uuid.NewString()
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
}

// Engine drives the agent run loop over one LLM provider and one tool
// registry. A single Engine is shared across every session that uses
// the same provider/tool configuration; per-run state lives entirely
// in the goroutine StartRun spawns.
type Engine struct {
	provider providers.Provider
	registry *tools.Registry
	config   Config
	logger   *slog.Logger
}

// New builds an Engine. registry may be nil, yielding a tool-less
// engine; logger may be nil, falling back to slog.Default().
func New(provider providers.Provider, registry *tools.Registry, config Config, logger *slog.Logger) *Engine {
	config.setDefaults()
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider: provider,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "engine", "engine_id", config.ID),
	}
}

// StartRun begins a new run against job and returns a handle streaming
// its events. The returned error is only non-nil for a malformed job;
// once a handle is returned, any failure in the turn algorithm surfaces
// as a terminal Error event rather than a returned error.
func (e *Engine) StartRun(ctx context.Context, job Job, opts RunOptions) (*RunHandle, error) {
	if job.Model == "" {
		job.Model = e.config.DefaultModel
	}
	if job.Model == "" {
		return nil, ErrNoModel
	}
	if job.SystemPrompt == "" {
		job.SystemPrompt = e.config.DefaultSystemPrompt
	}
	if len(job.Tools) == 0 {
		job.Tools = e.registryToolDefinitions()
	}

	ref := uuid.NewString()
	return e.run(ctx, ref, job, opts), nil
}

// Resume validates token's engine identity, appends prompt as a new
// user message onto the snapshotted conversation, and starts a fresh
// run from that state. The run produces a new ResumeToken on
// completion; tokens do not chain implicitly.
func (e *Engine) Resume(ctx context.Context, token ResumeToken, prompt string, opts RunOptions) (*RunHandle, error) {
	if token.EngineID != e.config.ID {
		return nil, ErrResumeTokenMismatch
	}

	messages := make([]models.Message, len(token.Messages), len(token.Messages)+1)
	copy(messages, token.Messages)
	messages = append(messages, models.Message{
		Role:      models.RoleUser,
		Content:   prompt,
		CreatedAt: runNow(),
	})

	job := Job{
		Messages:     messages,
		Tools:        token.Tools,
		SystemPrompt: token.SystemPrompt,
		Model:        token.Model,
	}
	return e.StartRun(ctx, job, opts)
}

func (e *Engine) registryToolDefinitions() []models.ToolDefinition {
	summaries := e.registry.Definitions()
	defs := make([]models.ToolDefinition, 0, len(summaries))
	for _, s := range summaries {
		defs = append(defs, models.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return defs
}

func (e *Engine) heavyweightSet() map[string]bool {
	names := e.registry.HeavyweightNames()
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// run spawns the turn-algorithm goroutine and returns its handle
// immediately; the first event the caller observes on the returned
// handle is always Started.
func (e *Engine) run(ctx context.Context, ref string, job Job, opts RunOptions) *RunHandle {
	runCtx, cancel := context.WithCancel(ctx)
	if opts.MaxWallTime > 0 {
		var wallCancel context.CancelFunc
		runCtx, wallCancel = context.WithTimeout(runCtx, opts.MaxWallTime)
		origCancel := cancel
		cancel = func() { wallCancel(); origCancel() }
	}

	handle := &RunHandle{
		ref:      ref,
		events:   make(chan Event, 16),
		cancel:   cancel,
		steering: job.Steering,
	}

	t := &turn{
		engine:   e,
		job:      job,
		opts:     opts,
		ref:      ref,
		events:   handle.events,
		messages: append([]models.Message(nil), job.Messages...),
	}

	go func() {
		defer cancel()
		defer close(handle.events)
		t.send(Event{Kind: Started, ResumeToken: t.resumeToken()})
		t.runLoop(runCtx)
	}()

	return handle
}

// turn carries the mutable state of one in-flight run across its
// iterations: the growing message log, iteration/tool-call counters,
// and the channel events are published to.
type turn struct {
	engine *Engine
	job    Job
	opts   RunOptions
	ref    string
	events chan Event

	messages       []models.Message
	iteration      int
	totalToolCalls int
}

func (t *turn) send(ev Event) {
	t.events <- ev
}

func (t *turn) resumeToken() *ResumeToken {
	return &ResumeToken{
		EngineID:     t.engine.config.ID,
		Ref:          t.ref,
		Messages:     append([]models.Message(nil), t.messages...),
		Tools:        t.job.Tools,
		SystemPrompt: t.job.SystemPrompt,
		Model:        t.job.Model,
	}
}

func (t *turn) fail(phase Phase, cause error) {
	t.send(Event{Kind: Error, Err: &RunError{Phase: phase, Iteration: t.iteration, Cause: cause}})
}

// runLoop implements the turn algorithm: drain steering, stream a
// provider turn, execute any requested tools, and repeat until the
// provider converges on a tool-free answer, the run is cancelled, or
// the iteration budget is exhausted.
func (t *turn) runLoop(ctx context.Context) {
	for t.iteration < t.engine.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			t.fail(PhaseSteering, ErrCancelled)
			return
		}

		if cancelled := t.drainSteering(); cancelled {
			t.fail(PhaseSteering, ErrCancelled)
			return
		}

		toolCalls, answer, usage, err := t.streamPhase(ctx)
		if err != nil {
			t.fail(PhaseStream, err)
			return
		}

		if t.engine.config.MaxToolCallsPerTurn > 0 && len(toolCalls) > t.engine.config.MaxToolCallsPerTurn {
			t.fail(PhaseStream, fmt.Errorf("tool calls exceed maximum of %d for this turn", t.engine.config.MaxToolCallsPerTurn))
			return
		}
		t.totalToolCalls += len(toolCalls)

		if len(toolCalls) == 0 {
			t.messages = append(t.messages, models.Message{
				Role:      models.RoleAssistant,
				Content:   answer,
				CreatedAt: runNow(),
			})
			t.send(Event{Kind: Completed, Answer: answer, Usage: usage, ToolInvocations: t.totalToolCalls})
			return
		}

		t.messages = append(t.messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   answer,
			ToolCalls: toolCalls,
			CreatedAt: runNow(),
		})

		if err := t.executeToolsPhase(ctx, toolCalls); err != nil {
			if ctx.Err() != nil {
				t.fail(PhaseExecuteTools, ErrCancelled)
			} else {
				t.fail(PhaseExecuteTools, err)
			}
			return
		}

		t.iteration++
	}

	t.fail(PhaseStream, ErrMaxIterations)
}

// drainSteering empties the job's steering queue, appending each
// queued inject/reminder message as a user Message in FIFO order. A
// queued abort message ends the run immediately.
func (t *turn) drainSteering() (cancelled bool) {
	if t.job.Steering == nil {
		return false
	}
	for _, msg := range t.job.Steering.Drain() {
		switch msg.Kind {
		case models.SteeringAbort:
			return true
		case models.SteeringReminder:
			t.messages = append(t.messages, models.Message{
				Role:      models.RoleUser,
				Content:   "[REMINDER] " + msg.Content,
				CreatedAt: runNow(),
			})
		default: // models.SteeringInject
			t.messages = append(t.messages, models.Message{
				Role:      models.RoleUser,
				Content:   msg.Content,
				CreatedAt: runNow(),
			})
		}
	}
	return false
}

// streamPhase invokes the provider and translates its stream into
// text_delta/started-adjacent events, returning the tool calls the
// provider requested and the accumulated answer text.
func (t *turn) streamPhase(ctx context.Context) ([]models.ToolCall, string, *Usage, error) {
	req := providers.CompletionRequest{
		Model:     t.job.Model,
		System:    t.job.SystemPrompt,
		Messages:  t.messages,
		Tools:     t.job.Tools,
		MaxTokens: t.engine.config.MaxTokens,
	}

	stream, err := t.engine.provider.Complete(ctx, req)
	if err != nil {
		return nil, "", nil, err
	}

	var answer string
	var toolCalls []models.ToolCall
	var usage Usage

	for chunk := range stream {
		if chunk.Err != nil {
			return nil, "", nil, chunk.Err
		}
		if chunk.Text != "" {
			answer += chunk.Text
			t.send(Event{Kind: TextDelta, Delta: chunk.Text})
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			usage.InputTokens = chunk.InputTokens
			usage.OutputTokens = chunk.OutputTokens
		}
	}

	return toolCalls, answer, &usage, nil
}

// executeToolsPhase runs every pending tool call, consulting the
// security policy's confirmation gate first, and appends one tool-role
// Message per result onto the conversation.
func (t *turn) executeToolsPhase(ctx context.Context, toolCalls []models.ToolCall) error {
	heavy := t.engine.heavyweightSet()

	for _, call := range toolCalls {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t.send(Event{Kind: ToolStart, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: call.Args})

		if allowed, err := t.checkConfirmation(ctx, call); err != nil {
			return err
		} else if !allowed {
			result := models.ToolResult{ToolCallID: call.ID, Success: false, Error: "denied: confirmation required but not granted"}
			t.appendToolResult(call, result)
			t.send(Event{Kind: ToolEnd, ToolCallID: call.ID, ToolName: call.Name, ToolResult: &result})
			continue
		}

		result := t.executeTool(ctx, heavy, call)
		t.appendToolResult(call, result)
		t.send(Event{Kind: ToolEnd, ToolCallID: call.ID, ToolName: call.Name, ToolResult: &result})
	}

	return nil
}

// checkConfirmation consults the run's tool context security policy,
// if any, and the caller's resolver when confirmation is required.
func (t *turn) checkConfirmation(ctx context.Context, call models.ToolCall) (bool, error) {
	tc := t.opts.ToolContext
	if tc == nil || tc.SecurityPolicy == nil {
		return true, nil
	}

	action := security.Action{Type: call.Name}
	if !tc.SecurityPolicy.RequiresConfirmation(action) {
		return true, nil
	}

	reason := fmt.Sprintf("tool %q requires confirmation under the current autonomy level", call.Name)
	t.send(Event{Kind: ConfirmationRequested, ToolCallID: call.ID, ToolName: call.Name, ConfirmationReason: reason})

	if t.opts.ConfirmationResolver == nil {
		return false, nil
	}
	return t.opts.ConfirmationResolver(ctx, t.job.SessionID, call, reason)
}

// executeTool runs call via the worker-pool dispatcher when it is
// registered as heavyweight and a dispatcher was wired in, otherwise
// runs it inline through the registry.
func (t *turn) executeTool(ctx context.Context, heavy map[string]bool, call models.ToolCall) models.ToolResult {
	tc := t.runToolContext(ctx, call)

	var result tools.Result
	var err error
	if heavy[call.Name] && t.opts.HeavyweightDispatcher != nil {
		result, err = t.opts.HeavyweightDispatcher.Dispatch(ctx, call.Name, call.Args, tc)
	} else {
		result, err = t.engine.registry.Execute(ctx, call.Name, call.Args, tc)
	}
	if err != nil {
		return models.ToolResult{ToolCallID: call.ID, Success: false, Error: err.Error()}
	}
	return models.ToolResult{
		ToolCallID: call.ID,
		Success:    result.Success,
		Output:     result.Output,
		Error:      result.Error,
		Metadata:   result.Metadata,
	}
}

// runToolContext copies the run's tool-context template, wires in this
// run's own abort signal so cancellation reaches in-flight tools, and
// relays progress updates onto the run's event stream as ToolProgress
// events in addition to any caller-supplied sink.
func (t *turn) runToolContext(ctx context.Context, call models.ToolCall) *tools.Context {
	var tc tools.Context
	if t.opts.ToolContext != nil {
		tc = *t.opts.ToolContext
	}
	if tc.SessionID == "" {
		tc.SessionID = t.job.SessionID
	}
	tc.AbortSignal = ctx.Done()

	userSink := tc.OnProgress
	tc.OnProgress = func(update tools.ProgressUpdate) {
		if userSink != nil {
			userSink(update)
		}
		t.send(Event{Kind: ToolProgress, ToolCallID: call.ID, ToolName: call.Name, Progress: &update})
	}
	return &tc
}

func (t *turn) appendToolResult(call models.ToolCall, result models.ToolResult) {
	t.messages = append(t.messages, models.Message{
		Role:       models.RoleTool,
		Content:    result.Output,
		ToolCallID: call.ID,
		CreatedAt:  runNow(),
	})
}

// runNow is the single place the turn algorithm reads wall-clock time,
// so tests can exercise deterministic message ordering without faking
// the clock globally.
func runNow() time.Time {
	return time.Now()
}
