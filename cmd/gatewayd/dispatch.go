package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/internal/engine"
	"github.com/meridianlabs/agentgateway/internal/security"
	"github.com/meridianlabs/agentgateway/internal/session"
	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// maxConcurrentMessages bounds how many inbound messages are run
// against the engine at once, across every channel combined.
const maxConcurrentMessages = 16

// maxWallTime bounds a single run's duration; a run that exceeds it is
// cancelled and reported back to the channel as a timeout.
const maxWallTime = 5 * time.Minute

// dispatchLoop fans inbound messages from every channel adapter into
// per-message goroutines, bounded by a semaphore so one noisy channel
// can't starve the others.
func (g *gatewayServer) dispatchLoop(ctx context.Context) {
	messages := g.channels.AggregateMessages(ctx)
	sem := make(chan struct{}, maxConcurrentMessages)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case msg, ok := <-messages:
			if !ok {
				wg.Wait()
				return
			}
			select {
			case sem <- struct{}{}:
				wg.Add(1)
				go func(m channels.InboundMessage) {
					defer func() {
						<-sem
						wg.Done()
					}()
					g.handleMessage(ctx, m)
				}(msg)
			case <-ctx.Done():
				wg.Wait()
				return
			}
		}
	}
}

// handleMessage routes one inbound message into its conversation's
// session, runs it against the engine, and delivers the answer back
// over the originating channel.
func (g *gatewayServer) handleMessage(ctx context.Context, msg channels.InboundMessage) {
	log := g.logger.WithContext(ctx)
	log.Debug(ctx, "received message", "channel", msg.ChannelID, "content_length", len(msg.Text))

	sess := g.sessions.GetOrCreate(msg.ChannelID, msg.From.UserID, msg.From.GroupID)
	g.metrics.MessageReceived(msg.ChannelID)

	if err := sess.Activate(); err != nil {
		log.Debug(ctx, "session activate no-op", "session_id", sess.ID(), "error", err)
	}

	g.screenInboundText(ctx, sess.ID(), msg.Text)

	userMsg := models.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID(),
		Role:      models.RoleUser,
		Content:   msg.Text,
		CreatedAt: time.Now(),
	}
	sess.AppendMessage(userMsg)

	eng, err := g.resolveEngine(sess.Config().Provider)
	if err != nil {
		log.Error(ctx, "no engine for session provider", "provider", sess.Config().Provider, "error", err)
		g.metrics.RecordError("dispatch", "unknown_provider")
		g.replyError(ctx, msg, "this conversation's configured provider is unavailable")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, maxWallTime)
	defer cancel()

	start := time.Now()
	handle, err := eng.StartRun(runCtx, engine.Job{
		SessionID:    sess.ID(),
		Messages:     sess.Messages(),
		Model:        sess.Config().Model,
		SystemPrompt: sess.Config().SystemPrompt,
		Steering:     sess.Steering(),
	}, engine.RunOptions{
		MaxWallTime: maxWallTime,
		ToolContext: g.toolContext(sess),
	})
	if err != nil {
		log.Error(ctx, "run start failed", "session_id", sess.ID(), "error", err)
		g.metrics.RecordRunAttempt("start_error")
		g.replyError(ctx, msg, "failed to start a response")
		return
	}
	g.metrics.RecordRunAttempt("started")
	sess.RecordIteration()

	answer, usage, runErr := drainRun(handle)
	duration := time.Since(start).Seconds()
	if runErr != nil {
		log.Error(ctx, "run failed", "session_id", sess.ID(), "error", runErr)
		g.metrics.RecordError("engine", "run_failed")
		g.metrics.RecordLLMRequest(sess.Config().Provider, sess.Config().Model, "error", duration, 0, 0)
		g.replyError(ctx, msg, "something went wrong generating a response")
		return
	}

	sess.RecordLLMCall()
	inputTokens, outputTokens := 0, 0
	if usage != nil {
		inputTokens, outputTokens = usage.InputTokens, usage.OutputTokens
		g.metrics.RecordContextWindow(sess.Config().Provider, sess.Config().Model, inputTokens+outputTokens)
	}
	g.metrics.RecordLLMRequest(sess.Config().Provider, sess.Config().Model, "success", duration, inputTokens, outputTokens)
	g.metrics.RecordMessageProcessed(msg.ChannelID, "success")

	assistantMsg := models.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID(),
		Role:      models.RoleAssistant,
		Content:   answer,
		CreatedAt: time.Now(),
	}
	sess.AppendMessage(assistantMsg)

	g.send(ctx, msg, answer)
}

// drainRun reads a run's event stream to completion and returns its
// final answer and usage, or the error carried on a terminal Error
// event.
func drainRun(handle *engine.RunHandle) (string, *engine.Usage, error) {
	var answer string
	var usage *engine.Usage
	for ev := range handle.Events() {
		switch ev.Kind {
		case engine.Completed:
			answer = ev.Answer
			usage = ev.Usage
		case engine.Error:
			return "", nil, ev.Err
		}
	}
	return answer, usage, nil
}

// screenInboundText runs an inbound message through the input
// validator and logs any findings. Detection only surfaces threats; it
// never blocks the message from reaching the engine, per the gateway's
// security policy.
func (g *gatewayServer) screenInboundText(ctx context.Context, sessionID, text string) {
	result := g.validator.Validate(sessionID, text)
	if result.Clean {
		return
	}
	log := g.logger.WithContext(ctx)
	for _, f := range result.Findings {
		log.Warn(ctx, "input validator finding",
			"session_id", sessionID, "category", f.Category, "severity", f.Severity, "detail", f.Detail)
		g.metrics.RecordError("input_validator", string(f.Category))
	}
}

// resolveEngine looks up the engine for providerName, falling back to
// the gateway's default provider when the session has none configured
// or its configured provider has since been removed.
func (g *gatewayServer) resolveEngine(providerName string) (*engine.Engine, error) {
	if providerName == "" {
		providerName = g.defaultProvider
	}
	if eng, ok := g.engines[providerName]; ok {
		return eng, nil
	}
	if eng, ok := g.engines[g.defaultProvider]; ok {
		return eng, nil
	}
	return nil, fmt.Errorf("gatewayd: no engine registered for provider %q", providerName)
}

// toolContext builds the tool invocation context a run's tool calls
// execute under: a workspace-scoped security policy matching the
// session's autonomy level, and the gateway's shared memory backend.
func (g *gatewayServer) toolContext(sess *session.Session) *tools.Context {
	policy := security.NewPolicy(g.workspace, security.AutonomyLevel(sess.Config().AutonomyLevel), nil, nil)
	return &tools.Context{
		SessionID:      sess.ID(),
		Cwd:            g.workspace,
		SecurityPolicy: policy,
		Memory:         g.memoryStore,
		Canvas:         g.canvasGraph.GraphFor(sess.ID()),
	}
}

// send delivers text back over the channel msg arrived on.
func (g *gatewayServer) send(ctx context.Context, msg channels.InboundMessage, text string) {
	outbound, ok := g.channels.GetOutbound(models.ChannelType(msg.ChannelID))
	if !ok {
		g.logger.Warn(ctx, "no outbound adapter for channel", "channel", msg.ChannelID)
		return
	}
	result, err := outbound.Send(ctx, channels.OutboundMessage{
		Recipient: msg.From,
		Text:      text,
	})
	if err != nil || !result.Success {
		g.logger.Warn(ctx, "send failed", "channel", msg.ChannelID, "error", err, "result_error", result.Error)
	}
}

// replyError sends a short, user-safe error message back over the
// channel the triggering inbound message arrived on.
func (g *gatewayServer) replyError(ctx context.Context, msg channels.InboundMessage, text string) {
	g.send(ctx, msg, strings.TrimSpace(text))
}
