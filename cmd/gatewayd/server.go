package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/meridianlabs/agentgateway/internal/canvas"
	"github.com/meridianlabs/agentgateway/internal/channels"
	canvaschannel "github.com/meridianlabs/agentgateway/internal/channels/canvas"
	"github.com/meridianlabs/agentgateway/internal/channels/discord"
	"github.com/meridianlabs/agentgateway/internal/channels/slack"
	"github.com/meridianlabs/agentgateway/internal/channels/telegram"
	"github.com/meridianlabs/agentgateway/internal/channels/terminal"
	"github.com/meridianlabs/agentgateway/internal/config"
	"github.com/meridianlabs/agentgateway/internal/engine"
	"github.com/meridianlabs/agentgateway/internal/gatewayhttp"
	"github.com/meridianlabs/agentgateway/internal/memory"
	"github.com/meridianlabs/agentgateway/internal/observability"
	"github.com/meridianlabs/agentgateway/internal/providers"
	"github.com/meridianlabs/agentgateway/internal/security"
	"github.com/meridianlabs/agentgateway/internal/sessionmgr"
	"github.com/meridianlabs/agentgateway/internal/supervisor"
	"github.com/meridianlabs/agentgateway/internal/tools"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// gatewayServer owns every long-lived subsystem gatewayd wires
// together: the provider/engine set, the tool registry and memory
// store behind it, the channel adapters and the session registry they
// dispatch into, the HTTP control plane, and the supervisor that
// restarts a crashed channel adapter rather than taking the whole
// process down with it.
type gatewayServer struct {
	cfg *config.Config

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	untrace func(context.Context) error

	engines         map[string]*engine.Engine
	defaultProvider string
	toolRegistry    *tools.Registry
	memoryStore     *memory.Store
	workspace       string

	sessions    *sessionmgr.Manager
	channels    *channels.Registry
	health      *supervisor.HealthMonitor
	supervisor  *supervisor.Supervisor
	canvas      *canvaschannel.Adapter
	canvasGraph *canvas.Manager
	validator   *security.Validator
	http        *gatewayhttp.Server

	dispatchCancel context.CancelFunc
	dispatchDone   chan struct{}
}

// newGatewayServer builds every subsystem from cfg but starts none of
// them; call Start to bring the gateway up.
func newGatewayServer(cfg *config.Config) (*gatewayServer, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics()
	tracer, untrace := observability.NewTracer(observability.TraceConfig{
		ServiceName:  "agentgateway",
		Endpoint:     cfg.Observability.TracingEndpoint,
		SamplingRate: cfg.Observability.SamplingRate,
	})

	providerSet, defaultProvider, err := buildProviders(cfg.Providers, cfg.Session.DefaultProvider)
	if err != nil {
		untrace(context.Background())
		return nil, err
	}

	toolRegistry := tools.CreateDefault()

	var memoryStore *memory.Store
	memoryPath := cfg.Workspace.Path + "/memory.db"
	memoryStore, err = memory.Open(memory.Config{Path: memoryPath}, nil)
	if err != nil {
		untrace(context.Background())
		return nil, fmt.Errorf("gatewayd: opening memory store: %w", err)
	}

	engines := make(map[string]*engine.Engine, len(providerSet))
	for name, provider := range providerSet {
		engines[name] = engine.New(provider, toolRegistry, engine.Config{
			ID:                  "engine-" + name,
			MaxIterations:       cfg.Session.MaxIterations,
			MaxTokens:           cfg.Session.MaxTokens,
			DefaultModel:        cfg.Session.DefaultModel,
			DefaultSystemPrompt: cfg.Session.DefaultSystemPrompt,
		}, logger.Slog())
	}

	var canvasAdapter *canvaschannel.Adapter
	canvasGraphs := canvas.NewManager(func(sessionID string, change *canvas.Change) {
		if canvasAdapter == nil {
			return
		}
		patch, err := json.Marshal(change)
		if err != nil {
			logger.Warn(context.Background(), "failed to encode canvas change", "session_id", sessionID, "error", err)
			return
		}
		if err := canvasAdapter.SendCanvasChange(sessionID, patch); err != nil {
			logger.Debug(context.Background(), "canvas change not delivered", "session_id", sessionID, "error", err)
		}
	})
	canvasAdapter = canvaschannel.NewAdapter(canvaschannel.Config{
		Logger: logger.Slog(),
		Snapshot: func(sessionID string) (json.RawMessage, bool) {
			state, ok := canvasGraphs.Snapshot(sessionID)
			if !ok {
				return nil, false
			}
			raw, err := json.Marshal(state)
			if err != nil {
				return nil, false
			}
			return raw, true
		},
	})

	validator := security.NewValidator(5)

	sessions := sessionmgr.New(sessionmgr.Config{
		DefaultModel:        cfg.Session.DefaultModel,
		DefaultProvider:     defaultProvider,
		DefaultAutonomy:     models.AutonomyLevel(cfg.Session.DefaultAutonomy),
		DefaultSystemPrompt: cfg.Session.DefaultSystemPrompt,
		IdleTTL:             cfg.Session.IdleTTL,
		OnEvict: func(sessionID string) {
			canvasGraphs.Remove(sessionID)
			validator.Reset(sessionID)
		},
	}, logger.Slog())

	health := supervisor.NewHealthMonitor(supervisor.HealthConfig{}, func(ev supervisor.Event) {
		logger.Warn(context.Background(), "channel health event",
			"child", ev.Child, "kind", ev.Kind)
	})
	restartCfg := supervisor.RestartConfig{
		InitialDelay:       cfg.Supervisor.InitialDelay,
		MaxDelay:           cfg.Supervisor.MaxDelay,
		CrashWindow:        cfg.Supervisor.CrashWindow,
		MaxCrashesInWindow: cfg.Supervisor.MaxCrashesInWindow,
		StateDir:           cfg.Supervisor.StateDir,
	}
	sup := supervisor.New(health, restartCfg, logger.Slog())

	channelRegistry := channels.NewRegistry()
	channelRegistry.Register(canvasAdapter)

	if err := registerChannels(channelRegistry, cfg.Channels, logger.Slog()); err != nil {
		memoryStore.Close()
		untrace(context.Background())
		return nil, err
	}

	httpServer := gatewayhttp.New(gatewayhttp.Config{
		Addr:     cfg.Server.Addr,
		Sessions: sessions,
		Channels: channelRegistry,
		Health:   health,
		Canvas:   canvasAdapter,
		Logger:   logger.Slog(),
	})

	return &gatewayServer{
		cfg:             cfg,
		logger:          logger,
		metrics:         metrics,
		tracer:          tracer,
		untrace:         untrace,
		engines:         engines,
		defaultProvider: defaultProvider,
		toolRegistry:    toolRegistry,
		memoryStore:     memoryStore,
		workspace:       cfg.Workspace.Path,
		sessions:        sessions,
		channels:        channelRegistry,
		health:          health,
		supervisor:      sup,
		canvas:          canvasAdapter,
		canvasGraph:     canvasGraphs,
		validator:       validator,
		http:            httpServer,
	}, nil
}

// buildProviders constructs one Provider per credentialed backend in
// cfg, keyed by its own Name(). Returns an error if no provider ends
// up credentialed, or if defaultProviderName names one that isn't.
func buildProviders(cfg config.ProvidersConfig, defaultProviderName string) (map[string]providers.Provider, string, error) {
	built := map[string]providers.Provider{}

	if cfg.Anthropic.APIKey != "" {
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.Anthropic.APIKey,
			BaseURL:      cfg.Anthropic.BaseURL,
			DefaultModel: cfg.Anthropic.DefaultModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("gatewayd: anthropic provider: %w", err)
		}
		built[p.Name()] = p
	}
	if cfg.OpenAI.APIKey != "" {
		p := providers.NewOpenAIProvider(cfg.OpenAI.APIKey)
		built[p.Name()] = p
	}
	if cfg.Bedrock.Enabled {
		p, err := providers.NewBedrockProvider(context.Background(), providers.BedrockConfig{
			Region:       cfg.Bedrock.Region,
			DefaultModel: cfg.Bedrock.DefaultModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("gatewayd: bedrock provider: %w", err)
		}
		built[p.Name()] = p
	}

	if len(built) == 0 {
		return nil, "", fmt.Errorf("gatewayd: no LLM provider has credentials configured")
	}

	if defaultProviderName == "" {
		for name := range built {
			defaultProviderName = name
			break
		}
	}
	if _, ok := built[defaultProviderName]; !ok {
		return nil, "", fmt.Errorf("gatewayd: default provider %q is not configured", defaultProviderName)
	}

	return built, defaultProviderName, nil
}

// registerChannels builds and registers every channel adapter enabled
// in cfg. The terminal adapter, when enabled, reads from stdin and
// writes to stdout; it is meant for local development, not a
// supervised deployment.
func registerChannels(registry *channels.Registry, cfg config.ChannelsConfig, logger *slog.Logger) error {
	if cfg.Terminal.Enabled {
		registry.Register(terminal.New(terminal.Config{
			UserID: cfg.Terminal.UserID,
			Logger: logger,
		}))
	}

	if cfg.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(telegram.Config{
			Token:  cfg.Telegram.Token,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("gatewayd: telegram adapter: %w", err)
		}
		registry.Register(adapter)
	}

	if cfg.Discord.Enabled {
		adapter, err := discord.NewAdapter(discord.Config{
			Token:  cfg.Discord.Token,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("gatewayd: discord adapter: %w", err)
		}
		registry.Register(adapter)
	}

	if cfg.Slack.Enabled {
		registry.Register(slack.NewAdapter(slack.Config{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
		}))
	}

	return nil
}

// Start brings every subsystem up: supervised channel adapters, the
// HTTP control plane, and the inbound-message dispatch loop. It
// returns once everything has begun; runtime failures after Start
// returns are logged and, for supervised children, retried rather
// than propagated.
func (g *gatewayServer) Start(ctx context.Context) error {
	for _, adapter := range g.channels.All() {
		lifecycle, ok := adapter.(channels.LifecycleAdapter)
		if !ok {
			continue
		}
		name := string(adapter.Type())
		health, hasHealth := adapter.(channels.HealthAdapter)
		g.supervisor.Supervise(ctx, name, func(runCtx context.Context) error {
			if err := lifecycle.Start(runCtx); err != nil {
				return err
			}
			defer lifecycle.Stop(context.Background())

			if !hasHealth {
				<-runCtx.Done()
				return nil
			}
			return watchAdapterHealth(runCtx, name, health, g.health)
		})
	}

	if err := g.http.Start(ctx); err != nil {
		return err
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	g.dispatchCancel = cancel
	g.dispatchDone = make(chan struct{})
	go func() {
		defer close(g.dispatchDone)
		g.dispatchLoop(dispatchCtx)
	}()

	return nil
}

// watchAdapterHealth beats the shared HealthMonitor on an interval and
// returns an error once the adapter reports itself disconnected,
// turning a channel adapter's own connection status into the trigger
// the supervisor restarts it on.
func watchAdapterHealth(ctx context.Context, name string, health channels.HealthAdapter, monitor *supervisor.HealthMonitor) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status := health.Status()
			if !status.Connected {
				return fmt.Errorf("gatewayd: channel %s disconnected: %s", name, status.Error)
			}
			monitor.Heartbeat(name)
		}
	}
}

// Stop gracefully shuts every subsystem down, in the reverse order
// Start brought them up.
func (g *gatewayServer) Stop(ctx context.Context) error {
	if g.dispatchCancel != nil {
		g.dispatchCancel()
		select {
		case <-g.dispatchDone:
		case <-ctx.Done():
		}
	}

	if err := g.http.Stop(ctx); err != nil {
		g.logger.Warn(ctx, "control plane shutdown error", "error", err)
	}

	g.supervisor.StopAll()
	g.health.Stop()
	g.sessions.Close()

	if err := g.memoryStore.Close(); err != nil {
		g.logger.Warn(ctx, "memory store close error", "error", err)
	}

	return g.untrace(ctx)
}
