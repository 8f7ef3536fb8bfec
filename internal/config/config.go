// Package config loads the gateway's YAML configuration file: which
// channels to start, which LLM providers have credentials, and the
// tuning knobs for sessions, the control plane, and observability.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration document for the gatewayd binary.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Supervisor    SupervisorConfig    `yaml:"supervisor"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SessionConfig configures the session manager's defaults.
type SessionConfig struct {
	DefaultProvider     string        `yaml:"default_provider"`
	DefaultModel        string        `yaml:"default_model"`
	DefaultAutonomy     string        `yaml:"default_autonomy"`
	DefaultSystemPrompt string        `yaml:"default_system_prompt"`
	IdleTTL             time.Duration `yaml:"idle_ttl"`
	MaxIterations       int           `yaml:"max_iterations"`
	MaxTokens           int           `yaml:"max_tokens"`
}

// ProvidersConfig lists the credentials for every LLM backend the
// gateway may route a session through. An empty APIKey leaves that
// provider out of the built registry.
type ProvidersConfig struct {
	Anthropic AnthropicProviderConfig `yaml:"anthropic"`
	OpenAI    OpenAIProviderConfig    `yaml:"openai"`
	Bedrock   BedrockProviderConfig   `yaml:"bedrock"`
}

type AnthropicProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

type OpenAIProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

type BedrockProviderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Region       string `yaml:"region"`
	DefaultModel string `yaml:"default_model"`
}

// ChannelsConfig enables and configures the channel adapters the
// gateway starts at boot.
type ChannelsConfig struct {
	Terminal TerminalChannelConfig `yaml:"terminal"`
	Telegram TelegramChannelConfig `yaml:"telegram"`
	Discord  DiscordChannelConfig  `yaml:"discord"`
	Slack    SlackChannelConfig    `yaml:"slack"`
}

type TerminalChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	UserID  string `yaml:"user_id"`
}

type TelegramChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type DiscordChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type SlackChannelConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	AppToken   string `yaml:"app_token"`
	SigningKey string `yaml:"signing_key"`
	SocketMode bool   `yaml:"socket_mode"`
}

// WorkspaceConfig points the filesystem/bash/grep tools at a root
// directory they may not escape.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// SupervisorConfig tunes restart behavior for supervised channel adapters.
type SupervisorConfig struct {
	StateDir           string        `yaml:"state_dir"`
	InitialDelay       time.Duration `yaml:"initial_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	MaxCrashesInWindow int           `yaml:"max_crashes_in_window"`
	CrashWindow        time.Duration `yaml:"crash_window"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	SamplingRate    float64 `yaml:"sampling_rate"`
}

// Load reads, environment-expands, and parses the YAML config at path.
// $VAR and ${VAR} references are expanded against the process
// environment before parsing, so secrets can be kept out of the file
// itself (e.g. `api_key: ${ANTHROPIC_API_KEY}`). A top-level $include
// key (a string or list of strings, resolved relative to the
// including file's directory) is merged in before the file's own
// keys, so a deployment can split shared defaults from per-environment
// overrides.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config: path is required")
	}
	raw, err := loadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Session.DefaultAutonomy == "" {
		c.Session.DefaultAutonomy = "supervised"
	}
	if c.Session.IdleTTL == 0 {
		c.Session.IdleTTL = 30 * time.Minute
	}
	if c.Workspace.Path == "" {
		c.Workspace.Path = "."
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = "json"
	}
}

// DefaultConfigPath is the conventional location gatewayd looks for a
// config file when none is given on the command line.
const DefaultConfigPath = "gatewayd.yaml"
