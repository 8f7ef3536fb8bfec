package main

import (
	"log/slog"
	"testing"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/internal/config"
)

func TestBuildProvidersRequiresAtLeastOne(t *testing.T) {
	_, _, err := buildProviders(config.ProvidersConfig{}, "")
	if err == nil {
		t.Fatal("expected an error when no provider has credentials")
	}
}

func TestBuildProvidersPicksConfiguredDefault(t *testing.T) {
	cfg := config.ProvidersConfig{
		Anthropic: config.AnthropicProviderConfig{APIKey: "sk-test"},
		OpenAI:    config.OpenAIProviderConfig{APIKey: "sk-test-openai"},
	}
	built, def, err := buildProviders(cfg, "openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(built) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(built))
	}
	if def != "openai" {
		t.Fatalf("expected default provider openai, got %q", def)
	}
}

func TestBuildProvidersRejectsUnknownDefault(t *testing.T) {
	cfg := config.ProvidersConfig{
		OpenAI: config.OpenAIProviderConfig{APIKey: "sk-test-openai"},
	}
	_, _, err := buildProviders(cfg, "anthropic")
	if err == nil {
		t.Fatal("expected an error when the default provider isn't configured")
	}
}

func TestBuildProvidersFallsBackWhenDefaultUnset(t *testing.T) {
	cfg := config.ProvidersConfig{
		OpenAI: config.OpenAIProviderConfig{APIKey: "sk-test-openai"},
	}
	built, def, err := buildProviders(cfg, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := built[def]; !ok {
		t.Fatalf("expected resolved default %q to be among built providers", def)
	}
}

func TestRegisterChannelsSkipsDisabled(t *testing.T) {
	registry := channels.NewRegistry()
	logger := slog.Default()
	if err := registerChannels(registry, config.ChannelsConfig{}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(registry.All()) != 0 {
		t.Fatalf("expected no channels registered, got %d", len(registry.All()))
	}
}

func TestRegisterChannelsRegistersEnabledTerminal(t *testing.T) {
	registry := channels.NewRegistry()
	logger := slog.Default()
	cfg := config.ChannelsConfig{
		Terminal: config.TerminalChannelConfig{Enabled: true, UserID: "local"},
	}
	if err := registerChannels(registry, cfg, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(registry.All()) != 1 {
		t.Fatalf("expected 1 channel registered, got %d", len(registry.All()))
	}
}

func TestRegisterChannelsPropagatesTelegramValidationError(t *testing.T) {
	registry := channels.NewRegistry()
	logger := slog.Default()
	cfg := config.ChannelsConfig{
		Telegram: config.TelegramChannelConfig{Enabled: true, Token: ""},
	}
	if err := registerChannels(registry, cfg, logger); err == nil {
		t.Fatal("expected an error for an enabled telegram channel with no token")
	}
}
