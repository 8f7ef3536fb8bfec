// Package main provides the CLI entry point for gatewayd, the
// multi-channel AI agent gateway.
//
// gatewayd connects messaging platforms (Telegram, Discord, Slack), a
// local terminal, and a web canvas to LLM providers (Anthropic,
// OpenAI, AWS Bedrock) through a shared session and tool-execution
// core.
//
// # Basic Usage
//
// Start the gateway:
//
//	gatewayd serve --config gatewayd.yaml
//
// # Environment Variables
//
// Provider credentials and channel tokens are typically supplied via
// environment variables and referenced from the config file with
// ${VAR} interpolation, e.g.:
//
//   - ANTHROPIC_API_KEY
//   - OPENAI_API_KEY
//   - TELEGRAM_BOT_TOKEN
//   - DISCORD_BOT_TOKEN
//   - SLACK_BOT_TOKEN / SLACK_APP_TOKEN
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main so tests can exercise it without os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gatewayd",
		Short: "gatewayd - multi-channel AI agent gateway",
		Long: `gatewayd connects messaging platforms, a local terminal, and a web
canvas to LLM providers with tool execution.

Supported channels: terminal, Telegram, Discord, Slack, canvas
Supported LLM providers: Anthropic (Claude), OpenAI (GPT), AWS Bedrock`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
	)

	return rootCmd
}
