package main

import (
	"github.com/spf13/cobra"

	"github.com/meridianlabs/agentgateway/internal/config"
)

// buildServeCmd creates the "serve" command that starts the gateway.
// This is the primary command for running gatewayd.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gatewayd server",
		Long: `Start the gatewayd server with all configured channels and providers.

The server will:
1. Load configuration from the specified file (or gatewayd.yaml)
2. Build the LLM provider registry from configured credentials
3. Start all enabled channel adapters (terminal, Telegram, Discord, Slack, canvas)
4. Start the HTTP control plane for health, metrics, and session management
5. Dispatch inbound messages into sessions and run them against the engine

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  gatewayd serve

  # Start with a specific config file
  gatewayd serve --config /etc/gatewayd/production.yaml

  # Start with debug logging
  gatewayd serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath,
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildStatusCmd creates the "status" command, a quick local
// reachability check against a running gateway's control plane.
func buildStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check a running gatewayd's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Control plane base URL")
	return cmd
}
