package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "status"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildServeCmdDefaultsConfigPath(t *testing.T) {
	cmd := buildServeCmd()
	flag := cmd.Flags().Lookup("config")
	if flag == nil {
		t.Fatal("expected a --config flag")
	}
	if flag.DefValue != "gatewayd.yaml" {
		t.Fatalf("expected default config path gatewayd.yaml, got %q", flag.DefValue)
	}
}
