package mcpbridge

import "testing"

func TestServerConfigValidateStdioRequiresCommand(t *testing.T) {
	cfg := &ServerConfig{ID: "fs", Transport: TransportStdio}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestServerConfigValidateStdioRejectsShellMetachars(t *testing.T) {
	cfg := &ServerConfig{ID: "fs", Transport: TransportStdio, Command: "mcp-server", Args: []string{"--root", "/tmp; rm -rf /"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shell metacharacters in args")
	}
}

func TestServerConfigValidateStdioRejectsPathTraversal(t *testing.T) {
	cfg := &ServerConfig{ID: "fs", Transport: TransportStdio, Command: "../../bin/evil"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for path traversal in command")
	}
}

func TestServerConfigValidateHTTPRequiresURL(t *testing.T) {
	cfg := &ServerConfig{ID: "search", Transport: TransportHTTP}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestServerConfigValidateHTTPRejectsBadScheme(t *testing.T) {
	cfg := &ServerConfig{ID: "search", Transport: TransportHTTP, URL: "ftp://example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestServerConfigValidateAcceptsWellFormedConfigs(t *testing.T) {
	stdio := &ServerConfig{ID: "fs", Transport: TransportStdio, Command: "mcp-server-filesystem", Args: []string{"/workspace"}}
	if err := stdio.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	http := &ServerConfig{ID: "search", Transport: TransportHTTP, URL: "https://mcp.example.com"}
	if err := http.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
