package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestBashToolRunsAllowedCommand(t *testing.T) {
	root := t.TempDir()
	tc := testContext(t, root)

	args, _ := json.Marshal(map[string]any{"command": "echo hello"})
	res, err := NewBashTool(0).Execute(context.Background(), args, tc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Fatalf("expected stdout to contain hello, got %q", res.Output)
	}
}

func TestBashToolRejectsDisallowedCommand(t *testing.T) {
	root := t.TempDir()
	tc := testContext(t, root)

	args, _ := json.Marshal(map[string]any{"command": "rm -rf /"})
	res, err := NewBashTool(0).Execute(context.Background(), args, tc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatalf("expected disallowed command to fail")
	}
}
