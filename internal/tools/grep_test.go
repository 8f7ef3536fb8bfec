package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestGrepFindsMatchesAndRespectsGlob(t *testing.T) {
	root := t.TempDir()
	tc := testContext(t, root)

	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package main\nfunc needle() {}\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.md"), []byte("needle in markdown\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	args, _ := json.Marshal(map[string]any{"pattern": "needle", "glob": "*.go"})
	res, err := NewGrepTool().Execute(context.Background(), args, tc)
	if err != nil || !res.Success {
		t.Fatalf("grep failed: %v %+v", err, res)
	}

	var payload struct {
		Matches []grepMatch `json:"matches"`
	}
	if err := json.Unmarshal([]byte(res.Output), &payload); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(payload.Matches) != 1 || filepath.Base(payload.Matches[0].Path) != "a.go" {
		t.Fatalf("unexpected matches: %+v", payload.Matches)
	}
}

func TestGrepRejectsInvalidPattern(t *testing.T) {
	tool := NewGrepTool()
	args, _ := json.Marshal(map[string]any{"pattern": "("})
	if v := tool.Validate(args); v.Valid {
		t.Fatal("expected invalid regex to fail validation")
	}
}
