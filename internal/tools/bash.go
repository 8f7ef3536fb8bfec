package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/meridianlabs/agentgateway/internal/security"
)

const defaultBashTimeout = 2 * time.Minute

type bashArgs struct {
	Command        string `json:"command"`
	Cwd            string `json:"cwd"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// BashTool runs an allowlisted command through the shell. It is
// heavyweight: the engine should prefer dispatching it to the worker
// pool so a hung or long-running command does not block the session's
// turn loop.
type BashTool struct {
	DefaultTimeout time.Duration
}

func NewBashTool(defaultTimeout time.Duration) *BashTool {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultBashTimeout
	}
	return &BashTool{DefaultTimeout: defaultTimeout}
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Run a shell command from the allowlist in the workspace." }
func (t *BashTool) Weight() Weight      { return Heavyweight }

func (t *BashTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":         map[string]any{"type": "string"},
			"cwd":             map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"command"},
	})
}

func (t *BashTool) Validate(args json.RawMessage) ValidationResult {
	var in bashArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if strings.TrimSpace(in.Command) == "" {
		return invalid("command is required")
	}
	return ok()
}

func (t *BashTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in bashArgs
	_ = json.Unmarshal(args, &in)

	argv := strings.Fields(in.Command)
	cr := tc.SecurityPolicy.ValidateCommand(argv)
	if !cr.Allowed {
		return ErrorResult(cr.Reason), nil
	}

	timeout := t.DefaultTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cwd := tc.Cwd
	if in.Cwd != "" {
		pr := tc.SecurityPolicy.ValidatePath(in.Cwd, security.OpExecute)
		if !pr.Allowed {
			return ErrorResult(pr.Reason), nil
		}
		cwd = pr.CanonicalPath
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	tc.Progress(ProgressUpdate{Stage: "running", Message: in.Command})
	err := cmd.Run()

	out := tc.SecurityPolicy.SanitizeOutput(stdout.String())
	errOut := tc.SecurityPolicy.SanitizeOutput(stderr.String())

	if runCtx.Err() != nil {
		return ErrorResult(fmt.Sprintf("command timed out after %s", timeout)), nil
	}
	exitCode := 0
	if err != nil {
		if exitErr, isExit := err.(*exec.ExitError); isExit {
			exitCode = exitErr.ExitCode()
		} else {
			return ErrorResult(fmt.Sprintf("exec: %v", err)), nil
		}
	}

	return Result{
		Success: exitCode == 0,
		Output:  out.Clean,
		Error:   errOut.Clean,
		Metadata: map[string]any{
			"exit_code": exitCode,
			"command":   in.Command,
			"redacted":  out.Redacted || errOut.Redacted,
		},
	}, nil
}
