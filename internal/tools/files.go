package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/meridianlabs/agentgateway/internal/security"
)

const defaultMaxReadBytes = 200_000

// readArgs is shared by file_read.
type readArgs struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int    `json:"max_bytes"`
}

// FileReadTool reads a byte range of a workspace file.
type FileReadTool struct{ MaxBytes int }

func NewFileReadTool(maxBytes int) *FileReadTool {
	if maxBytes <= 0 {
		maxBytes = defaultMaxReadBytes
	}
	return &FileReadTool{MaxBytes: maxBytes}
}

func (t *FileReadTool) Name() string        { return "file_read" }
func (t *FileReadTool) Description() string { return "Read a file from the workspace with an optional byte offset and limit." }
func (t *FileReadTool) Weight() Weight      { return Lightweight }

func (t *FileReadTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":      map[string]any{"type": "string", "description": "Path relative to the workspace."},
			"offset":    map[string]any{"type": "integer", "minimum": 0},
			"max_bytes": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"path"},
	})
}

func (t *FileReadTool) Validate(args json.RawMessage) ValidationResult {
	var in readArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if errs := requireNonEmpty("path", strings.TrimSpace(in.Path)); len(errs) > 0 {
		return invalid(errs...)
	}
	if in.Offset < 0 {
		return invalid("offset must be >= 0")
	}
	return ok()
}

func (t *FileReadTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in readArgs
	_ = json.Unmarshal(args, &in)

	pr := tc.SecurityPolicy.ValidatePath(in.Path, security.OpRead)
	if !pr.Allowed {
		return ErrorResult(pr.Reason), nil
	}

	f, err := os.Open(pr.CanonicalPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("open: %v", err)), nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ErrorResult(fmt.Sprintf("stat: %v", err)), nil
	}
	if in.Offset > 0 {
		if _, err := f.Seek(in.Offset, io.SeekStart); err != nil {
			return ErrorResult(fmt.Sprintf("seek: %v", err)), nil
		}
	}

	limit := t.MaxBytes
	if in.MaxBytes > 0 && in.MaxBytes < limit {
		limit = in.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(f, int64(limit)))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read: %v", err)), nil
	}
	truncated := info.Size() > in.Offset+int64(len(buf))

	return Result{
		Success: true,
		Output:  string(buf),
		Metadata: map[string]any{
			"path": in.Path, "bytes": len(buf), "offset": in.Offset, "truncated": truncated,
		},
	}, nil
}

// writeArgs is shared by file_write and file_append.
type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileWriteTool creates or overwrites a workspace file.
type FileWriteTool struct{}

func NewFileWriteTool() *FileWriteTool { return &FileWriteTool{} }

func (t *FileWriteTool) Name() string        { return "file_write" }
func (t *FileWriteTool) Description() string { return "Write content to a file, creating or overwriting it." }
func (t *FileWriteTool) Weight() Weight      { return Lightweight }

func (t *FileWriteTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	})
}

func (t *FileWriteTool) Validate(args json.RawMessage) ValidationResult {
	var in writeArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if errs := requireNonEmpty("path", strings.TrimSpace(in.Path)); len(errs) > 0 {
		return invalid(errs...)
	}
	return ok()
}

func (t *FileWriteTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in writeArgs
	_ = json.Unmarshal(args, &in)

	pr := tc.SecurityPolicy.ValidatePath(in.Path, security.OpWrite)
	if !pr.Allowed {
		return ErrorResult(pr.Reason), nil
	}
	if err := os.MkdirAll(dirOf(pr.CanonicalPath), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("mkdir: %v", err)), nil
	}
	if err := os.WriteFile(pr.CanonicalPath, []byte(in.Content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write: %v", err)), nil
	}
	return Result{Success: true, Output: "written", Metadata: map[string]any{"path": in.Path, "bytes": len(in.Content)}}, nil
}

// FileAppendTool appends content to an existing or new workspace file.
type FileAppendTool struct{}

func NewFileAppendTool() *FileAppendTool { return &FileAppendTool{} }

func (t *FileAppendTool) Name() string        { return "file_append" }
func (t *FileAppendTool) Description() string { return "Append content to the end of a file, creating it if absent." }
func (t *FileAppendTool) Weight() Weight      { return Lightweight }

func (t *FileAppendTool) ParameterSchema() json.RawMessage {
	return (&FileWriteTool{}).ParameterSchema()
}

func (t *FileAppendTool) Validate(args json.RawMessage) ValidationResult {
	return (&FileWriteTool{}).Validate(args)
}

func (t *FileAppendTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in writeArgs
	_ = json.Unmarshal(args, &in)

	pr := tc.SecurityPolicy.ValidatePath(in.Path, security.OpWrite)
	if !pr.Allowed {
		return ErrorResult(pr.Reason), nil
	}
	if err := os.MkdirAll(dirOf(pr.CanonicalPath), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("mkdir: %v", err)), nil
	}
	f, err := os.OpenFile(pr.CanonicalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ErrorResult(fmt.Sprintf("open: %v", err)), nil
	}
	defer f.Close()
	if _, err := f.WriteString(in.Content); err != nil {
		return ErrorResult(fmt.Sprintf("append: %v", err)), nil
	}
	return Result{Success: true, Output: "appended", Metadata: map[string]any{"path": in.Path, "bytes": len(in.Content)}}, nil
}

// editArgs is used by file_edit: an exact-match single replacement,
// mirroring the agent's own file-editing convention of matching a
// unique old string rather than line-number patching.
type editArgs struct {
	Path      string `json:"path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
	Replace   bool   `json:"replace_all"`
}

// FileEditTool performs a string-replacement edit on a workspace file.
type FileEditTool struct{}

func NewFileEditTool() *FileEditTool { return &FileEditTool{} }

func (t *FileEditTool) Name() string        { return "file_edit" }
func (t *FileEditTool) Description() string { return "Replace an exact string in a file, once or everywhere." }
func (t *FileEditTool) Weight() Weight      { return Lightweight }

func (t *FileEditTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":        map[string]any{"type": "string"},
			"old_string":  map[string]any{"type": "string"},
			"new_string":  map[string]any{"type": "string"},
			"replace_all": map[string]any{"type": "boolean"},
		},
		"required": []string{"path", "old_string", "new_string"},
	})
}

func (t *FileEditTool) Validate(args json.RawMessage) ValidationResult {
	var in editArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	var errs []string
	errs = append(errs, requireNonEmpty("path", strings.TrimSpace(in.Path))...)
	errs = append(errs, requireNonEmpty("old_string", in.OldString)...)
	if len(errs) > 0 {
		return invalid(errs...)
	}
	return ok()
}

func (t *FileEditTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in editArgs
	_ = json.Unmarshal(args, &in)

	pr := tc.SecurityPolicy.ValidatePath(in.Path, security.OpWrite)
	if !pr.Allowed {
		return ErrorResult(pr.Reason), nil
	}

	content, err := os.ReadFile(pr.CanonicalPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read: %v", err)), nil
	}
	text := string(content)
	count := strings.Count(text, in.OldString)
	if count == 0 {
		return ErrorResult("old_string not found in file"), nil
	}
	if count > 1 && !in.Replace {
		return ErrorResult(fmt.Sprintf("old_string is not unique: %d matches, set replace_all or add context", count)), nil
	}

	replaced := strings.ReplaceAll(text, in.OldString, in.NewString)
	if err := os.WriteFile(pr.CanonicalPath, []byte(replaced), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write: %v", err)), nil
	}
	return Result{Success: true, Output: "edited", Metadata: map[string]any{"path": in.Path, "replacements": count}}, nil
}

// listArgs is used by both ls and stat.
type pathArgs struct {
	Path string `json:"path"`
}

// LsTool lists a workspace directory's immediate children.
type LsTool struct{}

func NewLsTool() *LsTool { return &LsTool{} }

func (t *LsTool) Name() string        { return "ls" }
func (t *LsTool) Description() string { return "List the immediate entries of a workspace directory." }
func (t *LsTool) Weight() Weight      { return Lightweight }

func (t *LsTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	})
}

func (t *LsTool) Validate(args json.RawMessage) ValidationResult {
	var in pathArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if errs := requireNonEmpty("path", strings.TrimSpace(in.Path)); len(errs) > 0 {
		return invalid(errs...)
	}
	return ok()
}

func (t *LsTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in pathArgs
	_ = json.Unmarshal(args, &in)

	pr := tc.SecurityPolicy.ValidatePath(in.Path, security.OpRead)
	if !pr.Allowed {
		return ErrorResult(pr.Reason), nil
	}

	entries, err := os.ReadDir(pr.CanonicalPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("readdir: %v", err)), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return Result{Success: true, Output: strings.Join(names, "\n"), Metadata: map[string]any{"count": len(names)}}, nil
}

// StatTool reports metadata about a single workspace path.
type StatTool struct{}

func NewStatTool() *StatTool { return &StatTool{} }

func (t *StatTool) Name() string        { return "stat" }
func (t *StatTool) Description() string { return "Report size, mode, and modification time for a workspace path." }
func (t *StatTool) Weight() Weight      { return Lightweight }

func (t *StatTool) ParameterSchema() json.RawMessage { return (&LsTool{}).ParameterSchema() }
func (t *StatTool) Validate(args json.RawMessage) ValidationResult { return (&LsTool{}).Validate(args) }

func (t *StatTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in pathArgs
	_ = json.Unmarshal(args, &in)

	pr := tc.SecurityPolicy.ValidatePath(in.Path, security.OpRead)
	if !pr.Allowed {
		return ErrorResult(pr.Reason), nil
	}
	info, err := os.Stat(pr.CanonicalPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("stat: %v", err)), nil
	}

	payload, _ := json.MarshalIndent(map[string]any{
		"path":     in.Path,
		"size":     info.Size(),
		"mode":     info.Mode().String(),
		"is_dir":   info.IsDir(),
		"mod_time": info.ModTime(),
	}, "", "  ")
	return Result{Success: true, Output: string(payload)}, nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, os.PathSeparator)
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

func mustSchema(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
