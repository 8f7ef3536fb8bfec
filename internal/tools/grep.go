package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/meridianlabs/agentgateway/internal/security"
)

const (
	grepMaxFileSize = 10 << 20
	grepResultCap   = 500
)

var (
	grepBinaryExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
		".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bin": true,
		".exe": true, ".so": true, ".dylib": true, ".wasm": true, ".woff": true,
		".woff2": true, ".ttf": true, ".mp3": true, ".mp4": true, ".mov": true,
	}
	grepVendorDirs = map[string]bool{
		"node_modules": true, "vendor": true, ".git": true, "dist": true, "build": true,
	}
)

// grepMode selects what a match is reported as.
type grepMode string

const (
	grepContent          grepMode = "content"
	grepFilesWithMatches grepMode = "files_with_matches"
	grepCount            grepMode = "count"
)

type grepArgs struct {
	Pattern string   `json:"pattern"`
	Glob    string   `json:"glob"`
	Path    string   `json:"path"`
	Mode    grepMode `json:"mode"`
}

// grepMatch is one reported hit in content mode.
type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// GrepTool performs a streaming regex line scan over workspace files.
type GrepTool struct{}

func NewGrepTool() *GrepTool { return &GrepTool{} }

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search workspace files for a regex pattern, streaming matches line by line." }
func (t *GrepTool) Weight() Weight      { return Lightweight }

func (t *GrepTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "RE2 regular expression."},
			"glob":    map[string]any{"type": "string", "description": "Optional brace-glob to restrict which files are scanned, e.g. \"**/*.{go,md}\"."},
			"path":    map[string]any{"type": "string", "description": "Directory to scan (default: workspace root)."},
			"mode":    map[string]any{"type": "string", "enum": []string{"content", "files_with_matches", "count"}},
		},
		"required": []string{"pattern"},
	})
}

func (t *GrepTool) Validate(args json.RawMessage) ValidationResult {
	var in grepArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return invalid("pattern is required")
	}
	if _, err := regexp.Compile(in.Pattern); err != nil {
		return invalid(fmt.Sprintf("invalid pattern: %v", err))
	}
	if in.Glob != "" {
		if _, err := glob.Compile(in.Glob, '/'); err != nil {
			return invalid(fmt.Sprintf("invalid glob: %v", err))
		}
	}
	return ok()
}

func (t *GrepTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in grepArgs
	_ = json.Unmarshal(args, &in)
	if in.Mode == "" {
		in.Mode = grepContent
	}

	root := in.Path
	if root == "" {
		root = "."
	}
	pr := tc.SecurityPolicy.ValidatePath(root, security.OpRead)
	if !pr.Allowed {
		return ErrorResult(pr.Reason), nil
	}

	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid pattern: %v", err)), nil
	}
	var g glob.Glob
	if in.Glob != "" {
		g, _ = glob.Compile(in.Glob, '/')
	}

	var matches []grepMatch
	fileHits := map[string]int{}
	truncated := false

	walkErr := filepath.WalkDir(pr.CanonicalPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if tc.Aborted() {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if grepVendorDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if grepBinaryExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if g != nil {
			rel, relErr := filepath.Rel(pr.CanonicalPath, path)
			if relErr != nil || !g.Match(rel) {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil || info.Size() > grepMaxFileSize {
			return nil
		}

		hits, fileTruncated := scanFile(path, re, in.Mode, grepResultCap-len(matches))
		if fileTruncated {
			truncated = true
		}
		if len(hits) > 0 {
			fileHits[path] = len(hits)
			matches = append(matches, hits...)
		}
		if len(matches) >= grepResultCap {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return ErrorResult(fmt.Sprintf("walk: %v", walkErr)), nil
	}

	switch in.Mode {
	case grepFilesWithMatches:
		files := make([]string, 0, len(fileHits))
		for f := range fileHits {
			files = append(files, f)
		}
		payload, _ := json.MarshalIndent(map[string]any{"files": files, "truncated": truncated}, "", "  ")
		return Result{Success: true, Output: string(payload)}, nil
	case grepCount:
		payload, _ := json.MarshalIndent(map[string]any{"counts": fileHits, "truncated": truncated}, "", "  ")
		return Result{Success: true, Output: string(payload)}, nil
	default:
		if len(matches) > grepResultCap {
			matches = matches[:grepResultCap]
		}
		payload, _ := json.MarshalIndent(map[string]any{"matches": matches, "truncated": truncated}, "", "  ")
		return Result{Success: true, Output: string(payload)}, nil
	}
}

// scanFile streams path line by line, returning up to budget matches
// (in content mode) and whether the scan stopped before exhausting the
// file because the caller's overall result cap was reached.
func scanFile(path string, re *regexp.Regexp, mode grepMode, budget int) ([]grepMatch, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var hits []grepMatch
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if mode == grepContent {
			hits = append(hits, grepMatch{Path: path, Line: lineNo, Text: line})
			if len(hits) >= budget {
				return hits, true
			}
		} else {
			hits = append(hits, grepMatch{Path: path, Line: lineNo})
		}
	}
	return hits, false
}
