package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/meridianlabs/agentgateway/internal/tools/webfetch"
)

type webFetchArgs struct {
	URL      string `json:"url"`
	Extract  string `json:"extract"`
	MaxChars int    `json:"max_chars"`
}

// WebFetchTool fetches a URL behind the package's SSRF guard and
// handles an x402 payment-required challenge when a Signer is wired
// into the Context. Dispatched from inside a worker process it has no
// signer available and surfaces x402Required rather than paying,
// since payment signing cannot cross the worker boundary.
type WebFetchTool struct {
	fetcher *webfetch.Fetcher
}

func NewWebFetchTool(fetcher *webfetch.Fetcher) *WebFetchTool {
	if fetcher == nil {
		fetcher = webfetch.NewFetcher(nil, nil, 0)
	}
	return &WebFetchTool{fetcher: fetcher}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch a public URL, extracting readable content and handling x402 payment challenges."
}
func (t *WebFetchTool) Weight() Weight { return Lightweight }

func (t *WebFetchTool) ParameterSchema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":       map[string]any{"type": "string"},
			"extract":   map[string]any{"type": "string", "enum": []string{"markdown", "text"}},
			"max_chars": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"url"},
	})
}

func (t *WebFetchTool) Validate(args json.RawMessage) ValidationResult {
	var in webFetchArgs
	if res, okArgs := decodeArgs(args, &in); !okArgs {
		return res
	}
	if strings.TrimSpace(in.URL) == "" {
		return invalid("url is required")
	}
	if !strings.HasPrefix(in.URL, "http://") && !strings.HasPrefix(in.URL, "https://") {
		return invalid("url must be http or https")
	}
	return ok()
}

func (t *WebFetchTool) Execute(ctx context.Context, args json.RawMessage, tc *Context) (Result, error) {
	var in webFetchArgs
	_ = json.Unmarshal(args, &in)

	tc.Progress(ProgressUpdate{Stage: "fetching", Message: in.URL})

	res, err := t.fetcher.Fetch(ctx, in.URL, in.Extract, in.MaxChars, tc.Signer)
	if err != nil {
		if blocked, isBlocked := err.(*webfetch.BlockedError); isBlocked {
			return ErrorResult(blocked.Error()), nil
		}
		return ErrorResult(err.Error()), nil
	}
	if res.X402Required {
		return Result{
			Success:  false,
			Error:    "x402Required",
			Metadata: map[string]any{"url": in.URL},
		}, nil
	}

	return Result{
		Success: true,
		Output:  res.Content,
		Metadata: map[string]any{
			"url":       res.URL,
			"truncated": res.Truncated,
		},
	}, nil
}
