package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultMaxChars = 10000

// Extractor reduces a fetched HTML document to readable text or
// markdown. Kept as an interface so the tool is testable without a
// real HTML parser.
type Extractor interface {
	Extract(contentType string, body []byte, mode string) (string, error)
}

// Fetcher implements the web_fetch tool's behaviour: SSRF-guarded GET,
// x402 challenge/response, and content extraction. It has no
// dependency on internal/tools so it can be unit tested and reused
// standalone; internal/tools/webfetchbridge.go adapts it to the Tool
// interface.
type Fetcher struct {
	Client    *http.Client
	Extractor Extractor
	MaxChars  int
}

func NewFetcher(client *http.Client, extractor Extractor, maxChars int) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Fetcher{Client: client, Extractor: extractor, MaxChars: maxChars}
}

// FetchResult is the outcome of a web_fetch invocation.
type FetchResult struct {
	URL          string
	Content      string
	Truncated    bool
	X402Required bool
}

// Fetch validates the target URL against the SSRF guard, performs the
// GET, and on a 402 response attempts the x402 payment retry when
// signer is non-nil. A nil signer on a 402 response surfaces
// X402Required rather than an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, extractMode string, maxChars int, signer Signer) (FetchResult, error) {
	limit := f.MaxChars
	if maxChars > 0 && maxChars < limit {
		limit = maxChars
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("webfetch: invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return FetchResult{}, fmt.Errorf("webfetch: only http/https urls are supported")
	}
	if !portIsAllowed(parsed.Port()) {
		return FetchResult{}, fmt.Errorf("webfetch: port %s is not allowed", parsed.Port())
	}
	if err := ValidatePublicHostname(parsed.Hostname()); err != nil {
		return FetchResult{}, err
	}

	resp, body, err := f.get(ctx, rawURL, nil)
	if err != nil {
		return FetchResult{}, err
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		challenge, err := ParseChallenge(body)
		if err != nil {
			return FetchResult{}, err
		}
		if signer == nil {
			return FetchResult{URL: rawURL, X402Required: true}, nil
		}

		payment, err := signer.Sign(ctx, challenge.Accepts[0])
		if err != nil {
			return FetchResult{}, fmt.Errorf("webfetch: sign x402 payment: %w", err)
		}
		header, err := EncodeHeader(payment)
		if err != nil {
			return FetchResult{}, err
		}
		resp, body, err = f.get(ctx, rawURL, map[string]string{"X-PAYMENT": header})
		if err != nil {
			return FetchResult{}, err
		}
		if resp.StatusCode == http.StatusPaymentRequired {
			return FetchResult{}, fmt.Errorf("webfetch: x402 payment rejected")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{}, fmt.Errorf("webfetch: unexpected status %d", resp.StatusCode)
	}

	content := string(body)
	if f.Extractor != nil {
		extracted, err := f.Extractor.Extract(resp.Header.Get("Content-Type"), body, extractMode)
		if err == nil {
			content = extracted
		}
	}

	truncated := false
	if limit > 0 && len(content) > limit {
		content = content[:limit]
		truncated = true
	}

	return FetchResult{URL: rawURL, Content: content, Truncated: truncated}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("webfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AgentGatewayBot/1.0)")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("webfetch: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("webfetch: read body: %w", err)
	}
	return resp, body, nil
}
