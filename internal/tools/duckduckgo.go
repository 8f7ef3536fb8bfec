package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DuckDuckGoBackend implements SearchBackend against DuckDuckGo's
// Instant Answer API. It is the default, credential-free SearchBackend
// wired by createDefault; vendor-backed backends (SearXNG, Brave) can
// be substituted by wiring a different SearchBackend into Context.
type DuckDuckGoBackend struct {
	client *http.Client
}

func NewDuckDuckGoBackend() *DuckDuckGoBackend {
	return &DuckDuckGoBackend{client: &http.Client{Timeout: 15 * time.Second}}
}

func (b *DuckDuckGoBackend) Name() string { return "duckduckgo" }

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	endpoint := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AgentGatewayBot/1.0)")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: duckduckgo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("websearch: read body: %w", err)
	}

	var parsed struct {
		AbstractText   string `json:"AbstractText"`
		AbstractURL    string `json:"AbstractURL"`
		Heading        string `json:"Heading"`
		RelatedTopics  []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("websearch: parse response: %w", err)
	}

	var results []SearchResult
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, SearchResult{Title: parsed.Heading, URL: parsed.AbstractURL, Snippet: parsed.AbstractText})
	}
	for _, topic := range parsed.RelatedTopics {
		if len(results) >= limit {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, SearchResult{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
