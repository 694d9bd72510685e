package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultFetchMaxChars = 10000
	maxFetchBytes        = 5 << 20
)

var webHTTPClient = &http.Client{Timeout: 30 * time.Second}

// WebFetchTool fetches a URL and extracts readable text.
type WebFetchTool struct {
	maxChars int
	client   *http.Client
}

// NewWebFetchTool creates a web_fetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{maxChars: defaultFetchMaxChars, client: webHTTPClient}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a URL and extract readable text content without browser automation."
}

func (t *WebFetchTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch (http/https only).",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Maximum characters to return (default: 10000).",
				"minimum":     0,
			},
		},
		"required": []string{"url"},
	})
}

func (t *WebFetchTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		URL      string `json:"url"`
		MaxChars int    `json:"max_chars"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	parsed, err := url.Parse(strings.TrimSpace(input.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Errorf("url must be http or https"), nil
	}
	maxChars := t.maxChars
	if input.MaxChars > 0 && input.MaxChars < maxChars {
		maxChars = input.MaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Errorf("create request: %v", err), nil
	}
	req.Header.Set("User-Agent", "loom/1.0")
	resp, err := t.client.Do(req)
	if err != nil {
		return Errorf("fetch url: %v", err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Errorf("fetch url: status %d", resp.StatusCode), nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Errorf("read body: %v", err), nil
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text = extractText(text)
	}
	truncated := false
	if len(text) > maxChars {
		text = text[:maxChars]
		truncated = true
	}
	return JSONResult(map[string]any{
		"url":       parsed.String(),
		"content":   text,
		"truncated": truncated,
	}), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	linesRe  = regexp.MustCompile(`\n{3,}`)
)

// extractText strips markup from an HTML document, keeping visible text.
func extractText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, "\n")
	text = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	).Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return linesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}

// WebSearchTool searches the web via the DuckDuckGo instant answer API.
type WebSearchTool struct {
	client *http.Client
}

// NewWebSearchTool creates a web_search tool.
func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{client: webHTTPClient}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web and return result titles, URLs and snippets."
}

func (t *WebSearchTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query.",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum results to return (default: 5).",
				"minimum":     0,
			},
		},
		"required": []string{"query"},
	})
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return Errorf("query is required"), nil
	}
	maxResults := input.MaxResults
	if maxResults <= 0 || maxResults > 20 {
		maxResults = 5
	}

	endpoint := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Errorf("create request: %v", err), nil
	}
	req.Header.Set("User-Agent", "loom/1.0")
	resp, err := t.client.Do(req)
	if err != nil {
		return Errorf("search failed: %v", err), nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Errorf("read response: %v", err), nil
	}

	var ddg struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddg); err != nil {
		return Errorf("parse response: %v", err), nil
	}

	var results []SearchResult
	if ddg.AbstractText != "" {
		results = append(results, SearchResult{
			Title:   ddg.Heading,
			URL:     ddg.AbstractURL,
			Snippet: ddg.AbstractText,
		})
	}
	for _, topic := range ddg.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:   topic.Text,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	return JSONResult(map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	}), nil
}
