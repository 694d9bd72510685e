// Package llm provides a provider-agnostic client over multiple LLM
// backends. Providers translate the shared message and tool schema to their
// wire formats and normalize responses back into content blocks and usage
// counters. The client never retries internally; retry policy belongs to the
// turn loop.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomlabs/loom/pkg/models"
)

// Stop reasons normalized across providers.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is a normalized completion request.
type Request struct {
	Model     string
	System    string
	Messages  []models.Message
	Tools     []ToolSpec
	MaxTokens int
}

// Usage carries token counters for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a normalized completion response.
type Response struct {
	Content    models.BlockList
	StopReason string
	Usage      Usage
}

// Text concatenates the text blocks of the response.
func (r *Response) Text() string {
	var sb strings.Builder
	for _, blk := range r.Content {
		if t, ok := blk.(models.TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool_use blocks of the response in emission order.
func (r *Response) ToolUses() []models.ToolUseBlock {
	var out []models.ToolUseBlock
	for _, blk := range r.Content {
		if tu, ok := blk.(models.ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// Delta is one unit of a streaming response. Intermediate deltas carry text
// fragments; the final delta carries the consolidated Response. A non-nil
// Err terminates the stream.
type Delta struct {
	Text     string
	Response *Response
	Err      error
}

// Provider is one LLM backend.
type Provider interface {
	// Name returns the stable lowercase provider identifier.
	Name() string

	// Call performs a non-streaming completion.
	Call(ctx context.Context, req *Request) (*Response, error)

	// Stream performs a streaming completion. The returned channel is closed
	// after the final delta (or an error delta) is delivered.
	Stream(ctx context.Context, req *Request) (<-chan *Delta, error)
}

// Client routes requests to registered providers and exposes the model
// context-window registry.
type Client struct {
	providers map[string]Provider
}

// NewClient builds a client over the given providers.
func NewClient(providers ...Provider) *Client {
	c := &Client{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		c.providers[p.Name()] = p
	}
	return c
}

// Register adds or replaces a provider.
func (c *Client) Register(p Provider) {
	c.providers[p.Name()] = p
}

// Provider returns the named provider.
func (c *Client) Provider(name string) (Provider, error) {
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	return p, nil
}

// Call performs a non-streaming completion on the named provider.
func (c *Client) Call(ctx context.Context, provider string, req *Request) (*Response, error) {
	p, err := c.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, req)
}

// Stream performs a streaming completion on the named provider.
func (c *Client) Stream(ctx context.Context, provider string, req *Request) (<-chan *Delta, error) {
	p, err := c.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, req)
}

// Summarizer is the narrow interface the compressor uses for its recursive
// summary call: one system prompt, one user text, a token cap.
type Summarizer interface {
	Summarize(ctx context.Context, system, user string, maxTokens int) (string, int, int, error)
}

// ProviderSummarizer adapts one (provider, model) pair to Summarizer.
type ProviderSummarizer struct {
	Client   *Client
	Provider string
	Model    string
}

// Summarize performs a single non-streaming call and returns the response
// text plus its token usage.
func (s *ProviderSummarizer) Summarize(ctx context.Context, system, user string, maxTokens int) (string, int, int, error) {
	resp, err := s.Client.Call(ctx, s.Provider, &Request{
		Model:     s.Model,
		System:    system,
		Messages:  []models.Message{models.NewUserText(user)},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", 0, 0, err
	}
	return resp.Text(), resp.Usage.InputTokens, resp.Usage.OutputTokens, nil
}
