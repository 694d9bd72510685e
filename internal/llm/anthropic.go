package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/loomlabs/loom/pkg/models"
)

// AnthropicProvider implements Provider over the official Anthropic SDK.
// Safe for concurrent use; each Stream call owns an independent SSE stream.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the default API endpoint.
	BaseURL string

	// DefaultModel is used when a request does not name a model.
	DefaultModel string
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Call implements Provider.
func (p *AnthropicProvider) Call(ctx context.Context, req *Request) (*Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	content := make(models.BlockList, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			content = append(content, models.TextBlock{Text: block.AsText().Text})
		case "tool_use":
			tu := block.AsToolUse()
			content = append(content, models.ToolUseBlock{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: json.RawMessage(tu.Input),
			})
		}
	}
	return &Response{
		Content:    content,
		StopReason: normalizeAnthropicStop(string(msg.StopReason)),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements Provider. Text deltas are forwarded as they arrive; the
// final delta carries the consolidated response with usage counters.
func (p *AnthropicProvider) Stream(ctx context.Context, req *Request) (<-chan *Delta, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	out := make(chan *Delta)
	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, params)

		var content models.BlockList
		var textBuilder strings.Builder
		var currentTool *models.ToolUseBlock
		var toolInput strings.Builder
		var stopReason string
		var usage Usage

		flushText := func() {
			if textBuilder.Len() > 0 {
				content = append(content, models.TextBlock{Text: textBuilder.String()})
				textBuilder.Reset()
			}
		}

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				if start.Message.Usage.InputTokens > 0 {
					usage.InputTokens = int(start.Message.Usage.InputTokens)
				}

			case "content_block_start":
				blockStart := event.AsContentBlockStart()
				if blockStart.ContentBlock.Type == "tool_use" {
					flushText()
					tu := blockStart.ContentBlock.AsToolUse()
					currentTool = &models.ToolUseBlock{ID: tu.ID, Name: tu.Name}
					toolInput.Reset()
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						textBuilder.WriteString(delta.Text)
						out <- &Delta{Text: delta.Text}
					}
				case "input_json_delta":
					if delta.PartialJSON != "" {
						toolInput.WriteString(delta.PartialJSON)
					}
				}

			case "content_block_stop":
				if currentTool != nil {
					input := toolInput.String()
					if input == "" {
						input = "{}"
					}
					currentTool.Input = json.RawMessage(input)
					content = append(content, *currentTool)
					currentTool = nil
				} else {
					flushText()
				}

			case "message_delta":
				msgDelta := event.AsMessageDelta()
				if msgDelta.Delta.StopReason != "" {
					stopReason = string(msgDelta.Delta.StopReason)
				}
				if msgDelta.Usage.OutputTokens > 0 {
					usage.OutputTokens = int(msgDelta.Usage.OutputTokens)
				}

			case "message_stop":
				flushText()
				out <- &Delta{Response: &Response{
					Content:    content,
					StopReason: normalizeAnthropicStop(stopReason),
					Usage:      usage,
				}}
				return
			}
		}

		if err := stream.Err(); err != nil {
			out <- &Delta{Err: p.wrapError(err, req.Model)}
			return
		}
		// Stream ended without message_stop: surface what was assembled.
		flushText()
		out <- &Delta{Response: &Response{
			Content:    content,
			StopReason: normalizeAnthropicStop(stopReason),
			Usage:      usage,
		}}
	}()
	return out, nil
}

func (p *AnthropicProvider) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func (p *AnthropicProvider) convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		for _, blk := range msg.Content {
			switch b := blk.(type) {
			case models.TextBlock:
				content = append(content, anthropic.NewTextBlock(b.Text))
			case models.ToolUseBlock:
				var input map[string]any
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: invalid tool_use input for %s: %w", b.Name, err)
				}
				content = append(content, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case models.ToolResultBlock:
				content = append(content, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			case models.ImageBlock:
				if img := anthropicImageBlock(b); img != nil {
					content = append(content, *img)
				}
			}
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

// anthropicImageBlock converts an opaque image source. Sources are either
// base64 data URLs or plain URLs.
func anthropicImageBlock(b models.ImageBlock) *anthropic.ContentBlockParamUnion {
	var src struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
		URL       string `json:"url"`
	}
	if err := json.Unmarshal(b.Source, &src); err != nil {
		return nil
	}
	switch src.Type {
	case "base64":
		blk := anthropic.NewImageBlockBase64(src.MediaType, src.Data)
		return &blk
	case "url":
		blk := anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: src.URL})
		return &blk
	default:
		return nil
	}
}

func (p *AnthropicProvider) convertTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool definition for %s", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

func (p *AnthropicProvider) model(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return WrapProviderError(p.Name(), p.model(model), apiErr.StatusCode, err)
	}
	return WrapProviderError(p.Name(), p.model(model), 0, err)
}

func normalizeAnthropicStop(reason string) string {
	switch reason {
	case "", "end_turn", "stop_sequence":
		return StopEndTurn
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	default:
		return reason
	}
}
