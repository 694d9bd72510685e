package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"github.com/loomlabs/loom/pkg/models"
)

// OpenAIProvider implements Provider over the go-openai client. It also
// serves OpenAI-compatible endpoints (local runtimes, proxies) via BaseURL.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Call implements Provider.
func (p *OpenAIProvider) Call(ctx context.Context, req *Request) (*Response, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapProviderError(p.Name(), p.model(req.Model), 0, errors.New("empty completion choices"))
	}
	choice := resp.Choices[0]

	var content models.BlockList
	if choice.Message.Content != "" {
		content = append(content, models.TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		content = append(content, models.ToolUseBlock{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(argumentsOrEmpty(tc.Function.Arguments)),
		})
	}
	return &Response{
		Content:    content,
		StopReason: normalizeOpenAIStop(string(choice.FinishReason)),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Stream implements Provider. Tool call arguments arrive as deltas keyed by
// index and are assembled before the final consolidated delta.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request) (<-chan *Delta, error) {
	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}

	out := make(chan *Delta)
	go func() {
		defer close(out)
		defer stream.Close()

		var text []byte
		type partialTool struct {
			id   string
			name string
			args []byte
		}
		toolsByIndex := map[int]*partialTool{}
		var toolOrder []int
		var finish string
		var usage Usage

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				out <- &Delta{Err: p.wrapError(err, req.Model)}
				return
			}
			if chunk.Usage != nil {
				usage.InputTokens = chunk.Usage.PromptTokens
				usage.OutputTokens = chunk.Usage.CompletionTokens
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finish = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				text = append(text, choice.Delta.Content...)
				out <- &Delta{Text: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				pt, ok := toolsByIndex[idx]
				if !ok {
					pt = &partialTool{}
					toolsByIndex[idx] = pt
					toolOrder = append(toolOrder, idx)
				}
				if tc.ID != "" {
					pt.id = tc.ID
				}
				if tc.Function.Name != "" {
					pt.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					pt.args = append(pt.args, tc.Function.Arguments...)
				}
			}
		}

		var content models.BlockList
		if len(text) > 0 {
			content = append(content, models.TextBlock{Text: string(text)})
		}
		for _, idx := range toolOrder {
			pt := toolsByIndex[idx]
			content = append(content, models.ToolUseBlock{
				ID:    pt.id,
				Name:  pt.name,
				Input: json.RawMessage(argumentsOrEmpty(string(pt.args))),
			})
		}
		out <- &Delta{Response: &Response{
			Content:    content,
			StopReason: normalizeOpenAIStop(finish),
			Usage:      usage,
		}}
	}()
	return out, nil
}

func (p *OpenAIProvider) buildRequest(req *Request) (openai.ChatCompletionRequest, error) {
	messages, err := p.convertMessages(req.Messages, req.System)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	for _, tool := range req.Tools {
		var params any
		if err := json.Unmarshal(tool.InputSchema, &params); err != nil {
			return openai.ChatCompletionRequest{}, WrapProviderError(p.Name(), chatReq.Model, 0, err)
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return chatReq, nil
}

// convertMessages flattens block content into OpenAI's chat shape: assistant
// tool_use blocks become ToolCalls; tool_result blocks become standalone
// "tool" role messages linked by ToolCallID.
func (p *OpenAIProvider) convertMessages(messages []models.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		var toolResults []models.ToolResultBlock
		oaiMsg := openai.ChatCompletionMessage{Role: role}
		var parts []openai.ChatMessagePart

		for _, blk := range msg.Content {
			switch b := blk.(type) {
			case models.TextBlock:
				oaiMsg.Content += b.Text
			case models.ToolUseBlock:
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   b.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.Name,
						Arguments: string(argumentsOrEmpty(string(b.Input))),
					},
				})
			case models.ToolResultBlock:
				toolResults = append(toolResults, b)
			case models.ImageBlock:
				if url := imageSourceURL(b); url != "" {
					parts = append(parts, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
					})
				}
			}
		}

		if len(parts) > 0 {
			if oaiMsg.Content != "" {
				parts = append([]openai.ChatMessagePart{{
					Type: openai.ChatMessagePartTypeText,
					Text: oaiMsg.Content,
				}}, parts...)
				oaiMsg.Content = ""
			}
			oaiMsg.MultiContent = parts
		}

		if oaiMsg.Content != "" || len(oaiMsg.ToolCalls) > 0 || len(oaiMsg.MultiContent) > 0 {
			result = append(result, oaiMsg)
		}
		for _, tr := range toolResults {
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    tr.Content,
				ToolCallID: tr.ToolUseID,
			})
		}
	}
	return result, nil
}

// imageSourceURL extracts a usable URL (plain or data URL) from an opaque
// image source.
func imageSourceURL(b models.ImageBlock) string {
	var src struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
		URL       string `json:"url"`
	}
	if err := json.Unmarshal(b.Source, &src); err != nil {
		return ""
	}
	switch src.Type {
	case "url":
		return src.URL
	case "base64":
		return "data:" + src.MediaType + ";base64," + src.Data
	default:
		return ""
	}
}

func (p *OpenAIProvider) model(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return WrapProviderError(p.Name(), p.model(model), apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return WrapProviderError(p.Name(), p.model(model), reqErr.HTTPStatusCode, err)
	}
	return WrapProviderError(p.Name(), p.model(model), 0, err)
}

func argumentsOrEmpty(args string) string {
	if args == "" {
		return "{}"
	}
	return args
}

func normalizeOpenAIStop(reason string) string {
	switch reason {
	case "", "stop":
		return StopEndTurn
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopMaxTokens
	default:
		return reason
	}
}
