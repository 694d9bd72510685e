package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/loomlabs/loom/pkg/models"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider over the Google Gen AI SDK.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// NewGeminiProvider creates a Gemini provider against the Gemini API backend.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, defaultModel: cfg.DefaultModel}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Call implements Provider.
func (p *GeminiProvider) Call(ctx context.Context, req *Request) (*Response, error) {
	model := p.model(req.Model)
	contents, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, WrapProviderError(p.Name(), model, 0, err)
	}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, p.buildConfig(req))
	if err != nil {
		return nil, WrapProviderError(p.Name(), model, 0, err)
	}

	var content models.BlockList
	var finish genai.FinishReason
	sawToolUse := false
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if candidate.FinishReason != "" {
			finish = candidate.FinishReason
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				content = append(content, models.TextBlock{Text: part.Text})
			}
			if part.FunctionCall != nil {
				sawToolUse = true
				content = append(content, functionCallBlock(part.FunctionCall))
			}
		}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return &Response{
		Content:    content,
		StopReason: normalizeGeminiStop(finish, sawToolUse),
		Usage:      usage,
	}, nil
}

// Stream implements Provider using the SDK's Go 1.23 iterator stream.
func (p *GeminiProvider) Stream(ctx context.Context, req *Request) (<-chan *Delta, error) {
	model := p.model(req.Model)
	contents, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, WrapProviderError(p.Name(), model, 0, err)
	}
	config := p.buildConfig(req)

	out := make(chan *Delta)
	go func() {
		defer close(out)

		var content models.BlockList
		var textBuilder strings.Builder
		var finish genai.FinishReason
		var usage Usage
		sawToolUse := false

		flushText := func() {
			if textBuilder.Len() > 0 {
				content = append(content, models.TextBlock{Text: textBuilder.String()})
				textBuilder.Reset()
			}
		}

		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				out <- &Delta{Err: WrapProviderError(p.Name(), model, 0, err)}
				return
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil {
					continue
				}
				if candidate.FinishReason != "" {
					finish = candidate.FinishReason
				}
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						textBuilder.WriteString(part.Text)
						out <- &Delta{Text: part.Text}
					}
					if part.FunctionCall != nil {
						flushText()
						sawToolUse = true
						content = append(content, functionCallBlock(part.FunctionCall))
					}
				}
			}
		}

		flushText()
		out <- &Delta{Response: &Response{
			Content:    content,
			StopReason: normalizeGeminiStop(finish, sawToolUse),
			Usage:      usage,
		}}
	}()
	return out, nil
}

// functionCallBlock converts a Gemini function call. The API carries no call
// id, so one is minted here and echoed back via FunctionResponse by name.
func functionCallBlock(fc *genai.FunctionCall) models.ToolUseBlock {
	input, err := json.Marshal(fc.Args)
	if err != nil || len(input) == 0 {
		input = []byte("{}")
	}
	id := fc.ID
	if id == "" {
		id = "call_" + fc.Name + "_" + uuid.NewString()[:8]
	}
	return models.ToolUseBlock{ID: id, Name: fc.Name, Input: input}
}

func (p *GeminiProvider) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		config.MaxOutputTokens = int32(maxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = convertGeminiTools(req.Tools)
	}
	return config
}

func convertGeminiTools(tools []ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  geminiSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// geminiSchema converts a JSON Schema map to the SDK's typed Schema.
func geminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = geminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = geminiSchema(items)
	}
	return schema
}

func (p *GeminiProvider) convertMessages(messages []models.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	for _, msg := range messages {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}
		for _, blk := range msg.Content {
			switch b := blk.(type) {
			case models.TextBlock:
				content.Parts = append(content.Parts, &genai.Part{Text: b.Text})
			case models.ToolUseBlock:
				var args map[string]any
				if err := json.Unmarshal(b.Input, &args); err != nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: b.ID, Name: b.Name, Args: args},
				})
			case models.ToolResultBlock:
				var response map[string]any
				if err := json.Unmarshal([]byte(b.Content), &response); err != nil {
					response = map[string]any{"result": b.Content, "error": b.IsError}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       b.ToolUseID,
						Name:     toolNameForCallID(b.ToolUseID, messages),
						Response: response,
					},
				})
			case models.ImageBlock:
				if part := geminiImagePart(b); part != nil {
					content.Parts = append(content.Parts, part)
				}
			}
		}
		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, nil
}

// toolNameForCallID resolves a function name from the matching tool_use block
// earlier in the conversation.
func toolNameForCallID(id string, messages []models.Message) string {
	for _, msg := range messages {
		for _, tu := range msg.ToolUses() {
			if tu.ID == id {
				return tu.Name
			}
		}
	}
	// Minted ids carry the name: "call_<name>_<suffix>".
	parts := strings.Split(id, "_")
	if len(parts) >= 3 && parts[0] == "call" {
		return strings.Join(parts[1:len(parts)-1], "_")
	}
	return ""
}

func geminiImagePart(b models.ImageBlock) *genai.Part {
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
		data, err := base64.StdEncoding.DecodeString(src.Data)
		if err != nil {
			return nil
		}
		return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: src.MediaType}}
	case "url":
		return &genai.Part{FileData: &genai.FileData{FileURI: src.URL, MIMEType: src.MediaType}}
	default:
		return nil
	}
}

func (p *GeminiProvider) model(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func normalizeGeminiStop(reason genai.FinishReason, sawToolUse bool) string {
	if sawToolUse {
		return StopToolUse
	}
	switch reason {
	case "", genai.FinishReasonStop:
		return StopEndTurn
	case genai.FinishReasonMaxTokens:
		return StopMaxTokens
	default:
		return string(reason)
	}
}
