package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/loomlabs/loom/pkg/models"
)

// BedrockProvider implements Provider over the AWS Bedrock Converse API.
// Authentication follows the AWS default credential chain unless explicit
// keys are supplied.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// BedrockConfig configures the Bedrock provider.
type BedrockConfig struct {
	// Region defaults to us-east-1.
	Region string

	// AccessKeyID and SecretAccessKey enable explicit credentials. When
	// empty the default chain (env, shared config, IAM role) is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	DefaultModel string
}

// NewBedrockProvider creates an AWS Bedrock provider.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}
	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name implements Provider.
func (p *BedrockProvider) Name() string { return "bedrock" }

// Call implements Provider.
func (p *BedrockProvider) Call(ctx context.Context, req *Request) (*Response, error) {
	model := p.model(req.Model)
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	p.applyCommon(&input.System, &input.InferenceConfig, &input.ToolConfig, req)

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, WrapProviderError(p.Name(), model, 0, err)
	}

	var content models.BlockList
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, blk := range msg.Value.Content {
			switch b := blk.(type) {
			case *types.ContentBlockMemberText:
				content = append(content, models.TextBlock{Text: b.Value})
			case *types.ContentBlockMemberToolUse:
				raw := json.RawMessage("{}")
				if b.Value.Input != nil {
					if data, err := b.Value.Input.MarshalSmithyDocument(); err == nil && len(data) > 0 {
						raw = json.RawMessage(data)
					}
				}
				content = append(content, models.ToolUseBlock{
					ID:    aws.ToString(b.Value.ToolUseId),
					Name:  aws.ToString(b.Value.Name),
					Input: raw,
				})
			}
		}
	}

	var usage Usage
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return &Response{
		Content:    content,
		StopReason: normalizeBedrockStop(out.StopReason),
		Usage:      usage,
	}, nil
}

// Stream implements Provider via the ConverseStream API.
func (p *BedrockProvider) Stream(ctx context.Context, req *Request) (<-chan *Delta, error) {
	model := p.model(req.Model)
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	p.applyCommon(&input.System, &input.InferenceConfig, &input.ToolConfig, req)

	stream, err := p.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, WrapProviderError(p.Name(), model, 0, err)
	}

	out := make(chan *Delta)
	go func() {
		defer close(out)

		eventStream := stream.GetStream()
		defer eventStream.Close()

		var content models.BlockList
		var textBuilder strings.Builder
		var currentTool *models.ToolUseBlock
		var toolInput strings.Builder
		var stopReason types.StopReason
		var usage Usage

		flushText := func() {
			if textBuilder.Len() > 0 {
				content = append(content, models.TextBlock{Text: textBuilder.String()})
				textBuilder.Reset()
			}
		}
		flushTool := func() {
			if currentTool != nil {
				input := toolInput.String()
				if input == "" {
					input = "{}"
				}
				currentTool.Input = json.RawMessage(input)
				content = append(content, *currentTool)
				currentTool = nil
				toolInput.Reset()
			}
		}

		for event := range eventStream.Events() {
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					flushText()
					currentTool = &models.ToolUseBlock{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						textBuilder.WriteString(delta.Value)
						out <- &Delta{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentTool != nil {
					flushTool()
				} else {
					flushText()
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				stopReason = ev.Value.StopReason

			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					usage.InputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
					usage.OutputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
				}
			}
		}

		if err := eventStream.Err(); err != nil {
			out <- &Delta{Err: WrapProviderError(p.Name(), model, 0, err)}
			return
		}
		flushTool()
		flushText()
		out <- &Delta{Response: &Response{
			Content:    content,
			StopReason: normalizeBedrockStop(stopReason),
			Usage:      usage,
		}}
	}()
	return out, nil
}

// applyCommon sets the system prompt, inference config and tool config shared
// by Converse and ConverseStream inputs.
func (p *BedrockProvider) applyCommon(system *[]types.SystemContentBlock, inference **types.InferenceConfiguration, toolCfg **types.ToolConfiguration, req *Request) {
	if req.System != "" {
		*system = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		*inference = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		}
	}
	if len(req.Tools) > 0 {
		tools := make([]types.Tool, len(req.Tools))
		for i, tool := range req.Tools {
			var schema any
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			tools[i] = &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(tool.Name),
					Description: aws.String(tool.Description),
					InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
				},
			}
		}
		*toolCfg = &types.ToolConfiguration{Tools: tools}
	}
}

func (p *BedrockProvider) convertMessages(messages []models.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		var content []types.ContentBlock
		for _, blk := range msg.Content {
			switch b := blk.(type) {
			case models.TextBlock:
				content = append(content, &types.ContentBlockMemberText{Value: b.Text})
			case models.ToolUseBlock:
				var inputDoc any
				if err := json.Unmarshal(b.Input, &inputDoc); err != nil {
					inputDoc = map[string]any{}
				}
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(b.ID),
						Name:      aws.String(b.Name),
						Input:     document.NewLazyDocument(inputDoc),
					},
				})
			case models.ToolResultBlock:
				status := types.ToolResultStatusSuccess
				if b.IsError {
					status = types.ToolResultStatusError
				}
				content = append(content, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(b.ToolUseID),
						Status:    status,
						Content: []types.ToolResultContentBlock{
							&types.ToolResultContentBlockMemberText{Value: b.Content},
						},
					},
				})
			case models.ImageBlock:
				if img := bedrockImageBlock(b); img != nil {
					content = append(content, img)
				}
			}
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

// bedrockImageBlock converts a base64 image source to Bedrock's raw-bytes
// image block. URL sources are skipped; Converse only accepts inline bytes.
func bedrockImageBlock(b models.ImageBlock) *types.ContentBlockMemberImage {
	var src struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	}
	if err := json.Unmarshal(b.Source, &src); err != nil || src.Type != "base64" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(src.Data)
	if err != nil {
		return nil
	}
	var format types.ImageFormat
	switch strings.ToLower(src.MediaType) {
	case "image/png":
		format = types.ImageFormatPng
	case "image/jpeg", "image/jpg":
		format = types.ImageFormatJpeg
	case "image/gif":
		format = types.ImageFormatGif
	case "image/webp":
		format = types.ImageFormatWebp
	default:
		return nil
	}
	return &types.ContentBlockMemberImage{
		Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: data},
		},
	}
}

func (p *BedrockProvider) model(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func normalizeBedrockStop(reason types.StopReason) string {
	switch reason {
	case "", types.StopReasonEndTurn, types.StopReasonStopSequence:
		return StopEndTurn
	case types.StopReasonToolUse:
		return StopToolUse
	case types.StopReasonMaxTokens:
		return StopMaxTokens
	default:
		return string(reason)
	}
}
