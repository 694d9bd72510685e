// Package models defines the wire types shared across the Loom runtime:
// conversation messages and their content blocks, stream events, run results,
// session records, traces, and background tasks.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks messages authored by the caller (including tool results).
	RoleUser Role = "user"

	// RoleAssistant marks messages authored by the model.
	RoleAssistant Role = "assistant"
)

// Block is a typed unit of message content. Variants: TextBlock,
// ToolUseBlock, ToolResultBlock, ImageBlock.
type Block interface {
	// BlockType returns the wire discriminator ("text", "tool_use", ...).
	BlockType() string
}

// TextBlock carries natural-language output.
type TextBlock struct {
	Text string `json:"text"`
}

// BlockType implements Block.
func (TextBlock) BlockType() string { return "text" }

// ToolUseBlock is an assistant request to invoke a tool. ID is unique within
// the conversation.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// BlockType implements Block.
func (ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock carries the outcome of a prior ToolUseBlock. It appears in
// user-role messages and must reference an earlier tool_use id.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// BlockType implements Block.
func (ToolResultBlock) BlockType() string { return "tool_result" }

// ImageBlock carries a provider-format image source payload. The runtime
// treats it as opaque; providers translate it at their boundary.
type ImageBlock struct {
	Source json.RawMessage `json:"source"`
}

// BlockType implements Block.
func (ImageBlock) BlockType() string { return "image" }

// BlockList is ordered message content. On the wire it is either a plain
// string (a single text block) or a JSON array of typed blocks.
type BlockList []Block

// MarshalJSON emits a bare string when the list is exactly one text block,
// otherwise a typed array.
func (b BlockList) MarshalJSON() ([]byte, error) {
	if len(b) == 1 {
		if t, ok := b[0].(TextBlock); ok {
			return json.Marshal(t.Text)
		}
	}
	items := make([]json.RawMessage, 0, len(b))
	for _, blk := range b {
		raw, err := marshalBlock(blk)
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return json.Marshal(items)
}

func marshalBlock(blk Block) (json.RawMessage, error) {
	inner, err := json.Marshal(blk)
	if err != nil {
		return nil, err
	}
	// Prepend the type discriminator without a second struct per variant.
	var m map[string]json.RawMessage
	if err := json.Unmarshal(inner, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	typ, _ := json.Marshal(blk.BlockType())
	m["type"] = typ
	return json.Marshal(m)
}

// UnmarshalJSON accepts a bare string or an array of typed blocks.
func (b *BlockList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = BlockList{TextBlock{Text: s}}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(BlockList, 0, len(items))
	for _, item := range items {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return err
		}
		switch head.Type {
		case "text":
			var blk TextBlock
			if err := json.Unmarshal(item, &blk); err != nil {
				return err
			}
			out = append(out, blk)
		case "tool_use":
			var blk ToolUseBlock
			if err := json.Unmarshal(item, &blk); err != nil {
				return err
			}
			out = append(out, blk)
		case "tool_result":
			var blk ToolResultBlock
			if err := json.Unmarshal(item, &blk); err != nil {
				return err
			}
			out = append(out, blk)
		case "image":
			var blk ImageBlock
			if err := json.Unmarshal(item, &blk); err != nil {
				return err
			}
			out = append(out, blk)
		default:
			return fmt.Errorf("models: unknown block type %q", head.Type)
		}
	}
	*b = out
	return nil
}

// Message is one conversation entry.
type Message struct {
	Role    Role      `json:"role"`
	Content BlockList `json:"content"`
}

// NewUserText builds a plain-text user message.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: BlockList{TextBlock{Text: text}}}
}

// NewAssistantText builds a plain-text assistant message.
func NewAssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: BlockList{TextBlock{Text: text}}}
}

// Text concatenates all text blocks in the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, blk := range m.Content {
		if t, ok := blk.(TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool_use blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, blk := range m.Content {
		if tu, ok := blk.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ToolResults returns the tool_result blocks of the message in order.
func (m Message) ToolResults() []ToolResultBlock {
	var out []ToolResultBlock
	for _, blk := range m.Content {
		if tr, ok := blk.(ToolResultBlock); ok {
			out = append(out, tr)
		}
	}
	return out
}

// HasToolResults reports whether the message carries any tool_result block.
func (m Message) HasToolResults() bool {
	for _, blk := range m.Content {
		if _, ok := blk.(ToolResultBlock); ok {
			return true
		}
	}
	return false
}

// IsTurnBoundary reports whether the message opens a logical turn: a user
// message whose content is not a list of tool_result blocks.
func (m Message) IsTurnBoundary() bool {
	return m.Role == RoleUser && !m.HasToolResults()
}
