package llm

import "strings"

// DefaultContextWindow is the fallback context window size in tokens for
// unknown (provider, model) pairs.
const DefaultContextWindow = 200_000

// contextWindows maps model id prefixes to context window sizes, grouped by
// provider. Longest prefix wins.
var contextWindows = map[string]map[string]int{
	"anthropic": {
		"claude-opus-4":     200_000,
		"claude-sonnet-4":   200_000,
		"claude-3-7-sonnet": 200_000,
		"claude-3-5-sonnet": 200_000,
		"claude-3-5-haiku":  200_000,
		"claude-3":          200_000,
	},
	"openai": {
		"gpt-4o":      128_000,
		"gpt-4o-mini": 128_000,
		"gpt-4.1":     1_000_000,
		"gpt-4-turbo": 128_000,
		"gpt-4":       8_192,
		"o3":          200_000,
		"o4-mini":     200_000,
	},
	"bedrock": {
		"anthropic.claude-3": 200_000,
		"anthropic.claude":   200_000,
		"amazon.nova":        300_000,
		"meta.llama3":        128_000,
	},
	"gemini": {
		"gemini-2.5-pro":   1_048_576,
		"gemini-2.5-flash": 1_048_576,
		"gemini-2.0-flash": 1_048_576,
		"gemini-1.5-pro":   2_097_152,
		"gemini-1.5-flash": 1_048_576,
	},
}

// ContextWindow returns the context window size in tokens for the given
// provider and model, falling back to DefaultContextWindow when unknown.
func ContextWindow(provider, model string) int {
	byModel, ok := contextWindows[strings.ToLower(provider)]
	if !ok {
		return DefaultContextWindow
	}
	best := 0
	size := 0
	for prefix, tokens := range byModel {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			best = len(prefix)
			size = tokens
		}
	}
	if size == 0 {
		return DefaultContextWindow
	}
	return size
}
