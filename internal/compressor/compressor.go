// Package compressor rebuilds an oversized agent working context around an
// LLM-written summary. It always splits at logical turn boundaries (user
// messages that are not tool_result carriers) so tool_use/tool_result pairs
// are either summarized together or kept together.
package compressor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/pkg/models"
)

// Tuning constants for threshold detection and retention.
const (
	// ThresholdRatio of the context window above which compression runs.
	ThresholdRatio = 0.70

	// RecentTurnsTokenBudget is the share of the window reserved for turns
	// kept verbatim.
	RecentTurnsTokenBudget = 0.25

	// MaxRecentTurns caps how many trailing turns are kept verbatim.
	MaxRecentTurns = 5

	// CharsPerToken is the estimation rule of thumb.
	CharsPerToken = 3.5

	summaryMaxTokens    = 4096
	maxTranscriptChars  = 100_000
	toolInputTruncateAt = 500
	toolOutputTruncate  = 1000
)

// ShouldCompress reports whether the last call's input tokens crossed the
// threshold. Strictly greater than; exactly at threshold does not trigger.
func ShouldCompress(lastInputTokens, contextLimit int) bool {
	return float64(lastInputTokens) > ThresholdRatio*float64(contextLimit)
}

// EstimateTokens estimates the token count of a message list.
func EstimateTokens(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		total += estimateMessageTokens(msg)
	}
	return total
}

func estimateMessageTokens(msg models.Message) int {
	chars := 0
	for _, blk := range msg.Content {
		switch b := blk.(type) {
		case models.TextBlock:
			chars += len(b.Text)
		case models.ToolUseBlock:
			chars += len(b.Name) + len(b.Input)
		case models.ToolResultBlock:
			chars += len(b.Content)
		case models.ImageBlock:
			chars += len(b.Source)
		}
	}
	return int(float64(chars) / CharsPerToken)
}

// Result is the outcome of one compression pass.
type Result struct {
	// Messages is the rebuilt working context. Equal to the input when
	// nothing was compressed.
	Messages []models.Message

	// Compressed reports whether a summary was produced.
	Compressed bool

	// SummaryTokensIn / SummaryTokensOut are the token cost of the summary
	// call(s), charged to the run totals.
	SummaryTokensIn  int
	SummaryTokensOut int
}

// Compressor performs summarization-based context compression.
type Compressor struct {
	summarizer llm.Summarizer
	logger     *slog.Logger
}

// New creates a compressor over the given summarizer.
func New(summarizer llm.Summarizer, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{summarizer: summarizer, logger: logger}
}

// Compress rebuilds messages to fit the context limit. It never returns an
// error for summary-call failures; those fall back to a raw transcript.
func (c *Compressor) Compress(ctx context.Context, messages []models.Message, contextLimit int) (*Result, error) {
	unchanged := &Result{Messages: messages}

	boundaries := turnBoundaries(messages)
	if len(boundaries) < 2 {
		return unchanged, nil
	}

	budget := RecentTurnsTokenBudget * float64(contextLimit)
	k := retainedTurns(messages, boundaries, budget)
	if k >= len(boundaries) {
		return unchanged, nil
	}

	split := boundaries[len(boundaries)-k]
	oldMessages := messages[:split]
	recentMessages := messages[split:]

	readFiles, modifiedFiles := fileOperations(oldMessages)

	prevSummary, iterative := extractSummary(oldMessages)
	if iterative {
		prevRead, prevModified := extractFileTracking(prevSummary)
		mergeSet(readFiles, prevRead)
		mergeSet(modifiedFiles, prevModified)
	}

	result := &Result{Compressed: true}

	// A single oversized terminal turn is split at a safe point inside the
	// turn; the turn's own prefix gets a secondary summary.
	var prefixSummary string
	if k == 1 && float64(EstimateTokens(recentMessages)) > 0.5*budget {
		if cut := safeCut(recentMessages, budget); cut > 0 {
			prefix := recentMessages[:cut]
			recentMessages = recentMessages[cut:]
			prefixSummary = c.summarizeTurnPrefix(ctx, prefix, result)
		}
	}

	fileTracking := fileTrackingXML(readFiles, modifiedFiles)

	var system, user string
	if iterative {
		system = renderUpdatePrompt(prevSummary, fileTracking)
		user = serializeTranscript(newMessagesSinceSummary(oldMessages))
	} else {
		system = renderInitialPrompt(fileTracking)
		user = serializeTranscript(oldMessages)
	}

	summaryText, tokensIn, tokensOut, err := c.summarizer.Summarize(ctx, system, user, summaryMaxTokens)
	if err != nil || strings.TrimSpace(summaryText) == "" {
		if err != nil {
			c.logger.Warn("summary call failed, falling back to raw transcript", "error", err)
		}
		summaryText = truncateMiddle(serializeTranscript(oldMessages), maxTranscriptChars/2)
	}
	result.SummaryTokensIn += tokensIn
	result.SummaryTokensOut += tokensOut

	summaryText = ensureWrapped(summaryText, fileTracking)
	if prefixSummary != "" {
		summaryText += "\n\n[Recent turn prefix context]: " + prefixSummary
	}

	compressionMessage := models.NewUserText(
		continuationPrefix + "\n\n" + summaryText + "\n\n" + continuationSuffix)

	rebuilt := []models.Message{compressionMessage}
	if len(recentMessages) > 0 && recentMessages[0].Role == models.RoleUser {
		rebuilt = append(rebuilt, models.NewAssistantText(acknowledgmentText))
	}
	rebuilt = append(rebuilt, recentMessages...)

	result.Messages = rebuilt
	return result, nil
}

// turnBoundaries returns indices of user messages that start logical turns.
func turnBoundaries(messages []models.Message) []int {
	var boundaries []int
	for i, msg := range messages {
		if msg.IsTurnBoundary() {
			boundaries = append(boundaries, i)
		}
	}
	return boundaries
}

// retainedTurns walks turns from the end, keeping at least one and at most
// MaxRecentTurns, stopping before the budget is exceeded.
func retainedTurns(messages []models.Message, boundaries []int, budget float64) int {
	kept := 0
	total := 0.0
	for i := len(boundaries) - 1; i >= 0; i-- {
		end := len(messages)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		turnTokens := float64(EstimateTokens(messages[boundaries[i]:end]))
		if kept >= 1 && total+turnTokens > budget {
			break
		}
		total += turnTokens
		kept++
		if kept >= MaxRecentTurns {
			break
		}
	}
	return kept
}

// safeCut finds the latest in-turn cut whose suffix fits the budget. Valid
// cut points sit right after assistant messages not immediately followed by
// a tool_result, so no tool_use/tool_result pair is torn apart.
func safeCut(turn []models.Message, budget float64) int {
	suffixTokens := 0.0
	lastFit := 0
	for i := len(turn) - 1; i >= 1; i-- {
		suffixTokens += float64(estimateMessageTokens(turn[i]))
		if suffixTokens > budget {
			break
		}
		prev := turn[i-1]
		if prev.Role == models.RoleAssistant && !turn[i].HasToolResults() {
			lastFit = i
		}
	}
	return lastFit
}

func (c *Compressor) summarizeTurnPrefix(ctx context.Context, prefix []models.Message, result *Result) string {
	transcript := serializeTranscript(prefix)
	text, tokensIn, tokensOut, err := c.summarizer.Summarize(ctx, turnPrefixPrompt, transcript, summaryMaxTokens)
	result.SummaryTokensIn += tokensIn
	result.SummaryTokensOut += tokensOut
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			c.logger.Warn("turn prefix summary failed, using plaintext fallback", "error", err)
		}
		return truncateMiddle(transcript, maxTranscriptChars/10)
	}
	return text
}

// fileOperations extracts cumulative read and modified file sets from tool
// activity: read/glob/grep inputs feed the read set, write/edit inputs and
// new_files in tool_results feed the modified set.
func fileOperations(messages []models.Message) (read, modified map[string]struct{}) {
	read = make(map[string]struct{})
	modified = make(map[string]struct{})
	for _, msg := range messages {
		for _, tu := range msg.ToolUses() {
			path := inputPath(tu.Input)
			if path == "" {
				continue
			}
			switch tu.Name {
			case "read", "glob", "grep":
				read[path] = struct{}{}
			case "write", "edit":
				modified[path] = struct{}{}
			}
		}
		for _, tr := range msg.ToolResults() {
			for _, f := range resultNewFiles(tr.Content) {
				modified[f] = struct{}{}
			}
		}
	}
	return read, modified
}

func inputPath(input json.RawMessage) string {
	var fields struct {
		Path    string `json:"path"`
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	if fields.Path != "" {
		return fields.Path
	}
	return fields.Pattern
}

func resultNewFiles(content string) []string {
	var payload struct {
		NewFiles []string `json:"new_files"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil
	}
	return payload.NewFiles
}

// extractSummary returns the previous summary block when the first message
// carries one, marking the pass as iterative.
func extractSummary(messages []models.Message) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}
	text := messages[0].Text()
	start := strings.Index(text, "<summary>")
	if messages[0].Role != models.RoleUser || start < 0 {
		return "", false
	}
	end := strings.Index(text, "</summary>")
	if end < start {
		return text[start:], true
	}
	return text[start : end+len("</summary>")], true
}

var (
	readFilesRe     = regexp.MustCompile(`(?s)<read-files>(.*?)</read-files>`)
	modifiedFilesRe = regexp.MustCompile(`(?s)<modified-files>(.*?)</modified-files>`)
)

func extractFileTracking(summary string) (read, modified map[string]struct{}) {
	read = parseFileList(readFilesRe.FindStringSubmatch(summary))
	modified = parseFileList(modifiedFilesRe.FindStringSubmatch(summary))
	return read, modified
}

func parseFileList(match []string) map[string]struct{} {
	set := make(map[string]struct{})
	if len(match) < 2 {
		return set
	}
	for _, line := range strings.Split(match[1], "\n") {
		if f := strings.TrimSpace(line); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func mergeSet(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}

func fileTrackingXML(read, modified map[string]struct{}) string {
	var sb strings.Builder
	sb.WriteString("<read-files>\n")
	for _, f := range sortedKeys(read) {
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	sb.WriteString("</read-files>\n<modified-files>\n")
	for _, f := range sortedKeys(modified) {
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	sb.WriteString("</modified-files>")
	return sb.String()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newMessagesSinceSummary drops the prior compression message and its
// synthetic acknowledgment, leaving only activity since the last summary.
func newMessagesSinceSummary(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return nil
	}
	rest := messages[1:]
	if len(rest) > 0 && rest[0].Role == models.RoleAssistant && rest[0].Text() == acknowledgmentText {
		rest = rest[1:]
	}
	return rest
}

// serializeTranscript renders messages as plain text for the summary call.
func serializeTranscript(messages []models.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		for _, blk := range msg.Content {
			switch b := blk.(type) {
			case models.TextBlock:
				fmt.Fprintf(&sb, "[%s]: %s\n", msg.Role, b.Text)
			case models.ToolUseBlock:
				fmt.Fprintf(&sb, "[%s -> tool_use(%s)]: %s\n", msg.Role, b.Name, truncate(string(b.Input), toolInputTruncateAt))
			case models.ToolResultBlock:
				fmt.Fprintf(&sb, "[tool_result]: %s\n", truncate(b.Content, toolOutputTruncate))
			case models.ImageBlock:
				fmt.Fprintf(&sb, "[%s]: [image]\n", msg.Role)
			}
		}
	}
	return truncateMiddle(sb.String(), maxTranscriptChars)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... [truncated]"
}

// truncateMiddle keeps the head and tail halves of an oversized string.
func truncateMiddle(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	half := limit / 2
	return s[:half] + "\n\n[... transcript truncated ...]\n\n" + s[len(s)-half:]
}

// ensureWrapped wraps the summary in <summary> tags and injects the file
// tracking XML before the closing tag when absent.
func ensureWrapped(summary, fileTracking string) string {
	summary = strings.TrimSpace(summary)
	if !strings.Contains(summary, "<summary>") {
		summary = "<summary>\n" + summary + "\n</summary>"
	}
	if !strings.Contains(summary, "</summary>") {
		summary += "\n</summary>"
	}
	if !strings.Contains(summary, "<read-files>") {
		idx := strings.LastIndex(summary, "</summary>")
		summary = summary[:idx] + "\n" + fileTracking + "\n" + summary[idx:]
	}
	return summary
}
