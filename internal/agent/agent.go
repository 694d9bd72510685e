// Package agent implements the turn loop: the engine that drives an LLM
// conversation through tool dispatch, context compression, steering, session
// persistence and trace recording until the model stops asking for tools or
// the turn budget runs out.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/loomlabs/loom/internal/compressor"
	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/observability"
	"github.com/loomlabs/loom/internal/sessions"
	"github.com/loomlabs/loom/internal/skills"
	"github.com/loomlabs/loom/internal/tools"
	enginetrace "github.com/loomlabs/loom/internal/trace"
	"github.com/loomlabs/loom/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxTokens = 8192

	// llmMaxRetries bounds retry attempts after the first failure.
	llmMaxRetries = 3

	// toolResultPreviewLimit caps the tool_result event payload for UIs.
	toolResultPreviewLimit = 1000

	// finalSummaryMaxTokens bounds the extra summary call made after the
	// turn budget is exhausted.
	finalSummaryMaxTokens = 4096
)

// retryBackoffs are the waits between LLM retry attempts.
var retryBackoffs = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

const maxTokensRetryAdvice = "Tool call was truncated because the response hit the max_tokens limit. " +
	"The tool was not executed. Retry with a shorter approach: break the work into smaller steps " +
	"or write large content to a file in pieces."

const finalSummaryRequest = "You have reached the maximum number of turns for this task. " +
	"Do not call any more tools. Summarize what you accomplished, what remains unfinished, " +
	"and the best answer you can give based on the work so far."

// Config wires an Agent.
type Config struct {
	// Client routes LLM calls by provider name.
	Client *llm.Client

	// Tools is the builtin tool catalog. Filtered per run by the tools
	// allowlist; skill and MCP tools are added per run on top. Superseded
	// by BuildTools when workspace provisioning is configured.
	Tools *tools.Registry

	// Workspaces provisions one workspace directory per run, removed when
	// the run finishes. Requires BuildTools.
	Workspaces *tools.WorkspaceManager

	// BuildTools constructs the builtin catalog bound to a run's workspace.
	BuildTools func(workspace string) *tools.Registry

	// Invoker configures tool dispatch (concurrency bound, timeouts).
	Invoker tools.InvokerConfig

	// Skills backs list_skills/get_skill. Nil disables the skill tools.
	Skills skills.Registry

	// Sessions persists conversations. Nil disables session continuity.
	Sessions sessions.Store

	// Recorder persists traces. Nil disables trace recording.
	Recorder *enginetrace.Recorder

	// SystemPrompt is the base system text. RunOptions.CustomSystemPrompt
	// is appended after it.
	SystemPrompt string

	// DefaultProvider and DefaultModel apply when RunOptions leaves the
	// model selection empty.
	DefaultProvider string
	DefaultModel    string

	// MaxTokens caps each LLM response (default 8192).
	MaxTokens int

	// Metrics and Tracer are optional instrumentation.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	Logger *slog.Logger
}

// Agent executes runs. Safe for concurrent use; all per-run state lives in
// the run struct.
type Agent struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an agent.
func New(cfg Config) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	return &Agent{cfg: cfg, logger: cfg.Logger}
}

// run is the mutable state of one request.
type run struct {
	agent     *Agent
	opts      RunOptions
	stream    *EventStream
	streaming bool

	provider     string
	model        string
	maxTurns     int
	maxTokens    int
	contextLimit int
	comp         *compressor.Compressor
	invoker      *tools.Invoker
	toolsets     []*tools.MCPToolset

	messages        []models.Message
	turn            int
	totalIn         int
	totalOut        int
	lastInputTokens int

	steps       []models.Step
	llmCalls    []models.LLMCall
	skillsUsed  map[string]bool
	outputFiles []models.OutputFile
	seenFiles   map[string]bool

	trace   *models.Trace
	started time.Time
}

// Run executes one request. A non-nil stream selects streaming execution and
// receives progress events; the stream is closed before Run returns. The
// outcome is always reported through the returned AgentResult, never an
// error return.
func (a *Agent) Run(ctx context.Context, request string, opts RunOptions, stream *EventStream) *models.AgentResult {
	r := &run{
		agent:      a,
		opts:       opts,
		stream:     stream,
		streaming:  stream != nil,
		provider:   opts.ModelProvider,
		model:      opts.Model,
		maxTurns:   clampTurns(opts.MaxTurns),
		skillsUsed: map[string]bool{},
		seenFiles:  map[string]bool{},
		started:    time.Now(),
	}
	if r.provider == "" {
		r.provider = a.cfg.DefaultProvider
	}
	if r.model == "" {
		r.model = a.cfg.DefaultModel
	}
	r.maxTokens = opts.MaxTokens
	if r.maxTokens <= 0 {
		r.maxTokens = a.cfg.MaxTokens
	}
	r.contextLimit = llm.ContextWindow(r.provider, r.model)
	r.comp = compressor.New(&llm.ProviderSummarizer{
		Client:   a.cfg.Client,
		Provider: r.provider,
		Model:    r.model,
	}, a.logger)

	base := a.cfg.Tools
	if a.cfg.Workspaces != nil && a.cfg.BuildTools != nil {
		if ws, err := a.cfg.Workspaces.Create(); err != nil {
			a.logger.Warn("workspace create failed", "error", err)
		} else {
			base = a.cfg.BuildTools(ws)
			defer func() {
				if err := a.cfg.Workspaces.Remove(ws); err != nil {
					a.logger.Warn("workspace remove failed", "workspace", ws, "error", err)
				}
			}()
		}
	}
	r.invoker, r.toolsets = a.buildInvoker(ctx, base, &opts, func(name string) {
		r.skillsUsed[name] = true
	})
	defer func() {
		for _, ts := range r.toolsets {
			ts.Close()
		}
	}()

	requestMsg := buildRequestMessage(request, opts.ImageContents)
	r.messages = append(r.messages, r.loadHistory(ctx)...)
	r.messages = append(r.messages, requestMsg)

	if a.cfg.Recorder != nil {
		r.trace = a.cfg.Recorder.Begin(ctx, request, r.provider, r.model, opts.ExecutorName, opts.SessionID)
		r.push(models.EventRunStarted, map[string]any{
			"trace_id":   r.trace.ID,
			"session_id": opts.SessionID,
		})
	}

	if a.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = a.cfg.Tracer.Start(ctx, "agent.run",
			trace.WithAttributes(
				attribute.String("llm.provider", r.provider),
				attribute.String("llm.model", r.model),
				attribute.String("session.id", opts.SessionID),
			))
		defer span.End()
	}
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.ActiveRuns.Inc()
		defer a.cfg.Metrics.ActiveRuns.Dec()
	}

	result := r.loop(ctx)
	r.finalize(ctx, requestMsg, result)

	if a.cfg.Metrics != nil {
		status := "failed"
		switch {
		case result.Success:
			status = "success"
		case result.Error == models.ErrTagCancelled:
			status = "cancelled"
		}
		a.cfg.Metrics.RunCounter.WithLabelValues(r.provider, r.model, status).Inc()
		a.cfg.Metrics.RunDuration.WithLabelValues(r.provider, r.model).
			Observe(time.Since(r.started).Seconds())
	}
	return result
}

// loadHistory returns the prior message list: the session working context
// when a session is bound, the explicit conversation history otherwise.
func (r *run) loadHistory(ctx context.Context) []models.Message {
	a := r.agent
	if r.opts.SessionID == "" || a.cfg.Sessions == nil {
		return r.opts.ConversationHistory
	}
	tokensIn, tokensOut, err := sessions.PreCompressIfNeeded(
		ctx, a.cfg.Sessions, r.comp, r.opts.agentID(), r.opts.SessionID, r.contextLimit, a.logger)
	r.totalIn += tokensIn
	r.totalOut += tokensOut
	if err != nil {
		a.logger.Warn("pre-compression failed", "session_id", r.opts.SessionID, "error", err)
	}
	rec, err := a.cfg.Sessions.Load(ctx, r.opts.agentID(), r.opts.SessionID)
	if err != nil {
		a.logger.Warn("session load failed", "session_id", r.opts.SessionID, "error", err)
		return r.opts.ConversationHistory
	}
	return sessions.WorkingContext(rec)
}

// loop runs the turn loop and returns the terminal result.
func (r *run) loop(ctx context.Context) *models.AgentResult {
	for r.turn < r.maxTurns {
		if ctx.Err() != nil {
			return r.cancelledResult()
		}

		if r.lastInputTokens > 0 && compressor.ShouldCompress(r.lastInputTokens, r.contextLimit) {
			r.compress(ctx)
		}

		r.turn++
		if m := r.agent.cfg.Metrics; m != nil {
			m.TurnCounter.WithLabelValues(r.provider, r.model).Inc()
		}
		r.push(models.EventTurnStart, map[string]any{"max_turns": r.maxTurns})

		resp, err := r.callModel(ctx, r.toolSpecs(), r.maxTokens, r.streaming)
		if ctx.Err() != nil {
			return r.cancelledResult()
		}
		if err != nil {
			r.push(models.EventError, map[string]any{"message": err.Error()})
			return r.failedResult(err.Error())
		}

		toolUses := resp.ToolUses()
		r.messages = append(r.messages, models.Message{Role: models.RoleAssistant, Content: resp.Content})

		// max_tokens truncation guard: tool inputs are likely incomplete,
		// so feed synthetic error results instead of executing them.
		if resp.StopReason == llm.StopMaxTokens && len(toolUses) > 0 {
			r.agent.logger.Warn("response truncated with pending tool calls",
				"turn", r.turn, "pending", len(toolUses))
			r.messages = append(r.messages, syntheticToolResults(toolUses))
			if text, ok := r.takeSteering(); ok {
				r.messages = append(r.messages, models.NewUserText(text))
			}
			r.pushTurnComplete()
			continue
		}

		if resp.StopReason != llm.StopMaxTokens && len(toolUses) == 0 {
			if text, ok := r.takeSteering(); ok {
				r.messages = append(r.messages, models.NewUserText(text))
				r.pushTurnComplete()
				continue
			}
			return r.successResult(resp.Text())
		}

		if len(toolUses) > 0 {
			results, cancelled := r.executeTools(ctx, toolUses)
			if cancelled {
				return r.cancelledResult()
			}
			if ctx.Err() != nil {
				return r.cancelledResult()
			}
			r.messages = append(r.messages, models.Message{Role: models.RoleUser, Content: results})
		}

		if text, ok := r.takeSteering(); ok {
			r.messages = append(r.messages, models.NewUserText(text))
		}
		r.pushTurnComplete()
	}

	return r.maxTurnsResult(ctx)
}

// callModel performs one LLM call with bounded retries. A streaming failure
// downgrades the remaining attempts to non-streaming.
func (r *run) callModel(ctx context.Context, specs []llm.ToolSpec, maxTokens int, streaming bool) (*llm.Response, error) {
	req := &llm.Request{
		Model:     r.model,
		System:    r.systemPrompt(),
		Messages:  r.messages,
		Tools:     specs,
		MaxTokens: maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= llmMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoffs[attempt-1]
			r.agent.logger.Warn("retrying llm call",
				"turn", r.turn, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		callStart := time.Now()
		var resp *llm.Response
		var err error
		if streaming {
			resp, err = r.streamCall(ctx, req)
		} else {
			resp, err = r.agent.cfg.Client.Call(ctx, r.provider, req)
		}
		if err == nil {
			r.recordCall(resp, streaming, time.Since(callStart))
			return resp, nil
		}
		lastErr = err
		if m := r.agent.cfg.Metrics; m != nil {
			m.LLMRequestCounter.WithLabelValues(r.provider, r.model, "error").Inc()
		}
		if streaming {
			// A broken stream retries without streaming so partial
			// deltas cannot be duplicated.
			streaming = false
		}
		if !llm.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// streamCall drains one streaming response, forwarding text fragments as
// text_delta events, and returns the consolidated final response.
func (r *run) streamCall(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	deltas, err := r.agent.cfg.Client.Stream(ctx, r.provider, req)
	if err != nil {
		return nil, err
	}
	var final *llm.Response
	for delta := range deltas {
		if delta.Err != nil {
			return nil, delta.Err
		}
		if delta.Text != "" {
			r.push(models.EventTextDelta, map[string]any{"text": delta.Text})
		}
		if delta.Response != nil {
			final = delta.Response
		}
	}
	if final == nil {
		return nil, &llm.ProviderError{
			Provider: r.provider,
			Model:    r.model,
			Reason:   llm.ReasonConnection,
			Message:  "stream ended without a final response",
		}
	}
	return final, nil
}

func (r *run) recordCall(resp *llm.Response, streaming bool, elapsed time.Duration) {
	r.totalIn += resp.Usage.InputTokens
	r.totalOut += resp.Usage.OutputTokens
	r.lastInputTokens = resp.Usage.InputTokens
	r.llmCalls = append(r.llmCalls, models.LLMCall{
		Turn:         r.turn,
		Provider:     r.provider,
		Model:        r.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		StopReason:   resp.StopReason,
		Streaming:    streaming,
		DurationMS:   elapsed.Milliseconds(),
	})
	if m := r.agent.cfg.Metrics; m != nil {
		m.LLMRequestCounter.WithLabelValues(r.provider, r.model, "success").Inc()
		m.LLMRequestDuration.WithLabelValues(r.provider, r.model).Observe(elapsed.Seconds())
		m.LLMTokensUsed.WithLabelValues(r.provider, r.model, "input").Add(float64(resp.Usage.InputTokens))
		m.LLMTokensUsed.WithLabelValues(r.provider, r.model, "output").Add(float64(resp.Usage.OutputTokens))
	}
}

// executeTools dispatches the turn's tool calls sequentially in emission
// order and returns the tool_result blocks. cancelled reports a context
// cancellation observed between calls.
func (r *run) executeTools(ctx context.Context, toolUses []models.ToolUseBlock) (models.BlockList, bool) {
	results := make(models.BlockList, 0, len(toolUses))
	for _, tu := range toolUses {
		if ctx.Err() != nil {
			return nil, true
		}
		r.push(models.EventToolCall, map[string]any{
			"tool_name":  tu.Name,
			"tool_input": json.RawMessage(tu.Input),
		})

		stepStart := time.Now()
		toolCtx := ctx
		var span trace.Span
		if t := r.agent.cfg.Tracer; t != nil {
			toolCtx, span = t.Start(ctx, "tool.invoke",
				trace.WithAttributes(attribute.String("tool.name", tu.Name)))
		}
		res, err := r.invoker.Invoke(toolCtx, tu.Name, tu.Input)
		if span != nil {
			span.End()
		}
		if err != nil {
			return nil, true
		}
		if m := r.agent.cfg.Metrics; m != nil {
			status := "success"
			if res.IsError {
				status = "error"
			}
			m.ToolExecutionCounter.WithLabelValues(tu.Name, status).Inc()
			m.ToolExecutionDuration.WithLabelValues(tu.Name).Observe(time.Since(stepStart).Seconds())
		}

		r.steps = append(r.steps, models.Step{
			Turn:       r.turn,
			ToolName:   tu.Name,
			ToolInput:  tu.Input,
			ToolResult: truncatePreview(res.Content, toolResultPreviewLimit),
			IsError:    res.IsError,
			StartedAt:  stepStart.UTC(),
			DurationMS: time.Since(stepStart).Milliseconds(),
		})
		r.push(models.EventToolResult, map[string]any{
			"tool_name":   tu.Name,
			"tool_input":  json.RawMessage(tu.Input),
			"tool_result": truncatePreview(res.Content, toolResultPreviewLimit),
		})

		for _, file := range harvestOutputFiles(tu.Name, res.Content, r.seenFiles) {
			r.outputFiles = append(r.outputFiles, file)
			r.push(models.EventOutputFile, map[string]any{
				"file_id":      file.FileID,
				"filename":     file.Filename,
				"size":         file.Size,
				"content_type": file.ContentType,
				"download_url": file.DownloadURL,
			})
		}

		results = append(results, models.ToolResultBlock{
			ToolUseID: tu.ID,
			Content:   res.Content,
			IsError:   res.IsError,
		})
	}
	return results, false
}

// compress rebuilds the working context and charges the summary tokens to
// the run totals.
func (r *run) compress(ctx context.Context) {
	previous := r.lastInputTokens
	result, err := r.comp.Compress(ctx, r.messages, r.contextLimit)
	if err != nil {
		r.agent.logger.Warn("context compression failed", "turn", r.turn, "error", err)
		return
	}
	if !result.Compressed {
		return
	}
	r.messages = result.Messages
	r.totalIn += result.SummaryTokensIn
	r.totalOut += result.SummaryTokensOut
	r.lastInputTokens = 0
	if m := r.agent.cfg.Metrics; m != nil {
		m.CompressionCounter.WithLabelValues("threshold").Inc()
	}
	r.push(models.EventContextCompressed, map[string]any{
		"previous_tokens": previous,
		"context_limit":   r.contextLimit,
	})
	r.agent.logger.Info("compressed context",
		"turn", r.turn, "previous_tokens", previous, "context_limit", r.contextLimit)
}

// maxTurnsResult makes one last non-streaming call, with no tools offered,
// asking the model to summarize what it got done.
func (r *run) maxTurnsResult(ctx context.Context) *models.AgentResult {
	r.messages = append(r.messages, models.NewUserText(finalSummaryRequest))

	answer := ""
	resp, err := r.callModel(ctx, nil, finalSummaryMaxTokens, false)
	if err != nil {
		r.agent.logger.Warn("final summary call failed", "error", err)
	} else {
		answer = resp.Text()
		r.messages = append(r.messages, models.Message{Role: models.RoleAssistant, Content: resp.Content})
	}

	result := r.baseResult()
	result.Answer = answer
	result.Error = models.ErrTagMaxTurnsExceeded
	return result
}

func (r *run) successResult(answer string) *models.AgentResult {
	result := r.baseResult()
	result.Success = true
	result.Answer = answer
	return result
}

func (r *run) failedResult(errMsg string) *models.AgentResult {
	result := r.baseResult()
	result.Error = errMsg
	return result
}

func (r *run) cancelledResult() *models.AgentResult {
	result := r.baseResult()
	result.Answer = "cancelled"
	result.Error = models.ErrTagCancelled
	return result
}

func (r *run) baseResult() *models.AgentResult {
	return &models.AgentResult{
		Steps:             r.steps,
		LLMCalls:          r.llmCalls,
		TotalTurns:        r.turn,
		TotalInputTokens:  r.totalIn,
		TotalOutputTokens: r.totalOut,
		SkillsUsed:        sortedSet(r.skillsUsed),
		OutputFiles:       r.outputFiles,
		FinalMessages:     r.messages,
	}
}

// finalize persists the session and trace and emits the terminal complete
// event, cancelled runs included; only then is the stream closed.
func (r *run) finalize(ctx context.Context, requestMsg models.Message, result *models.AgentResult) {
	a := r.agent
	if r.opts.SessionID != "" && a.cfg.Sessions != nil {
		// Finalization must survive a cancelled request context.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		agentID := r.opts.agentID()
		if err := a.cfg.Sessions.SaveCheckpoint(saveCtx, agentID, r.opts.SessionID, r.messages); err != nil {
			a.logger.Warn("session checkpoint failed", "session_id", r.opts.SessionID, "error", err)
		}
		display := []models.Message{requestMsg}
		if result.Answer != "" {
			display = append(display, models.NewAssistantText(result.Answer))
		}
		if err := a.cfg.Sessions.AppendDisplay(saveCtx, agentID, r.opts.SessionID, display); err != nil {
			a.logger.Warn("session display append failed", "session_id", r.opts.SessionID, "error", err)
		}
	}

	if r.trace != nil {
		traceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		a.cfg.Recorder.Finish(traceCtx, r.trace, result, r.started)
	}

	if r.stream != nil {
		r.push(models.EventComplete, map[string]any{
			"success":             result.Success,
			"answer":              result.Answer,
			"total_turns":         result.TotalTurns,
			"total_input_tokens":  result.TotalInputTokens,
			"total_output_tokens": result.TotalOutputTokens,
			"skills_used":         result.SkillsUsed,
			"output_files":        result.OutputFiles,
			"final_messages":      result.FinalMessages,
			"error":               result.Error,
		})
		r.stream.Close()
	}
}

func (r *run) takeSteering() (string, bool) {
	if r.stream == nil {
		return "", false
	}
	text, ok := r.stream.TakeInjection()
	if ok {
		r.push(models.EventSteeringReceived, map[string]any{"message": text})
	}
	return text, ok
}

func (r *run) pushTurnComplete() {
	snapshot := make([]models.Message, len(r.messages))
	copy(snapshot, r.messages)
	r.push(models.EventTurnComplete, map[string]any{"messages_snapshot": snapshot})
}

func (r *run) push(eventType models.EventType, data map[string]any) {
	if r.stream == nil {
		return
	}
	r.stream.Push(models.StreamEvent{Type: eventType, Turn: r.turn, Data: data})
}

func (r *run) toolSpecs() []llm.ToolSpec {
	return r.invoker.Registry().Specs()
}

func (r *run) systemPrompt() string {
	prompt := r.agent.cfg.SystemPrompt
	if r.opts.CustomSystemPrompt != "" {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += r.opts.CustomSystemPrompt
	}
	return prompt
}

// buildInvoker assembles the per-run tool set: builtins filtered by the
// allowlist, skill tools wired to the run's usage tracker, and MCP tools
// from equipped servers (which bypass the allowlist).
func (a *Agent) buildInvoker(ctx context.Context, base *tools.Registry, opts *RunOptions, onSkill func(string)) (*tools.Invoker, []*tools.MCPToolset) {
	reg := base.Filtered(opts.ToolsAllowlist)
	if a.cfg.Skills != nil {
		if toolAllowed(opts.ToolsAllowlist, "list_skills") {
			reg.Register(tools.NewListSkillsTool(a.cfg.Skills, opts.SkillsAllowlist))
		}
		if toolAllowed(opts.ToolsAllowlist, "get_skill") {
			reg.Register(tools.NewGetSkillTool(a.cfg.Skills, opts.SkillsAllowlist, onSkill))
		}
	}
	toolsets := tools.RegisterMCPToolsets(ctx, reg, opts.MCPServers, a.logger)
	return tools.NewInvoker(reg, a.cfg.Invoker), toolsets
}

func toolAllowed(allowlist []string, name string) bool {
	if allowlist == nil {
		return true
	}
	for _, a := range allowlist {
		if a == name {
			return true
		}
	}
	return false
}

func buildRequestMessage(request string, images []models.ImageBlock) models.Message {
	content := models.BlockList{models.TextBlock{Text: request}}
	for _, img := range images {
		content = append(content, img)
	}
	return models.Message{Role: models.RoleUser, Content: content}
}

// syntheticToolResults answers truncated tool calls with error results so
// every tool_use still gets a paired tool_result.
func syntheticToolResults(toolUses []models.ToolUseBlock) models.Message {
	content := make(models.BlockList, 0, len(toolUses))
	for _, tu := range toolUses {
		content = append(content, models.ToolResultBlock{
			ToolUseID: tu.ID,
			Content:   maxTokensRetryAdvice,
			IsError:   true,
		})
	}
	return models.Message{Role: models.RoleUser, Content: content}
}

func truncatePreview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... [truncated]"
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
