package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/sessions"
	"github.com/loomlabs/loom/internal/skills"
	"github.com/loomlabs/loom/internal/tools"
	"github.com/loomlabs/loom/internal/trace"
	"github.com/loomlabs/loom/pkg/models"
)

// scriptedProvider replays canned responses. Stream and Call draw from the
// same script so mixed streaming/summarizer traffic stays in order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []*llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) next(req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	if idx >= len(p.responses) {
		return nil, errors.New("script exhausted")
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return p.next(req)
}

func (p *scriptedProvider) Stream(ctx context.Context, req *llm.Request) (<-chan *llm.Delta, error) {
	resp, err := p.next(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan *llm.Delta, 4)
	go func() {
		defer close(ch)
		if text := resp.Text(); text != "" {
			ch <- &llm.Delta{Text: text}
		}
		ch <- &llm.Delta{Response: resp}
	}()
	return ch, nil
}

func (p *scriptedProvider) recorded() []*llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.Request(nil), p.requests...)
}

func textResponse(text string, inputTokens int) *llm.Response {
	return &llm.Response{
		Content:    models.BlockList{models.TextBlock{Text: text}},
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: inputTokens, OutputTokens: 10},
	}
}

func toolResponse(id, name, input string, stop string) *llm.Response {
	return &llm.Response{
		Content: models.BlockList{
			models.TextBlock{Text: "using " + name},
			models.ToolUseBlock{ID: id, Name: name, Input: []byte(input)},
		},
		StopReason: stop,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
	}
}

// echoTool returns its params verbatim.
type echoTool struct{ name string }

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes params" }
func (e *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (e *echoTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	return &tools.Result{Content: string(params)}, nil
}

func newTestAgent(p llm.Provider, extra ...tools.Tool) *Agent {
	return New(Config{
		Client:          llm.NewClient(p),
		Tools:           tools.NewRegistry(extra...),
		DefaultProvider: p.Name(),
		DefaultModel:    "test-model",
	})
}

func fastBackoffs(t *testing.T) {
	t.Helper()
	saved := retryBackoffs
	retryBackoffs = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryBackoffs = saved })
}

func TestRunSingleTurnSuccess(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("hello there", 50)}}
	a := newTestAgent(provider)

	result := a.Run(context.Background(), "say hello", RunOptions{}, nil)
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if result.Answer != "hello there" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.TotalTurns != 1 {
		t.Errorf("turns = %d, want 1", result.TotalTurns)
	}
	if result.TotalInputTokens != 50 || result.TotalOutputTokens != 10 {
		t.Errorf("tokens = (%d,%d)", result.TotalInputTokens, result.TotalOutputTokens)
	}
	// request user message + assistant answer
	if len(result.FinalMessages) != 2 {
		t.Errorf("final messages = %d, want 2", len(result.FinalMessages))
	}
}

func TestRunToolLoopPairsResults(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse("tu_1", "echo", `{"value":42}`, llm.StopToolUse),
		textResponse("done", 60),
	}}
	a := newTestAgent(provider, &echoTool{name: "echo"})

	result := a.Run(context.Background(), "use the tool", RunOptions{}, nil)
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if result.TotalTurns != 2 {
		t.Errorf("turns = %d, want 2", result.TotalTurns)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
	if result.Steps[0].ToolName != "echo" || result.Steps[0].IsError {
		t.Errorf("unexpected step: %+v", result.Steps[0])
	}

	// Every tool_use must have a following tool_result with the same id.
	var sawUse, sawResult bool
	for _, msg := range result.FinalMessages {
		for _, tu := range msg.ToolUses() {
			if tu.ID == "tu_1" {
				sawUse = true
			}
		}
		for _, tr := range msg.ToolResults() {
			if tr.ToolUseID == "tu_1" {
				if !sawUse {
					t.Error("tool_result appeared before its tool_use")
				}
				if !strings.Contains(tr.Content, "42") {
					t.Errorf("tool result content = %q", tr.Content)
				}
				sawResult = true
			}
		}
	}
	if !sawUse || !sawResult {
		t.Error("missing tool_use/tool_result pair in final messages")
	}

	// Second LLM request must carry the tool result back.
	reqs := provider.recorded()
	if len(reqs) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(reqs))
	}
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if last.Role != models.RoleUser || !last.HasToolResults() {
		t.Error("second call did not end with a tool_result user message")
	}
}

func TestRunMaxTokensGuardSkipsExecution(t *testing.T) {
	executed := false
	guard := &funcTool{name: "echo", fn: func(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
		executed = true
		return &tools.Result{Content: "ran"}, nil
	}}
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse("tu_trunc", "echo", `{"partial":`, llm.StopMaxTokens),
		textResponse("recovered", 70),
	}}
	// The truncated input is invalid JSON; the guard must not let it reach
	// the registry.
	provider.responses[0].Content = models.BlockList{
		models.ToolUseBlock{ID: "tu_trunc", Name: "echo", Input: []byte(`{"partial":`)},
	}
	a := newTestAgent(provider, guard)

	result := a.Run(context.Background(), "try it", RunOptions{}, nil)
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if executed {
		t.Error("truncated tool call must not execute")
	}

	var syntheticSeen bool
	for _, msg := range result.FinalMessages {
		for _, tr := range msg.ToolResults() {
			if tr.ToolUseID == "tu_trunc" {
				syntheticSeen = true
				if !tr.IsError {
					t.Error("synthetic result must be an error")
				}
				if !strings.Contains(tr.Content, "max_tokens") {
					t.Errorf("synthetic result missing retry advice: %q", tr.Content)
				}
			}
		}
	}
	if !syntheticSeen {
		t.Error("no synthetic tool_result for the truncated call")
	}
}

type funcTool struct {
	name string
	fn   func(ctx context.Context, params json.RawMessage) (*tools.Result, error)
}

func (f *funcTool) Name() string             { return f.name }
func (f *funcTool) Description() string      { return "test tool" }
func (f *funcTool) Schema() json.RawMessage  { return json.RawMessage(`{"type":"object"}`) }
func (f *funcTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	return f.fn(ctx, params)
}

func TestRunMaxTurnsExceededMakesFinalSummaryCall(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse("tu_a", "echo", `{}`, llm.StopToolUse),
		toolResponse("tu_b", "echo", `{}`, llm.StopToolUse),
		textResponse("partial progress summary", 80),
	}}
	a := newTestAgent(provider, &echoTool{name: "echo"})

	result := a.Run(context.Background(), "loop forever", RunOptions{MaxTurns: 2}, nil)
	if result.Success {
		t.Fatal("expected unsuccessful result")
	}
	if result.Error != models.ErrTagMaxTurnsExceeded {
		t.Errorf("error = %q, want %q", result.Error, models.ErrTagMaxTurnsExceeded)
	}
	if result.Answer != "partial progress summary" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.TotalTurns != 2 {
		t.Errorf("turns = %d, want 2", result.TotalTurns)
	}

	reqs := provider.recorded()
	final := reqs[len(reqs)-1]
	if len(final.Tools) != 0 {
		t.Error("final summary call must not offer tools")
	}
	lastMsg := final.Messages[len(final.Messages)-1]
	if lastMsg.Role != models.RoleUser || !strings.Contains(lastMsg.Text(), "maximum number of turns") {
		t.Error("final summary call missing the terminal user prompt")
	}
}

func TestRunCancellationReturnsCancelled(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("never", 10)}}
	a := newTestAgent(provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := a.Run(ctx, "anything", RunOptions{}, nil)
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error != models.ErrTagCancelled || result.Answer != "cancelled" {
		t.Errorf("result = (%q, %q)", result.Answer, result.Error)
	}
	if result.TotalTurns != 0 {
		t.Errorf("turns = %d, want 0", result.TotalTurns)
	}
}

func TestRunCancellationEmitsCompleteEvent(t *testing.T) {
	provider := &scriptedProvider{}
	a := newTestAgent(provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := NewEventStream()
	done := make(chan *models.AgentResult, 1)
	go func() { done <- a.Run(ctx, "anything", RunOptions{}, stream) }()

	var complete *models.StreamEvent
	for event := range stream.Events() {
		if event.Type == models.EventComplete {
			ev := event
			complete = &ev
		}
	}
	result := <-done
	if result.Error != models.ErrTagCancelled {
		t.Fatalf("error = %q", result.Error)
	}
	if complete == nil {
		t.Fatal("cancelled run must still emit the terminal complete event")
	}
	if complete.Data["success"] != false || complete.Data["error"] != models.ErrTagCancelled {
		t.Errorf("complete payload = %v", complete.Data)
	}
}

func TestRunHonorsMaxTokensOption(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		textResponse("capped", 10),
		textResponse("default", 10),
	}}
	a := newTestAgent(provider)

	a.Run(context.Background(), "first", RunOptions{MaxTokens: 1234}, nil)
	a.Run(context.Background(), "second", RunOptions{}, nil)

	reqs := provider.recorded()
	if len(reqs) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(reqs))
	}
	if reqs[0].MaxTokens != 1234 {
		t.Errorf("per-run max tokens = %d, want 1234", reqs[0].MaxTokens)
	}
	if reqs[1].MaxTokens != defaultMaxTokens {
		t.Errorf("default max tokens = %d, want %d", reqs[1].MaxTokens, defaultMaxTokens)
	}
}

func TestRunSteeringDuringTruncatedTurn(t *testing.T) {
	truncated := &llm.Response{
		Content: models.BlockList{
			models.ToolUseBlock{ID: "tu_cut", Name: "echo", Input: []byte(`{"partial":`)},
		},
		StopReason: llm.StopMaxTokens,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
	}
	provider := &scriptedProvider{responses: []*llm.Response{
		truncated,
		textResponse("recovered with guidance", 60),
	}}
	a := newTestAgent(provider, &echoTool{name: "echo"})

	stream := NewEventStream()
	stream.Inject("skip that file, use the sample data")

	done := make(chan *models.AgentResult, 1)
	go func() { done <- a.Run(context.Background(), "process it", RunOptions{}, stream) }()

	var sawSteering bool
	for event := range stream.Events() {
		if event.Type == models.EventSteeringReceived {
			sawSteering = true
		}
	}
	result := <-done
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if !sawSteering {
		t.Error("truncated turn must still drain the steering mailbox")
	}

	// The injected guidance must reach the model on the very next call.
	reqs := provider.recorded()
	if len(reqs) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(reqs))
	}
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if last.Role != models.RoleUser || !strings.Contains(last.Text(), "sample data") {
		t.Errorf("steering text not delivered: %+v", last)
	}
}

func TestRunProvisionsWorkspacePerRun(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		textResponse("one", 10),
		textResponse("two", 10),
	}}
	var workspaces []string
	a := New(Config{
		Client:     llm.NewClient(provider),
		Workspaces: tools.NewWorkspaceManager(t.TempDir()),
		BuildTools: func(workspace string) *tools.Registry {
			workspaces = append(workspaces, workspace)
			return tools.NewRegistry()
		},
		DefaultProvider: provider.Name(),
		DefaultModel:    "test-model",
	})

	a.Run(context.Background(), "first", RunOptions{}, nil)
	a.Run(context.Background(), "second", RunOptions{}, nil)

	if len(workspaces) != 2 {
		t.Fatalf("tool builds = %d, want 2", len(workspaces))
	}
	if workspaces[0] == workspaces[1] {
		t.Error("runs must not share a workspace")
	}
	for _, ws := range workspaces {
		if _, err := os.Stat(ws); !os.IsNotExist(err) {
			t.Errorf("workspace %s not removed after run", ws)
		}
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	fastBackoffs(t)
	transient := &llm.ProviderError{Reason: llm.ReasonOverloaded, Provider: "scripted"}
	provider := &scriptedProvider{
		errs:      []error{transient, nil},
		responses: []*llm.Response{nil, textResponse("after retry", 40)},
	}
	a := newTestAgent(provider)

	result := a.Run(context.Background(), "retry me", RunOptions{}, nil)
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if result.Answer != "after retry" {
		t.Errorf("answer = %q", result.Answer)
	}
	if calls := len(provider.recorded()); calls != 2 {
		t.Errorf("llm calls = %d, want 2", calls)
	}
}

func TestRunDoesNotRetryFatalErrors(t *testing.T) {
	fastBackoffs(t)
	fatal := &llm.ProviderError{Reason: llm.ReasonAuth, Provider: "scripted", Message: "bad key"}
	provider := &scriptedProvider{errs: []error{fatal}}
	a := newTestAgent(provider)

	result := a.Run(context.Background(), "fail", RunOptions{}, nil)
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "bad key") {
		t.Errorf("error = %q", result.Error)
	}
	if calls := len(provider.recorded()); calls != 1 {
		t.Errorf("llm calls = %d, want 1 (no retry)", calls)
	}
}

func TestRunStreamingEventOrder(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse("tu_1", "echo", `{"n":1}`, llm.StopToolUse),
		textResponse("all done", 60),
	}}
	a := New(Config{
		Client:          llm.NewClient(provider),
		Tools:           tools.NewRegistry(&echoTool{name: "echo"}),
		Recorder:        trace.NewRecorder(trace.NewMemoryStore(), nil),
		DefaultProvider: provider.Name(),
		DefaultModel:    "test-model",
	})

	stream := NewEventStream()
	done := make(chan *models.AgentResult, 1)
	go func() { done <- a.Run(context.Background(), "stream it", RunOptions{}, stream) }()

	var types []models.EventType
	for event := range stream.Events() {
		types = append(types, event.Type)
	}
	result := <-done
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}

	want := []models.EventType{
		models.EventRunStarted,
		models.EventTurnStart,
		models.EventTextDelta,
		models.EventToolCall,
		models.EventToolResult,
		models.EventTurnComplete,
		models.EventTurnStart,
		models.EventTextDelta,
		models.EventComplete,
	}
	if len(types) != len(want) {
		t.Fatalf("event count = %d, want %d (%v)", len(types), len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s (%v)", i, types[i], want[i], types)
		}
	}
}

func TestRunSteeringInjection(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		textResponse("first answer", 30),
		textResponse("steered answer", 35),
	}}
	a := newTestAgent(provider)

	stream := NewEventStream()
	stream.Inject("actually, do it in French")

	done := make(chan *models.AgentResult, 1)
	go func() { done <- a.Run(context.Background(), "do the thing", RunOptions{}, stream) }()

	var sawSteering bool
	for event := range stream.Events() {
		if event.Type == models.EventSteeringReceived {
			sawSteering = true
			if event.Data["message"] != "actually, do it in French" {
				t.Errorf("steering payload = %v", event.Data["message"])
			}
		}
	}
	result := <-done
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if !sawSteering {
		t.Error("no steering_received event")
	}
	if result.Answer != "steered answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.TotalTurns != 2 {
		t.Errorf("turns = %d, want 2", result.TotalTurns)
	}

	var injected bool
	for _, msg := range result.FinalMessages {
		if msg.Role == models.RoleUser && strings.Contains(msg.Text(), "French") {
			injected = true
		}
	}
	if !injected {
		t.Error("steering text missing from final messages")
	}
}

func TestRunCompressionTrigger(t *testing.T) {
	// Seed six prior exchanges so the compressor has old turns to fold.
	var history []models.Message
	for _, label := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		history = append(history,
			models.NewUserText(label+" "+strings.Repeat("q", 2000)),
			models.NewAssistantText(label+" "+strings.Repeat("a", 2000)),
		)
	}

	first := toolResponse("tu_big", "echo", `{}`, llm.StopToolUse)
	first.Usage.InputTokens = 150_000 // above 0.70 * 200_000
	provider := &scriptedProvider{responses: []*llm.Response{
		first,
		// Summarizer call issued by the compressor.
		textResponse("<summary>\nolder history condensed\n</summary>", 500),
		textResponse("final answer", 1000),
	}}
	a := newTestAgent(provider, &echoTool{name: "echo"})

	stream := NewEventStream()
	done := make(chan *models.AgentResult, 1)
	go func() {
		done <- a.Run(context.Background(), "big job", RunOptions{ConversationHistory: history}, stream)
	}()

	var compressedEvents []models.StreamEvent
	for event := range stream.Events() {
		if event.Type == models.EventContextCompressed {
			compressedEvents = append(compressedEvents, event)
		}
	}
	result := <-done
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if len(compressedEvents) != 1 {
		t.Fatalf("context_compressed events = %d, want 1", len(compressedEvents))
	}
	if got := compressedEvents[0].Data["previous_tokens"]; got != 150_000 {
		t.Errorf("previous_tokens = %v", got)
	}

	// The summary call cost must be charged to the run totals.
	if result.TotalInputTokens <= 150_000+1000 {
		t.Errorf("summary tokens not charged: total_in = %d", result.TotalInputTokens)
	}

	var sawSummary bool
	for _, msg := range result.FinalMessages {
		if strings.Contains(msg.Text(), "older history condensed") {
			sawSummary = true
		}
	}
	if !sawSummary {
		t.Error("summary message missing from working context")
	}
}

func TestRunPersistsSessionAndTrace(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("saved answer", 20)}}
	store := sessions.NewMemoryStore()
	traces := trace.NewMemoryStore()
	a := New(Config{
		Client:          llm.NewClient(provider),
		Tools:           tools.NewRegistry(),
		Sessions:        store,
		Recorder:        trace.NewRecorder(traces, nil),
		DefaultProvider: provider.Name(),
		DefaultModel:    "test-model",
	})

	result := a.Run(context.Background(), "remember this", RunOptions{SessionID: "s1"}, nil)
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}

	rec, err := store.Load(context.Background(), "default", "s1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if len(rec.AgentContext) != len(result.FinalMessages) {
		t.Errorf("checkpoint length = %d, want %d", len(rec.AgentContext), len(result.FinalMessages))
	}
	if len(rec.Messages) != 2 {
		t.Errorf("display messages = %d, want 2", len(rec.Messages))
	}
	if rec.Messages[1].Text() != "saved answer" {
		t.Errorf("display answer = %q", rec.Messages[1].Text())
	}

	list, err := traces.List(context.Background(), 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("traces = %d (%v), want 1", len(list), err)
	}
	tr := list[0]
	if tr.Status != models.TraceCompleted || !tr.Success {
		t.Errorf("trace status = %s success=%v", tr.Status, tr.Success)
	}
	if tr.Request != "remember this" || tr.SessionID != "s1" {
		t.Errorf("trace fields: %+v", tr)
	}
}

func TestRunTracksSkillUsage(t *testing.T) {
	registry := skills.NewMemoryRegistry(skills.Skill{
		Name:        "pdf-processing",
		Description: "work with PDFs",
		Content:     "use pypdf",
	})
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse("tu_s", "get_skill", `{"skill_name":"pdf-processing"}`, llm.StopToolUse),
		textResponse("used the skill", 40),
	}}
	a := New(Config{
		Client:          llm.NewClient(provider),
		Tools:           tools.NewRegistry(),
		Skills:          registry,
		DefaultProvider: provider.Name(),
		DefaultModel:    "test-model",
	})

	result := a.Run(context.Background(), "read a pdf", RunOptions{}, nil)
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if len(result.SkillsUsed) != 1 || result.SkillsUsed[0] != "pdf-processing" {
		t.Errorf("skills used = %v", result.SkillsUsed)
	}
}

func TestClampTurns(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 60},
		{-5, 1},
		{1, 1},
		{500, 500},
		{90000, 60000},
	}
	for _, tc := range cases {
		if got := clampTurns(tc.in); got != tc.want {
			t.Errorf("clampTurns(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestEventStreamInjectionMailbox(t *testing.T) {
	s := NewEventStream()
	if s.HasInjection() {
		t.Fatal("fresh stream should have no injection")
	}
	s.Inject("first")
	s.Inject("second") // single slot: overwrites
	text, ok := s.TakeInjection()
	if !ok || text != "second" {
		t.Fatalf("TakeInjection = (%q, %v)", text, ok)
	}
	if _, ok := s.TakeInjection(); ok {
		t.Fatal("mailbox must be empty after take")
	}
}

func TestEventStreamCloseIsIdempotent(t *testing.T) {
	s := NewEventStream()
	s.Close()
	s.Close()
	s.Push(models.StreamEvent{Type: models.EventError}) // no panic on closed stream
	if _, open := <-s.Events(); open {
		t.Fatal("channel should be closed")
	}
}

func TestHarvestOutputFiles(t *testing.T) {
	seen := map[string]bool{}
	content := `{"stdout":"ok","new_files":["/tmp/ws/report.csv","/tmp/ws/chart.png"]}`
	files := harvestOutputFiles("execute_code", content, seen)
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files[0].Filename != "report.csv" {
		t.Errorf("filename = %q", files[0].Filename)
	}
	// Already-seen paths are skipped.
	if again := harvestOutputFiles("bash", content, seen); len(again) != 0 {
		t.Errorf("re-harvested %d files", len(again))
	}
	// Non file-producing tools are ignored.
	if out := harvestOutputFiles("read", content, map[string]bool{}); out != nil {
		t.Errorf("read tool should not produce files")
	}
}
