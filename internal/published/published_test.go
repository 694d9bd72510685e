package published

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/pkg/models"
)

type cannedProvider struct {
	name     string
	answer   string
	requests []*llm.Request
}

func (p *cannedProvider) Name() string { return p.name }

func (p *cannedProvider) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.requests = append(p.requests, req)
	return p.response(), nil
}

func (p *cannedProvider) Stream(ctx context.Context, req *llm.Request) (<-chan *llm.Delta, error) {
	p.requests = append(p.requests, req)
	ch := make(chan *llm.Delta, 2)
	ch <- &llm.Delta{Text: p.answer}
	ch <- &llm.Delta{Response: p.response()}
	close(ch)
	return ch, nil
}

func (p *cannedProvider) response() *llm.Response {
	return &llm.Response{
		Content:    models.BlockList{models.TextBlock{Text: p.answer}},
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func newTestFront(t *testing.T, presets ...*Preset) (*Front, *cannedProvider) {
	t.Helper()
	provider := &cannedProvider{name: "anthropic", answer: "canned answer"}
	a := agent.New(agent.Config{
		Client:          llm.NewClient(provider),
		DefaultProvider: "anthropic",
		DefaultModel:    "claude-sonnet-4-5",
	})
	return NewFront(NewMemoryPresetStore(presets...), a, nil), provider
}

func TestChatUnknownPreset(t *testing.T) {
	front, _ := newTestFront(t)
	_, err := front.Chat(context.Background(), "ghost", "", "hi")
	if !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("err = %v, want ErrPresetNotFound", err)
	}
}

func TestChatUnpublishedPreset(t *testing.T) {
	front, _ := newTestFront(t, &Preset{ID: "draft", Published: false, APIResponseMode: ModeSync})
	_, err := front.Chat(context.Background(), "draft", "", "hi")
	if !errors.Is(err, ErrNotPublished) {
		t.Errorf("err = %v, want ErrNotPublished", err)
	}
}

func TestChatRejectsStreamingOnlyPreset(t *testing.T) {
	front, _ := newTestFront(t, &Preset{ID: "live", Published: true, APIResponseMode: ModeStreaming})

	_, err := front.Chat(context.Background(), "live", "", "hi")
	var te *TransportError
	if !errors.As(err, &te) || te.Want != ModeStreaming {
		t.Errorf("err = %v, want transport rejection", err)
	}
}

func TestChatStreamRejectsSyncOnlyPreset(t *testing.T) {
	front, _ := newTestFront(t, &Preset{ID: "batch", Published: true, APIResponseMode: ModeSync})

	_, _, err := front.ChatStream(context.Background(), "batch", "", "hi")
	var te *TransportError
	if !errors.As(err, &te) || te.Want != ModeSync {
		t.Errorf("err = %v, want transport rejection", err)
	}
}

func TestChatRunsPresetConfiguration(t *testing.T) {
	front, provider := newTestFront(t, &Preset{
		ID:                 "support",
		Published:          true,
		APIResponseMode:    ModeSync,
		ModelProvider:      "anthropic",
		Model:              "claude-sonnet-4-5",
		CustomSystemPrompt: "You answer billing questions.",
	})

	result, err := front.Chat(context.Background(), "support", "s1", "why was I charged?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !result.Success || result.Answer != "canned answer" {
		t.Errorf("result = %+v", result)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("requests = %d", len(provider.requests))
	}
	if got := provider.requests[0].System; !strings.Contains(got, "billing questions") {
		t.Errorf("custom system prompt not applied: %q", got)
	}
}

func TestChatStreamDeliversEventsAndResult(t *testing.T) {
	front, _ := newTestFront(t, &Preset{ID: "live", Published: true, APIResponseMode: ModeStreaming})

	stream, done, err := front.ChatStream(context.Background(), "live", "", "hi")
	if err != nil {
		t.Fatalf("chat stream: %v", err)
	}

	var sawDelta, sawComplete bool
	for ev := range stream.Events() {
		switch ev.Type {
		case models.EventTextDelta:
			sawDelta = true
		case models.EventComplete:
			sawComplete = true
		}
	}
	if !sawDelta || !sawComplete {
		t.Errorf("delta=%v complete=%v", sawDelta, sawComplete)
	}

	select {
	case result := <-done:
		if !result.Success || result.Answer != "canned answer" {
			t.Errorf("result = %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("result never delivered")
	}
}
