package sessions

import (
	"context"
	"strings"
	"testing"

	"github.com/loomlabs/loom/internal/compressor"
	"github.com/loomlabs/loom/pkg/models"
)

func TestMemoryStoreLoadCreatesMissing(t *testing.T) {
	store := NewMemoryStore()
	rec, err := store.Load(context.Background(), "agent", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.SessionID != "s1" || rec.AgentID != "agent" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Messages) != 0 || rec.AgentContext != nil {
		t.Errorf("new record should be empty: %+v", rec)
	}
}

func TestMemoryStoreAppendIsAppendOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Load(ctx, "agent", "s1")

	first := []models.Message{models.NewUserText("q1"), models.NewAssistantText("a1")}
	second := []models.Message{models.NewUserText("q2"), models.NewAssistantText("a2")}
	if err := store.AppendDisplay(ctx, "agent", "s1", first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendDisplay(ctx, "agent", "s1", second); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, _ := store.Load(ctx, "agent", "s1")
	if len(rec.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(rec.Messages))
	}
	if rec.Messages[0].Text() != "q1" || rec.Messages[3].Text() != "a2" {
		t.Errorf("order broken: %v", rec.Messages)
	}
}

func TestMemoryStoreCheckpointLastWriterWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Load(ctx, "agent", "s1")

	store.SaveCheckpoint(ctx, "agent", "s1", []models.Message{models.NewUserText("old")})
	store.SaveCheckpoint(ctx, "agent", "s1", []models.Message{models.NewUserText("new")})

	rec, _ := store.Load(ctx, "agent", "s1")
	if len(rec.AgentContext) != 1 || rec.AgentContext[0].Text() != "new" {
		t.Errorf("agent context = %v", rec.AgentContext)
	}
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Load(ctx, "agent", "s1")
	store.AppendDisplay(ctx, "agent", "s1", []models.Message{models.NewUserText("original")})

	rec, _ := store.Load(ctx, "agent", "s1")
	rec.Messages[0] = models.NewUserText("mutated")

	again, _ := store.Load(ctx, "agent", "s1")
	if again.Messages[0].Text() != "original" {
		t.Error("store must not share slices with callers")
	}
}

func TestWorkingContextPrefersCheckpoint(t *testing.T) {
	rec := &models.SessionRecord{
		Messages:     []models.Message{models.NewUserText("display")},
		AgentContext: []models.Message{models.NewUserText("working")},
	}
	if got := WorkingContext(rec); got[0].Text() != "working" {
		t.Errorf("working context = %q", got[0].Text())
	}
	rec.AgentContext = nil
	if got := WorkingContext(rec); got[0].Text() != "display" {
		t.Errorf("fallback = %q", got[0].Text())
	}
}

type countingSummarizer struct {
	calls int
}

func (c *countingSummarizer) Summarize(ctx context.Context, system, user string, maxTokens int) (string, int, int, error) {
	c.calls++
	return "<summary>\ncondensed\n</summary>", 10, 5, nil
}

func TestPreCompressIfNeededBelowThresholdIsNoop(t *testing.T) {
	store := NewMemoryStore()
	summ := &countingSummarizer{}
	comp := compressor.New(summ, nil)

	in, out, err := PreCompressIfNeeded(context.Background(), store, comp, "agent", "s1", 200_000, nil)
	if err != nil {
		t.Fatalf("precompress: %v", err)
	}
	if in != 0 || out != 0 || summ.calls != 0 {
		t.Errorf("empty session must not compress: in=%d out=%d calls=%d", in, out, summ.calls)
	}
}

func TestPreCompressIfNeededCompressesAndPersists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Load(ctx, "agent", "s1")

	var working []models.Message
	pad := strings.Repeat("z", 3000)
	for i := 0; i < 8; i++ {
		working = append(working,
			models.NewUserText("ask "+pad),
			models.NewAssistantText("answer "+pad),
		)
	}
	if err := store.SaveCheckpoint(ctx, "agent", "s1", working); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	summ := &countingSummarizer{}
	comp := compressor.New(summ, nil)

	// Estimated ~13k tokens against a 4000-token window crosses 0.70.
	in, out, err := PreCompressIfNeeded(ctx, store, comp, "agent", "s1", 4000, nil)
	if err != nil {
		t.Fatalf("precompress: %v", err)
	}
	if summ.calls == 0 {
		t.Fatal("expected a summary call")
	}
	if in != 10 || out != 5 {
		t.Errorf("token cost = (%d,%d)", in, out)
	}

	rec, _ := store.Load(ctx, "agent", "s1")
	if len(rec.AgentContext) >= len(working) {
		t.Errorf("agent context not shrunk: %d -> %d", len(working), len(rec.AgentContext))
	}
	if !strings.Contains(rec.AgentContext[0].Text(), "condensed") {
		t.Error("persisted context missing summary")
	}
}
