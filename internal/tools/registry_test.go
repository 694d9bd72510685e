package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type staticTool struct {
	name   string
	schema string
	fn     func(ctx context.Context, params json.RawMessage) (*Result, error)
}

func (s *staticTool) Name() string        { return s.name }
func (s *staticTool) Description() string { return "static test tool" }
func (s *staticTool) Schema() json.RawMessage {
	if s.schema == "" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return json.RawMessage(s.schema)
}
func (s *staticTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if s.fn != nil {
		return s.fn(ctx, params)
	}
	return &Result{Content: "ok"}, nil
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	res, err := reg.Execute(context.Background(), "nope", nil)
	if err != nil {
		t.Fatalf("unexpected machinery error: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "nope") {
		t.Errorf("result = %+v", res)
	}
}

func TestRegistryValidatesRequiredParams(t *testing.T) {
	reg := NewRegistry(&staticTool{
		name: "needy",
		schema: `{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`,
	})

	res, err := reg.Execute(context.Background(), "needy", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Error("missing required param must produce an error result")
	}

	res, err = reg.Execute(context.Background(), "needy", json.RawMessage(`{"path":"a.go"}`))
	if err != nil || res.IsError {
		t.Errorf("valid params rejected: %+v (%v)", res, err)
	}
}

func TestRegistryFiltered(t *testing.T) {
	reg := NewRegistry(
		&staticTool{name: "keep"},
		&staticTool{name: "drop"},
	)

	filtered := reg.Filtered([]string{"keep"})
	if _, ok := filtered.Get("drop"); ok {
		t.Error("drop should be filtered out")
	}
	if _, ok := filtered.Get("keep"); !ok {
		t.Error("keep should survive")
	}

	// Nil allowlist keeps everything.
	all := reg.Filtered(nil)
	if len(all.Names()) != 2 {
		t.Errorf("names = %v", all.Names())
	}
}

func TestFilteredIsIndependentOfSource(t *testing.T) {
	base := NewRegistry(&staticTool{name: "bash"})

	// Per-run registrations on the filtered view must never reach the
	// shared catalog, with or without an allowlist.
	for _, allowlist := range [][]string{nil, {"bash"}} {
		view := base.Filtered(allowlist)
		view.Register(&staticTool{name: "get_skill"})
		view.Unregister("bash")

		if _, ok := base.Get("get_skill"); ok {
			t.Errorf("allowlist %v: registration leaked into the source", allowlist)
		}
		if _, ok := base.Get("bash"); !ok {
			t.Errorf("allowlist %v: unregistration leaked into the source", allowlist)
		}
	}
}

func TestRegistrySpecsSorted(t *testing.T) {
	reg := NewRegistry(
		&staticTool{name: "zeta"},
		&staticTool{name: "alpha"},
	)
	specs := reg.Specs()
	if len(specs) != 2 || specs[0].Name != "alpha" || specs[1].Name != "zeta" {
		t.Errorf("specs = %+v", specs)
	}
}

func TestInvokerAppliesTimeout(t *testing.T) {
	slow := &staticTool{
		name: "slow",
		fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &Result{Content: "too late"}, nil
			}
		},
	}
	inv := NewInvoker(NewRegistry(slow), InvokerConfig{
		Timeouts: map[string]time.Duration{"slow": 20 * time.Millisecond},
	})

	res, err := inv.Invoke(context.Background(), "slow", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("timeout must be a tool error, not a machinery error: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "timed out") {
		t.Errorf("result = %+v", res)
	}
}

func TestInvokerPropagatesCancellation(t *testing.T) {
	blocked := &staticTool{
		name: "blocked",
		fn: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	inv := NewInvoker(NewRegistry(blocked), InvokerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := inv.Invoke(ctx, "blocked", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("parent cancellation must surface as an error")
	}
}

func TestErrorfProducesJSONPayload(t *testing.T) {
	res := Errorf("broke: %s", "badly")
	if !res.IsError {
		t.Error("Errorf must mark the result as error")
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["error"] != "broke: badly" {
		t.Errorf("payload = %v", payload)
	}
}
