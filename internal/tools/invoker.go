package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultToolTimeout applies to shell and code execution tools; lighter
// tools get DefaultLightTimeout.
const (
	DefaultToolTimeout  = 120 * time.Second
	DefaultLightTimeout = 60 * time.Second
)

// Invoker executes tools from a registry with per-tool timeouts and a global
// concurrency bound, so concurrent agent runs cannot exhaust the host.
type Invoker struct {
	registry *Registry
	sem      *semaphore.Weighted
	timeouts map[string]time.Duration
	fallback time.Duration
}

// InvokerConfig configures an Invoker.
type InvokerConfig struct {
	// MaxConcurrent bounds simultaneous tool executions across all runs
	// (default 16).
	MaxConcurrent int64

	// Timeouts overrides the per-tool timeout by name.
	Timeouts map[string]time.Duration

	// DefaultTimeout applies to tools without an override (default 60s).
	DefaultTimeout time.Duration
}

// NewInvoker creates an invoker over the registry.
func NewInvoker(registry *Registry, cfg InvokerConfig) *Invoker {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultLightTimeout
	}
	timeouts := map[string]time.Duration{
		"bash":         DefaultToolTimeout,
		"execute_code": DefaultToolTimeout,
	}
	for name, d := range cfg.Timeouts {
		timeouts[name] = d
	}
	return &Invoker{
		registry: registry,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		timeouts: timeouts,
		fallback: cfg.DefaultTimeout,
	}
}

// Registry returns the underlying registry.
func (inv *Invoker) Registry() *Registry { return inv.registry }

// Invoke runs one tool call under its timeout. Tool failures come back as
// error results; the error return fires only on context cancellation.
func (inv *Invoker) Invoke(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	if err := inv.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer inv.sem.Release(1)

	timeout, ok := inv.timeouts[name]
	if !ok {
		timeout = inv.fallback
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := inv.registry.Execute(execCtx, name, params)
	// A tool that honors its context surfaces the deadline as an error; both
	// shapes report the same timeout result.
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return Errorf("tool %s timed out after %s", name, timeout), nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return Errorf("tool %s failed: %v", name, err), nil
	}
	return result, nil
}
