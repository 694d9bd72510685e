package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// FailureReason categorizes why a provider request failed.
type FailureReason string

const (
	ReasonRateLimit      FailureReason = "rate_limit"
	ReasonServerError    FailureReason = "server_error"
	ReasonOverloaded     FailureReason = "overloaded"
	ReasonTimeout        FailureReason = "timeout"
	ReasonConnection     FailureReason = "connection"
	ReasonAuth           FailureReason = "auth"
	ReasonInvalidRequest FailureReason = "invalid_request"
	ReasonUnknown        FailureReason = "unknown"
)

// IsRetryable reports whether the reason suggests retrying may succeed.
func (r FailureReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonServerError, ReasonOverloaded, ReasonTimeout, ReasonConnection:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from an LLM provider with enough
// context for the turn loop's retry decision.
type ProviderError struct {
	Reason   FailureReason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap exposes the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Cause }

// WrapProviderError classifies err and attaches provider/model context.
// Already-classified errors pass through unchanged.
func WrapProviderError(provider, model string, status int, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{
		Reason:   classify(status, err),
		Provider: provider,
		Model:    model,
		Status:   status,
		Cause:    err,
	}
}

func classify(status int, err error) FailureReason {
	switch status {
	case 429:
		return ReasonRateLimit
	case 500, 502, 503, 504:
		return ReasonServerError
	case 401, 403:
		return ReasonAuth
	case 400, 404, 422:
		return ReasonInvalidRequest
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonConnection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "overloaded"):
		return ReasonOverloaded
	case strings.Contains(msg, "rate_limit"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return ReasonRateLimit
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"):
		return ReasonServerError
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "reset by peer"),
		strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"), strings.Contains(msg, "eof"),
		strings.Contains(msg, "fetch failed"),
		strings.Contains(msg, "unexpected end of json"),
		strings.Contains(msg, "incomplete chunked read"),
		strings.Contains(msg, "http2: stream closed"):
		return ReasonConnection
	}
	return ReasonUnknown
}

// IsRetryable reports whether err is a transient provider failure the turn
// loop should retry: connection errors, HTTP 429/5xx, overload, stream
// interruption.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	return classify(0, err).IsRetryable()
}
