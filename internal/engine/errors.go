// Package engine drives the agent loop: streaming decode, tool scheduling,
// execution control and the plan-approval gate.
// This file contains error types and classification.

package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrAborted is returned by suspension points once the session is aborted.
var ErrAborted = errors.New("execution aborted")

// RetryClass tells a caller whether resubmitting a failed run may help.
// The loop itself never retries.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassMaybe        RetryClass = "maybe"
	RetryClassNonRetryable RetryClass = "non_retryable"
)

// StreamError is an error chunk delivered by the model stream.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return "stream error: " + e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// ProviderError wraps a model endpoint failure with classification metadata.
type ProviderError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int
	RetryAfter  string
	IsRateLimit bool
	IsAuth      bool
	IsQuota     bool
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("provider error (status %d, %s): %v", e.HTTPStatus, e.Class, e.Err)
	}
	return fmt.Sprintf("provider error (%s): %v", e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapProviderError classifies err. httpStatus is 0 when unknown.
func WrapProviderError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{
		Err:         err,
		Class:       ClassifyProviderError(err),
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
		IsQuota:     httpStatus == http.StatusPaymentRequired,
	}
}

// ClassifyProviderError guesses a RetryClass from an error message.
func ClassifyProviderError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "too many requests",
		"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable",
		"connection reset", "connection refused", "no such host", "temporary failure", "timeout"):
		return RetryClassRetryable
	case containsAny(msg, "deadline exceeded", "context length", "maximum context length", "token limit"):
		return RetryClassMaybe
	default:
		// auth, bad request, quota and content filter failures land here too
		return RetryClassNonRetryable
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
	Schema   string
	Received map[string]any
}

func (e *ToolValidationError) Error() string {
	received, _ := json.Marshal(e.Received)
	return fmt.Sprintf("tool %s validation failed: %s\nexpected schema: %s\nreceived arguments: %s",
		e.ToolName, strings.Join(e.Errors, "; "), e.Schema, received)
}

// TransitionError is returned for a state change the controller forbids.
type TransitionError struct {
	From ExecutionState
	To   ExecutionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid execution state transition %s -> %s", e.From, e.To)
}

// RunError wraps errors with loop context.
type RunError struct {
	Err       error
	Iteration int
	Operation string // "model_stream", "tool_execution", ...
	ToolName  string
}

func (e *RunError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("[iteration=%d op=%s tool=%s] %v", e.Iteration, e.Operation, e.ToolName, e.Err)
	}
	return fmt.Sprintf("[iteration=%d op=%s] %v", e.Iteration, e.Operation, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
