package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureReason classifies why a generation attempt failed.
type FailureReason int

const (
	ReasonUnknown FailureReason = iota
	ReasonQuotaExhausted
	ReasonModelUnavailable
	ReasonTimeout
)

func (r FailureReason) String() string {
	switch r {
	case ReasonQuotaExhausted:
		return "quota_exhausted"
	case ReasonModelUnavailable:
		return "model_unavailable"
	case ReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ConfigError reports a missing credential pool or prompt template. It is
// never retried.
type ConfigError struct {
	What string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("not configured: %s", e.What)
}

// AttemptError is returned by a Backend for one failed attempt.
type AttemptError struct {
	Reason FailureReason
	// RetryAfter is a server provided delay hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *AttemptError) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// GenerationError is the final failure after the retry budget is spent.
type GenerationError struct {
	Reason   FailureReason
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed after %d attempt(s): %s", e.Attempts, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// UserMessage is a short reason suitable for end users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return "AI analysis is not configured: " + cfgErr.What
	}

	var genErr *GenerationError
	if errors.As(err, &genErr) {
		switch genErr.Reason {
		case ReasonQuotaExhausted:
			return "All API keys are over quota. Please try again later."
		case ReasonModelUnavailable:
			return "No configured AI model is currently available."
		case ReasonTimeout:
			return "The AI service did not respond in time."
		}
		if errors.Is(genErr.Err, context.Canceled) {
			return "The request was cancelled."
		}
	}

	return "Could not generate feedback."
}

// classify extracts the failure reason of a single attempt.
func classify(err error) (FailureReason, time.Duration) {
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		return attemptErr.Reason, attemptErr.RetryAfter
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout, 0
	}
	return ReasonUnknown, 0
}
