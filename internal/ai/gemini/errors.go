package gemini

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/spigell/nexhire/internal/ai"
)

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(s|sec|secs|second|seconds)\b`)

// classifyError maps a Gemini SDK error onto an attempt failure reason.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ai.AttemptError{Reason: ai.ReasonTimeout, Err: err}
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return &ai.AttemptError{Reason: ai.ReasonUnknown, Err: err}
	}

	status := strings.ToUpper(apiErr.Status)
	switch {
	case apiErr.Code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return &ai.AttemptError{Reason: ai.ReasonQuotaExhausted, RetryAfter: retryDelay(apiErr), Err: err}
	case apiErr.Code == http.StatusNotFound || status == "NOT_FOUND":
		return &ai.AttemptError{Reason: ai.ReasonModelUnavailable, Err: err}
	case apiErr.Code == http.StatusGatewayTimeout || status == "DEADLINE_EXCEEDED":
		return &ai.AttemptError{Reason: ai.ReasonTimeout, Err: err}
	default:
		return &ai.AttemptError{Reason: ai.ReasonUnknown, Err: err}
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}

	return genai.APIError{}, false
}

// retryDelay reads the RetryInfo detail first and falls back to the message.
func retryDelay(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"]
		if !ok {
			continue
		}
		if s, ok := raw.(string); ok {
			if d, err := time.ParseDuration(s); err == nil && d > 0 {
				return d
			}
		}
	}

	match := retryAfterPattern.FindStringSubmatch(apiErr.Message)
	if len(match) < 2 {
		return 0
	}

	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}
