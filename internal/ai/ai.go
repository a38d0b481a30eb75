// Package ai contains the provider-independent generation contract and the
// invoker that retries requests across API keys and models.
package ai

import (
	"context"
	"strings"
)

// Shape is the output format requested from the model.
type Shape int

const (
	ShapeFreeText Shape = iota
	ShapeJSON
)

func (s Shape) String() string {
	switch s {
	case ShapeJSON:
		return "json"
	default:
		return "text"
	}
}

// PromptRequest is one generation request. It is passed by value and never
// modified after construction.
type PromptRequest struct {
	System string
	User   string
	Shape  Shape
}

// NewPromptRequest trims the instructions and content.
func NewPromptRequest(system, user string, shape Shape) PromptRequest {
	return PromptRequest{
		System: strings.TrimSpace(system),
		User:   strings.TrimSpace(user),
		Shape:  shape,
	}
}

// Attempt is a single call against one (credential, model) pair.
type Attempt struct {
	Credential string
	Model      string
	Request    PromptRequest
}

// Backend performs one generation attempt. Implementations should return an
// *AttemptError so the invoker can pick the right corrective action.
type Backend interface {
	Generate(ctx context.Context, attempt Attempt) (string, error)
}

// Generation is a successful result.
type Generation struct {
	Text       string
	Model      string
	Credential int // pool index of the key that produced the result
	Attempts   int
	Notices    []string // user-facing messages such as key rotations
}

// Generator is what callers of the invoker depend on.
type Generator interface {
	Generate(ctx context.Context, req PromptRequest) (*Generation, error)
}
