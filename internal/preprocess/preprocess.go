// Package preprocess prepares résumé and job description text before it is
// placed into a prompt.
package preprocess

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultLimit is the number of runes kept from each input.
const DefaultLimit = 3000

// Filter represents a single preprocessing step applied to a text.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, deps Deps, text string) (string, Step, error)
}

// Deps aggregates dependencies shared across all steps.
type Deps struct {
	Logger *zap.Logger
}

// Step describes the result of executing a step, measured in runes.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a step.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// statusProvider is implemented by steps that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Options select the default pipeline.
type Options struct {
	BiasFree bool
	Limit    int
}

// Pipeline returns the default steps: whitespace normalisation, optional
// redaction of personal details and truncation.
func Pipeline(opts Options) []Filter {
	redaction := NewRedaction()
	if !opts.BiasFree {
		redaction.Disable("bias-free evaluation is off")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	return []Filter{
		NewWhitespace(),
		redaction,
		NewTruncate(limit),
	}
}

// DisableByName marks a step with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied steps sequentially.
func Run(ctx context.Context, deps Deps, steps []Filter, text string) (string, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if !step.IsEnabled() {
			log.Debug("preprocess step disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, text)
		if err != nil {
			return "", fmt.Errorf("%s: %w", step.Name(), err)
		}

		log.Debug("preprocess step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		text = next
	}

	return text, nil
}

// Describe returns status entries for the provided steps.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

func measure(before, after string) Step {
	initial := utf8.RuneCountInString(before)
	left := utf8.RuneCountInString(after)
	return Step{Initial: initial, Dropped: initial - left, Left: left}
}
