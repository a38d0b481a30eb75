// Package screening runs the résumé analyses: it prepares the inputs, renders
// the prompt, calls the generator, decodes the answer and records the outcome
// in the activity log.
package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/ai"
	"github.com/spigell/nexhire/internal/decode"
	"github.com/spigell/nexhire/internal/logger"
	"github.com/spigell/nexhire/internal/preprocess"
	"github.com/spigell/nexhire/internal/prompts"
	"github.com/spigell/nexhire/internal/store"
)

// Input carries everything an analysis may need. Resume and Job are always
// required, the other fields only by the analyses that use them.
type Input struct {
	UserID   string `json:"user_id,omitempty"`
	Resume   string `json:"resume"`
	ResumeV2 string `json:"resume_v2,omitempty"`
	Job      string `json:"job"`
	Skill    string `json:"skill,omitempty"`
	Score    int    `json:"score,omitempty"`
	BiasFree bool   `json:"bias_free,omitempty"`
}

// InputError reports a missing or invalid input field.
type InputError struct {
	Field string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Result is the outcome of one analysis. A degraded result carries the
// default payload and Reason explains it to the user.
type Result[T decode.Variant] struct {
	Payload  T        `json:"payload"`
	Kind     string   `json:"kind"`
	Mode     string   `json:"mode"`
	Action   string   `json:"action"`
	Model    string   `json:"model,omitempty"`
	Attempts int      `json:"attempts"`
	Notices  []string `json:"notices,omitempty"`
	Degraded bool     `json:"degraded"`
	Reason   string   `json:"reason,omitempty"`
}

// Config tunes the service.
type Config struct {
	// InputLimit is the number of runes kept from each document.
	InputLimit int
}

// Service runs analyses. It is safe for concurrent use.
type Service struct {
	generator ai.Generator
	prompts   *prompts.Library
	store     store.Store
	cfg       Config
	logger    *zap.Logger
	timeout   time.Duration
}

// NewService creates a Service. A nil store disables the activity log.
func NewService(generator ai.Generator, library *prompts.Library, st store.Store, cfg Config, log *zap.Logger) *Service {
	if cfg.InputLimit <= 0 {
		cfg.InputLimit = preprocess.DefaultLimit
	}

	return &Service{
		generator: generator,
		prompts:   library,
		store:     st,
		cfg:       cfg,
		logger:    logger.WithFields(log),
		timeout:   5 * time.Second,
	}
}

// analysis describes one named analysis.
type analysis[T decode.Variant] struct {
	mode     string
	action   string
	prompt   prompts.Name
	shape    ai.Shape
	decode   func(raw string) (T, error)
	fallback func(reason string) T
}

func freeText(mode, action string, prompt prompts.Name) analysis[decode.FreeTextAdvice] {
	return analysis[decode.FreeTextAdvice]{
		mode:   mode,
		action: action,
		prompt: prompt,
		shape:  ai.ShapeFreeText,
		decode: func(raw string) (decode.FreeTextAdvice, error) {
			return decode.DecodeFreeText(raw), nil
		},
		fallback: func(reason string) decode.FreeTextAdvice {
			return decode.FreeTextAdvice{Text: reason}
		},
	}
}

func structured[T decode.Variant](mode, action string, prompt prompts.Name, dec func(string) (T, error), def T) analysis[T] {
	return analysis[T]{
		mode:     mode,
		action:   action,
		prompt:   prompt,
		shape:    ai.ShapeJSON,
		decode:   dec,
		fallback: func(string) T { return def },
	}
}

// run executes a. The returned result is nil only for invalid input;
// otherwise err is non-nil exactly when the result is degraded.
func run[T decode.Variant](ctx context.Context, s *Service, a analysis[T], in Input) (*Result[T], error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String(logger.FieldAction, a.action), zap.String("mode", a.mode))
	res := &Result[T]{Mode: a.mode, Action: a.action}

	payload, err := generate(ctx, s, log, a, in, res)
	if err != nil {
		log.Warn("analysis degraded", zap.Error(err))
		res.Degraded = true
		res.Reason = ai.UserMessage(err)
		payload = a.fallback(res.Reason)
	}
	res.Payload = payload
	res.Kind = string(payload.Kind())

	s.record(ctx, log, in.UserID, res.Mode, res.Action, payload)

	return res, err
}

func generate[T decode.Variant](ctx context.Context, s *Service, log *zap.Logger, a analysis[T], in Input, res *Result[T]) (T, error) {
	var zero T

	if s.generator == nil {
		return zero, &ai.ConfigError{What: "generation backend"}
	}

	vars, err := s.prepare(ctx, log, in)
	if err != nil {
		return zero, err
	}

	req, err := s.prompts.Render(a.prompt, vars, a.shape)
	if err != nil {
		return zero, err
	}

	gen, err := s.generator.Generate(ctx, req)
	if err != nil {
		return zero, err
	}
	res.Model = gen.Model
	res.Attempts = gen.Attempts
	res.Notices = gen.Notices

	payload, err := a.decode(gen.Text)
	if err != nil {
		return zero, err
	}

	log.Info("analysis completed",
		zap.String(logger.FieldModel, gen.Model),
		zap.Int("attempts", gen.Attempts),
		zap.Int("score", payload.PrimaryScore()),
	)

	return payload, nil
}

// prepare runs the documents through the preprocessing pipeline.
func (s *Service) prepare(ctx context.Context, log *zap.Logger, in Input) (prompts.Vars, error) {
	deps := preprocess.Deps{Logger: log}
	opts := preprocess.Options{BiasFree: in.BiasFree, Limit: s.cfg.InputLimit}

	clean := func(text string) (string, error) {
		if strings.TrimSpace(text) == "" {
			return "", nil
		}
		return preprocess.Run(ctx, deps, preprocess.Pipeline(opts), text)
	}

	resume, err := clean(in.Resume)
	if err != nil {
		return prompts.Vars{}, fmt.Errorf("prepare resume: %w", err)
	}
	resumeV2, err := clean(in.ResumeV2)
	if err != nil {
		return prompts.Vars{}, fmt.Errorf("prepare second resume: %w", err)
	}
	job, err := clean(in.Job)
	if err != nil {
		return prompts.Vars{}, fmt.Errorf("prepare job description: %w", err)
	}

	return prompts.Vars{
		Resume:   resume,
		ResumeV2: resumeV2,
		Job:      job,
		Skill:    strings.TrimSpace(in.Skill),
		Score:    decode.ClampScore(float64(in.Score)),
	}, nil
}

// record appends the activity log entry. Failures are logged and otherwise
// ignored so the user still gets the analysis.
func (s *Service) record(ctx context.Context, log *zap.Logger, userID, mode, action string, payload decode.Variant) {
	if s.store == nil {
		return
	}

	details, err := json.Marshal(payload)
	if err != nil {
		log.Error("marshal activity details", zap.Error(err))
		details = nil
	}

	// The record is written even when the request context is already done.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	rec, err := s.store.Append(storeCtx, store.Record{
		UserID:  userID,
		Mode:    mode,
		Action:  action,
		Score:   payload.PrimaryScore(),
		Details: details,
	})
	if err != nil {
		log.Error("append activity record", zap.Error(err))
		return
	}

	log.Debug("activity recorded", zap.Int64("seq", rec.Seq))
}

func validate(in Input) error {
	if strings.TrimSpace(in.Resume) == "" {
		return &InputError{Field: "resume"}
	}
	if strings.TrimSpace(in.Job) == "" {
		return &InputError{Field: "job"}
	}
	return nil
}
