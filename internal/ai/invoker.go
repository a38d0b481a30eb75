package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/credentials"
	"github.com/spigell/nexhire/internal/logger"
	"github.com/spigell/nexhire/internal/secrets"
	"github.com/spigell/nexhire/internal/utils"
)

const (
	defaultMaxRetries       = 3
	defaultTimeout          = 30 * time.Second
	defaultRotateBackoff    = time.Second
	defaultExhaustedBackoff = 5 * time.Second
	defaultMaxBackoff       = 30 * time.Second
	defaultMaxLogLength     = 200
)

// DefaultModels is the model preference order used when none is configured.
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"}

// InvokerConfig tunes the retry matrix. Zero values fall back to defaults.
type InvokerConfig struct {
	Models           []string
	MaxRetries       int
	Timeout          time.Duration
	RotateBackoff    time.Duration
	ExhaustedBackoff time.Duration
	MaxBackoff       time.Duration
	MaxLogLength     int
}

// Invoker runs a request over the credential pool and the model list until
// one attempt succeeds or the retry budget is spent.
type Invoker struct {
	pool    *credentials.Pool
	backend Backend
	cfg     InvokerConfig
	logger  *zap.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

// NewInvoker creates an Invoker. The pool is shared and may be rotated by
// concurrent requests.
func NewInvoker(pool *credentials.Pool, backend Backend, cfg InvokerConfig, log *zap.Logger) *Invoker {
	return &Invoker{
		pool:    pool,
		backend: backend,
		cfg:     normalizeConfig(cfg),
		logger:  logger.WithFields(log),
		wait:    utils.WaitFor,
	}
}

// Models returns the effective model preference order.
func (i *Invoker) Models() []string {
	return append([]string(nil), i.cfg.Models...)
}

// Generate returns the first successful generation. Configuration problems
// are reported as *ConfigError without any network attempt, everything else
// as *GenerationError carrying the last observed reason.
func (i *Invoker) Generate(ctx context.Context, req PromptRequest) (*Generation, error) {
	if i.backend == nil {
		return nil, &ConfigError{What: "generation backend"}
	}
	if i.pool.Len() == 0 {
		return nil, &ConfigError{What: "no API keys in the credential pool"}
	}

	var (
		attempts   int
		lastReason = ReasonUnknown
		lastErr    error
		notices    []string
	)

	for round := 0; round < i.cfg.MaxRetries; round++ {
		key, index, ok := i.pool.Snapshot()
		if !ok {
			return nil, &ConfigError{What: "no API keys in the credential pool"}
		}
		fingerprint := secrets.Fingerprint(key)

	models:
		for _, model := range i.cfg.Models {
			if err := ctx.Err(); err != nil {
				return nil, &GenerationError{Reason: lastReason, Attempts: attempts, Err: err}
			}

			attempts++
			log := i.logger.With(logger.AttemptFields(model, fingerprint, attempts)...)
			log.Debug("generation attempt",
				zap.String("shape", req.Shape.String()),
				zap.Int("prompt_length", utf8.RuneCountInString(req.User)),
				zap.Int("round", round+1),
			)

			text, err := i.attempt(ctx, Attempt{Credential: key, Model: model, Request: req})
			if err == nil {
				log.Debug("generation succeeded",
					zap.Int("response_length", utf8.RuneCountInString(text)),
					zap.String("response_preview", utils.TruncateForLog(text, i.cfg.MaxLogLength)),
				)
				return &Generation{
					Text:       text,
					Model:      model,
					Credential: index,
					Attempts:   attempts,
					Notices:    notices,
				}, nil
			}

			reason, retryAfter := classify(err)
			lastReason, lastErr = reason, err
			log.Warn("generation attempt failed", zap.String("reason", reason.String()), zap.Error(err))

			switch reason {
			case ReasonModelUnavailable:
				continue
			case ReasonQuotaExhausted:
				if i.pool.RotateFrom(key) {
					notices = append(notices, fmt.Sprintf("API key %d of %d is over quota, switched to the next key.", index+1, i.pool.Len()))
					log.Warn("rotated api key", zap.Int("next_index", i.pool.Index()))
					if err := i.wait(ctx, i.cfg.RotateBackoff); err != nil {
						return nil, &GenerationError{Reason: reason, Attempts: attempts, Err: err}
					}
					break models
				}

				delay := i.exhaustedDelay(retryAfter)
				log.Warn("no api key left to rotate to, backing off", zap.Duration("delay", delay))
				if err := i.wait(ctx, delay); err != nil {
					return nil, &GenerationError{Reason: reason, Attempts: attempts, Err: err}
				}
			}
		}
	}

	i.logger.Error("generation failed",
		zap.Int("attempts", attempts),
		zap.String("reason", lastReason.String()),
		zap.Error(lastErr),
	)

	return nil, &GenerationError{Reason: lastReason, Attempts: attempts, Err: lastErr}
}

func (i *Invoker) attempt(ctx context.Context, attempt Attempt) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	text, err := i.backend.Generate(attemptCtx, attempt)
	if err != nil {
		var attemptErr *AttemptError
		if !errors.As(err, &attemptErr) && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", &AttemptError{Reason: ReasonTimeout, Err: err}
		}
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &AttemptError{Reason: ReasonUnknown, Err: errors.New("empty response")}
	}

	return text, nil
}

func (i *Invoker) exhaustedDelay(hint time.Duration) time.Duration {
	if hint > 0 && hint <= i.cfg.MaxBackoff {
		return hint
	}
	return i.cfg.ExhaustedBackoff
}

func normalizeConfig(cfg InvokerConfig) InvokerConfig {
	models := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		models = append(models, DefaultModels...)
	}
	cfg.Models = models

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RotateBackoff <= 0 {
		cfg.RotateBackoff = defaultRotateBackoff
	}
	if cfg.ExhaustedBackoff <= 0 {
		cfg.ExhaustedBackoff = defaultExhaustedBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}

	return cfg
}
