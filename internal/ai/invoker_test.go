package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/credentials"
)

type fakeResult struct {
	text string
	err  error
}

type fakeBackend struct {
	mu      sync.Mutex
	results map[string][]fakeResult
	calls   []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{results: make(map[string][]fakeResult)}
}

func (f *fakeBackend) on(key, model string, text string, err error) *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := key + "/" + model
	f.results[id] = append(f.results[id], fakeResult{text: text, err: err})
	return f
}

func (f *fakeBackend) Generate(_ context.Context, attempt Attempt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := attempt.Credential + "/" + attempt.Model
	f.calls = append(f.calls, id)
	queue := f.results[id]
	if len(queue) == 0 {
		return "", &AttemptError{Reason: ReasonUnknown, Err: errors.New("unexpected call " + id)}
	}
	res := queue[0]
	if len(queue) > 1 {
		f.results[id] = queue[1:]
	}
	return res.text, res.err
}

func quota() error {
	return &AttemptError{Reason: ReasonQuotaExhausted, Err: errors.New("RESOURCE_EXHAUSTED")}
}

func notFound() error {
	return &AttemptError{Reason: ReasonModelUnavailable, Err: errors.New("NOT_FOUND")}
}

type waitRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err()
}

func newTestInvoker(pool *credentials.Pool, backend Backend, cfg InvokerConfig) (*Invoker, *waitRecorder) {
	inv := NewInvoker(pool, backend, cfg, zap.NewNop())
	rec := &waitRecorder{}
	inv.wait = rec.wait
	return inv, rec
}

func TestInvokerRotatesOnQuotaWithoutTryingNextModel(t *testing.T) {
	backend := newFakeBackend().
		on("A", "m1", "", quota()).
		on("B", "m1", "from B", nil)

	inv, waits := newTestInvoker(credentials.New("A", "B"), backend, InvokerConfig{Models: []string{"m1", "m2"}})

	gen, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gen.Text != "from B" || gen.Model != "m1" || gen.Credential != 1 {
		t.Fatalf("unexpected generation: %+v", gen)
	}

	want := []string{"A/m1", "B/m1"}
	if strings.Join(backend.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected calls: %v", backend.calls)
	}

	if len(gen.Notices) != 1 {
		t.Fatalf("expected one rotation notice, got %v", gen.Notices)
	}

	if len(waits.delays) != 1 || waits.delays[0] != defaultRotateBackoff {
		t.Fatalf("expected a single short backoff, got %v", waits.delays)
	}
}

func TestInvokerFallsBackToNextModel(t *testing.T) {
	backend := newFakeBackend().
		on("A", "m1", "", notFound()).
		on("A", "m2", "from m2", nil)

	inv, waits := newTestInvoker(credentials.New("A"), backend, InvokerConfig{Models: []string{"m1", "m2"}})

	gen, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeFreeText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gen.Text != "from m2" || gen.Model != "m2" || gen.Credential != 0 || gen.Attempts != 2 {
		t.Fatalf("unexpected generation: %+v", gen)
	}

	if len(waits.delays) != 0 {
		t.Fatalf("model fallback must not back off, got %v", waits.delays)
	}
}

func TestInvokerEmptyPoolIsConfigError(t *testing.T) {
	backend := newFakeBackend()
	inv, _ := newTestInvoker(credentials.New(), backend, InvokerConfig{})

	_, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeJSON))

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	if len(backend.calls) != 0 {
		t.Fatalf("expected no backend calls, got %v", backend.calls)
	}
}

func TestInvokerNilBackendIsConfigError(t *testing.T) {
	inv, _ := newTestInvoker(credentials.New("A"), nil, InvokerConfig{})

	_, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeJSON))

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestInvokerExhaustedPoolBacksOffAndContinues(t *testing.T) {
	backend := newFakeBackend().
		on("A", "m1", "", &AttemptError{Reason: ReasonQuotaExhausted, RetryAfter: 2 * time.Second, Err: errors.New("quota")}).
		on("A", "m2", "ok", nil)

	inv, waits := newTestInvoker(credentials.New("A"), backend, InvokerConfig{Models: []string{"m1", "m2"}})

	gen, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Model != "m2" {
		t.Fatalf("expected m2, got %s", gen.Model)
	}
	if len(waits.delays) != 1 || waits.delays[0] != 2*time.Second {
		t.Fatalf("expected server hint backoff, got %v", waits.delays)
	}
}

func TestInvokerIgnoresLongRetryHint(t *testing.T) {
	backend := newFakeBackend().
		on("A", "m1", "", &AttemptError{Reason: ReasonQuotaExhausted, RetryAfter: time.Hour, Err: errors.New("quota")}).
		on("A", "m2", "ok", nil)

	inv, waits := newTestInvoker(credentials.New("A"), backend, InvokerConfig{Models: []string{"m1", "m2"}})

	if _, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeJSON)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(waits.delays) != 1 || waits.delays[0] != defaultExhaustedBackoff {
		t.Fatalf("expected default exhausted backoff, got %v", waits.delays)
	}
}

func TestInvokerExhaustsRetries(t *testing.T) {
	backend := newFakeBackend().
		on("A", "m1", "", &AttemptError{Reason: ReasonTimeout, Err: context.DeadlineExceeded}).
		on("A", "m2", "", errors.New("boom"))

	inv, _ := newTestInvoker(credentials.New("A"), backend, InvokerConfig{Models: []string{"m1", "m2"}, MaxRetries: 2})

	_, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeJSON))

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", genErr.Attempts)
	}
	if genErr.Reason != ReasonUnknown {
		t.Fatalf("expected last reason unknown, got %s", genErr.Reason)
	}
	if UserMessage(err) != "Could not generate feedback." {
		t.Fatalf("unexpected user message: %q", UserMessage(err))
	}
}

func TestInvokerTreatsEmptyResponseAsFailure(t *testing.T) {
	backend := newFakeBackend().
		on("A", "m1", "   ", nil).
		on("A", "m2", "text", nil)

	inv, _ := newTestInvoker(credentials.New("A"), backend, InvokerConfig{Models: []string{"m1", "m2"}})

	gen, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeFreeText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Model != "m2" {
		t.Fatalf("expected m2, got %s", gen.Model)
	}
}

type slowBackend struct{}

func (slowBackend) Generate(ctx context.Context, _ Attempt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestInvokerAttemptTimeout(t *testing.T) {
	inv, _ := newTestInvoker(credentials.New("A"), slowBackend{}, InvokerConfig{
		Models:     []string{"m1"},
		MaxRetries: 1,
		Timeout:    10 * time.Millisecond,
	})

	_, err := inv.Generate(context.Background(), NewPromptRequest("sys", "user", ShapeJSON))

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Reason != ReasonTimeout {
		t.Fatalf("expected timeout reason, got %s", genErr.Reason)
	}
}

func TestInvokerStopsOnCancelledContext(t *testing.T) {
	backend := newFakeBackend()
	inv, _ := newTestInvoker(credentials.New("A"), backend, InvokerConfig{Models: []string{"m1"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Generate(ctx, NewPromptRequest("sys", "user", ShapeJSON))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("expected no calls, got %v", backend.calls)
	}
}

func TestInvokerDefaults(t *testing.T) {
	inv := NewInvoker(credentials.New("A"), newFakeBackend(), InvokerConfig{Models: []string{" ", ""}}, nil)

	if got := inv.Models(); len(got) != len(DefaultModels) {
		t.Fatalf("expected default models, got %v", got)
	}
	if inv.cfg.Timeout != defaultTimeout || inv.cfg.MaxRetries != defaultMaxRetries {
		t.Fatalf("unexpected defaults: %+v", inv.cfg)
	}
}
