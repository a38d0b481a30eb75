// Package cache keeps successful generations so identical prompts do not hit
// the generation backend twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/ai"
	"github.com/spigell/nexhire/internal/decode"
)

const (
	// DefaultTTL is used when no positive TTL is configured.
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "nexhire:generation:"
	// Notice is added to generations served from the cache.
	Notice = "Result served from cache."
)

// Backend is a string key-value store with expiry.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Redis is a Backend on a Redis server.
type Redis struct {
	client *redis.Client
}

// Connect parses redisURL and verifies connectivity.
func Connect(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type entry struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Generator wraps another generator with a read-through cache. Cache failures
// are logged and never fail a request. Structured answers are cached only
// when they decode into an object.
type Generator struct {
	next    ai.Generator
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger
}

func NewGenerator(next ai.Generator, backend Backend, ttl time.Duration, logger *zap.Logger) *Generator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{next: next, backend: backend, ttl: ttl, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, req ai.PromptRequest) (*ai.Generation, error) {
	key := Key(req)
	log := g.logger.With(zap.String("cache_key", key[len(keyPrefix):len(keyPrefix)+12]))

	if gen, ok := g.lookup(ctx, log, key, req.Shape); ok {
		return gen, nil
	}

	gen, err := g.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if !cacheable(req.Shape, gen.Text) {
		log.Debug("generation not cached: structured output does not decode")
		return gen, nil
	}

	raw, err := json.Marshal(entry{Text: gen.Text, Model: gen.Model})
	if err == nil {
		err = g.backend.Set(ctx, key, string(raw), g.ttl)
	}
	if err != nil {
		log.Warn("store generation in cache", zap.Error(err))
	}

	return gen, nil
}

func (g *Generator) lookup(ctx context.Context, log *zap.Logger, key string, shape ai.Shape) (*ai.Generation, bool) {
	raw, ok, err := g.backend.Get(ctx, key)
	if err != nil {
		log.Warn("read generation from cache", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Text == "" {
		log.Warn("ignoring malformed cache entry", zap.Error(err))
		return nil, false
	}
	if !cacheable(shape, e.Text) {
		log.Warn("ignoring undecodable cache entry")
		return nil, false
	}

	log.Debug("generation served from cache", zap.String("model", e.Model))
	return &ai.Generation{Text: e.Text, Model: e.Model, Notices: []string{Notice}}, true
}

func cacheable(shape ai.Shape, text string) bool {
	if shape != ai.ShapeJSON {
		return true
	}
	_, err := decode.Object(text, nil)
	return err == nil
}

// Key derives the cache key of a request from its shape and both prompts.
func Key(req ai.PromptRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Shape.String()))
	h.Write([]byte{0})
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.User))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
