package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/ai"
	"github.com/spigell/nexhire/internal/ai/gemini"
	"github.com/spigell/nexhire/internal/cache"
	"github.com/spigell/nexhire/internal/credentials"
	"github.com/spigell/nexhire/internal/logger"
	"github.com/spigell/nexhire/internal/prompts"
	"github.com/spigell/nexhire/internal/screening"
	"github.com/spigell/nexhire/internal/store"
)

// keyEnvPrefixes are scanned for numbered API keys in addition to the config file.
var keyEnvPrefixes = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// mustLogger builds the logger or exits. Commands that print results to
// stdout log to stderr.
func mustLogger(stderr bool) *zap.Logger {
	build := logger.New
	if stderr {
		build = logger.NewStderr
	}

	l, err := build(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

func mustConfig(logger *zap.Logger) *Config {
	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	return config
}

// openStore connects to PostgreSQL when a database url is configured and
// falls back to an in-memory log otherwise.
func openStore(ctx context.Context, config *Config, logger *zap.Logger) (store.Store, error) {
	url := strings.TrimSpace(config.Database.URL)
	if url == "" {
		logger.Info("database url is not set, keeping the activity log in memory")
		return store.NewMemory(), nil
	}

	db, err := store.Connect(ctx, url)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to the activity log database")
	return db, nil
}

// newPool collects the api keys; credentials.Load reports the outcome.
func newPool(cfg *GeminiConfig, logger *zap.Logger) *credentials.Pool {
	return credentials.Load(credentials.Source{
		Key:         cfg.APIKey,
		Keys:        cfg.APIKeys,
		KeyFile:     cfg.APIKeyFile,
		KeyFiles:    cfg.APIKeyFiles,
		EnvPrefixes: keyEnvPrefixes,
		Shuffle:     cfg.ShuffleKeys,
	}, os.LookupEnv, logger)
}

// cleanup releases what the command opened.
type cleanup func()

func newGenerator(ctx context.Context, config *Config, logger *zap.Logger) (ai.Generator, cleanup, error) {
	cfg := config.AI
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	g := cfg.Gemini
	backend := gemini.NewBackend(gemini.Options{
		Temperature:          g.Temperature,
		DisableSafetyFilters: g.DisableSafetyFilters,
		MaxOutputTokens:      g.MaxOutputTokens,
	}, logger)

	invoker := ai.NewInvoker(newPool(g, logger), backend, ai.InvokerConfig{
		Models:           g.Models,
		MaxRetries:       g.MaxRetries,
		Timeout:          g.Timeout,
		RotateBackoff:    g.RotateBackoff,
		ExhaustedBackoff: g.ExhaustedBackoff,
		MaxBackoff:       g.MaxBackoff,
		MaxLogLength:     g.MaxLogLength,
	}, logger)

	logger.Debug("generation configured",
		zap.String("provider", gemini.Provider),
		zap.Strings("models", invoker.Models()),
	)

	redisURL := strings.TrimSpace(config.Cache.RedisURL)
	if redisURL == "" {
		return invoker, func() {}, nil
	}

	rdb, err := cache.Connect(ctx, redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to the generation cache: %w", err)
	}
	logger.Info("generation cache enabled", zap.Duration("ttl", config.Cache.TTL))

	closeCache := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("closing the generation cache", zap.Error(err))
		}
	}

	return cache.NewGenerator(invoker, rdb, config.Cache.TTL, logger), closeCache, nil
}

func newService(ctx context.Context, config *Config, st store.Store, logger *zap.Logger) (*screening.Service, cleanup, error) {
	library, err := prompts.Load(viper.GetStringMap("prompts"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading prompt templates: %w", err)
	}

	generator, done, err := newGenerator(ctx, config, logger)
	if err != nil {
		return nil, nil, err
	}

	return screening.NewService(generator, library, st, screening.Config{InputLimit: config.InputLimit}, logger), done, nil
}
