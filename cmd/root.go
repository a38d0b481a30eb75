package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/nexhire/internal/admin"
	"github.com/spigell/nexhire/internal/retention"
	"github.com/spigell/nexhire/internal/server"
)

const (
	app       = "nexhire"
	envPrefix = "NEXHIRE"
)

type Config struct {
	AI         *AIConfig         `mapstructure:"ai"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Server     server.Config     `mapstructure:"server"`
	Admin      admin.Credentials `mapstructure:"admin"`
	Cache      CacheConfig       `mapstructure:"cache"`
	Retention  retention.Config  `mapstructure:"retention"`
	InputLimit int               `mapstructure:"input-limit"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey      string   `mapstructure:"api-key"`
	APIKeys     []string `mapstructure:"api-keys"`
	APIKeyFile  string   `mapstructure:"api-key-file"`
	APIKeyFiles []string `mapstructure:"api-key-files"`
	ShuffleKeys bool     `mapstructure:"shuffle-keys"`

	Models           []string      `mapstructure:"models"`
	MaxRetries       int           `mapstructure:"max-retries"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RotateBackoff    time.Duration `mapstructure:"rotate-backoff"`
	ExhaustedBackoff time.Duration `mapstructure:"exhausted-backoff"`
	MaxBackoff       time.Duration `mapstructure:"max-backoff"`
	MaxLogLength     int           `mapstructure:"max-log-length"`

	Temperature          *float32 `mapstructure:"temperature"`
	MaxOutputTokens      int32    `mapstructure:"max-output-tokens"`
	DisableSafetyFilters bool     `mapstructure:"disable-safety-filters"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig enables the generation cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis-url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "nexhire scores résumés against job descriptions with Gemini",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("database.url", "DATABASE_URL", envPrefix+"_DATABASE_URL"); err != nil {
		log.Fatalf("binding DATABASE_URL environment variable: %v", err)
	}
	if err := viper.BindEnv("cache.redis-url", "REDIS_URL", envPrefix+"_CACHE_REDIS_URL"); err != nil {
		log.Fatalf("binding REDIS_URL environment variable: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Keys must be known to viper for environment overrides to reach Unmarshal.
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.api-key", "")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.models", []string{})
	viper.SetDefault("ai.gemini.disable-safety-filters", false)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.request-timeout", 3*time.Minute)
	viper.SetDefault("admin.username", "")
	viper.SetDefault("admin.password-hash", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)
	viper.SetDefault("retention.schedule", retention.DefaultSchedule)
	viper.SetDefault("retention.max-age", time.Duration(0))
	viper.SetDefault("input-limit", 0)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is nexhire.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// Running without a config file is fine, everything can come from the environment.
	// A file that exists but does not parse is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}

	return config, nil
}
