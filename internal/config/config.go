// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/spf13/viper"
)

// Config holds client configuration values loaded from file or environment
// variables.
type Config struct {
	GatewayURL     string  `mapstructure:"GATEWAY_URL"`
	GatewayAnonKey string  `mapstructure:"GATEWAY_ANON_KEY"`
	RealtimeURL    string  `mapstructure:"REALTIME_URL"`
	StorageBucket  string  `mapstructure:"STORAGE_BUCKET"`
	RedisURL       string  `mapstructure:"REDIS_URL"`
	FeedPageSize   int     `mapstructure:"FEED_PAGE_SIZE"`
	StoryDuration  int     `mapstructure:"STORY_DURATION_MS"`
	StoryTick      int     `mapstructure:"STORY_TICK_MS"`
	RetryCount     int     `mapstructure:"RETRY_COUNT"`
	RetryWaitMS    int     `mapstructure:"RETRY_WAIT_MS"`
	RetryMaxWaitMS int     `mapstructure:"RETRY_MAX_WAIT_MS"`
	Env            string  `mapstructure:"APP_ENV"`
	TracingEnabled bool    `mapstructure:"TRACING_ENABLED"`
	TracingExport  string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint   string  `mapstructure:"OTLP_ENDPOINT"`
	SamplerRatio   float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	// Set default values for development
	viper.SetDefault("GATEWAY_URL", "http://localhost:54321")
	viper.SetDefault("GATEWAY_ANON_KEY", "")
	viper.SetDefault("REALTIME_URL", "")
	viper.SetDefault("STORAGE_BUCKET", "media")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("FEED_PAGE_SIZE", 10)
	viper.SetDefault("STORY_DURATION_MS", 5000)
	viper.SetDefault("STORY_TICK_MS", 50)
	viper.SetDefault("RETRY_COUNT", 2)
	viper.SetDefault("RETRY_WAIT_MS", 200)
	viper.SetDefault("RETRY_MAX_WAIT_MS", 2000)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and sane.
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return errors.New("GATEWAY_URL is required")
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("GATEWAY_URL must be a valid URL: %w", err)
	}
	if c.FeedPageSize <= 0 {
		return errors.New("FEED_PAGE_SIZE must be positive")
	}
	if c.StoryDuration <= 0 || c.StoryTick <= 0 {
		return errors.New("STORY_DURATION_MS and STORY_TICK_MS must be positive")
	}
	if c.StoryTick > c.StoryDuration {
		return errors.New("STORY_TICK_MS cannot exceed STORY_DURATION_MS")
	}
	if c.RetryCount < 0 {
		return errors.New("RETRY_COUNT cannot be negative")
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction {
		if c.GatewayAnonKey == "" {
			return errors.New("GATEWAY_ANON_KEY is required in production")
		}
	} else {
		if c.GatewayAnonKey == "" {
			log.Println("WARNING: GATEWAY_ANON_KEY is empty. Requests will be sent unauthenticated.")
		}
	}

	return nil
}
