package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		GatewayURL:    "http://localhost:54321",
		StorageBucket: "media",
		FeedPageSize:  10,
		StoryDuration: 5000,
		StoryTick:     50,
		RetryCount:    2,
		Env:           "development",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid development config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing gateway url",
			mutate:  func(c *Config) { c.GatewayURL = "" },
			wantErr: "GATEWAY_URL is required",
		},
		{
			name:    "malformed gateway url",
			mutate:  func(c *Config) { c.GatewayURL = "not a url" },
			wantErr: "GATEWAY_URL must be a valid URL",
		},
		{
			name:    "non-positive page size",
			mutate:  func(c *Config) { c.FeedPageSize = 0 },
			wantErr: "FEED_PAGE_SIZE must be positive",
		},
		{
			name:    "zero story duration",
			mutate:  func(c *Config) { c.StoryDuration = 0 },
			wantErr: "STORY_DURATION_MS and STORY_TICK_MS must be positive",
		},
		{
			name:    "tick exceeding duration",
			mutate:  func(c *Config) { c.StoryTick = 6000 },
			wantErr: "STORY_TICK_MS cannot exceed STORY_DURATION_MS",
		},
		{
			name:    "negative retry count",
			mutate:  func(c *Config) { c.RetryCount = -1 },
			wantErr: "RETRY_COUNT cannot be negative",
		},
		{
			name:    "production requires anon key",
			mutate:  func(c *Config) { c.Env = "production" },
			wantErr: "GATEWAY_ANON_KEY is required in production",
		},
		{
			name: "production with anon key passes",
			mutate: func(c *Config) {
				c.Env = "production"
				c.GatewayAnonKey = "key"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:54321", cfg.GatewayURL)
	assert.Equal(t, "media", cfg.StorageBucket)
	assert.Equal(t, 10, cfg.FeedPageSize)
	assert.Equal(t, 5000, cfg.StoryDuration)
	assert.Equal(t, 50, cfg.StoryTick)
	assert.Equal(t, 2, cfg.RetryCount)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, "stdout", cfg.TracingExport)
	assert.InDelta(t, 1.0, cfg.SamplerRatio, 0.001)
}
