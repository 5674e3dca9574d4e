package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("PIPELINE_BATCH_SIZE", "")
	t.Setenv("PIPELINE_YIELD_DELAY", "")
	t.Setenv("OBJECT_STORE", "")
	t.Setenv("PIPELINE_CONCURRENCY", "")
	t.Setenv("INSTRUMENT_SOURCE", "")
	t.Setenv("API_PORT", "")

	cfg := LoadFromEnv()
	assert.Equal(t, 20, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5, cfg.Pipeline.Concurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.Pipeline.YieldDelay)
	assert.Equal(t, "postgres", cfg.ObjectStore)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_BATCH_SIZE", "10")
	t.Setenv("PIPELINE_YIELD_DELAY", "1s")
	t.Setenv("MARKET_DATA_URL", "https://data.example.com/v1/")
	t.Setenv("PIPELINE_CONCURRENCY", "not-a-number")
	t.Setenv("RUN_WEBHOOK_URLS", " https://hooks.example.com/a, ,https://hooks.example.com/b")

	cfg := LoadFromEnv()
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, time.Second, cfg.Pipeline.YieldDelay)
	assert.Equal(t, "https://data.example.com/v1", cfg.MarketData.BaseURL)
	assert.Equal(t, 5, cfg.Pipeline.Concurrency)
	assert.Equal(t, []string{"https://hooks.example.com/a", "https://hooks.example.com/b"}, cfg.Webhook.URLs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"zero batch", func(c *Config) { c.Pipeline.BatchSize = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }, true},
		{"bad store", func(c *Config) { c.ObjectStore = "s3" }, true},
		{"bad source", func(c *Config) { c.InstrumentSource = "api" }, true},
		{"bad port", func(c *Config) { c.APIPort = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				APIPort:          8080,
				ObjectStore:      "memory",
				InstrumentSource: "file",
				Pipeline:         PipelineConfig{BatchSize: 10, Concurrency: 3, LookbackDays: 7},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
