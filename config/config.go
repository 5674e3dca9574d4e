package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration
type Config struct {
	LogLevel string
	APIPort  int

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// ObjectStore selects the blob backend: postgres or memory
	ObjectStore string

	// InstrumentSource selects where codes come from: file (reference YAML) or db
	InstrumentSource string
	ReferenceFile    string

	MarketData MarketDataConfig
	Pipeline   PipelineConfig
	Webhook    WebhookConfig
}

// WebhookConfig holds run-completion webhook targets
type WebhookConfig struct {
	URLs       []string
	AuthToken  string
	Retries    int
	RetryDelay time.Duration
}

// MarketDataConfig holds remote provider settings
type MarketDataConfig struct {
	BaseURL      string
	APIToken     string
	TokenFile    string
	FetchTimeout time.Duration
}

// PipelineConfig holds batch and analytics parameters
type PipelineConfig struct {
	BatchSize   int
	Concurrency int
	YieldDelay  time.Duration

	// Calendar days of history each ingestion keeps complete
	LookbackDays int

	// Order-flow dates (most recent first) recomputed by each accumulation run
	AccumulationBackfillDays int

	// Calendar days covered by broker inventory files
	InventoryDays int

	// Scheduler
	ScheduleEnabled  bool
	ScheduleInterval time.Duration

	RunCacheTTL time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	return &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		APIPort:  getEnvInt("API_PORT", 8080),

		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "idx_flow"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "idxflow"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "idxflow123"),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		ObjectStore:      strings.ToLower(getEnvOrDefault("OBJECT_STORE", "postgres")),
		InstrumentSource: strings.ToLower(getEnvOrDefault("INSTRUMENT_SOURCE", "file")),
		ReferenceFile:    getEnvOrDefault("REFERENCE_FILE", "./reference.yaml"),

		MarketData: MarketDataConfig{
			BaseURL:      strings.TrimRight(getEnvOrDefault("MARKET_DATA_URL", "http://localhost:9000/api"), "/"),
			APIToken:     getEnvOrDefault("MARKET_DATA_TOKEN", ""),
			TokenFile:    getEnvOrDefault("MARKET_DATA_TOKEN_FILE", ""),
			FetchTimeout: getEnvDuration("MARKET_DATA_TIMEOUT", 30*time.Second),
		},

		Pipeline: PipelineConfig{
			BatchSize:                getEnvInt("PIPELINE_BATCH_SIZE", 20),
			Concurrency:              getEnvInt("PIPELINE_CONCURRENCY", 5),
			YieldDelay:               getEnvDuration("PIPELINE_YIELD_DELAY", 200*time.Millisecond),
			LookbackDays:             getEnvInt("PIPELINE_LOOKBACK_DAYS", 7),
			AccumulationBackfillDays: getEnvInt("PIPELINE_ACCUMULATION_BACKFILL", 5),
			InventoryDays:            getEnvInt("PIPELINE_INVENTORY_DAYS", 30),
			ScheduleEnabled:          getEnvOrDefault("PIPELINE_SCHEDULE_ENABLED", "true") == "true",
			ScheduleInterval:         getEnvDuration("PIPELINE_SCHEDULE_INTERVAL", 24*time.Hour),
			RunCacheTTL:              getEnvDuration("PIPELINE_RUN_CACHE_TTL", 24*time.Hour),
		},

		Webhook: WebhookConfig{
			URLs:       getEnvList("RUN_WEBHOOK_URLS"),
			AuthToken:  getEnvOrDefault("RUN_WEBHOOK_TOKEN", ""),
			Retries:    getEnvInt("RUN_WEBHOOK_RETRIES", 3),
			RetryDelay: getEnvDuration("RUN_WEBHOOK_RETRY_DELAY", 5*time.Second),
		},
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("PIPELINE_BATCH_SIZE must be >= 1")
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be >= 1")
	}
	if c.Pipeline.LookbackDays < 0 {
		return fmt.Errorf("PIPELINE_LOOKBACK_DAYS must be >= 0")
	}
	switch c.ObjectStore {
	case "postgres", "memory":
	default:
		return fmt.Errorf("OBJECT_STORE must be postgres or memory, got %q", c.ObjectStore)
	}
	switch c.InstrumentSource {
	case "file", "db":
	default:
		return fmt.Errorf("INSTRUMENT_SOURCE must be file or db, got %q", c.InstrumentSource)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API_PORT %d", c.APIPort)
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvDuration parses Go duration syntax (e.g. 30s, 24h)
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
