// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir string
	Remote  RemoteConfig
	Sync    SyncConfig
	Webhook WebhookConfig
	Logging LoggingConfig
}

type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type SyncConfig struct {
	Interval time.Duration
}

type WebhookConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
	ReplayDelay time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	remoteTimeout, err := time.ParseDuration(getEnv("REMOTE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMOTE_TIMEOUT: %w", err)
	}

	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}

	webhookBaseDelay, err := time.ParseDuration(getEnv("WEBHOOK_BASE_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_BASE_DELAY: %w", err)
	}

	webhookTimeout, err := time.ParseDuration(getEnv("WEBHOOK_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	replayDelay, err := time.ParseDuration(getEnv("WEBHOOK_REPLAY_DELAY", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_REPLAY_DELAY: %w", err)
	}

	return &Config{
		DataDir: getEnv("DATA_DIR", "./data"),
		Remote: RemoteConfig{
			BaseURL:    getEnv("REMOTE_BASE_URL", "http://localhost:8090"),
			APIKey:     getEnv("REMOTE_API_KEY", ""),
			Timeout:    remoteTimeout,
			MaxRetries: getEnvAsInt("REMOTE_MAX_RETRIES", 2),
		},
		Sync: SyncConfig{
			Interval: syncInterval,
		},
		Webhook: WebhookConfig{
			MaxAttempts: getEnvAsInt("WEBHOOK_MAX_ATTEMPTS", 3),
			BaseDelay:   webhookBaseDelay,
			Timeout:     webhookTimeout,
			ReplayDelay: replayDelay,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
