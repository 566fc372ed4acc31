// Package config loads runtime configuration from environment variables,
// following the pack's .env + github.com/joho/godotenv convention (see
// teradata-labs-loom and codeready-toolchain-tarsy's env-var config
// loaders) rather than a flags/YAML-based setup, since the teacher itself
// has no dedicated config package to ground on.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ProviderMode selects whether providers run live or in playback mode
// (spec.md §4.C).
type ProviderMode string

const (
	ModeLive     ProviderMode = "live"
	ModePlayback ProviderMode = "playback"
)

// Config is the runtime's full set of externally tunable settings.
type Config struct {
	// EventLogDSN and RecordingDSN are passed verbatim to
	// eventlog/sqlite.Open and recording/sqlite.Open.
	EventLogDSN  string
	RecordingDSN string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	AWSRegion       string

	ProviderMode ProviderMode

	RedisAddr string

	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryMaxAttempt int
	ActivationTimeout time.Duration
}

// Load reads .env (if present; a missing file is not an error, matching
// godotenv.Load's own convention) and then populates Config from the
// process environment, applying defaults for anything unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: failed to load .env: %w", err)
	}

	cfg := Config{
		EventLogDSN:       getenv("FLOWCORE_EVENTLOG_DSN", "file:flowcore-events.db"),
		RecordingDSN:      getenv("FLOWCORE_RECORDING_DSN", "file:flowcore-recordings.db"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AWSRegion:         getenv("AWS_REGION", "us-east-1"),
		ProviderMode:      ProviderMode(getenv("FLOWCORE_PROVIDER_MODE", string(ModeLive))),
		RedisAddr:         os.Getenv("FLOWCORE_REDIS_ADDR"),
		RetryBaseDelay:    getenvDuration("FLOWCORE_RETRY_BASE_MS", 1000*time.Millisecond),
		RetryMaxDelay:     getenvDuration("FLOWCORE_RETRY_MAX_MS", 60000*time.Millisecond),
		RetryMaxAttempt:   getenvInt("FLOWCORE_RETRY_MAX_ATTEMPTS", 10),
		ActivationTimeout: getenvDuration("FLOWCORE_ACTIVATION_TIMEOUT_MS", 5*time.Minute),
	}

	if cfg.ProviderMode != ModeLive && cfg.ProviderMode != ModePlayback {
		return Config{}, fmt.Errorf("config: invalid FLOWCORE_PROVIDER_MODE %q", cfg.ProviderMode)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
