// =============================================================================
// Configuration loader
// =============================================================================
// Unified config loading: defaults -> YAML file -> environment overrides.
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//
// Pass an empty path to load defaults plus environment overrides only.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment overrides.
const EnvPrefix = "CATEGORIZER"

// Load builds a Config from defaults, an optional YAML file, and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides the operationally relevant knobs from the environment.
// Structural settings (models, worker bounds) come from the file only.
func applyEnv(cfg *Config) {
	envString(&cfg.Server.Addr, "SERVER_ADDR")
	envString(&cfg.Log.Level, "LOG_LEVEL")
	envString(&cfg.Log.Format, "LOG_FORMAT")
	envString(&cfg.Redis.Addr, "REDIS_ADDR")
	envString(&cfg.Redis.Password, "REDIS_PASSWORD")
	envBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	envBool(&cfg.Telemetry.Enabled, "TELEMETRY_ENABLED")
	envString(&cfg.Telemetry.OTLPEndpoint, "TELEMETRY_OTLP_ENDPOINT")

	envInt(&cfg.Scheduler.MaxBatchSize, "MAX_BATCH_SIZE")
	envDuration(&cfg.Scheduler.MaxBatchWait, "MAX_BATCH_WAIT")
	envInt(&cfg.Scheduler.GlobalInflightLimit, "GLOBAL_INFLIGHT_LIMIT")
	envInt(&cfg.Scheduler.ClientInflightLimit, "CLIENT_INFLIGHT_LIMIT")
	envInt(&cfg.Scheduler.MaxPayloadBytes, "MAX_PAYLOAD_BYTES")
	envDuration(&cfg.Scheduler.RequestDeadline, "REQUEST_DEADLINE")
	envDuration(&cfg.Scheduler.BatchTimeout, "BATCH_TIMEOUT")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
