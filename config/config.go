package config

import (
	"fmt"
	"time"
)

// Config is the complete static configuration of the categorization
// service, supplied once at startup. Precedence: defaults, then YAML file,
// then environment overrides.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Models    []ModelConfig   `yaml:"models"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP surface (health and metrics).
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SchedulerConfig configures the admission, batching, and dispatch core.
type SchedulerConfig struct {
	// MaxBatchSize is the hard cap on requests per batch.
	MaxBatchSize int `yaml:"max_batch_size"`
	// MaxBatchWait bounds how long an open batch may wait before sealing.
	MaxBatchWait time.Duration `yaml:"max_batch_wait"`
	// GlobalInflightLimit caps accepted-but-unresolved requests.
	GlobalInflightLimit int `yaml:"global_inflight_limit"`
	// ClientInflightLimit caps unresolved requests per client.
	ClientInflightLimit int `yaml:"client_inflight_limit"`
	// ClientRPS and ClientBurst configure the per-client token bucket.
	// Zero RPS disables rate limiting.
	ClientRPS   float64 `yaml:"client_rps"`
	ClientBurst int     `yaml:"client_burst"`
	// MaxPayloadBytes caps the raw image payload size.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	// RequestDeadline is the default end-to-end budget per request.
	RequestDeadline time.Duration `yaml:"request_deadline"`
	// BatchTimeout is the total latency budget of a batch, measured from
	// batch creation. A worker exceeding it is declared dead.
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	// Heartbeat settings for detecting dead idle workers.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	// Worker pool bounds per model.
	MinWorkersPerModel int `yaml:"min_workers_per_model"`
	MaxWorkersPerModel int `yaml:"max_workers_per_model"`
}

// ModelConfig declares one servable model.
type ModelConfig struct {
	// Name is the model identifier requests address.
	Name string `yaml:"name"`
	// Type selects the adapter: "onnx" or "mock".
	Type string `yaml:"type"`
	// Path and MetadataPath locate the ONNX model and its metadata file.
	Path         string `yaml:"path"`
	MetadataPath string `yaml:"metadata_path"`
	// Workers is the initial pool size for this model.
	Workers int `yaml:"workers"`
}

// RedisConfig configures the optional Redis-backed per-client limiter.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	Window   time.Duration `yaml:"window"`
	Limit    int           `yaml:"limit"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// TelemetryConfig configures the OpenTelemetry SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			MaxBatchSize:        16,
			MaxBatchWait:        50 * time.Millisecond,
			GlobalInflightLimit: 1024,
			ClientInflightLimit: 64,
			ClientRPS:           0,
			ClientBurst:         0,
			MaxPayloadBytes:     8 << 20, // 8 MB
			RequestDeadline:     10 * time.Second,
			BatchTimeout:        5 * time.Second,
			HeartbeatInterval:   2 * time.Second,
			HeartbeatTimeout:    10 * time.Second,
			MinWorkersPerModel:  1,
			MaxWorkersPerModel:  8,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			Window:   time.Second,
			Limit:    100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "categorizer",
			SampleRatio: 1.0,
		},
	}
}

// Validate checks cross-field consistency of the configuration.
func (c *Config) Validate() error {
	s := &c.Scheduler
	if s.MaxBatchSize <= 0 {
		return fmt.Errorf("scheduler.max_batch_size must be positive, got %d", s.MaxBatchSize)
	}
	if s.MaxBatchWait <= 0 {
		return fmt.Errorf("scheduler.max_batch_wait must be positive, got %v", s.MaxBatchWait)
	}
	if s.GlobalInflightLimit <= 0 {
		return fmt.Errorf("scheduler.global_inflight_limit must be positive, got %d", s.GlobalInflightLimit)
	}
	if s.ClientInflightLimit <= 0 {
		return fmt.Errorf("scheduler.client_inflight_limit must be positive, got %d", s.ClientInflightLimit)
	}
	if s.ClientInflightLimit > s.GlobalInflightLimit {
		return fmt.Errorf("scheduler.client_inflight_limit (%d) exceeds global_inflight_limit (%d)",
			s.ClientInflightLimit, s.GlobalInflightLimit)
	}
	if s.MaxPayloadBytes <= 0 {
		return fmt.Errorf("scheduler.max_payload_bytes must be positive, got %d", s.MaxPayloadBytes)
	}
	if s.RequestDeadline <= 0 {
		return fmt.Errorf("scheduler.request_deadline must be positive, got %v", s.RequestDeadline)
	}
	if s.BatchTimeout <= s.MaxBatchWait {
		return fmt.Errorf("scheduler.batch_timeout (%v) must exceed max_batch_wait (%v)",
			s.BatchTimeout, s.MaxBatchWait)
	}
	if s.HeartbeatInterval <= 0 || s.HeartbeatTimeout <= s.HeartbeatInterval {
		return fmt.Errorf("scheduler heartbeat timeout (%v) must exceed interval (%v)",
			s.HeartbeatTimeout, s.HeartbeatInterval)
	}
	if s.MinWorkersPerModel < 1 || s.MaxWorkersPerModel < s.MinWorkersPerModel {
		return fmt.Errorf("scheduler worker bounds invalid: min=%d max=%d",
			s.MinWorkersPerModel, s.MaxWorkersPerModel)
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d].name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
		switch m.Type {
		case "onnx":
			if m.Path == "" || m.MetadataPath == "" {
				return fmt.Errorf("model %q: onnx models require path and metadata_path", m.Name)
			}
		case "mock", "":
		default:
			return fmt.Errorf("model %q: unknown type %q", m.Name, m.Type)
		}
		if m.Workers > s.MaxWorkersPerModel {
			return fmt.Errorf("model %q: workers (%d) exceeds max_workers_per_model (%d)",
				m.Name, m.Workers, s.MaxWorkersPerModel)
		}
	}
	return nil
}
