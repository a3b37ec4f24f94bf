// Package config provides configuration management for the episodic memory
// engine.
//
// Configuration can be loaded from multiple sources (in order of precedence):
// 1. Environment variables (highest priority)
// 2. Configuration file (JSON)
// 3. Default values (lowest priority)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the complete server configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Storage     StorageConfig     `json:"storage"`
	Memory      MemoryConfig      `json:"memory"`
	Index       IndexConfig       `json:"index"`
	Retriever   RetrieverConfig   `json:"retriever"`
	Relationship RelationshipConfig `json:"relationship"`
	Pattern     PatternConfig     `json:"pattern"`
	Cache       CacheConfig       `json:"cache"`
	Embeddings  EmbeddingsConfig  `json:"embeddings"`
	Sandbox     SandboxConfig     `json:"sandbox"`
	Audit       AuditConfig       `json:"audit"`
	RateLimit   RateLimitConfig   `json:"ratelimit"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Tracing     TracingConfig     `json:"tracing"`
}

// ServerConfig contains server-level configuration.
type ServerConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// StorageConfig contains storage-level configuration.
type StorageConfig struct {
	Type          string `json:"type"` // memory | sqlite | postgres
	SQLitePath    string `json:"sqlite_path"`
	SQLiteTimeout int    `json:"sqlite_timeout_ms"`
	PostgresDSN   string `json:"postgres_dsn"`
	FallbackType  string `json:"fallback_type"`
}

// MemoryConfig tunes the episode store & learning cycle façade.
type MemoryConfig struct {
	DefaultPageSize int `json:"default_page_size"`
	MaxPageSize     int `json:"max_page_size"`
}

// IndexConfig tunes the spatiotemporal hierarchical index.
type IndexConfig struct {
	WeeklyMaxAgeDays  int `json:"weekly_max_age_days"`  // default 30
	MonthlyMaxAgeDays int `json:"monthly_max_age_days"` // default 180
}

// RetrieverConfig tunes the hierarchical retriever's scoring weights.
type RetrieverConfig struct {
	TemporalBiasWeight float64 `json:"temporal_bias_weight"` // w_t, default 0.3
	MaxClusters        int     `json:"max_clusters"`
}

// RelationshipConfig tunes the relationship manager.
type RelationshipConfig struct {
	DefaultDependencyDepth int `json:"default_dependency_depth"`
}

// PatternConfig tunes the pattern miner and analytics sweep.
type PatternConfig struct {
	DecayIntervalDefault time.Duration `json:"decay_interval_default"` // default 1h
	MinOccurrenceCount   int           `json:"min_occurrence_count"`
	MinSuccessRate       float64       `json:"min_success_rate"`
}

// CacheConfig selects an adaptive-cache preset.
type CacheConfig struct {
	Preset string `json:"preset"` // default | high_hit_rate | memory_constrained | write_heavy
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string `json:"provider"` // voyage | local
	Model    string `json:"model"`
	APIKey   string `json:"-"`
}

// SandboxConfig configures the sandboxed code executor.
type SandboxConfig struct {
	Process ProcessBackendConfig `json:"process"`
	Wasm    WasmBackendConfig    `json:"wasm"`
	Router  RouterConfig         `json:"router"`
}

// ProcessBackendConfig configures the process-isolated backend.
type ProcessBackendConfig struct {
	Image           string        `json:"image"`
	WallClockBudget time.Duration `json:"wall_clock_budget"`
	MemoryLimitMB   int           `json:"memory_limit_mb"`
}

// WasmBackendConfig configures the in-memory WebAssembly backend.
type WasmBackendConfig struct {
	PoolSize        int           `json:"pool_size"`
	WallClockBudget time.Duration `json:"wall_clock_budget"`
}

// RouterConfig configures the sandbox routing policy.
type RouterConfig struct {
	WasmRatio          float64 `json:"wasm_ratio"` // wasm probability of the router's coin flip, used only when its Thompson selector has no active arm
	IntelligentRouting bool    `json:"intelligent_routing"`
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	NATSURL    string `json:"nats_url"`
	BufferSize int    `json:"buffer_size"`
}

// RateLimitConfig configures the per-client token buckets.
type RateLimitConfig struct {
	ReadRPS   float64 `json:"read_rps"`
	WriteRPS  float64 `json:"write_rps"`
	BurstSize int     `json:"burst_size"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"`
	EnableTimestamps bool   `json:"enable_timestamps"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// TracingConfig configures distributed tracing export.
type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	Exporter string `json:"exporter"`
}

// ValidationError describes one configuration validation failure.
type ValidationError struct {
	Field      string `json:"field"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Context    string `json:"context,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (suggestion: %s)", e.Field, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "episodic-memory-engine",
			Version:     "1.0.0",
			Environment: "development",
		},
		Storage: StorageConfig{
			Type:          "memory",
			SQLitePath:    "./data/episodic-memory.db",
			SQLiteTimeout: 5000,
		},
		Memory: MemoryConfig{
			DefaultPageSize: 10,
			MaxPageSize:     200,
		},
		Index: IndexConfig{
			WeeklyMaxAgeDays:  30,
			MonthlyMaxAgeDays: 180,
		},
		Retriever: RetrieverConfig{
			TemporalBiasWeight: 0.3,
			MaxClusters:        10,
		},
		Relationship: RelationshipConfig{
			DefaultDependencyDepth: 3,
		},
		Pattern: PatternConfig{
			DecayIntervalDefault: time.Hour,
			MinOccurrenceCount:   2,
			MinSuccessRate:       0.5,
		},
		Cache: CacheConfig{
			Preset: "default",
		},
		Embeddings: EmbeddingsConfig{
			Provider: "local",
		},
		Sandbox: SandboxConfig{
			Process: ProcessBackendConfig{
				Image:           "episodic-memory-sandbox:latest",
				WallClockBudget: 10 * time.Second,
				MemoryLimitMB:   256,
			},
			Wasm: WasmBackendConfig{
				PoolSize:        8,
				WallClockBudget: 2 * time.Second,
			},
			Router: RouterConfig{
				WasmRatio:          0.5,
				IntelligentRouting: true,
			},
		},
		Audit: AuditConfig{
			BufferSize: 1024,
		},
		RateLimit: RateLimitConfig{
			ReadRPS:   50,
			WriteRPS:  10,
			BurstSize: 20,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "text",
			EnableTimestamps: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "none",
		},
	}
}

// Load loads configuration from environment variables and applies defaults.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file, then applies
// environment overrides on top.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return cfg, nil
}

// loadFromEnv loads configuration from environment variables.
// Environment variables follow the pattern: EME_<SECTION>_<KEY>
// Example: EME_SERVER_NAME, EME_STORAGE_TYPE, EME_CACHE_PRESET
func (c *Config) loadFromEnv() error {
	if v := os.Getenv("EME_SERVER_NAME"); v != "" {
		c.Server.Name = v
	}
	if v := os.Getenv("EME_SERVER_ENVIRONMENT"); v != "" {
		c.Server.Environment = v
	}

	if v := os.Getenv("EME_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("EME_STORAGE_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("EME_STORAGE_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}

	if v := os.Getenv("EME_RETRIEVER_TEMPORAL_BIAS_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retriever.TemporalBiasWeight = f
		}
	}

	if v := os.Getenv("EME_CACHE_PRESET"); v != "" {
		c.Cache.Preset = v
	}

	if v := os.Getenv("EME_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("EME_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("VOYAGE_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}

	if v := os.Getenv("EME_SANDBOX_ROUTER_WASM_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Sandbox.Router.WasmRatio = f
		}
	}
	if v := os.Getenv("EME_SANDBOX_ROUTER_INTELLIGENT_ROUTING"); v != "" {
		c.Sandbox.Router.IntelligentRouting = parseBool(v)
	}

	if v := os.Getenv("EME_AUDIT_NATS_URL"); v != "" {
		c.Audit.NATSURL = v
	}

	if v := os.Getenv("EME_LOGGING_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("EME_LOGGING_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	if v := os.Getenv("EME_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("EME_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}

	return nil
}

// Validate checks the configuration and returns every violation found; an
// empty slice means the configuration is valid. Each entry carries an
// actionable suggestion where one applies, per the distilled taxonomy's
// Validation kind.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Server.Name == "" {
		errs = append(errs, ValidationError{Field: "server.name", Message: "cannot be empty"})
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		errs = append(errs, ValidationError{
			Field: "server.environment", Message: "must be one of: development, staging, production",
			Suggestion: "set server.environment to \"development\"",
		})
	}

	switch c.Storage.Type {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, ValidationError{
			Field: "storage.type", Message: "must be one of: memory, sqlite, postgres",
		})
	}
	if c.Storage.Type == "sqlite" {
		if strings.Contains(c.Storage.SQLitePath, "..") {
			errs = append(errs, ValidationError{
				Field: "storage.sqlite_path", Message: "path traversal segments are not allowed",
				Suggestion: "use an absolute path under the configured data directory",
			})
		}
	}

	if c.Retriever.TemporalBiasWeight < 0 || c.Retriever.TemporalBiasWeight > 1 {
		errs = append(errs, ValidationError{
			Field: "retriever.temporal_bias_weight", Message: "must be in [0,1]",
			Context: fmt.Sprintf("got %v", c.Retriever.TemporalBiasWeight),
		})
	}
	if c.Retriever.MaxClusters < 1 {
		errs = append(errs, ValidationError{Field: "retriever.max_clusters", Message: "must be >= 1"})
	}

	switch c.Cache.Preset {
	case "default", "high_hit_rate", "memory_constrained", "write_heavy":
	default:
		errs = append(errs, ValidationError{
			Field: "cache.preset", Message: "must be one of: default, high_hit_rate, memory_constrained, write_heavy",
		})
	}

	if c.Sandbox.Router.WasmRatio < 0 || c.Sandbox.Router.WasmRatio > 1 {
		errs = append(errs, ValidationError{Field: "sandbox.router.wasm_ratio", Message: "must be in [0,1]"})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error"})
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, ValidationError{Field: "logging.format", Message: "must be 'text' or 'json'"})
	}

	return errs
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on" || s == "enabled"
}

// ToJSON serializes the configuration to JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
