package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-workspace.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Store    StoreConfig    `yaml:"store"`
	Pool     PoolConfig     `yaml:"pool"`
	Analysis AnalysisConfig `yaml:"analysis"`
	MCP      MCPConfig      `yaml:"mcp"`

	// Key used to encrypt workspace passwords at rest.
	// 32 bytes base64 encoded, or any passphrase. Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"WORKSPACE_CREDENTIALS_KEY"` // Secret - not in YAML
}

// StoreConfig selects where workspace and session records live.
type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"sqlite"`
	Path   string `yaml:"path" env:"STORE_PATH" env-default:"ekaya-workspace.db"`
}

// PoolConfig holds per-fingerprint pool sizing and lifetime settings.
type PoolConfig struct {
	MinSize int `yaml:"min_size" env:"POOL_MIN_SIZE" env-default:"1"`
	MaxSize int `yaml:"max_size" env:"POOL_MAX_SIZE" env-default:"10"`
	// IdleTimeout closes idle connections above MinSize, and pools nobody references.
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"POOL_IDLE_TIMEOUT" env-default:"10m"`
	BorrowTimeout   time.Duration `yaml:"borrow_timeout" env:"POOL_BORROW_TIMEOUT" env-default:"10s"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"POOL_CLEANUP_INTERVAL" env-default:"1m"`
	CreateTimeout   time.Duration `yaml:"create_timeout" env:"POOL_CREATE_TIMEOUT" env-default:"30s"`
}

// AnalysisConfig holds table analysis thresholds.
type AnalysisConfig struct {
	SampleRows            int     `yaml:"sample_rows" env:"ANALYSIS_SAMPLE_ROWS" env-default:"5"`
	StatisticsSampleRows  int     `yaml:"statistics_sample_rows" env:"ANALYSIS_STATISTICS_SAMPLE_ROWS" env-default:"10000"`
	TopValues             int     `yaml:"top_values" env:"ANALYSIS_TOP_VALUES" env-default:"5"`
	TopValuesMaxDistinct  int64   `yaml:"top_values_max_distinct" env:"ANALYSIS_TOP_VALUES_MAX_DISTINCT" env-default:"1000"`
	LowCardinalityRatio   float64 `yaml:"low_cardinality_ratio" env:"ANALYSIS_LOW_CARDINALITY_RATIO" env-default:"0.5"`
	DuplicateCheckMaxRows int64   `yaml:"duplicate_check_max_rows" env:"ANALYSIS_DUPLICATE_CHECK_MAX_ROWS" env-default:"1000000"`
	IndexRowThreshold     int64   `yaml:"index_row_threshold" env:"ANALYSIS_INDEX_ROW_THRESHOLD" env-default:"1000"`
	LargeTableBytes       int64   `yaml:"large_table_bytes" env:"ANALYSIS_LARGE_TABLE_BYTES" env-default:"1073741824"`
}

// MCPConfig holds the agent-facing server settings.
type MCPConfig struct {
	// Transport is "stdio" or "http".
	Transport string `yaml:"transport" env:"MCP_TRANSPORT" env-default:"stdio"`
	BindAddr  string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port      string `yaml:"port" env:"PORT" env-default:"3443"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error; defaults and environment apply.
func Load(version, path string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool.max_size must be at least 1, got %d", c.Pool.MaxSize)
	}
	if c.Pool.MinSize < 0 || c.Pool.MinSize > c.Pool.MaxSize {
		return fmt.Errorf("pool.min_size must be between 0 and max_size (%d), got %d", c.Pool.MaxSize, c.Pool.MinSize)
	}
	if c.Pool.BorrowTimeout <= 0 {
		return fmt.Errorf("pool.borrow_timeout must be positive")
	}

	if c.Analysis.SampleRows < 0 || c.Analysis.StatisticsSampleRows < 1 || c.Analysis.TopValues < 1 {
		return fmt.Errorf("analysis sample sizes must be positive")
	}
	if c.Analysis.LowCardinalityRatio <= 0 || c.Analysis.LowCardinalityRatio > 1 {
		return fmt.Errorf("analysis.low_cardinality_ratio must be in (0, 1], got %v", c.Analysis.LowCardinalityRatio)
	}

	switch c.MCP.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unknown mcp transport %q", c.MCP.Transport)
	}

	return nil
}
