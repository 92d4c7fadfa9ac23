package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("test-version", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1, cfg.Pool.MinSize)
	assert.Equal(t, 10, cfg.Pool.MaxSize)
	assert.Equal(t, 10*time.Minute, cfg.Pool.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Pool.BorrowTimeout)
	assert.Equal(t, 30*time.Second, cfg.Pool.CreateTimeout)
	assert.Equal(t, 5, cfg.Analysis.SampleRows)
	assert.Equal(t, 5, cfg.Analysis.TopValues)
	assert.Equal(t, int64(1000), cfg.Analysis.TopValuesMaxDistinct)
	assert.Equal(t, "stdio", cfg.MCP.Transport)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
env: test
pool:
  min_size: 2
  max_size: 4
  borrow_timeout: 3s
analysis:
  sample_rows: 10
store:
  driver: memory
`)
	t.Setenv("POOL_MAX_SIZE", "8")
	t.Setenv("WORKSPACE_CREDENTIALS_KEY", "passphrase")

	cfg, err := Load("v", path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, 2, cfg.Pool.MinSize)
	assert.Equal(t, 8, cfg.Pool.MaxSize, "env must override yaml")
	assert.Equal(t, 3*time.Second, cfg.Pool.BorrowTimeout)
	assert.Equal(t, 10, cfg.Analysis.SampleRows)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "passphrase", cfg.CredentialsKey)
}

func TestLoad_RejectsInvalidPool(t *testing.T) {
	path := writeConfig(t, `
pool:
  min_size: 5
  max_size: 2
`)
	_, err := Load("v", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool.min_size")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store:    StoreConfig{Driver: "memory"},
			Pool:     PoolConfig{MinSize: 1, MaxSize: 2, BorrowTimeout: time.Second},
			Analysis: AnalysisConfig{SampleRows: 5, StatisticsSampleRows: 100, TopValues: 5, LowCardinalityRatio: 0.5},
			MCP:      MCPConfig{Transport: "stdio"},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Store.Driver = "redis" }},
		{"sqlite without path", func(c *Config) { c.Store = StoreConfig{Driver: "sqlite"} }},
		{"zero max size", func(c *Config) { c.Pool.MaxSize = 0; c.Pool.MinSize = 0 }},
		{"no borrow timeout", func(c *Config) { c.Pool.BorrowTimeout = 0 }},
		{"ratio above one", func(c *Config) { c.Analysis.LowCardinalityRatio = 1.5 }},
		{"unknown transport", func(c *Config) { c.MCP.Transport = "grpc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
