package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MATTERS_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8*time.Hour, cfg.SLA.Threshold)
	assert.Equal(t, "Done", cfg.Matters.DoneGroupName)
	assert.Zero(t, cfg.Matters.CatalogTTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matters.yaml")
	content := `
service:
  environment: production
server:
  port: 8100
  grpc_port: 9100
sla:
  threshold: 4h
matters:
  done_group_name: Closed
  catalog_ttl: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("GRPC_PORT", "9200")
	t.Setenv("SLA_THRESHOLD", "6h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Service.Environment)
	assert.Equal(t, 8100, cfg.Server.Port)
	assert.Equal(t, 9200, cfg.Server.GRPCPort)
	assert.Equal(t, 6*time.Hour, cfg.SLA.Threshold)
	assert.Equal(t, "Closed", cfg.Matters.DoneGroupName)
	assert.Equal(t, 10*time.Minute, cfg.Matters.CatalogTTL)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("MATTERS_CONFIG", "")
	t.Setenv("SLA_THRESHOLD", "eight hours")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLA_THRESHOLD")
}

func TestLoadRejectsZeroRequestTimeout(t *testing.T) {
	t.Setenv("MATTERS_CONFIG", "")
	t.Setenv("REQUEST_TIMEOUT", "0s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.request_timeout")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same ports", func(c *Config) { c.Server.GRPCPort = c.Server.Port }},
		{"zero threshold", func(c *Config) { c.SLA.Threshold = 0 }},
		{"no done group", func(c *Config) { c.Matters.DoneGroupName = "" }},
		{"min above max", func(c *Config) { c.Database.MinConns = 50 }},
		{"negative ttl", func(c *Config) { c.Matters.CatalogTTL = -time.Second }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
