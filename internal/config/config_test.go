package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090

database:
  path: "/tmp/prices.db"

logging:
  level: "debug"
  format: "json"

awattar:
  region: "AT"

tariff:
  include_vat: false
  base_fee_cent: "1.5"

mqtt:
  broker: "tcp://localhost:1883"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/prices.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "AT", cfg.Awattar.Region)
	assert.False(t, cfg.Tariff.IncludeVAT)
	assert.Equal(t, "1.5", cfg.Tariff.BaseFeeCent)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "awattprice/cheapest", cfg.MQTT.Topic)
	assert.Equal(t, 128, cfg.Cache.Size)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "DE", cfg.Awattar.Region)
	assert.True(t, cfg.Tariff.IncludeVAT)
	assert.Equal(t, 10, cfg.Awattar.RequestsPerMinute)
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("AWATTPRICE_SERVER_PORT", "7070")
	t.Setenv("AWATTPRICE_AWATTAR_REGION", "AT")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "AT", cfg.Awattar.Region)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
