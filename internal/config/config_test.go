package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_RATE_LIMIT_RPS", "")
	t.Setenv("MAX_ESTABLISHMENTS", "")
	t.Setenv("LISTENER_AUTO_EXPORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.HTTPRateLimitRPS)
	assert.Equal(t, 10, cfg.MaxEstablishments)
	assert.True(t, cfg.ListenerAutoExport)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_ESTABLISHMENTS", "4")
	t.Setenv("NAME_MATCH_LIMIT", "not-a-number")
	t.Setenv("HTTP_RATE_LIMIT_RPS", "0.5")
	t.Setenv("LISTENER_AUTO_EXPORT", "off")
	t.Setenv("REGISTRY_PATH", "/tmp/facilities.xlsx")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxEstablishments)
	assert.Equal(t, 3, cfg.NameMatchLimit)
	assert.Equal(t, 0.5, cfg.HTTPRateLimitRPS)
	assert.False(t, cfg.ListenerAutoExport)
	assert.Equal(t, "/tmp/facilities.xlsx", cfg.RegistryPath)
}

func TestRequire(t *testing.T) {
	cfg := Config{}
	assert.EqualError(t, cfg.Require("REGISTRY_PATH", " "), "missing required env var: REGISTRY_PATH")
	assert.NoError(t, cfg.Require("REGISTRY_PATH", "x.xlsx"))
}
