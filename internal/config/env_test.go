package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvHost, "10.0.0.1")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvJWKSURL, "https://idp.example.com/jwks.json")

	env := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", env.ConfigPath)
	assert.Equal(t, "10.0.0.1", env.Host)
	assert.Equal(t, "9000", env.Port)
	assert.Equal(t, "https://idp.example.com/jwks.json", env.JWKSURL)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnvOverrides(cfg, EnvOverrides{
		Host:    "10.0.0.1",
		Port:    "9000",
		JWKSURL: "https://idp.example.com/jwks.json",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "https://idp.example.com/jwks.json", cfg.Auth.JWKSURL)
}

func TestApplyEnvOverridesRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnvOverrides(cfg, EnvOverrides{Port: "not-a-number"})
	require.Error(t, err)
}

func TestApplyEnvOverridesLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := DefaultConfig()
	original := cfg.HTTP.Host

	require.NoError(t, ApplyEnvOverrides(cfg, EnvOverrides{}))
	assert.Equal(t, original, cfg.HTTP.Host)
}
