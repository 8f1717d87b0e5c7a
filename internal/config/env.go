package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "UPLOAD_GATEWAY_CONFIG"
	EnvHost     = "UPLOAD_GATEWAY_HOST"
	EnvPort     = "UPLOAD_GATEWAY_PORT"
	EnvJWKSURL  = "UPLOAD_GATEWAY_JWKS_URL"
)

// EnvOverrides holds values derived from environment variables. These are
// resolved by ReadEnvOverrides and applied on top of the file-layer config.
type EnvOverrides struct {
	ConfigPath string // UPLOAD_GATEWAY_CONFIG: override config file path
	Host       string // UPLOAD_GATEWAY_HOST: listener host override
	Port       string // UPLOAD_GATEWAY_PORT: listener port override (parsed by caller)
	JWKSURL    string // UPLOAD_GATEWAY_JWKS_URL: JWKS endpoint override
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; ApplyEnvOverrides does that.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Host:       os.Getenv(EnvHost),
		Port:       os.Getenv(EnvPort),
		JWKSURL:    os.Getenv(EnvJWKSURL),
	}
}

// ApplyEnvOverrides layers environment variable overrides on top of a
// file-resolved Config, completing the three-layer chain: defaults -> file
// -> env. Empty overrides leave the existing value untouched.
func ApplyEnvOverrides(cfg *Config, env EnvOverrides) error {
	if env.Host != "" {
		cfg.HTTP.Host = env.Host
	}

	if env.Port != "" {
		port, err := parsePort(env.Port)
		if err != nil {
			return err
		}

		cfg.HTTP.Port = port
	}

	if env.JWKSURL != "" {
		cfg.Auth.JWKSURL = env.JWKSURL
	}

	return nil
}
