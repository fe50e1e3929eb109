package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			RequestIDHeader: "X-Request-ID",
		},
		Log: LogConfig{
			Level: "INFO",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "obsplan",
			Name:    "obsplan",
			SSLMode: "prefer",
		},
		Auth: AuthConfig{
			ServiceAccountSecretKey: "test-secret",
			SessionLifetime:         24 * time.Hour,
			LoginTokenTTL:           15 * time.Minute,
		},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero port":          func(c *Config) { c.Server.Port = 0 },
		"port too large":     func(c *Config) { c.Server.Port = 70000 },
		"empty request id":   func(c *Config) { c.Server.RequestIDHeader = "" },
		"bad log level":      func(c *Config) { c.Log.Level = "TRACE" },
		"empty db host":      func(c *Config) { c.Database.Host = "" },
		"empty db name":      func(c *Config) { c.Database.Name = "" },
		"empty db user":      func(c *Config) { c.Database.User = "" },
		"bad sslmode":        func(c *Config) { c.Database.SSLMode = "verify-full" },
		"empty secret key":   func(c *Config) { c.Auth.ServiceAccountSecretKey = "" },
		"zero session":       func(c *Config) { c.Auth.SessionLifetime = 0 },
		"negative login ttl": func(c *Config) { c.Auth.LoginTokenTTL = -time.Minute },
	}

	for name, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		assert.Error(t, Validate(cfg), name)
	}
}

func TestValidateLogLevelCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "debug"
	assert.NoError(t, Validate(cfg))
}

func TestLocal(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.Local())

	cfg.RuntimeEnv = "local"
	assert.True(t, cfg.Local())

	cfg.RuntimeEnv = "production"
	assert.False(t, cfg.Local())
}
