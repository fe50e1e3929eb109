package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Auth     AuthConfig     `mapstructure:"auth"`

	// RuntimeEnv marks local vs deployed. In "local" the magic-link token
	// is echoed in the login response body for development convenience.
	RuntimeEnv string `mapstructure:"runtime_env"`
}

// ServerConfig holds the HTTP listener parameters.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	RootPath        string `mapstructure:"root_path"`
	RequestIDHeader string `mapstructure:"request_id_header"`
}

// LogConfig selects the rendering mode and minimum severity.
type LogConfig struct {
	JSONFormat bool   `mapstructure:"json_format"`
	Level      string `mapstructure:"level"`
	// File enables rotating file output when non-empty.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxConnections int32         `mapstructure:"max_connections"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig holds the Redis connection parameters used by the magic-link
// token store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SMTPConfig holds mail delivery parameters for magic-link e-mail.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// AuthConfig holds the credential parameters.
type AuthConfig struct {
	// ServiceAccountSecretKey is the server secret that service-account
	// secrets and session tokens are derived from.
	ServiceAccountSecretKey string        `mapstructure:"service_account_secret_key"`
	SessionLifetime         time.Duration `mapstructure:"session_lifetime"`
	LoginTokenTTL           time.Duration `mapstructure:"login_token_ttl"`
}

// Local reports whether the process runs in the designated local
// development environment.
func (c *Config) Local() bool {
	return c.RuntimeEnv == "local"
}

// Load reads configuration from an optional YAML file and OBSPLAN_*
// environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("obsplan")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/obsplan")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OBSPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	applyDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults plus environment variables.
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration values.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestIDHeader == "" {
		return fmt.Errorf("server.request_id_header cannot be empty")
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	levelOK := false
	for _, l := range validLevels {
		if strings.EqualFold(cfg.Log.Level, l) {
			levelOK = true
			break
		}
	}
	if !levelOK {
		return fmt.Errorf("log.level must be one of: %v, got %s", validLevels, cfg.Log.Level)
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host cannot be empty")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database.name cannot be empty")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database.user cannot be empty")
	}

	validSSLModes := []string{"disable", "prefer", "require"}
	modeOK := false
	for _, mode := range validSSLModes {
		if cfg.Database.SSLMode == mode {
			modeOK = true
			break
		}
	}
	if !modeOK {
		return fmt.Errorf("database.sslmode must be one of: %v, got %s", validSSLModes, cfg.Database.SSLMode)
	}

	if cfg.Auth.ServiceAccountSecretKey == "" {
		return fmt.Errorf("auth.service_account_secret_key cannot be empty")
	}
	if cfg.Auth.SessionLifetime <= 0 {
		return fmt.Errorf("auth.session_lifetime must be positive, got %v", cfg.Auth.SessionLifetime)
	}
	if cfg.Auth.LoginTokenTTL <= 0 {
		return fmt.Errorf("auth.login_token_ttl must be positive, got %v", cfg.Auth.LoginTokenTTL)
	}

	return nil
}

// applyDefaults sets default configuration values.
func applyDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.root_path", "")
	viper.SetDefault("server.request_id_header", "X-Request-ID")

	viper.SetDefault("log.json_format", false)
	viper.SetDefault("log.level", "INFO")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "obsplan")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.name", "obsplan")
	viper.SetDefault("database.sslmode", "prefer")
	viper.SetDefault("database.max_connections", 40)
	viper.SetDefault("database.connect_timeout", "5s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("smtp.host", "localhost")
	viper.SetDefault("smtp.port", 25)
	viper.SetDefault("smtp.user", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "noreply@obsplan.local")

	viper.SetDefault("auth.session_lifetime", "24h")
	viper.SetDefault("auth.login_token_ttl", "15m")

	viper.SetDefault("runtime_env", "local")
}
