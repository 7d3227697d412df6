package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Arxiv    ArxivConfig    `toml:"arxiv"`
	Keystone KeystoneConfig `toml:"keystone"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `toml:"port"`
}

// ArxivConfig holds ArXiv API settings.
type ArxivConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// KeystoneConfig holds settings for the Keystone mirror. Mirroring is
// disabled when endpoint is empty.
type KeystoneConfig struct {
	Endpoint       string `toml:"endpoint"`
	AuthEndpoint   string `toml:"auth_endpoint"`
	Email          string `toml:"email"`
	Password       string `toml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

const defaultConfigContent = `[server]
port = 3001

[arxiv]
base_url = "http://export.arxiv.org/api/query"
timeout_seconds = 30

[keystone]
endpoint = ""                     # e.g. "http://localhost:3000/api/graphql"; empty disables mirroring
auth_endpoint = ""                # e.g. "http://localhost:3000/api/session"
email = ""                        # or set KEYSTONE_ADMIN_USERNAME env var
password = ""                     # or set KEYSTONE_ADMIN_PW env var
timeout_seconds = 30
`

// Load reads and parses the TOML config from the given path. If the file does
// not exist, it creates a default config file at that path. Environment
// variables override values from the file with highest priority.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Validate explicitly-set values before applying defaults, so that
	// explicitly writing "port = 0" is an error rather than silently
	// being replaced with the default.
	if err := validateExplicit(&cfg, md); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// createDefault writes the default config content to the given path,
// creating any parent directories as needed.
func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// validateExplicit checks values that were explicitly set in the TOML file.
// This catches cases like "port = 0" which would otherwise be silently
// replaced by the default value.
func validateExplicit(cfg *Config, md toml.MetaData) error {
	if md.IsDefined("server", "port") {
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
		}
	}
	if md.IsDefined("arxiv", "timeout_seconds") {
		if cfg.Arxiv.TimeoutSeconds < 1 {
			return fmt.Errorf("invalid arxiv.timeout_seconds %d: must be >= 1", cfg.Arxiv.TimeoutSeconds)
		}
	}
	if md.IsDefined("keystone", "timeout_seconds") {
		if cfg.Keystone.TimeoutSeconds < 1 {
			return fmt.Errorf("invalid keystone.timeout_seconds %d: must be >= 1", cfg.Keystone.TimeoutSeconds)
		}
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Arxiv.BaseURL == "" {
		cfg.Arxiv.BaseURL = "http://export.arxiv.org/api/query"
	}
	if cfg.Arxiv.TimeoutSeconds == 0 {
		cfg.Arxiv.TimeoutSeconds = 30
	}
	if cfg.Keystone.TimeoutSeconds == 0 {
		cfg.Keystone.TimeoutSeconds = 30
	}
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take highest priority over config file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KEYSTONE_ADMIN_USERNAME"); v != "" {
		cfg.Keystone.Email = v
	}
	if v := os.Getenv("KEYSTONE_ADMIN_PW"); v != "" {
		cfg.Keystone.Password = v
	}
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}

	if cfg.Arxiv.BaseURL == "" {
		return fmt.Errorf("arxiv.base_url must not be empty")
	}

	if cfg.Keystone.Endpoint != "" {
		if cfg.Keystone.AuthEndpoint == "" {
			return fmt.Errorf("keystone.auth_endpoint is required when keystone.endpoint is set")
		}
		if cfg.Keystone.Email == "" || cfg.Keystone.Password == "" {
			slog.Warn("keystone credentials are empty: set them in the config file or via KEYSTONE_ADMIN_USERNAME and KEYSTONE_ADMIN_PW environment variables")
		}
	}

	return nil
}
