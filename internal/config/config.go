// Package config resolves where the Messages database lives and how
// contact references should be interpreted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvDBPath overrides the database location when set. The name is kept
// for compatibility with existing MCP client configurations.
const EnvDBPath = "SQLITE_DB_PATH"

// Config represents the optional config file. Every field has a working
// default; most installs never create the file.
type Config struct {
	// DBPath points at the chat.db file to query.
	DBPath string `yaml:"db_path"`
	// DefaultRegion is the ISO 3166-1 country code assumed when a phone
	// number omits its country code.
	DefaultRegion string `yaml:"default_region"`
}

// DefaultDBPath returns the Messages database path for the current user.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// ConfigDir returns the config directory.
func ConfigDir() (string, error) {
	if override := os.Getenv("IMESSAGE_QUERY_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "imessage-query-mcp"), nil
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "imessage-query-mcp"), nil
}

// Load reads config.yaml from the config directory. A missing file is not
// an error; defaults apply.
func Load() (*Config, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// ResolveDBPath returns the effective database path. Precedence:
// SQLITE_DB_PATH env var, then the config file, then the OS default.
func (c *Config) ResolveDBPath() string {
	if override := os.Getenv(EnvDBPath); override != "" {
		return override
	}
	if c.DBPath != "" {
		return c.DBPath
	}
	return DefaultDBPath()
}

// Region returns the default phone region, falling back to "US".
func (c *Config) Region() string {
	if c.DefaultRegion != "" {
		return c.DefaultRegion
	}
	return "US"
}
