package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	TCPPort       int
	HTTPPort      int // Public HTTP port for the /ws bridge (0 = disabled)
	MetricsPort   int // Internal metrics port (0 = disabled)
	DatabasePath  string
	StagingRoot   string
	MaxClients    int // Registry capacity
	MaxLineLength int // Protocol line size bound in bytes
	AdminConsole  bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TCPPort:       8080,
		HTTPPort:      8081,
		MetricsPort:   9090,
		DatabasePath:  "~/.salond/salond.db",
		StagingRoot:   "~/.salond/server",
		MaxClients:    10,
		MaxLineLength: 1024,
		AdminConsole:  true,
	}
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	TCPPort      int    `toml:"tcp_port"`
	HTTPPort     int    `toml:"http_port"`
	MetricsPort  int    `toml:"metrics_port"`
	DatabasePath string `toml:"database_path"`
	StagingRoot  string `toml:"staging_root"`
	AdminConsole bool   `toml:"admin_console"`
}

type LimitsSection struct {
	MaxClients    int `toml:"max_clients"`
	MaxLineLength int `toml:"max_line_length"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			TCPPort:      8080,
			HTTPPort:     8081,
			MetricsPort:  9090,
			DatabasePath: "~/.salond/salond.db",
			StagingRoot:  "~/.salond/server",
			AdminConsole: true,
		},
		Limits: LimitsSection{
			MaxClients:    10,
			MaxLineLength: 1024,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates a default one
// if not found, and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}
	path = expanded

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// Could not write (permissions?); defaults still let us run
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables follow the pattern SALOND_SECTION_KEY,
// e.g. SALOND_SERVER_TCP_PORT=9000.
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("SALOND_SERVER_TCP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.TCPPort = port
		}
	}
	if val := os.Getenv("SALOND_SERVER_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("SALOND_SERVER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.MetricsPort = port
		}
	}
	if val := os.Getenv("SALOND_SERVER_DATABASE_PATH"); val != "" {
		config.Server.DatabasePath = val
	}
	if val := os.Getenv("SALOND_SERVER_STAGING_ROOT"); val != "" {
		config.Server.StagingRoot = val
	}
	if val := os.Getenv("SALOND_SERVER_ADMIN_CONSOLE"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Server.AdminConsole = enabled
		}
	}
	if val := os.Getenv("SALOND_LIMITS_MAX_CLIENTS"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxClients = limit
		}
	}
	if val := os.Getenv("SALOND_LIMITS_MAX_LINE_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxLineLength = limit
		}
	}

	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# salond server configuration
# This file was auto-generated with default values.
# Restart the server for changes to take effect.
#
# Environment variables can override these settings:
# SALOND_SECTION_KEY (e.g., SALOND_SERVER_TCP_PORT=9000)

[server]
# Port for client TCP connections
tcp_port = 8080

# Port for the public HTTP server (/ws WebSocket bridge)
# Set to 0 to disable
http_port = 8081

# Port for the internal metrics server (/metrics, never expose publicly)
# Set to 0 to disable
metrics_port = 9090

# Path to the SQLite database file
database_path = "~/.salond/salond.db"

# Root directory for per-salon file staging
staging_root = "~/.salond/server"

# Read admin commands ("shut") from standard input
admin_console = true

[limits]
# Maximum concurrent client sessions
max_clients = 10

# Maximum protocol line length in bytes
max_line_length = 1024
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}
	cfg.HTTPPort = c.Server.HTTPPort
	cfg.MetricsPort = c.Server.MetricsPort
	cfg.AdminConsole = c.Server.AdminConsole

	if strings.TrimSpace(c.Server.DatabasePath) != "" {
		cfg.DatabasePath = c.Server.DatabasePath
	}
	if strings.TrimSpace(c.Server.StagingRoot) != "" {
		cfg.StagingRoot = c.Server.StagingRoot
	}
	if c.Limits.MaxClients != 0 {
		cfg.MaxClients = c.Limits.MaxClients
	}
	if c.Limits.MaxLineLength != 0 {
		cfg.MaxLineLength = c.Limits.MaxLineLength
	}

	return cfg
}

// GetDatabasePath returns the database path with ~ expanded
func (c *TOMLConfig) GetDatabasePath() (string, error) {
	return expandHome(c.Server.DatabasePath)
}

// GetStagingRoot returns the staging root with ~ expanded
func (c *TOMLConfig) GetStagingRoot() (string, error) {
	return expandHome(c.Server.StagingRoot)
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}
