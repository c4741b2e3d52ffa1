package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all vergabeflow configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Remote question/description generation service
	Service ServiceConfig `yaml:"service"`

	// Identity provider (PocketBase-compatible)
	Identity IdentityConfig `yaml:"identity"`

	// Document export
	Export ExportConfig `yaml:"export"`

	// Local analysis history
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig configures the generation service client.
type ServiceConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	// APIKey is an OpenRouter key used when nobody is logged in.
	APIKey string `yaml:"api_key"`
}

// IdentityConfig configures the identity provider.
type IdentityConfig struct {
	BaseURL    string `yaml:"base_url"`
	Collection string `yaml:"collection"`
	Timeout    string `yaml:"timeout"`
	// AuthFile is where the authenticated session is persisted.
	AuthFile string `yaml:"auth_file"`
}

// ExportConfig configures PDF export.
type ExportConfig struct {
	Directory string `yaml:"directory"`
	FileName  string `yaml:"file_name"`
}

// StoreConfig configures the sqlite history store.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultFileName is the fixed name of exported documents.
const DefaultFileName = "Vergabebausteine-Bedarfsanalyse.pdf"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vergabeflow",
		Version: "1.0.0",

		Service: ServiceConfig{
			BaseURL: "https://api.tenderfuchs.de/api",
			Timeout: "10m",
		},

		Identity: IdentityConfig{
			BaseURL:    "https://pocketbase.tenderfuchs.de",
			Collection: "users",
			Timeout:    "30s",
			AuthFile:   ".vergabe/auth.json",
		},

		Export: ExportConfig{
			Directory: ".",
			FileName:  DefaultFileName,
		},

		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: ".vergabe/history.db",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			DebugMode: false,
		},
	}
}

// DefaultConfigPath returns the default path to .vergabe/config.yaml below workspace.
func DefaultConfigPath(workspace string) string {
	if workspace == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return filepath.Join(".vergabe", "config.yaml")
		}
		workspace = cwd
	}
	return filepath.Join(workspace, ".vergabe", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("VERGABE_API_URL"); u != "" {
		c.Service.BaseURL = u
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Service.APIKey = key
	}

	// VITE_POCKETBASE_URL is accepted so .env files can be shared with the web client
	if u := os.Getenv("VITE_POCKETBASE_URL"); u != "" {
		c.Identity.BaseURL = u
	}
	if u := os.Getenv("POCKETBASE_URL"); u != "" {
		c.Identity.BaseURL = u
	}

	if path := os.Getenv("VERGABE_DB"); path != "" {
		c.Store.DatabasePath = path
	}

	if v := os.Getenv("VERGABE_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = debug
		}
	}
}

// Resolve makes relative paths absolute against workspace.
func (c *Config) Resolve(workspace string) {
	if workspace == "" {
		return
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(workspace, p)
	}
	c.Identity.AuthFile = abs(c.Identity.AuthFile)
	c.Store.DatabasePath = abs(c.Store.DatabasePath)
	c.Export.Directory = abs(c.Export.Directory)
}

// GetServiceTimeout returns the per-call generation timeout.
func (c *Config) GetServiceTimeout() time.Duration {
	return parseDuration(c.Service.Timeout, 10*time.Minute)
}

// GetIdentityTimeout returns the identity provider timeout.
func (c *Config) GetIdentityTimeout() time.Duration {
	return parseDuration(c.Identity.Timeout, 30*time.Second)
}

// ExportPath returns the full path of the export file.
func (c *Config) ExportPath() string {
	name := c.Export.FileName
	if strings.TrimSpace(name) == "" {
		name = DefaultFileName
	}
	return filepath.Join(c.Export.Directory, name)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validateURL("service.base_url", c.Service.BaseURL); err != nil {
		return err
	}
	if err := validateURL("identity.base_url", c.Identity.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Identity.Collection) == "" {
		return fmt.Errorf("identity.collection must not be empty")
	}
	if c.Store.Enabled && strings.TrimSpace(c.Store.DatabasePath) == "" {
		return fmt.Errorf("store.database_path required when store is enabled")
	}
	if _, err := time.ParseDuration(c.Service.Timeout); c.Service.Timeout != "" && err != nil {
		return fmt.Errorf("invalid service.timeout %q: %w", c.Service.Timeout, err)
	}
	return c.Logging.Validate()
}

func validateURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", field)
	}
	return nil
}
