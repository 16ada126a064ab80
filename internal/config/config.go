// Package config holds all gamesmith configuration: YAML file on disk,
// environment overrides on top, defaults underneath.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all gamesmith configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// StateDir holds logs and the audit trail.
	StateDir string `yaml:"state_dir"`

	// LLM completion collaborator
	LLM LLMConfig `yaml:"llm"`

	// Image generation collaborator
	Images ImagesConfig `yaml:"images"`

	// Session persistence
	Store StoreConfig `yaml:"store"`

	// Generated asset storage
	Assets AssetsConfig `yaml:"assets"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Orchestration cycle tuning
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// System directive overrides
	Directives DirectivesConfig `yaml:"directives"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the category file logging.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "gamesmith",
		Version:  "0.3.0",
		StateDir: ".gamesmith",

		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "120s",
			MaxOutputTokens: 65536,
			Temperature:     0.7,
		},

		Images: ImagesConfig{
			Enabled: true,
			Model:   "gemini-2.5-flash-image",
			Timeout: "90s",
		},

		Store: StoreConfig{
			DatabasePath: "data/gamesmith.db",
		},

		Assets: AssetsConfig{
			Dir: "data/assets",
		},

		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			AllowedOrigin:   "*",
			ShutdownTimeout: "10s",
		},

		Orchestrator: OrchestratorConfig{
			IncludeOutline:  true,
			OutlineMaxLines: 120,
		},

		Directives: DirectivesConfig{
			Dir:       "gamesmith.d",
			HotReload: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an
// error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

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

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("GAMESMITH_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("GAMESMITH_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if path := os.Getenv("GAMESMITH_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if dir := os.Getenv("GAMESMITH_ASSETS_DIR"); dir != "" {
		c.Assets.Dir = dir
	}
	if dir := os.Getenv("GAMESMITH_STATE_DIR"); dir != "" {
		c.StateDir = dir
	}
	if host := os.Getenv("GAMESMITH_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("GAMESMITH_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if url := os.Getenv("GAMESMITH_BASE_URL"); url != "" {
		c.Assets.BaseURL = url
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if err := c.Images.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store database path not configured")
	}
	if c.Assets.Dir == "" {
		return fmt.Errorf("assets directory not configured")
	}
	return nil
}
