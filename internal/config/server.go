package config

import (
	"fmt"
	"time"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	AllowedOrigin   string `yaml:"allowed_origin"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// AssetsConfig configures generated-asset storage. BaseURL is the public
// prefix assets are served under; empty means relative URLs, which the
// preview page resolves against the serving host.
type AssetsConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// OrchestratorConfig tunes the context payload sent to the model.
type OrchestratorConfig struct {
	// IncludeOutline appends a line-numbered outline of the structure
	// fragment to the context payload. Optional enrichment: correctness
	// never depends on it.
	IncludeOutline  bool `yaml:"include_outline"`
	OutlineMaxLines int  `yaml:"outline_max_lines"`
}

// DirectivesConfig configures system-directive overrides.
type DirectivesConfig struct {
	Dir       string `yaml:"dir"`
	HotReload bool   `yaml:"hot_reload"`
}

func (s ServerConfig) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server port %d out of range", s.Port)
	}
	return nil
}

// Address returns the host:port the server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetShutdownTimeout returns the graceful shutdown window.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
