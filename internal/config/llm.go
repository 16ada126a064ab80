package config

import (
	"fmt"
	"time"
)

// LLMConfig configures the language-model completion collaborator.
type LLMConfig struct {
	Provider        string  `yaml:"provider"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Timeout         string  `yaml:"timeout"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

// ImagesConfig configures the image-generation collaborator.
type ImagesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini"}

func (l LLMConfig) validate() error {
	if l.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if l.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", l.Provider, ValidProviders)
	}

	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm temperature %.2f out of range [0, 2]", l.Temperature)
	}

	return nil
}

func (i ImagesConfig) validate() error {
	if i.Enabled && i.Model == "" {
		return fmt.Errorf("image generation enabled but no model configured")
	}
	return nil
}

// GetTimeout returns the completion timeout as a duration.
func (l LLMConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// GetTimeout returns the per-image generation timeout as a duration.
func (i ImagesConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(i.Timeout)
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return c.LLM.GetTimeout()
}

// GetImageTimeout returns the per-image generation timeout as a duration.
func (c *Config) GetImageTimeout() time.Duration {
	return c.Images.GetTimeout()
}
