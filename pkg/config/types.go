package config

import (
	"fmt"
	"strconv"

	"github.com/RNA4219/SAIVerse/pkg/llm/models"
)

// Config represents the persistent saiverse configuration stored as
// config.toml in the .saiverse/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version int            `toml:"version"`
	Storage StorageConfig  `toml:"storage"`
	LLM     LLMConfig      `toml:"llm"`
	Extract ExtractConfig  `toml:"extract"`
	Prompts PromptsConfig  `toml:"prompts"`
	Models  []models.Model `toml:"models,omitempty" validate:"dive"`
}

// StorageConfig locates persona databases.
type StorageConfig struct {
	// PersonasDir holds one directory per persona, each with a memory.db.
	// Empty means personas/ under the .saiverse/ directory.
	PersonasDir string `toml:"personas_dir,omitempty"`
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	// Provider overrides the provider of the resolved model.
	Provider string `toml:"provider,omitempty" validate:"omitempty,oneof=gemini openai anthropic ollama"`
	Model    string `toml:"model,omitempty" validate:"required"`
	APIKey   string `toml:"api_key,omitempty"`
	BaseURL  string `toml:"base_url,omitempty" validate:"omitempty,url"`
}

// ExtractConfig tunes the extraction pipeline.
type ExtractConfig struct {
	BatchSize  int `toml:"batch_size,omitempty" validate:"gte=1"`
	MaxRetries int `toml:"max_retries,omitempty" validate:"gte=0"`
	Limit      int `toml:"limit,omitempty" validate:"gte=0"`
}

// PromptsConfig points at a directory of prompt template overrides.
type PromptsConfig struct {
	Dir string `toml:"dir,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all scalar config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.personas_dir": {
		get: func(c *Config) string { return c.Storage.PersonasDir },
		set: func(c *Config, v string) error { c.Storage.PersonasDir = v; return nil },
	},
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.api_key": {
		get: func(c *Config) string { return c.LLM.APIKey },
		set: func(c *Config, v string) error { c.LLM.APIKey = v; return nil },
	},
	"llm.base_url": {
		get: func(c *Config) string { return c.LLM.BaseURL },
		set: func(c *Config, v string) error { c.LLM.BaseURL = v; return nil },
	},
	"extract.batch_size": {
		get: func(c *Config) string { return strconv.Itoa(c.Extract.BatchSize) },
		set: func(c *Config, v string) error { return setInt(&c.Extract.BatchSize, "extract.batch_size", v) },
	},
	"extract.max_retries": {
		get: func(c *Config) string { return strconv.Itoa(c.Extract.MaxRetries) },
		set: func(c *Config, v string) error { return setInt(&c.Extract.MaxRetries, "extract.max_retries", v) },
	},
	"extract.limit": {
		get: func(c *Config) string { return strconv.Itoa(c.Extract.Limit) },
		set: func(c *Config, v string) error { return setInt(&c.Extract.Limit, "extract.limit", v) },
	},
	"prompts.dir": {
		get: func(c *Config) string { return c.Prompts.Dir },
		set: func(c *Config, v string) error { c.Prompts.Dir = v; return nil },
	},
}

func setInt(dst *int, key, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}
