// Package provider builds llm.Generator implementations by provider name.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider/anthropic"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider/gemini"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider/ollama"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider/openai"
)

// Supported provider names.
const (
	Gemini    = "gemini"
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Ollama    = "ollama"
)

// ErrMissingAPIKey is returned when a hosted provider has no resolvable key.
var ErrMissingAPIKey = errors.New("no API key configured")

// SupportedProviders returns the list of provider names accepted by New.
func SupportedProviders() []string {
	return []string{Gemini, OpenAI, Anthropic, Ollama}
}

// IsSupported reports whether name is a known provider.
func IsSupported(name string) bool {
	for _, p := range SupportedProviders() {
		if p == strings.ToLower(name) {
			return true
		}
	}
	return false
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string

	// APIKey takes precedence over the provider's environment variables.
	APIKey string

	// APIKeyEnv names an extra environment variable checked before the
	// provider defaults.
	APIKeyEnv string

	BaseURL string
}

// Generator is an llm.Generator that also reports the model it targets.
type Generator interface {
	llm.Generator
	Model() string
}

// New creates a Generator for cfg.Provider.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. The APIKeyEnv variable, when set
//  3. The provider's standard environment variables
func New(ctx context.Context, cfg Config) (Generator, error) {
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = Gemini
	}

	apiKey := ResolveAPIKey(name, cfg.APIKey, cfg.APIKeyEnv)
	if apiKey == "" && name != Ollama {
		return nil, fmt.Errorf("%s: %w (set %s)", name, ErrMissingAPIKey, strings.Join(envKeys(name), " or "))
	}

	switch name {
	case Gemini:
		return gemini.New(ctx, apiKey, cfg.Model, cfg.BaseURL)
	case OpenAI:
		return openai.New(apiKey, cfg.Model, cfg.BaseURL)
	case Anthropic:
		return anthropic.New(apiKey, cfg.Model, cfg.BaseURL)
	case Ollama:
		return ollama.New(cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: %s)", cfg.Provider, strings.Join(SupportedProviders(), ", "))
	}
}

// ResolveAPIKey returns the first non-empty key among explicit, the
// extraEnv variable and the provider's standard variables.
func ResolveAPIKey(providerName, explicit, extraEnv string) string {
	if explicit != "" {
		return explicit
	}
	if extraEnv != "" {
		if key := os.Getenv(extraEnv); key != "" {
			return key
		}
	}
	for _, env := range envKeys(strings.ToLower(providerName)) {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return ""
}

func envKeys(providerName string) []string {
	switch providerName {
	case Gemini:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case OpenAI:
		return []string{"OPENAI_API_KEY"}
	case Anthropic:
		return []string{"ANTHROPIC_API_KEY"}
	default:
		return nil
	}
}
