// Package models is the registry of model identifiers selectable with
// --model. Built-in entries can be extended or overridden from config.
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrModelNotFound is returned when an identifier resolves to no model.
var ErrModelNotFound = errors.New("model not found")

// ErrAmbiguousModel is returned when a substring matches several models.
var ErrAmbiguousModel = errors.New("model identifier is ambiguous")

// Model describes one selectable model.
type Model struct {
	// ID is the identifier users pass to --model.
	ID string `toml:"id" mapstructure:"id" validate:"required"`

	DisplayName string `toml:"display_name" mapstructure:"display_name"`
	Provider    string `toml:"provider" mapstructure:"provider" validate:"required"`

	// Name is the model name sent to the provider; defaults to ID.
	Name string `toml:"name" mapstructure:"name"`

	BaseURL   string `toml:"base_url" mapstructure:"base_url"`
	APIKeyEnv string `toml:"api_key_env" mapstructure:"api_key_env"`
}

// ModelName returns the provider-side model name.
func (m Model) ModelName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Label returns the display name, or the ID when none is set.
func (m Model) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ID
}

// Builtin returns the models known without any configuration.
func Builtin() []Model {
	return []Model{
		{ID: "gemini-2.5-flash-lite-preview-09-2025", DisplayName: "Gemini 2.5 Flash Lite (preview 09-2025)", Provider: "gemini"},
		{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", Provider: "gemini"},
		{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", Provider: "gemini"},
		{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", Provider: "openai"},
		{ID: "gpt-4.1", DisplayName: "GPT-4.1", Provider: "openai"},
		{ID: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5", Provider: "anthropic", Name: "claude-haiku-4-5-20251001"},
		{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5", Provider: "anthropic", Name: "claude-sonnet-4-5-20250929"},
		{ID: "llama3.2", DisplayName: "Llama 3.2 (Ollama)", Provider: "ollama"},
		{ID: "qwen3", DisplayName: "Qwen3 (Ollama)", Provider: "ollama"},
	}
}

// Registry holds models keyed by ID.
type Registry struct {
	models map[string]Model
}

// NewRegistry builds a registry from the built-in models plus extra.
// An extra model with an existing ID replaces the built-in one.
func NewRegistry(extra ...Model) *Registry {
	r := &Registry{models: make(map[string]Model)}
	for _, m := range Builtin() {
		r.models[m.ID] = m
	}
	for _, m := range extra {
		if m.ID == "" {
			continue
		}
		r.models[m.ID] = m
	}
	return r
}

// List returns all models sorted by provider, then ID.
func (r *Registry) List() []Model {
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Find resolves an identifier: exact ID first, then a case-insensitive
// match on ID or provider model name, then a unique case-insensitive
// substring of the ID.
func (r *Registry) Find(id string) (Model, error) {
	if m, ok := r.models[id]; ok {
		return m, nil
	}

	needle := strings.ToLower(strings.TrimSpace(id))
	if needle == "" {
		return Model{}, fmt.Errorf("%w: empty identifier", ErrModelNotFound)
	}

	list := r.List()
	for _, m := range list {
		if strings.ToLower(m.ID) == needle || strings.ToLower(m.ModelName()) == needle {
			return m, nil
		}
	}

	var matches []Model
	for _, m := range list {
		if strings.Contains(strings.ToLower(m.ID), needle) {
			matches = append(matches, m)
		}
	}

	switch len(matches) {
	case 0:
		return Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return Model{}, fmt.Errorf("%w: %s matches %s", ErrAmbiguousModel, id, strings.Join(ids, ", "))
	}
}
