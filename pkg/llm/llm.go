// Package llm defines the text-generation contract used by memopedia
// extraction. Providers live under pkg/llm/provider.
package llm

import (
	"context"
	"encoding/json"
)

// Message roles accepted by Generate.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage is shorthand for a user-role Message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Schema is the subset of JSON Schema used to request structured output.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// Map returns the schema as a generic JSON object, for SDKs that take
// map[string]any.
func (s *Schema) Map() map[string]any {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Generator produces text for a conversation. When schema is non-nil the
// provider is asked for a JSON object that loosely follows it; callers
// still parse defensively. An empty string with a nil error means the
// model returned nothing.
type Generator interface {
	Generate(ctx context.Context, messages []Message, schema *Schema) (string, error)
}

// GenerateFunc adapts a function to Generator.
type GenerateFunc func(ctx context.Context, messages []Message, schema *Schema) (string, error)

// Generate calls f.
func (f GenerateFunc) Generate(ctx context.Context, messages []Message, schema *Schema) (string, error) {
	return f(ctx, messages, schema)
}
