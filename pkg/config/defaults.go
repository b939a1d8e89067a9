package config

const (
	defaultModel      = "gemini-2.5-flash-lite-preview-09-2025"
	defaultBatchSize  = 20
	defaultMaxRetries = 2
	defaultLimit      = 100
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		LLM: LLMConfig{
			Model: defaultModel,
		},
		Extract: ExtractConfig{
			BatchSize:  defaultBatchSize,
			MaxRetries: defaultMaxRetries,
			Limit:      defaultLimit,
		},
	}
}
