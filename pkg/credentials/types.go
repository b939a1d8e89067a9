package credentials

// file is the on-disk layout of credentials.toml:
//
//	[providers.gemini]
//	api_key = "..."
type file struct {
	Version   int              `toml:"version"`
	Providers map[string]entry `toml:"providers"`
}

type entry struct {
	APIKey string `toml:"api_key"`
}

// Key sources reported by Store.APIKey.
const (
	SourceConfig      = "config"
	SourceCredentials = "credentials"
	SourceEnv         = "env"
)
