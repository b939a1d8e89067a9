// Package credentials reads per-provider API keys from credentials.toml in
// the .saiverse/ directory. A stored key is used when no key is configured
// and before the provider's environment variables are consulted.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/RNA4219/SAIVerse/pkg/dotdir"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// Store holds the keys loaded from one credentials.toml.
type Store struct {
	path string
	keys map[string]string
}

// Load reads credentials.toml from the .saiverse/ directory. If override is
// non-empty it is used as that directory. A missing file yields an empty
// Store.
func Load(override string) (*Store, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path: filepath.Join(dir, credentialsFile),
		keys: make(map[string]string),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	if err := s.parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return s, nil
}

func (s *Store) parse(data []byte) error {
	var f file
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return fmt.Errorf("parsing credentials: %w", err)
	}

	if f.Version != currentVersion {
		return fmt.Errorf("unsupported credentials version %d", f.Version)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown credentials keys: %s", strings.Join(keys, ", "))
	}

	names := make([]string, 0, len(f.Providers))
	for name := range f.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := strings.TrimSpace(f.Providers[name].APIKey)
		p := strings.ToLower(name)

		switch {
		case !provider.IsSupported(p):
			return fmt.Errorf("unknown provider %q (supported: %s)", name, strings.Join(provider.SupportedProviders(), ", "))
		case p == provider.Ollama && key != "":
			return errors.New("ollama does not take an api_key")
		case key != "":
			s.keys[p] = key
		}
	}
	return nil
}

// Path returns the credentials file location, whether or not it exists.
func (s *Store) Path() string {
	return s.path
}

// Key returns the stored key for providerName, or "".
func (s *Store) Key(providerName string) string {
	return s.keys[strings.ToLower(providerName)]
}

// APIKey picks the key to hand to provider.New. A configured key wins over a
// stored one. When both are empty it returns "" and SourceEnv, leaving the
// environment lookup to the provider.
func (s *Store) APIKey(providerName, configured string) (key, source string) {
	if configured != "" {
		return configured, SourceConfig
	}
	if key := s.Key(providerName); key != "" {
		return key, SourceCredentials
	}
	return "", SourceEnv
}
