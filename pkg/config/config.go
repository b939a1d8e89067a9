package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/RNA4219/SAIVerse/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Configer struct {
	ddm        *dotdir.Manager
	targetDir  string
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		return cfger, nil
	}
	cfger.targetDir = target

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the list of all scalar configuration key names in
// TOML section order.
func ValidConfigKeys() []string {
	ordered := []string{
		"storage.personas_dir",
		"llm.provider",
		"llm.model",
		"llm.api_key",
		"llm.base_url",
		"extract.batch_size",
		"extract.max_retries",
		"extract.limit",
		"prompts.dir",
	}

	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}
	return result
}

// GetTarget returns the config.toml path, or "" when no directory resolved.
func (c *Configer) GetTarget() string {
	return c.targetPath
}

// GetDir returns the resolved .saiverse/ directory.
func (c *Configer) GetDir() string {
	return c.targetDir
}

// LoadConfig loads the configuration from config.toml in the target
// .saiverse/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Keys explicitly set in the file override the defaults, including zero
// values.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfigTOML(data)
}

// Resolve loads config.toml and overlays every scalar key from v, which
// already layers defaults, the file, SAIVERSE_* environment variables and
// bound flags. The result is validated.
func (c *Configer) Resolve(v *viper.Viper) (*Config, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}

	if v != nil {
		for _, key := range ValidConfigKeys() {
			if !v.IsSet(key) {
				continue
			}
			if err := configKeys[key].set(cfg, v.GetString(key)); err != nil {
				return nil, err
			}
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfigTOML parses raw TOML bytes into a Config, filling keys the
// file does not define from NewDefaultConfig().
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	applyDefaults(cfg, md)

	return cfg, nil
}

// applyDefaults fills keys that md does not define with values from
// NewDefaultConfig().
func applyDefaults(cfg *Config, md toml.MetaData) {
	defaults := NewDefaultConfig()

	for _, key := range ValidConfigKeys() {
		section, name, _ := strings.Cut(key, ".")
		if md.IsDefined(section, name) {
			continue
		}
		info := configKeys[key]
		_ = info.set(cfg, info.get(defaults))
	}
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "url":
		return field + " must be a URL"
	default:
		return field + " is invalid"
	}
}
