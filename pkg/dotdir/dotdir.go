// Package dotdir resolves the .saiverse/ directory and the persona
// databases kept under it:
//
//	.saiverse/
//	  config.toml
//	  credentials.toml
//	  personas/<persona_id>/memory.db
package dotdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirName      = ".saiverse"
	personasDir  = "personas"
	memoryDBFile = "memory.db"

	// HomeEnv names the directory when no override is given.
	HomeEnv = "SAIVERSE_HOME"
)

// ErrPersonaNotFound is returned when a persona has no memory database.
var ErrPersonaNotFound = errors.New("persona database not found")

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute .saiverse/ directory, creating it if needed.
// The first of these wins: override, $SAIVERSE_HOME, ./.saiverse/ when it
// already exists, ~/.saiverse/. A leading ~ is expanded.
func (m *Manager) Target(override string) (string, error) {
	dir, err := locate(override)
	if err != nil {
		return "", err
	}

	dir, err = expandHome(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating saiverse directory %s: %w", dir, err)
	}
	return dir, nil
}

func locate(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return env, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, dirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// PersonasDir returns the personas directory: configured when non-empty,
// otherwise personas/ under Target(override). It is not created.
func (m *Manager) PersonasDir(configured, override string) (string, error) {
	if configured != "" {
		return expandHome(configured)
	}

	dir, err := m.Target(override)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, personasDir), nil
}

// PersonaDB returns <personasDir>/<personaID>/memory.db. The file must
// already exist.
func PersonaDB(personasDir, personaID string) (string, error) {
	if personaID == "" || strings.ContainsAny(personaID, `/\`) || personaID == "." || personaID == ".." {
		return "", fmt.Errorf("invalid persona id %q", personaID)
	}

	path := filepath.Join(personasDir, personaID, memoryDBFile)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPersonaNotFound, path)
		}
		return "", fmt.Errorf("checking persona database: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrPersonaNotFound, path)
	}
	return path, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Abs(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
