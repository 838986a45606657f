package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configFileVar = "CONFIG_FILE"

// Load reads a .env file (if present) into the process environment and then the
// YAML file named by path, or by CONFIG_FILE when path is empty. A missing file
// is not an error; the returned Config falls back to env vars and defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(configFileVar)
	}
	f := &File{}
	if path == "" {
		return newMainConfig(f), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return newMainConfig(f), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config.Load read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("config.Load parse %s: %w", path, err)
	}
	return newMainConfig(f), nil
}
