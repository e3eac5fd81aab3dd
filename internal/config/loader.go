package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".productingest"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a configuration file from a YAML document.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, when given
//  2. .productingest in the current directory
//  3. config.yaml in the XDG config directory
//  4. .productingest in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}
