package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the optional on-disk client configuration. Values set in
// the file override command-line flags.
type ClientConfig struct {
	Server     string `yaml:"server" json:"server"`
	SessionDir string `yaml:"sessionDir" json:"sessionDir"`
	CacheDir   string `yaml:"cacheDir" json:"cacheDir"`
}

func (f *apiFlags) loadConfigFile() error {
	data, err := os.ReadFile(f.Config)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config ClientConfig

	// Determine file format by extension
	if strings.HasSuffix(strings.ToLower(f.Config), ".json") {
		if err := json.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if config.Server != "" {
		f.Server = config.Server
	}
	if config.SessionDir != "" {
		f.SessionDir = config.SessionDir
	}
	if config.CacheDir != "" {
		f.CacheDir = config.CacheDir
	}

	return nil
}
