package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/acksell/ddbq/dynamodb/logging"
)

const configFilename = "ddb.yaml"

// Config holds defaults for the ddb commands.
// Loaded from ddb.yaml if present. Flags override it.
type Config struct {
	// Schema is the path of the YAML table schema, relative to the config file.
	Schema string `yaml:"schema"`

	// Region and Endpoint configure the DynamoDB client used by query.
	// Endpoint is useful for DynamoDB Local.
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	Log logging.Config `yaml:"log"`
}

// LoadConfig searches for ddb.yaml starting from the current directory
// and walking up to the filesystem root. Returns empty config if not found.
func LoadConfig() (Config, error) {
	var cfg Config

	configPath := findConfigFile()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", configPath, err)
	}
	if cfg.Schema != "" && !filepath.IsAbs(cfg.Schema) {
		cfg.Schema = filepath.Join(filepath.Dir(configPath), cfg.Schema)
	}
	return cfg, nil
}

// findConfigFile searches for ddb.yaml walking up from current directory.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, configFilename)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}
