package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of reposync.yaml read straight from a file,
// bypassing the viper singleton and the environment. `reposync config show
// --file` uses it to show exactly what a file sets.
type LocalConfig struct {
	Store struct {
		Backend  string `yaml:"backend,omitempty" json:"backend,omitempty"`
		Path     string `yaml:"path,omitempty" json:"path,omitempty"`
		Database string `yaml:"database,omitempty" json:"database,omitempty"`
		Host     string `yaml:"host,omitempty" json:"host,omitempty"`
		Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
		User     string `yaml:"user,omitempty" json:"user,omitempty"`
	} `yaml:"store,omitempty" json:"store,omitempty"`
	Billing struct {
		DefaultPlan string   `yaml:"default-plan,omitempty" json:"default-plan,omitempty"`
		LegacyPlans []string `yaml:"legacy-plans,omitempty" json:"legacy-plans,omitempty"`
	} `yaml:"billing,omitempty" json:"billing,omitempty"`
	Sync struct {
		Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
		TaskRetries int `yaml:"task-retries,omitempty" json:"task-retries,omitempty"`
	} `yaml:"sync,omitempty" json:"sync,omitempty"`
}

// LoadLocalConfig reads and parses reposync.yaml from dir.
//
// Returns an empty LocalConfig (not nil) if the file doesn't exist or can't be parsed.
func LoadLocalConfig(dir string) *LocalConfig {
	configPath := filepath.Join(dir, FileName)
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from caller
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}

	return &cfg
}
