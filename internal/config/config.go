// Package config holds reposync's layered configuration: defaults, then
// reposync.yaml, then REPOSYNC_* environment variables, then flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the working directory and
// in $XDG_CONFIG_HOME/reposync.
const FileName = "reposync.yaml"

// EnvPrefix prefixes every environment override, e.g. REPOSYNC_STORE_BACKEND.
const EnvPrefix = "REPOSYNC"

var (
	v        *viper.Viper
	explicit string
)

// SetConfigFile makes the next Initialize read path instead of searching.
// An empty path restores the search.
func SetConfigFile(path string) {
	explicit = path
}

// Initialize sets up the viper configuration singleton. It is safe to call
// more than once; each call starts from a fresh instance.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	path := explicit
	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", string(StoreMemory))
	v.SetDefault("store.path", filepath.Join(".reposync", "dolt"))
	v.SetDefault("store.database", "reposync")
	v.SetDefault("store.host", "127.0.0.1")
	v.SetDefault("store.port", 3307)
	v.SetDefault("store.user", "root")
	v.SetDefault("store.password", "")
	v.SetDefault("store.tls", false)

	v.SetDefault("billing.default-plan", "FREE")
	v.SetDefault("billing.legacy-plans", []string{"LEGACY", "LEGACY_TEAM"})

	v.SetDefault("sync.concurrency", 8)
	v.SetDefault("sync.task-retries", 3)
	v.SetDefault("sync.task-timeout", 30*time.Second)

	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("github.url", "")
	v.SetDefault("gitlab.url", "")
	v.SetDefault("bitbucket.url", "")
	v.SetDefault("azuredevops.url", "")
	v.SetDefault("azuredevops.organization", "")
}

// findConfigFile returns the first reposync.yaml found in the working
// directory or the user config directory, or "" when there is none.
func findConfigFile() string {
	candidates := []string{FileName}
	if dir := userConfigDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "reposync", FileName))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func userConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value. Environment
// overrides are split on whitespace.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// Set overrides a value for the rest of the process, above every other layer.
// Used for command-line flags.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns the merged configuration as nested maps.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// AllKeys returns every known key in dotted form, unordered.
func AllKeys() []string {
	if v == nil {
		return nil
	}
	return v.AllKeys()
}

// ResetForTesting clears the singleton so the next Initialize starts clean.
func ResetForTesting() {
	v = nil
	explicit = ""
}
