package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// StoreBackend selects where the catalog is persisted.
type StoreBackend string

const (
	// StoreMemory keeps the catalog in process memory (default)
	StoreMemory StoreBackend = "memory"
	// StoreDolt uses an embedded Dolt database under store.path
	StoreDolt StoreBackend = "dolt"
	// StoreDoltServer connects to a running dolt sql-server
	StoreDoltServer StoreBackend = "dolt-server"
)

var validStoreBackends = map[StoreBackend]bool{
	StoreMemory:     true,
	StoreDolt:       true,
	StoreDoltServer: true,
}

// GetStoreBackend retrieves the store backend.
// Returns StoreMemory if not set or invalid, warning on stderr for invalid values.
//
// Config key: store.backend
// Valid values: memory, dolt, dolt-server
func GetStoreBackend() StoreBackend {
	value := GetString("store.backend")
	if value == "" {
		return StoreMemory
	}

	backend := StoreBackend(strings.ToLower(strings.TrimSpace(value)))
	if !validStoreBackends[backend] {
		fmt.Fprintf(os.Stderr, "Warning: invalid store.backend %q in config (valid: memory, dolt, dolt-server), using default 'memory'\n", value)
		return StoreMemory
	}
	return backend
}

// GetSyncConcurrency returns sync.concurrency, falling back to 8 for
// non-positive values.
func GetSyncConcurrency() int {
	n := GetInt("sync.concurrency")
	if n <= 0 {
		if v != nil && v.IsSet("sync.concurrency") {
			fmt.Fprintf(os.Stderr, "Warning: invalid sync.concurrency %d in config (must be positive), using default 8\n", n)
		}
		return 8
	}
	return n
}

// GetTaskRetries returns sync.task-retries. Negative values become 0.
func GetTaskRetries() int {
	n := GetInt("sync.task-retries")
	if n < 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid sync.task-retries %d in config, using 0\n", n)
		return 0
	}
	return n
}

// GetTaskTimeout returns sync.task-timeout, defaulting to 30s.
func GetTaskTimeout() time.Duration {
	d := GetDuration("sync.task-timeout")
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetProviderTimeout returns provider.timeout, defaulting to 30s.
func GetProviderTimeout() time.Duration {
	d := GetDuration("provider.timeout")
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetLegacyPlans returns billing.legacy-plans, upper-cased with blanks dropped.
func GetLegacyPlans() []string {
	var plans []string
	for _, p := range GetStringSlice("billing.legacy-plans") {
		// A comma-separated env override arrives as a single element.
		for _, part := range strings.Split(p, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				plans = append(plans, part)
			}
		}
	}
	return plans
}
