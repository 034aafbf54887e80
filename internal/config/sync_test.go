package config

import (
	"reflect"
	"testing"
	"time"
)

func TestGetStoreBackend(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  StoreBackend
	}{
		{"default", "", StoreMemory},
		{"dolt", "dolt", StoreDolt},
		{"server", "dolt-server", StoreDoltServer},
		{"case and space", "  DOLT ", StoreDolt},
		{"invalid falls back", "postgres", StoreMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if tt.value != "" {
				Set("store.backend", tt.value)
			}
			if got := GetStoreBackend(); got != tt.want {
				t.Errorf("GetStoreBackend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyncGetters(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetSyncConcurrency(); got != 8 {
		t.Errorf("GetSyncConcurrency() = %d, want 8", got)
	}
	if got := GetTaskRetries(); got != 3 {
		t.Errorf("GetTaskRetries() = %d, want 3", got)
	}
	if got := GetTaskTimeout(); got != 30*time.Second {
		t.Errorf("GetTaskTimeout() = %v", got)
	}

	Set("sync.concurrency", 0)
	Set("sync.task-retries", -2)
	Set("sync.task-timeout", "0s")
	Set("provider.timeout", "10s")
	if got := GetSyncConcurrency(); got != 8 {
		t.Errorf("GetSyncConcurrency() = %d, want fallback 8", got)
	}
	if got := GetTaskRetries(); got != 0 {
		t.Errorf("GetTaskRetries() = %d, want 0", got)
	}
	if got := GetTaskTimeout(); got != 30*time.Second {
		t.Errorf("GetTaskTimeout() = %v, want fallback", got)
	}
	if got := GetProviderTimeout(); got != 10*time.Second {
		t.Errorf("GetProviderTimeout() = %v", got)
	}
}

func TestGetLegacyPlans(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetLegacyPlans(); !reflect.DeepEqual(got, []string{"LEGACY", "LEGACY_TEAM"}) {
		t.Errorf("GetLegacyPlans() = %v", got)
	}

	Set("billing.legacy-plans", []string{" old ", "", "legacy,ancient"})
	if got := GetLegacyPlans(); !reflect.DeepEqual(got, []string{"OLD", "LEGACY", "ANCIENT"}) {
		t.Errorf("GetLegacyPlans() = %v", got)
	}
}
