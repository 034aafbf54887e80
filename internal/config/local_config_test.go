package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadLocalConfig(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		wantBackend string
		wantPort    int
		wantPlans   int
	}{
		{
			name:       "empty config",
			configYAML: "",
		},
		{
			name:        "store section",
			configYAML:  "store:\n  backend: dolt-server\n  port: 3310\n",
			wantBackend: "dolt-server",
			wantPort:    3310,
		},
		{
			name:        "commented key ignored",
			configYAML:  "# store:\n#   backend: dolt\nbilling:\n  legacy-plans: [A, B]\n",
			wantBackend: "",
			wantPlans:   2,
		},
		{
			name:        "quoted value",
			configYAML:  "store:\n  backend: \"dolt\"\n",
			wantBackend: "dolt",
		},
		{
			name:       "invalid yaml",
			configYAML: "store: [broken\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tt.configYAML), 0600); err != nil {
				t.Fatal(err)
			}

			cfg := LoadLocalConfig(dir)
			if cfg == nil {
				t.Fatal("LoadLocalConfig returned nil")
			}
			if cfg.Store.Backend != tt.wantBackend {
				t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, tt.wantBackend)
			}
			if cfg.Store.Port != tt.wantPort {
				t.Errorf("Store.Port = %d, want %d", cfg.Store.Port, tt.wantPort)
			}
			if len(cfg.Billing.LegacyPlans) != tt.wantPlans {
				t.Errorf("Billing.LegacyPlans = %v, want %d entries", cfg.Billing.LegacyPlans, tt.wantPlans)
			}
		})
	}
}

func TestLoadLocalConfigMissingFile(t *testing.T) {
	cfg := LoadLocalConfig(t.TempDir())
	if cfg == nil || cfg.Store.Backend != "" {
		t.Errorf("LoadLocalConfig on missing file = %+v, want empty", cfg)
	}
}

func TestSetYamlConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	initial := "# catalog settings\nstore:\n  backend: memory # default\nbilling:\n  default-plan: FREE\n"
	if err := os.WriteFile(path, []byte(initial), 0600); err != nil {
		t.Fatal(err)
	}

	if err := SetYamlConfig(path, "store.backend", "dolt"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if err := SetYamlConfig(path, "sync.concurrency", "4"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "# catalog settings") {
		t.Errorf("head comment lost:\n%s", content)
	}
	if !strings.Contains(content, "# default") {
		t.Errorf("line comment lost:\n%s", content)
	}

	cfg := LoadLocalConfig(filepath.Dir(path))
	if cfg.Store.Backend != "dolt" {
		t.Errorf("Store.Backend = %q, want dolt", cfg.Store.Backend)
	}
	if cfg.Sync.Concurrency != 4 {
		t.Errorf("Sync.Concurrency = %d, want 4", cfg.Sync.Concurrency)
	}
	if cfg.Billing.DefaultPlan != "FREE" {
		t.Errorf("Billing.DefaultPlan = %q, want untouched FREE", cfg.Billing.DefaultPlan)
	}
}

func TestSetYamlConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := SetYamlConfig(path, "store.host", "db.internal"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if got := LoadLocalConfig(filepath.Dir(path)).Store.Host; got != "db.internal" {
		t.Errorf("Store.Host = %q", got)
	}
}

func TestSetYamlConfigErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("store: memory\n"), 0600); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"", ".store", "store."} {
		if err := SetYamlConfig(path, key, "x"); err == nil {
			t.Errorf("SetYamlConfig(%q) succeeded", key)
		}
	}
	if err := SetYamlConfig(path, "store.backend", "dolt"); err == nil {
		t.Error("SetYamlConfig through a scalar succeeded")
	}
}
