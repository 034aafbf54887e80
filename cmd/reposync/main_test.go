package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/reposync/internal/config"
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

const gitlabFixture = `provider: gitlab
user:
  id: "7"
  login: alice
  role: "50"
  repositories:
    - {id: "100", name: dotfiles, access_level: 50}
organizations:
  - id: "12"
    login: acme
    role: "40"
    repositories:
      - {id: "200", name: api, access_level: 30}
      - {id: "201", name: ops, access_level: 40}
    members:
      - {id: "7", login: alice, permission: "40"}
      - {id: "8", login: bob, permission: "30"}
`

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command with args in an isolated configuration
// environment and returns what it wrote to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Cleanup(config.ResetForTesting)

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitlab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(gitlabFixture), 0o600))
	return path
}

func TestSyncFromFixtureJSON(t *testing.T) {
	out, err := runCLI(t, "sync", "--fixture", writeFixture(t), "--json")
	require.NoError(t, err)

	var result reposync.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, types.ProviderGitLab, result.Provider)
	assert.Len(t, result.Accounts, 2)
	assert.Equal(t, 2, result.Stats.AccountsCreated)
	assert.Equal(t, 3, result.Stats.RepositoriesCreated)
	assert.Empty(t, result.Failures)
}

func TestSyncFromFixtureWithUsers(t *testing.T) {
	out, err := runCLI(t, "sync", "--fixture", writeFixture(t), "--users")
	require.NoError(t, err)

	assert.Contains(t, out, "GITLAB SYNC")
	assert.Contains(t, out, "acme members imported")
	assert.Contains(t, out, "2 synced, 2 created")
}

func TestSyncWriteOnlyOverride(t *testing.T) {
	out, err := runCLI(t, "sync", "--fixture", writeFixture(t), "--write-only", "--json")
	require.NoError(t, err)

	var result reposync.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	// GitLab counts developer access (30) as write, so nothing is filtered.
	assert.Equal(t, 0, result.Stats.RepositoriesFiltered)
	assert.Equal(t, 3, result.Stats.RepositoriesCreated)
}

func TestSyncArgumentErrors(t *testing.T) {
	fixturePath := writeFixture(t)
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no provider", []string{"sync"}, "--provider is required"},
		{"watch without fixture", []string{"sync", "--provider", "github", "--watch"}, "--watch requires --fixture"},
		{"unknown provider", []string{"sync", "--provider", "gitea"}, "unknown provider"},
		{"fixture mismatch", []string{"sync", "--provider", "github", "--fixture", fixturePath}, "describes gitlab"},
		{"missing token", []string{"sync", "--provider", "bitbucket"}, "BITBUCKET_TOKEN"},
		{"sync-users missing provider", []string{"sync-users"}, "--provider is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BITBUCKET_TOKEN", "")
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSyncUsersSkipsUnknownAccounts(t *testing.T) {
	// The memory store starts empty, so no organization is in the catalog yet.
	out, err := runCLI(t, "sync-users", "--fixture", writeFixture(t), "--json")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "gitlab", got["provider"])
	assert.EqualValues(t, 1, got["accounts"])
	assert.EqualValues(t, 0, got["accounts_imported"])
}

func TestProvidersJSON(t *testing.T) {
	out, err := runCLI(t, "providers", "--json")
	require.NoError(t, err)

	var got []struct {
		Provider   string `json:"provider"`
		AutoEnable bool   `json:"auto_enable"`
		Members    bool   `json:"members"`
		TokenEnv   string `json:"token_env"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	require.Len(t, got, 4)

	byName := map[string]int{}
	for i, p := range got {
		byName[p.Provider] = i
	}
	assert.True(t, got[byName["github"]].AutoEnable)
	assert.False(t, got[byName["gitlab"]].AutoEnable)
	assert.True(t, got[byName["gitlab"]].Members)
	assert.False(t, got[byName["azuredevops"]].Members)
	assert.Equal(t, "AZURE_DEVOPS_PAT", got[byName["azuredevops"]].TokenEnv)
}

func TestProvidersText(t *testing.T) {
	out, err := runCLI(t, "providers")
	require.NoError(t, err)
	assert.Contains(t, out, "PROVIDERS")
	assert.Contains(t, out, "bitbucket")
}

func TestConfigSetGetShow(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := runCLI(t, "config", "set", "store.backend", "dolt")
	require.NoError(t, err)
	assert.Contains(t, out, "Set store.backend in "+config.FileName)

	out, err = runCLI(t, "config", "get", "store.backend")
	require.NoError(t, err)
	assert.Equal(t, "dolt\n", out)

	t.Setenv("REPOSYNC_STORE_PASSWORD", "hunter2")
	out, err = runCLI(t, "config", "show", "--json")
	require.NoError(t, err)
	var shown struct {
		File     string            `json:"file"`
		Settings map[string]string `json:"settings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown), out)
	assert.Equal(t, config.FileName, shown.File)
	assert.Equal(t, "dolt", shown.Settings["store.backend"])
	assert.Equal(t, "********", shown.Settings["store.password"])
	assert.Equal(t, "LEGACY,LEGACY_TEAM", shown.Settings["billing.legacy-plans"])

	out, err = runCLI(t, "config", "show", "--file")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: dolt")
	assert.NotContains(t, out, "password")
}

func TestExplicitConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("billing:\n  default-plan: TEAM\n"), 0o600))

	out, err := runCLI(t, "--config", path, "config", "get", "billing.default-plan")
	require.NoError(t, err)
	assert.Equal(t, "TEAM", strings.TrimSpace(out))
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "reposync version "+Version+" ("+Build+")\n", out)
}
