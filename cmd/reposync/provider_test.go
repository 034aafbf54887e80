package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/reposync/internal/azuredevops"
	"github.com/steveyegge/reposync/internal/config"
	"github.com/steveyegge/reposync/internal/github"
	"github.com/steveyegge/reposync/internal/gitlab"
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

func initConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	require.NoError(t, config.Initialize())
	t.Cleanup(config.ResetForTesting)
}

func TestNewProviderClient(t *testing.T) {
	initConfig(t)
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("GITLAB_TOKEN", "")

	client, err := newProviderClient(types.ProviderGitHub, clientOptions{URL: "https://ghe.example.com/api/v3/"})
	require.NoError(t, err)
	gh, ok := client.(*github.Client)
	require.True(t, ok)
	assert.Equal(t, "https://ghe.example.com/api/v3", gh.BaseURL)
	assert.Equal(t, 30*time.Second, gh.HTTPClient.Timeout)

	_, err = newProviderClient(types.ProviderGitLab, clientOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITLAB_TOKEN")

	config.Set("gitlab.url", "https://gitlab.example.com")
	client, err = newProviderClient(types.ProviderGitLab, clientOptions{Token: "t", Timeout: 5 * time.Second})
	require.NoError(t, err)
	gl := client.(*gitlab.Client)
	assert.Contains(t, gl.BaseURL, "gitlab.example.com")
	assert.Equal(t, 5*time.Second, gl.HTTPClient.Timeout)

	_, err = newProviderClient(types.ProviderAzureDevOps, clientOptions{Token: "pat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azuredevops.organization")

	config.Set("azuredevops.organization", "contoso")
	client, err = newProviderClient(types.ProviderAzureDevOps, clientOptions{Token: "pat"})
	require.NoError(t, err)
	assert.Equal(t, "contoso", client.(*azuredevops.Client).Organization)

	_, err = newProviderClient(types.Provider("gitea"), clientOptions{Token: "t"})
	assert.ErrorIs(t, err, reposync.ErrUnknownProvider)
}

func TestCanListMembers(t *testing.T) {
	assert.True(t, canListMembers(types.ProviderGitHub))
	assert.True(t, canListMembers(types.ProviderGitLab))
	assert.True(t, canListMembers(types.ProviderBitbucket))
	assert.False(t, canListMembers(types.ProviderAzureDevOps))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", reposync.ErrInvalidSession), "invalid_session"},
		{reposync.ErrUnknownProvider, "unknown_provider"},
		{&reposync.UpstreamError{Provider: types.ProviderGitHub, Op: "x", Err: errors.New("502")}, "upstream"},
		{&reposync.ConsistencyError{Op: "create", Detail: "race"}, "consistency"},
		{fmt.Errorf("load: %w", storage.ErrNotFound), "not_found"},
		{errors.New("other"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), tt.err.Error())
	}
}

func TestOpenStoreMemory(t *testing.T) {
	initConfig(t)
	store, err := openStore(t.Context())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	config.Set("store.backend", "dolt-server")
	config.Set("store.port", 1) // nothing listens there
	_, err = openStore(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dolt-server")
}
