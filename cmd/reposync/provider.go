package main

import (
	"fmt"
	"os"
	"time"

	"github.com/steveyegge/reposync/internal/azuredevops"
	"github.com/steveyegge/reposync/internal/bitbucket"
	"github.com/steveyegge/reposync/internal/config"
	"github.com/steveyegge/reposync/internal/fixture"
	"github.com/steveyegge/reposync/internal/github"
	"github.com/steveyegge/reposync/internal/gitlab"
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// tokenEnv names the environment variable consulted when --token is empty.
var tokenEnv = map[types.Provider]string{
	types.ProviderGitHub:      "GITHUB_TOKEN",
	types.ProviderGitLab:      "GITLAB_TOKEN",
	types.ProviderBitbucket:   "BITBUCKET_TOKEN",
	types.ProviderAzureDevOps: "AZURE_DEVOPS_PAT",
}

// memberListers records which provider clients can list organization members.
var memberListers = map[types.Provider]reposync.ProviderClient{
	types.ProviderGitHub:      (*github.Client)(nil),
	types.ProviderGitLab:      (*gitlab.Client)(nil),
	types.ProviderBitbucket:   (*bitbucket.Client)(nil),
	types.ProviderAzureDevOps: (*azuredevops.Client)(nil),
}

func canListMembers(provider types.Provider) bool {
	_, ok := memberListers[provider].(reposync.MemberLister)
	return ok
}

type clientOptions struct {
	Token   string
	URL     string
	Timeout time.Duration
}

// newProviderClient builds the REST client for provider. URL overrides the
// provider's configured endpoint.
func newProviderClient(provider types.Provider, opts clientOptions) (reposync.ProviderClient, error) {
	token := opts.Token
	if token == "" {
		token = os.Getenv(tokenEnv[provider])
	}
	if token == "" {
		return nil, fmt.Errorf("no %s token: pass --token or set %s", provider, tokenEnv[provider])
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.GetProviderTimeout()
	}
	baseURL := opts.URL
	if baseURL == "" {
		baseURL = config.GetString(string(provider) + ".url")
	}

	switch provider {
	case types.ProviderGitHub:
		c := github.NewClient(token)
		if baseURL != "" {
			c = c.WithBaseURL(baseURL)
		}
		c.HTTPClient.Timeout = opts.Timeout
		return c, nil
	case types.ProviderGitLab:
		c := gitlab.NewClient(token, baseURL)
		c.HTTPClient.Timeout = opts.Timeout
		return c, nil
	case types.ProviderBitbucket:
		c := bitbucket.NewClient(token)
		if baseURL != "" {
			c = c.WithBaseURL(baseURL)
		}
		c.HTTPClient.Timeout = opts.Timeout
		return c, nil
	case types.ProviderAzureDevOps:
		org := baseURL
		if org == "" {
			org = config.GetString("azuredevops.organization")
		}
		if org == "" {
			return nil, fmt.Errorf("azuredevops.organization is not configured")
		}
		c := azuredevops.NewClient(org, token)
		c.HTTPClient.Timeout = opts.Timeout
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", reposync.ErrUnknownProvider, provider)
}

// resolveClient returns the fixture client when path is set, otherwise the
// provider's REST client. The fixture's provider wins over an empty --provider
// and must agree with an explicit one.
func resolveClient(providerFlag, fixturePath string, opts clientOptions) (types.Provider, reposync.ProviderClient, *fixture.Client, error) {
	var provider types.Provider
	if providerFlag != "" {
		p, err := types.ParseProvider(providerFlag)
		if err != nil {
			return "", nil, nil, err
		}
		provider = p
	}

	if fixturePath != "" {
		fc, err := fixture.Open(fixturePath)
		if err != nil {
			return "", nil, nil, err
		}
		if provider != "" && provider != fc.Provider() {
			return "", nil, nil, fmt.Errorf("fixture %s describes %s, not %s", fixturePath, fc.Provider(), provider)
		}
		return fc.Provider(), fc, fc, nil
	}

	if provider == "" {
		return "", nil, nil, fmt.Errorf("--provider is required without --fixture")
	}
	client, err := newProviderClient(provider, opts)
	if err != nil {
		return "", nil, nil, err
	}
	return provider, client, nil, nil
}
