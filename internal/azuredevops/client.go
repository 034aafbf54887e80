package azuredevops

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/rest"
	"github.com/steveyegge/reposync/internal/types"
)

// Client provides methods to interact with the Azure DevOps REST API.
type Client struct {
	Organization string // Organization name or URL
	PAT          string // Personal Access Token
	BaseURL      string // Full base URL (derived from Organization)
	HTTPClient   *http.Client
}

// NewClient creates a new Azure DevOps client.
func NewClient(organization, pat string) *Client {
	// Handle both organization name and full URL
	baseURL := organization
	if !strings.HasPrefix(organization, "http") {
		baseURL = fmt.Sprintf("https://dev.azure.com/%s", organization)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		Organization: organizationName(baseURL),
		PAT:          pat,
		BaseURL:      baseURL,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

func organizationName(baseURL string) string {
	if i := strings.LastIndex(baseURL, "/"); i >= 0 {
		return baseURL[i+1:]
	}
	return baseURL
}

// doRequest performs a GET with authentication and retry on rate limiting.
// version overrides APIVersion for preview-only endpoints.
func (c *Client) doRequest(ctx context.Context, path, version string) ([]byte, http.Header, error) {
	if version == "" {
		version = APIVersion
	}
	// Add API version to path
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	reqURL := c.BaseURL + path + separator + "api-version=" + version

	// Azure DevOps uses Basic auth with an empty username and the PAT as password.
	auth := base64.StdEncoding.EncodeToString([]byte(":" + c.PAT))
	body, header, err := rest.Get(ctx, c.HTTPClient, reqURL, rest.Options{
		MaxRetries: MaxRetries,
		RetryDelay: RetryDelay,
		Header: http.Header{
			"Authorization": {"Basic " + auth},
			"Accept":        {"application/json"},
		},
	})
	var se *rest.StatusError
	if errors.As(err, &se) {
		return nil, nil, &APIError{StatusCode: se.StatusCode, Body: se.Body}
	}
	return body, header, err
}

// ConnectionData identifies the authenticated user and the organization.
func (c *Client) ConnectionData(ctx context.Context) (*ConnectionData, error) {
	respBody, _, err := c.doRequest(ctx, "/_apis/connectionData", APIVersion+"-preview")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connection data: %w", err)
	}
	var cd ConnectionData
	if err := json.Unmarshal(respBody, &cd); err != nil {
		return nil, fmt.Errorf("failed to parse connection data: %w", err)
	}
	return &cd, nil
}

// ListProjects retrieves all projects accessible in the organization,
// following continuation tokens.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var all []Project
	token := ""
	for {
		// Core API is at org level, not project level
		path := "/_apis/projects?$top=" + strconv.Itoa(MaxPageSize)
		if token != "" {
			path += "&continuationToken=" + url.QueryEscape(token)
		}

		respBody, headers, err := c.doRequest(ctx, path, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}

		var resp ProjectListResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse projects response: %w", err)
		}
		all = append(all, resp.Value...)

		token = headers.Get("X-Ms-Continuationtoken")
		if token == "" {
			return all, nil
		}
	}
}

// ListRepositories retrieves the Git repositories of a project.
func (c *Client) ListRepositories(ctx context.Context, projectID string) ([]Repository, error) {
	respBody, _, err := c.doRequest(ctx, "/"+url.PathEscape(projectID)+"/_apis/git/repositories", "")
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories of project %s: %w", projectID, err)
	}
	var resp RepositoryListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse repositories response: %w", err)
	}
	return resp.Value, nil
}

// HasPermissions evaluates one Git permission bit for the caller on each token.
func (c *Client) HasPermissions(ctx context.Context, bit int, tokens []string) ([]bool, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	path := fmt.Sprintf("/_apis/permissions/%s/%d?tokens=%s",
		GitSecurityNamespace, bit, url.QueryEscape(strings.Join(tokens, ",")))
	respBody, _, err := c.doRequest(ctx, path, "")
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate permission %d: %w", bit, err)
	}
	var resp PermissionsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse permissions response: %w", err)
	}
	if len(resp.Value) != len(tokens) {
		return nil, fmt.Errorf("permission %d: got %d results for %d tokens", bit, len(resp.Value), len(tokens))
	}
	return resp.Value, nil
}

// levels resolves admin, contributor, or reader for each token. An empty
// entry means the caller cannot read.
func (c *Client) levels(ctx context.Context, tokens []string) ([]string, error) {
	admin, err := c.HasPermissions(ctx, PermAdminister, tokens)
	if err != nil {
		return nil, err
	}
	contribute, err := c.HasPermissions(ctx, PermGenericContribute, tokens)
	if err != nil {
		return nil, err
	}
	read, err := c.HasPermissions(ctx, PermGenericRead, tokens)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(tokens))
	for i := range tokens {
		switch {
		case admin[i]:
			out[i] = LevelAdmin
		case contribute[i]:
			out[i] = LevelContributor
		case read[i]:
			out[i] = LevelReader
		}
	}
	return out, nil
}

// repoToken is the Git security token for a repository, a project, or the
// whole organization when both ids are empty.
func repoToken(projectID, repoID string) string {
	switch {
	case projectID == "":
		return "repoV2"
	case repoID == "":
		return "repoV2/" + projectID
	}
	return "repoV2/" + projectID + "/" + repoID
}

// GetUserAccounts implements reposync.ProviderClient.
func (c *Client) GetUserAccounts(ctx context.Context) (*reposync.AccountListing, error) {
	cd, err := c.ConnectionData(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	org := OrganizationAccount(cd.InstanceID, c.Organization, c.BaseURL)
	listing := &reposync.AccountListing{
		User:          UserAccount(cd.AuthenticatedUser),
		Organizations: []reposync.ProviderAccount{org},
	}
	for _, p := range projects {
		if p.State != "" && p.State != "wellFormed" {
			continue
		}
		listing.Organizations = append(listing.Organizations, ProjectAccount(p, org, c.BaseURL))
	}
	return listing, nil
}

// GetRepositories implements reposync.ProviderClient. Only project accounts
// own repositories.
func (c *Client) GetRepositories(ctx context.Context, account reposync.ProviderAccount) ([]reposync.ProviderRepository, error) {
	if account.Type != types.AccountTypeOrganization || account.ParentProviderID == "" {
		return nil, nil
	}

	repos, err := c.ListRepositories(ctx, account.ProviderInternalID)
	if err != nil {
		return nil, err
	}
	var active []Repository
	for _, r := range repos {
		if !r.IsDisabled {
			active = append(active, r)
		}
	}

	tokens := make([]string, len(active))
	for i, r := range active {
		tokens[i] = repoToken(account.ProviderInternalID, r.ID)
	}
	levels, err := c.levels(ctx, tokens)
	if err != nil {
		return nil, err
	}

	out := make([]reposync.ProviderRepository, 0, len(active))
	for i := range active {
		if levels[i] == "" {
			continue
		}
		out = append(out, ProviderRepository(&active[i], levels[i]))
	}
	return out, nil
}

// GetUserRoleForAccount implements reposync.ProviderClient by evaluating Git
// permissions at organization or project scope.
func (c *Client) GetUserRoleForAccount(ctx context.Context, account reposync.ProviderAccount, user *types.User) (string, bool, error) {
	if account.Type == types.AccountTypeUser {
		if account.ProviderInternalID == user.ProviderInternalID {
			return LevelAdmin, true, nil
		}
		return "", false, nil
	}

	token := repoToken("", "")
	if account.ParentProviderID != "" {
		token = repoToken(account.ProviderInternalID, "")
	}
	levels, err := c.levels(ctx, []string{token})
	if err != nil {
		return "", false, err
	}
	if levels[0] == "" {
		return "", false, nil
	}
	return levels[0], true, nil
}

var _ reposync.ProviderClient = (*Client)(nil)
