package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/rest"
	"github.com/steveyegge/reposync/internal/types"
)

// NewClient creates a client authenticated with an OAuth or workspace access token.
func NewClient(token string) *Client {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpClient.Timeout = DefaultTimeout
	return &Client{BaseURL: DefaultAPIEndpoint, HTTPClient: httpClient}
}

// WithBaseURL returns a new client with a custom base URL.
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), HTTPClient: c.HTTPClient}
}

func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// doRequest performs a GET with retry on rate limiting.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	body, _, err := rest.Get(ctx, c.HTTPClient, urlStr, rest.Options{
		MaxRetries: MaxRetries,
		RetryDelay: RetryDelay,
		Header:     http.Header{"Accept": {"application/json"}},
	})
	var se *rest.StatusError
	if errors.As(err, &se) {
		return nil, &APIError{StatusCode: se.StatusCode, Body: se.Body}
	}
	return body, err
}

// fetchAll follows the "next" links of a paginated response.
func fetchAll[T any](ctx context.Context, c *Client, path string, params map[string]string) ([]T, error) {
	p := map[string]string{"pagelen": strconv.Itoa(MaxPageSize)}
	for k, v := range params {
		p[k] = v
	}
	next := c.buildURL(path, p)

	var all []T
	for pages := 0; next != ""; pages++ {
		if pages >= MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
		respBody, err := c.doRequest(ctx, next)
		if err != nil {
			return nil, err
		}
		var pg page[T]
		if err := json.Unmarshal(respBody, &pg); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", path, err)
		}
		all = append(all, pg.Values...)
		next = pg.Next
	}
	return all, nil
}

// CurrentUser retrieves the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	respBody, err := c.doRequest(ctx, c.buildURL("/user", nil))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	var u User
	if err := json.Unmarshal(respBody, &u); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return &u, nil
}

// ListWorkspacePermissions retrieves the caller's workspaces. A non-empty
// slug narrows the result to that workspace.
func (c *Client) ListWorkspacePermissions(ctx context.Context, slug string) ([]WorkspacePermission, error) {
	var params map[string]string
	if slug != "" {
		params = map[string]string{"q": fmt.Sprintf("workspace.slug=%q", slug)}
	}
	perms, err := fetchAll[WorkspacePermission](ctx, c, "/user/permissions/workspaces", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return perms, nil
}

// ListRepositories retrieves the repositories of a workspace the caller is a member of.
func (c *Client) ListRepositories(ctx context.Context, workspace string) ([]Repository, error) {
	repos, err := fetchAll[Repository](ctx, c, "/repositories/"+url.PathEscape(workspace), map[string]string{"role": "member"})
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories of %s: %w", workspace, err)
	}
	return repos, nil
}

// ListRepositoryPermissions retrieves the caller's permission on each
// repository of a workspace.
func (c *Client) ListRepositoryPermissions(ctx context.Context, workspace string) ([]RepositoryPermission, error) {
	perms, err := fetchAll[RepositoryPermission](ctx, c, "/user/permissions/repositories", map[string]string{
		"q": fmt.Sprintf("repository.full_name~%q", workspace+"/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list repository permissions in %s: %w", workspace, err)
	}
	return perms, nil
}

// ListWorkspaceMembers retrieves every member of a workspace with their permission.
func (c *Client) ListWorkspaceMembers(ctx context.Context, workspace string) ([]WorkspacePermission, error) {
	members, err := fetchAll[WorkspacePermission](ctx, c, "/workspaces/"+url.PathEscape(workspace)+"/permissions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", workspace, err)
	}
	return members, nil
}

// GetUserAccounts implements reposync.ProviderClient. The user's personal
// workspace shares their UUID and is reported only as the user account.
func (c *Client) GetUserAccounts(ctx context.Context) (*reposync.AccountListing, error) {
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := c.ListWorkspacePermissions(ctx, "")
	if err != nil {
		return nil, err
	}

	listing := &reposync.AccountListing{User: UserAccount(user)}
	for _, p := range perms {
		if p.Workspace == nil || p.Workspace.UUID == user.UUID {
			continue
		}
		listing.Organizations = append(listing.Organizations, WorkspaceAccount(p.Workspace))
	}
	return listing, nil
}

// GetRepositories implements reposync.ProviderClient.
func (c *Client) GetRepositories(ctx context.Context, account reposync.ProviderAccount) ([]reposync.ProviderRepository, error) {
	repos, err := c.ListRepositories(ctx, account.Login)
	if err != nil {
		return nil, err
	}
	perms, err := c.ListRepositoryPermissions(ctx, account.Login)
	if err != nil {
		return nil, err
	}
	byRepo := make(map[string]string, len(perms))
	for _, p := range perms {
		byRepo[p.Repository.UUID] = p.Permission
	}

	out := make([]reposync.ProviderRepository, 0, len(repos))
	for i := range repos {
		permission, ok := byRepo[repos[i].UUID]
		if !ok {
			permission = PermissionRead
		}
		out = append(out, ProviderRepository(&repos[i], permission))
	}
	return out, nil
}

// GetUserRoleForAccount implements reposync.ProviderClient.
func (c *Client) GetUserRoleForAccount(ctx context.Context, account reposync.ProviderAccount, user *types.User) (string, bool, error) {
	if account.Type == types.AccountTypeUser {
		if account.ProviderInternalID == user.ProviderInternalID {
			return WorkspaceOwner, true, nil
		}
		return "", false, nil
	}

	perms, err := c.ListWorkspacePermissions(ctx, account.Login)
	if IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	for _, p := range perms {
		if p.Workspace != nil && p.Workspace.UUID == account.ProviderInternalID {
			return p.Permission, true, nil
		}
	}
	return "", false, nil
}

// ListMembers implements reposync.MemberLister.
func (c *Client) ListMembers(ctx context.Context, account reposync.ProviderAccount) ([]reposync.Member, error) {
	members, err := c.ListWorkspaceMembers(ctx, account.Login)
	if err != nil {
		return nil, err
	}
	out := make([]reposync.Member, 0, len(members))
	for _, m := range members {
		if m.User == nil {
			continue
		}
		out = append(out, reposync.Member{
			ProviderInternalID: m.User.UUID,
			Login:              firstNonEmpty(m.User.Nickname, m.User.Username, m.User.DisplayName),
			Permission:         m.Permission,
		})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var (
	_ reposync.ProviderClient = (*Client)(nil)
	_ reposync.MemberLister   = (*Client)(nil)
)
