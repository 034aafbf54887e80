package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/rest"
	"github.com/steveyegge/reposync/internal/types"
)

// NewClient creates a client authenticated with a personal access or OAuth token.
func NewClient(token string) *Client {
	return NewClientFromTokenSource(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// NewClientFromTokenSource creates a client whose requests carry tokens from ts.
func NewClientFromTokenSource(ctx context.Context, ts oauth2.TokenSource) *Client {
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = DefaultTimeout
	return &Client{
		BaseURL:    DefaultAPIEndpoint,
		HTTPClient: httpClient,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing or GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: c.HTTPClient,
	}
}

// buildURL constructs a full API URL.
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

// doRequest performs a GET with retry on rate limiting. GitHub signals
// exhausted quota with 429, or 403 and X-RateLimit-Remaining: 0.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, http.Header, error) {
	body, header, err := rest.Get(ctx, c.HTTPClient, urlStr, rest.Options{
		MaxRetries:      MaxRetries,
		RetryDelay:      RetryDelay,
		MaxResponseSize: maxResponseSize,
		Header: http.Header{
			"Accept":               {"application/vnd.github+json"},
			"X-Github-Api-Version": {"2022-11-28"},
		},
		RateLimited: func(resp *http.Response) bool {
			return resp.StatusCode == http.StatusTooManyRequests ||
				(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")
		},
	})
	var se *rest.StatusError
	if errors.As(err, &se) {
		return nil, nil, &APIError{StatusCode: se.StatusCode, Body: se.Body}
	}
	return body, header, err
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// getJSON fetches a single resource into out.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, out any) error {
	respBody, _, err := c.doRequest(ctx, c.buildURL(path, params))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

// fetchAll walks every page of a list endpoint.
func fetchAll[T any](ctx context.Context, c *Client, path string, params map[string]string) ([]T, error) {
	var all []T
	page := 1

	for {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		p := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		for k, v := range params {
			p[k] = v
		}

		respBody, headers, err := c.doRequest(ctx, c.buildURL(path, p))
		if err != nil {
			return nil, err
		}

		var items []T
		if err := json.Unmarshal(respBody, &items); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", path, err)
		}
		all = append(all, items...)

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}

	return all, nil
}

// CurrentUser retrieves the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "/user", nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &user, nil
}

// ListOrganizations retrieves the organizations the authenticated user belongs to.
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	orgs, err := fetchAll[Organization](ctx, c, "/user/orgs", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

// ListOrgRepositories retrieves every repository of an organization visible to the caller.
func (c *Client) ListOrgRepositories(ctx context.Context, org string) ([]Repository, error) {
	repos, err := fetchAll[Repository](ctx, c, "/orgs/"+url.PathEscape(org)+"/repos", map[string]string{"type": "all"})
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories of %s: %w", org, err)
	}
	return repos, nil
}

// ListUserRepositories retrieves repositories owned by the authenticated user.
func (c *Client) ListUserRepositories(ctx context.Context) ([]Repository, error) {
	repos, err := fetchAll[Repository](ctx, c, "/user/repos", map[string]string{"affiliation": "owner"})
	if err != nil {
		return nil, fmt.Errorf("failed to list user repositories: %w", err)
	}
	return repos, nil
}

// GetMembership retrieves a user's membership in an organization.
func (c *Client) GetMembership(ctx context.Context, org, username string) (*Membership, error) {
	var m Membership
	path := "/orgs/" + url.PathEscape(org) + "/memberships/" + url.PathEscape(username)
	if err := c.getJSON(ctx, path, nil, &m); err != nil {
		return nil, fmt.Errorf("failed to fetch membership of %s in %s: %w", username, org, err)
	}
	return &m, nil
}

// ListMembersWithRole retrieves organization members filtered by role ("admin" or "member").
func (c *Client) ListMembersWithRole(ctx context.Context, org, role string) ([]User, error) {
	users, err := fetchAll[User](ctx, c, "/orgs/"+url.PathEscape(org)+"/members", map[string]string{"role": role})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s members of %s: %w", role, org, err)
	}
	return users, nil
}

// GetUserAccounts implements reposync.ProviderClient.
func (c *Client) GetUserAccounts(ctx context.Context) (*reposync.AccountListing, error) {
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	orgs, err := c.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}

	listing := &reposync.AccountListing{User: UserAccount(user)}
	for _, o := range orgs {
		listing.Organizations = append(listing.Organizations, OrganizationAccount(o))
	}
	return listing, nil
}

// GetRepositories implements reposync.ProviderClient.
func (c *Client) GetRepositories(ctx context.Context, account reposync.ProviderAccount) ([]reposync.ProviderRepository, error) {
	var repos []Repository
	var err error
	if account.Type == types.AccountTypeOrganization {
		repos, err = c.ListOrgRepositories(ctx, account.Login)
	} else {
		repos, err = c.ListUserRepositories(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]reposync.ProviderRepository, 0, len(repos))
	for i := range repos {
		out = append(out, ProviderRepository(&repos[i]))
	}
	return out, nil
}

// GetUserRoleForAccount implements reposync.ProviderClient. The owner of a
// personal account is its admin; for organizations the active membership
// role is returned. Pending or missing memberships report no role.
func (c *Client) GetUserRoleForAccount(ctx context.Context, account reposync.ProviderAccount, user *types.User) (string, bool, error) {
	if account.Type == types.AccountTypeUser {
		if account.ProviderInternalID == user.ProviderInternalID {
			return RoleAdmin, true, nil
		}
		return "", false, nil
	}

	m, err := c.GetMembership(ctx, account.Login, user.Login)
	if IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if m.State != "active" {
		return "", false, nil
	}
	return m.Role, true, nil
}

// ListMembers implements reposync.MemberLister. Admins are listed first; a
// login appearing in both listings keeps the admin role.
func (c *Client) ListMembers(ctx context.Context, account reposync.ProviderAccount) ([]reposync.Member, error) {
	seen := make(map[int64]bool)
	var out []reposync.Member
	for _, role := range []string{RoleAdmin, RoleMember} {
		users, err := c.ListMembersWithRole(ctx, account.Login, role)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			out = append(out, reposync.Member{
				ProviderInternalID: strconv.FormatInt(u.ID, 10),
				Login:              u.Login,
				Email:              u.Email,
				Permission:         role,
			})
		}
	}
	return out, nil
}

var (
	_ reposync.ProviderClient = (*Client)(nil)
	_ reposync.MemberLister   = (*Client)(nil)
)
