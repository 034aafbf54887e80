package gitlab

import (
	"context"
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

// NewClient creates a new GitLab client for the instance at baseURL.
// An empty baseURL targets gitlab.com.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		Token:   token,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// WithEndpoint returns a new client pointed at a full API endpoint,
// e.g. "https://gitlab.example.com/api/v4".
func (c *Client) WithEndpoint(endpoint string) *Client {
	return &Client{
		Token:      c.Token,
		BaseURL:    strings.TrimSuffix(endpoint, "/"),
		HTTPClient: c.HTTPClient,
	}
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	base := c.BaseURL
	if !strings.HasSuffix(base, DefaultAPIEndpoint) {
		base += DefaultAPIEndpoint
	}
	u := base + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// doRequest performs a GET with authentication and retry logic.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, http.Header, error) {
	body, header, err := rest.Get(ctx, c.HTTPClient, urlStr, rest.Options{
		MaxRetries:      MaxRetries,
		RetryDelay:      RetryDelay,
		MaxResponseSize: maxResponseSize,
		Header: http.Header{
			"Private-Token": {c.Token},
			"Content-Type":  {"application/json"},
		},
	})
	var se *rest.StatusError
	if errors.As(err, &se) {
		return nil, nil, &APIError{StatusCode: se.StatusCode, Body: se.Body}
	}
	return body, header, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	respBody, _, err := c.doRequest(ctx, c.buildURL(path, nil))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

// fetchAll walks every page of a list endpoint using X-Next-Page.
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

		next := headers.Get("X-Next-Page")
		if next == "" {
			break
		}
		nextPage, err := strconv.Atoi(next)
		if err != nil || nextPage <= page {
			break
		}
		page = nextPage

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}

	return all, nil
}

// CurrentUser retrieves the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "/user", &user); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &user, nil
}

// ListGroups retrieves every group and subgroup the user is a member of.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	groups, err := fetchAll[Group](ctx, c, "/groups", map[string]string{
		"min_access_level": strconv.Itoa(AccessGuest),
		"all_available":    "false",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// ListGroupProjects retrieves the projects directly inside a group.
// Subgroup projects are listed under their own subgroup account.
func (c *Client) ListGroupProjects(ctx context.Context, groupID string) ([]Project, error) {
	projects, err := fetchAll[Project](ctx, c, "/groups/"+url.PathEscape(groupID)+"/projects", map[string]string{
		"include_subgroups": "false",
		"min_access_level":  strconv.Itoa(AccessGuest),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects of group %s: %w", groupID, err)
	}
	return projects, nil
}

// ListUserProjects retrieves projects in a user's personal namespace.
func (c *Client) ListUserProjects(ctx context.Context, userID string) ([]Project, error) {
	projects, err := fetchAll[Project](ctx, c, "/users/"+url.PathEscape(userID)+"/projects", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects of user %s: %w", userID, err)
	}
	return projects, nil
}

// GetGroupMember retrieves a member's effective access, inherited grants included.
func (c *Client) GetGroupMember(ctx context.Context, groupID, userID string) (*Member, error) {
	var m Member
	path := "/groups/" + url.PathEscape(groupID) + "/members/all/" + url.PathEscape(userID)
	if err := c.getJSON(ctx, path, &m); err != nil {
		return nil, fmt.Errorf("failed to fetch member %s of group %s: %w", userID, groupID, err)
	}
	return &m, nil
}

// ListGroupMembers retrieves every member of a group, inherited ones included.
func (c *Client) ListGroupMembers(ctx context.Context, groupID string) ([]Member, error) {
	members, err := fetchAll[Member](ctx, c, "/groups/"+url.PathEscape(groupID)+"/members/all", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of group %s: %w", groupID, err)
	}
	return members, nil
}

// GetUserAccounts implements reposync.ProviderClient.
func (c *Client) GetUserAccounts(ctx context.Context) (*reposync.AccountListing, error) {
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := c.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	listing := &reposync.AccountListing{User: UserAccount(user)}
	for _, g := range groups {
		listing.Organizations = append(listing.Organizations, GroupAccount(g))
	}
	return listing, nil
}

// GetRepositories implements reposync.ProviderClient.
func (c *Client) GetRepositories(ctx context.Context, account reposync.ProviderAccount) ([]reposync.ProviderRepository, error) {
	var projects []Project
	var err error
	if account.Type == types.AccountTypeOrganization {
		projects, err = c.ListGroupProjects(ctx, account.ProviderInternalID)
	} else {
		projects, err = c.ListUserProjects(ctx, account.ProviderInternalID)
	}
	if err != nil {
		return nil, err
	}

	out := make([]reposync.ProviderRepository, 0, len(projects))
	for i := range projects {
		if projects[i].Archived {
			continue
		}
		out = append(out, ProviderRepository(&projects[i]))
	}
	return out, nil
}

// GetUserRoleForAccount implements reposync.ProviderClient. The permission is
// the decimal access level; the owner of a personal namespace is an owner.
func (c *Client) GetUserRoleForAccount(ctx context.Context, account reposync.ProviderAccount, user *types.User) (string, bool, error) {
	if account.Type == types.AccountTypeUser {
		if account.ProviderInternalID == user.ProviderInternalID {
			return strconv.Itoa(AccessOwner), true, nil
		}
		return "", false, nil
	}

	m, err := c.GetGroupMember(ctx, account.ProviderInternalID, user.ProviderInternalID)
	if IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strconv.Itoa(m.AccessLevel), true, nil
}

// ListMembers implements reposync.MemberLister.
func (c *Client) ListMembers(ctx context.Context, account reposync.ProviderAccount) ([]reposync.Member, error) {
	members, err := c.ListGroupMembers(ctx, account.ProviderInternalID)
	if err != nil {
		return nil, err
	}
	out := make([]reposync.Member, 0, len(members))
	for _, m := range members {
		if m.State != "" && m.State != "active" {
			continue
		}
		out = append(out, reposync.Member{
			ProviderInternalID: strconv.FormatInt(m.ID, 10),
			Login:              m.Username,
			Email:              m.Email,
			Permission:         strconv.Itoa(m.AccessLevel),
		})
	}
	return out, nil
}

var (
	_ reposync.ProviderClient = (*Client)(nil)
	_ reposync.MemberLister   = (*Client)(nil)
)
