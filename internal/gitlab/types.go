// Package gitlab provides the GitLab REST API client and the GitLab
// repository strategy used by the sync engine.
//
// Groups and subgroups map to organization accounts, projects map to
// repositories, and numeric access levels drive admin and write access.
package gitlab

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitLab API v4 endpoint suffix.
	DefaultAPIEndpoint = "/api/v4"

	// DefaultURL is the GitLab SaaS instance.
	DefaultURL = "https://gitlab.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	maxResponseSize = 50 * 1024 * 1024

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed X-Next-Page headers.
	MaxPages = 1000
)

// Access levels as defined by the GitLab permissions model.
const (
	AccessNone       = 0
	AccessMinimal    = 5
	AccessGuest      = 10
	AccessReporter   = 20
	AccessDeveloper  = 30
	AccessMaintainer = 40
	AccessOwner      = 50
)

// Client provides methods to interact with the GitLab REST API.
type Client struct {
	Token      string       // GitLab personal access token or OAuth token
	BaseURL    string       // GitLab instance URL (e.g., "https://gitlab.com/api/v4")
	HTTPClient *http.Client // Optional custom HTTP client
}

// User represents a GitLab user.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	WebURL    string `json:"web_url,omitempty"`
	State     string `json:"state,omitempty"` // "active", "blocked", etc.
}

// Group represents a GitLab group or subgroup.
type Group struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	FullPath  string `json:"full_path"`
	ParentID  *int64 `json:"parent_id"`
	AvatarURL string `json:"avatar_url,omitempty"`
	WebURL    string `json:"web_url,omitempty"`
}

// Access is one level grant on a project.
type Access struct {
	AccessLevel int `json:"access_level"`
}

// ProjectPermissions holds the caller's direct and inherited access.
type ProjectPermissions struct {
	ProjectAccess *Access `json:"project_access"`
	GroupAccess   *Access `json:"group_access"`
}

// Level returns the higher of the project and group grants.
func (p *ProjectPermissions) Level() int {
	if p == nil {
		return AccessNone
	}
	level := AccessNone
	if p.ProjectAccess != nil && p.ProjectAccess.AccessLevel > level {
		level = p.ProjectAccess.AccessLevel
	}
	if p.GroupAccess != nil && p.GroupAccess.AccessLevel > level {
		level = p.GroupAccess.AccessLevel
	}
	return level
}

// Project represents a GitLab project.
type Project struct {
	ID                int64               `json:"id"`
	Name              string              `json:"name"`
	Path              string              `json:"path"`
	PathWithNamespace string              `json:"path_with_namespace"`
	DefaultBranch     string              `json:"default_branch,omitempty"`
	Visibility        string              `json:"visibility"` // "private", "internal", or "public"
	WebURL            string              `json:"web_url,omitempty"`
	Archived          bool                `json:"archived,omitempty"`
	Permissions       *ProjectPermissions `json:"permissions,omitempty"`
}

// Member is an entry of a group member listing.
type Member struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	State       string `json:"state,omitempty"`
	AccessLevel int    `json:"access_level"`
}

// APIError is a non-2xx response from the GitLab API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Body, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
