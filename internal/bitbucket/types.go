// Package bitbucket provides the Bitbucket Cloud REST client and repository
// strategy used by the sync engine. Workspaces map to organization accounts.
package bitbucket

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the Bitbucket Cloud REST API base URL.
	DefaultAPIEndpoint = "https://api.bitbucket.org/2.0"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxPageSize is the largest page Bitbucket accepts.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	MaxPages = 1000
)

// Repository permissions as reported by /user/permissions/repositories.
const (
	PermissionAdmin = "admin"
	PermissionWrite = "write"
	PermissionRead  = "read"
)

// Workspace permissions.
const (
	WorkspaceOwner        = "owner"
	WorkspaceCollaborator = "collaborator"
	WorkspaceMember       = "member"
)

// Client provides methods to interact with the Bitbucket Cloud API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client // Carries the oauth2 transport that authenticates requests
}

// Link is a hypermedia link.
type Link struct {
	Href string `json:"href"`
}

// Links holds the links Bitbucket attaches to most resources.
type Links struct {
	HTML   Link `json:"html"`
	Avatar Link `json:"avatar"`
}

// User represents a Bitbucket account.
type User struct {
	UUID        string `json:"uuid"`
	AccountID   string `json:"account_id,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name"`
	Links       Links  `json:"links"`
}

// Workspace represents a Bitbucket workspace.
type Workspace struct {
	UUID  string `json:"uuid"`
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Links Links  `json:"links"`
}

// WorkspacePermission pairs a workspace with the caller's (or a member's) permission.
type WorkspacePermission struct {
	Permission string     `json:"permission"`
	Workspace  *Workspace `json:"workspace,omitempty"`
	User       *User      `json:"user,omitempty"`
}

// Branch is a named branch reference.
type Branch struct {
	Name string `json:"name"`
}

// Repository represents a Bitbucket repository.
type Repository struct {
	UUID       string  `json:"uuid"`
	Name       string  `json:"name"`
	FullName   string  `json:"full_name"`
	IsPrivate  bool    `json:"is_private"`
	Language   string  `json:"language,omitempty"`
	MainBranch *Branch `json:"mainbranch,omitempty"`
	Links      Links   `json:"links"`
}

// RepositoryPermission pairs a repository with the caller's permission.
type RepositoryPermission struct {
	Permission string     `json:"permission"`
	Repository Repository `json:"repository"`
}

// page is the envelope of every paginated Bitbucket response.
type page[T any] struct {
	Values []T    `json:"values"`
	Next   string `json:"next,omitempty"`
}

// APIError is a non-2xx response from the Bitbucket API.
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
