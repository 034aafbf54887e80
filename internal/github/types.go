// Package github provides the GitHub REST API client and the GitHub
// repository strategy used by the sync engine.
//
// The client covers the read-only endpoints sync needs: the authenticated
// user, their organizations, repository listings with the caller's
// permissions, organization memberships, and member listings.
package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

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
	// This prevents infinite loops from malformed Link headers.
	MaxPages = 1000
)

// Client provides methods to interact with the GitHub REST API.
type Client struct {
	BaseURL    string       // API base URL (default: https://api.github.com)
	HTTPClient *http.Client // Carries the oauth2 transport that authenticates requests
}

// User represents a GitHub user.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Type      string `json:"type,omitempty"` // "User" or "Organization"
	AvatarURL string `json:"avatar_url,omitempty"`
	HTMLURL   string `json:"html_url,omitempty"`
}

// Organization represents an entry of GET /user/orgs.
type Organization struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Description string `json:"description,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	URL         string `json:"url,omitempty"` // API URL
}

// HTMLURL returns the organization's web page.
func (o Organization) HTMLURL() string {
	return "https://github.com/" + o.Login
}

// Permissions is the caller's access to a repository.
type Permissions struct {
	Admin    bool `json:"admin"`
	Maintain bool `json:"maintain"`
	Push     bool `json:"push"`
	Triage   bool `json:"triage"`
	Pull     bool `json:"pull"`
}

// Repository represents a GitHub repository.
type Repository struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	FullName      string       `json:"full_name"`
	Description   string       `json:"description,omitempty"`
	HTMLURL       string       `json:"html_url"`
	DefaultBranch string       `json:"default_branch,omitempty"`
	Language      string       `json:"language,omitempty"`
	Private       bool         `json:"private"`
	Visibility    string       `json:"visibility,omitempty"` // "public", "private", or "internal"
	Archived      bool         `json:"archived,omitempty"`
	Owner         *User        `json:"owner,omitempty"`
	Permissions   *Permissions `json:"permissions,omitempty"`
}

// Membership is the response of GET /orgs/{org}/memberships/{username}.
type Membership struct {
	State string `json:"state"` // "active" or "pending"
	Role  string `json:"role"`  // "admin", "member", or "billing_manager"
	User  *User  `json:"user,omitempty"`
}

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// APIError is a non-2xx response from the GitHub API.
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
