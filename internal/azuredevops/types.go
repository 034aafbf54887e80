// Package azuredevops provides the Azure DevOps REST client and repository
// strategy used by the sync engine.
//
// A client is bound to one organization. The organization is the root
// account and each team project is a child account owning Git repositories.
package azuredevops

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// API constants
const (
	DefaultTimeout = 30 * time.Second
	MaxPageSize    = 200
	APIVersion     = "7.1"

	// MaxRetries bounds retries of throttled (429) requests.
	MaxRetries = 3
	RetryDelay = time.Second
)

// Git repository security namespace and its permission bits.
const (
	GitSecurityNamespace = "2e9eb7ed-3c0a-47d4-87c1-0ffdd275fd87"

	PermAdminister        = 1
	PermGenericRead       = 2
	PermGenericContribute = 4
)

// Permission levels reported for repositories and accounts.
const (
	LevelAdmin       = "admin"
	LevelContributor = "contributor"
	LevelReader      = "reader"
)

// Identity represents an Azure DevOps user identity.
type Identity struct {
	ID                  string `json:"id"`
	ProviderDisplayName string `json:"providerDisplayName"`
	Properties          struct {
		Account struct {
			Value string `json:"$value"`
		} `json:"Account"`
	} `json:"properties"`
}

// ConnectionData is the response of GET {org}/_apis/connectionData.
type ConnectionData struct {
	AuthenticatedUser Identity `json:"authenticatedUser"`
	InstanceID        string   `json:"instanceId"`
}

// Project represents an Azure DevOps team project.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	State       string `json:"state"`
	Visibility  string `json:"visibility"` // "private" or "public"
}

// ProjectListResponse is the response from listing projects.
type ProjectListResponse struct {
	Count int       `json:"count"`
	Value []Project `json:"value"`
}

// Repository is a Git repository inside a project.
type Repository struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	DefaultBranch string  `json:"defaultBranch,omitempty"` // "refs/heads/main"
	WebURL        string  `json:"webUrl,omitempty"`
	IsDisabled    bool    `json:"isDisabled,omitempty"`
	IsFork        bool    `json:"isFork,omitempty"`
	Project       Project `json:"project"`
}

// RepositoryListResponse is the response from listing repositories.
type RepositoryListResponse struct {
	Count int          `json:"count"`
	Value []Repository `json:"value"`
}

// PermissionsResponse is the response of the permissions evaluation API; one
// boolean per requested token, in order.
type PermissionsResponse struct {
	Count int    `json:"count"`
	Value []bool `json:"value"`
}

// APIError is a non-2xx response from the Azure DevOps API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
