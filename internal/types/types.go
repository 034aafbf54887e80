// Package types defines core data structures for the reposync catalog.
package types

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Provider identifies an external code-hosting system.
type Provider string

const (
	ProviderGitHub      Provider = "github"
	ProviderGitLab      Provider = "gitlab"
	ProviderBitbucket   Provider = "bitbucket"
	ProviderAzureDevOps Provider = "azuredevops"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderGitHub, ProviderGitLab, ProviderBitbucket, ProviderAzureDevOps}

// IsValid checks if the provider value is one we know how to sync.
func (p Provider) IsValid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProvider normalizes user input ("GitHub", "azure-devops") into a Provider.
func ParseProvider(s string) (Provider, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	p := Provider(normalized)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown provider %q (supported: %v)", s, Providers)
	}
	return p, nil
}

// AccountType distinguishes personal accounts from organizations/groups/workspaces.
type AccountType string

const (
	AccountTypeUser         AccountType = "USER"
	AccountTypeOrganization AccountType = "ORGANIZATION"
)

// Account is an internal record for a user or organization recognized from a provider.
// (Provider, ProviderInternalID, Type) is unique.
type Account struct {
	ID                       int64             `json:"id"`
	Provider                 Provider          `json:"provider"`
	ProviderInternalID       string            `json:"provider_internal_id"`
	Type                     AccountType       `json:"type"`
	Login                    string            `json:"login"`
	ParentAccountID          *int64            `json:"parent_account_id,omitempty"`
	CLIToken                 string            `json:"-"`
	AvatarURL                string            `json:"avatar_url,omitempty"`
	URL                      string            `json:"url,omitempty"`
	ProviderMetadata         map[string]string `json:"provider_metadata,omitempty"`
	FilterReposByWriteAccess bool              `json:"filter_repos_by_write_access"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

// IsRoot reports whether the account sits at the top of its hierarchy.
func (a *Account) IsRoot() bool {
	return a.ParentAccountID == nil
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.ParentAccountID != nil {
		parent := *a.ParentAccountID
		c.ParentAccountID = &parent
	}
	c.ProviderMetadata = maps.Clone(a.ProviderMetadata)
	return &c
}

// AccountPatch carries the mutable account fields. Nil fields are left untouched.
type AccountPatch struct {
	Login            *string
	ParentAccountID  *int64
	AvatarURL        *string
	URL              *string
	ProviderMetadata map[string]string
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.Login == nil && p.ParentAccountID == nil && p.AvatarURL == nil &&
		p.URL == nil && p.ProviderMetadata == nil
}

// Apply writes the patch onto a.
func (p AccountPatch) Apply(a *Account) {
	if p.Login != nil {
		a.Login = *p.Login
	}
	if p.ParentAccountID != nil {
		parent := *p.ParentAccountID
		a.ParentAccountID = &parent
	}
	if p.AvatarURL != nil {
		a.AvatarURL = *p.AvatarURL
	}
	if p.URL != nil {
		a.URL = *p.URL
	}
	if p.ProviderMetadata != nil {
		a.ProviderMetadata = maps.Clone(p.ProviderMetadata)
	}
}

// Repository is an internal record for a provider repository owned by an Account.
// A non-nil ParentRepositoryID marks a monorepo sub-repository.
type Repository struct {
	ID                 int64     `json:"id"`
	AccountID          int64     `json:"account_id"`
	ProviderInternalID string    `json:"provider_internal_id"`
	Name               string    `json:"name"`
	FullName           string    `json:"full_name"`
	IsPrivate          bool      `json:"is_private"`
	IsEnabled          bool      `json:"is_enabled"`
	Language           string    `json:"language,omitempty"`
	DefaultBranch      string    `json:"default_branch,omitempty"`
	ParentRepositoryID *int64    `json:"parent_repository_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsSubRepository reports whether r is a monorepo sub-repository.
func (r *Repository) IsSubRepository() bool {
	return r.ParentRepositoryID != nil
}

// Clone returns a deep copy of the repository.
func (r *Repository) Clone() *Repository {
	if r == nil {
		return nil
	}
	c := *r
	if r.ParentRepositoryID != nil {
		parent := *r.ParentRepositoryID
		c.ParentRepositoryID = &parent
	}
	return &c
}

// Subscription binds a root account to a billing plan.
type Subscription struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	PlanCode  string    `json:"plan_code"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscriptionAction names a changelog entry kind.
type SubscriptionAction string

const (
	SubscriptionCreated SubscriptionAction = "created"
)

// SubscriptionChangelog audits a subscription change.
type SubscriptionChangelog struct {
	ID             int64              `json:"id"`
	SubscriptionID int64              `json:"subscription_id"`
	AccountID      int64              `json:"account_id"`
	Action         SubscriptionAction `json:"action"`
	PlanCode       string             `json:"plan_code"`
	ActorID        int64              `json:"actor_id"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Role names understood by the catalog.
const (
	RoleAdmin      = "admin"
	RoleMaintainer = "maintainer"
	RoleDeveloper  = "developer"
	RoleReader     = "reader"
)

// DefaultRoles is the seed content of the role lookup table.
var DefaultRoles = []string{RoleAdmin, RoleMaintainer, RoleDeveloper, RoleReader}

// Role is a row of the role lookup table.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UserRole associates a user with an account at a given role.
// RoleOverwrittenAt pins the role against provider-driven updates.
type UserRole struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	AccountID          int64      `json:"account_id"`
	RoleID             int64      `json:"role_id"`
	ProviderInternalID string     `json:"provider_internal_id"`
	RoleOverwrittenAt  *time.Time `json:"role_overwritten_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// User is a person known to the catalog through a provider identity.
type User struct {
	ID                 int64     `json:"id"`
	Provider           Provider  `json:"provider"`
	ProviderInternalID string    `json:"provider_internal_id"`
	Login              string    `json:"login"`
	Email              string    `json:"email,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Policy is the authorization policy bootstrapped for an account.
type Policy struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AllowedRepositories splits the repositories a user may see by access level.
// A repository id never appears in both lists.
type AllowedRepositories struct {
	Read  []int64 `json:"read"`
	Admin []int64 `json:"admin"`
}

// Add files id under admin or read.
func (a *AllowedRepositories) Add(id int64, admin bool) {
	if admin {
		a.Admin = append(a.Admin, id)
		return
	}
	a.Read = append(a.Read, id)
}

// AccountSummary is the per-account entry of a sync result.
type AccountSummary struct {
	Login               string              `json:"login"`
	Provider            Provider            `json:"provider"`
	AvatarURL           string              `json:"avatar_url,omitempty"`
	URL                 string              `json:"url,omitempty"`
	AllowedRepositories AllowedRepositories `json:"allowed_repositories"`
}
