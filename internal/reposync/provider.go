// Package reposync keeps the internal account and repository catalog in step
// with what a code-hosting provider reports for the syncing user.
//
// The Engine runs the account reconciler, then fans out one branch per
// account that deduplicates stored repositories, reconciles them against the
// provider listing, and refreshes the user's role. Provider differences live
// behind the Strategy interface; provider I/O lives behind ProviderClient.
package reposync

import (
	"context"
	"fmt"

	"github.com/steveyegge/reposync/internal/types"
)

// ProviderAccount is an organization, group, workspace, or personal account
// as reported by a provider.
type ProviderAccount struct {
	ProviderInternalID string            `json:"id"`
	Login              string            `json:"login"`
	Type               types.AccountType `json:"type"`
	// ParentProviderID is the provider id of the enclosing group, if any
	// (GitLab subgroups, Azure DevOps projects under an organization).
	ParentProviderID string            `json:"parent_id,omitempty"`
	AvatarURL        string            `json:"avatar_url,omitempty"`
	URL              string            `json:"url,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// AccountListing is everything GetUserAccounts returns: the user's own
// account plus every organization visible to them.
type AccountListing struct {
	User          ProviderAccount   `json:"user"`
	Organizations []ProviderAccount `json:"organizations"`
}

// Permissions is the union of the permission shapes the providers report.
// Each Strategy reads the fields its provider fills in.
type Permissions struct {
	// GitHub
	Admin    bool `json:"admin,omitempty"`
	Maintain bool `json:"maintain,omitempty"`
	Push     bool `json:"push,omitempty"`
	Triage   bool `json:"triage,omitempty"`
	Pull     bool `json:"pull,omitempty"`
	// GitLab numeric access level (10 guest .. 50 owner)
	AccessLevel int `json:"access_level,omitempty"`
	// Bitbucket and Azure DevOps role name
	Role string `json:"role,omitempty"`
}

// ProviderRepository is a repository as reported by a provider.
type ProviderRepository struct {
	ProviderInternalID string      `json:"id"`
	Name               string      `json:"name"`
	FullName           string      `json:"full_name"`
	Language           string      `json:"language,omitempty"`
	DefaultBranch      string      `json:"default_branch,omitempty"`
	Visibility         string      `json:"visibility,omitempty"`
	Private            bool        `json:"private"`
	Permissions        Permissions `json:"permissions"`
}

// Member is a user listed as a member of a provider organization.
type Member struct {
	ProviderInternalID string `json:"id"`
	Login              string `json:"login"`
	Email              string `json:"email,omitempty"`
	// Permission is the provider's raw permission level, mapped through
	// Strategy.RoleName.
	Permission string `json:"permission"`
}

// ProviderClient is the provider I/O the engine consumes.
type ProviderClient interface {
	GetUserAccounts(ctx context.Context) (*AccountListing, error)
	GetRepositories(ctx context.Context, account ProviderAccount) ([]ProviderRepository, error)
	// GetUserRoleForAccount returns the user's raw permission level on the
	// account. ok is false when the provider denies the lookup.
	GetUserRoleForAccount(ctx context.Context, account ProviderAccount, user *types.User) (permission string, ok bool, err error)
}

// MemberLister is implemented by clients that can enumerate organization members.
type MemberLister interface {
	ListMembers(ctx context.Context, account ProviderAccount) ([]Member, error)
}

// Session is the explicit provider and credentials context of one sync.
type Session struct {
	Provider types.Provider
	User     *types.User
	Client   ProviderClient

	// Accounts is the listing already fetched from Client for this session.
	// Nil means ReconcileAccounts fetches it.
	Accounts *AccountListing
}

func (s *Session) validate() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	case !s.Provider.IsValid():
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidSession, s.Provider)
	case s.User == nil || s.User.ID == 0:
		return fmt.Errorf("%w: session has no stored user", ErrInvalidSession)
	case s.Client == nil:
		return fmt.Errorf("%w: session has no provider client", ErrInvalidSession)
	}
	return nil
}
