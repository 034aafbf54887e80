package bitbucket

import (
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// UserAccount converts the authenticated user. The login is the personal
// workspace slug, which is what repository listings are keyed by.
func UserAccount(u *User) reposync.ProviderAccount {
	return reposync.ProviderAccount{
		ProviderInternalID: u.UUID,
		Login:              firstNonEmpty(u.Username, u.Nickname, u.AccountID),
		Type:               types.AccountTypeUser,
		AvatarURL:          u.Links.Avatar.Href,
		URL:                u.Links.HTML.Href,
		Metadata:           map[string]string{"display_name": u.DisplayName},
	}
}

// WorkspaceAccount converts a shared workspace.
func WorkspaceAccount(w *Workspace) reposync.ProviderAccount {
	return reposync.ProviderAccount{
		ProviderInternalID: w.UUID,
		Login:              w.Slug,
		Type:               types.AccountTypeOrganization,
		AvatarURL:          w.Links.Avatar.Href,
		URL:                w.Links.HTML.Href,
		Metadata:           map[string]string{"name": w.Name},
	}
}

// ProviderRepository converts a repository with the caller's permission.
func ProviderRepository(r *Repository, permission string) reposync.ProviderRepository {
	pr := reposync.ProviderRepository{
		ProviderInternalID: r.UUID,
		Name:               r.Name,
		FullName:           r.FullName,
		Language:           r.Language,
		Private:            r.IsPrivate,
		Permissions: reposync.Permissions{
			Role:  permission,
			Admin: permission == PermissionAdmin,
			Push:  permission == PermissionAdmin || permission == PermissionWrite,
			Pull:  true,
		},
	}
	if r.MainBranch != nil {
		pr.DefaultBranch = r.MainBranch.Name
	}
	if r.IsPrivate {
		pr.Visibility = "private"
	} else {
		pr.Visibility = "public"
	}
	return pr
}
