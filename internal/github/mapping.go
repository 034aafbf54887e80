package github

import (
	"strconv"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// UserAccount converts the authenticated user into a personal provider account.
func UserAccount(u *User) reposync.ProviderAccount {
	pa := reposync.ProviderAccount{
		ProviderInternalID: strconv.FormatInt(u.ID, 10),
		Login:              u.Login,
		Type:               types.AccountTypeUser,
		AvatarURL:          u.AvatarURL,
		URL:                u.HTMLURL,
	}
	if u.Name != "" {
		pa.Metadata = map[string]string{"name": u.Name}
	}
	return pa
}

// OrganizationAccount converts an organization listing entry. GitHub
// organizations are always top-level.
func OrganizationAccount(o Organization) reposync.ProviderAccount {
	pa := reposync.ProviderAccount{
		ProviderInternalID: strconv.FormatInt(o.ID, 10),
		Login:              o.Login,
		Type:               types.AccountTypeOrganization,
		AvatarURL:          o.AvatarURL,
		URL:                o.HTMLURL(),
	}
	if o.Description != "" {
		pa.Metadata = map[string]string{"description": o.Description}
	}
	return pa
}

// ProviderRepository converts a repository and the caller's permissions.
// A missing permissions block grants read access only.
func ProviderRepository(r *Repository) reposync.ProviderRepository {
	pr := reposync.ProviderRepository{
		ProviderInternalID: strconv.FormatInt(r.ID, 10),
		Name:               r.Name,
		FullName:           r.FullName,
		Language:           r.Language,
		DefaultBranch:      r.DefaultBranch,
		Visibility:         r.Visibility,
		Private:            r.Private,
		Permissions:        reposync.Permissions{Pull: true},
	}
	if p := r.Permissions; p != nil {
		pr.Permissions = reposync.Permissions{
			Admin:    p.Admin,
			Maintain: p.Maintain,
			Push:     p.Push,
			Triage:   p.Triage,
			Pull:     p.Pull,
		}
	}
	return pr
}
