package gitlab

import (
	"strconv"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// UserAccount converts the authenticated user into their personal namespace account.
func UserAccount(u *User) reposync.ProviderAccount {
	pa := reposync.ProviderAccount{
		ProviderInternalID: strconv.FormatInt(u.ID, 10),
		Login:              u.Username,
		Type:               types.AccountTypeUser,
		AvatarURL:          u.AvatarURL,
		URL:                u.WebURL,
	}
	if u.Name != "" {
		pa.Metadata = map[string]string{"name": u.Name}
	}
	return pa
}

// GroupAccount converts a group. Subgroups keep a link to their parent and
// use the full path as login, since short paths are only unique per parent.
func GroupAccount(g Group) reposync.ProviderAccount {
	pa := reposync.ProviderAccount{
		ProviderInternalID: strconv.FormatInt(g.ID, 10),
		Login:              g.FullPath,
		Type:               types.AccountTypeOrganization,
		AvatarURL:          g.AvatarURL,
		URL:                g.WebURL,
		Metadata:           map[string]string{"name": g.Name},
	}
	if pa.Login == "" {
		pa.Login = g.Path
	}
	if g.ParentID != nil {
		pa.ParentProviderID = strconv.FormatInt(*g.ParentID, 10)
	}
	return pa
}

// ProviderRepository converts a project and the caller's effective access level.
func ProviderRepository(p *Project) reposync.ProviderRepository {
	level := p.Permissions.Level()
	return reposync.ProviderRepository{
		ProviderInternalID: strconv.FormatInt(p.ID, 10),
		Name:               p.Name,
		FullName:           p.PathWithNamespace,
		DefaultBranch:      p.DefaultBranch,
		Visibility:         p.Visibility,
		Private:            p.Visibility != "public",
		Permissions: reposync.Permissions{
			AccessLevel: level,
			Admin:       level >= AccessMaintainer,
			Push:        level >= AccessDeveloper,
			Pull:        level >= AccessGuest,
		},
	}
}
