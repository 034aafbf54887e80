package azuredevops

import (
	"strings"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// UserAccount converts the authenticated identity.
func UserAccount(id Identity) reposync.ProviderAccount {
	login := id.Properties.Account.Value
	if login == "" {
		login = id.ProviderDisplayName
	}
	return reposync.ProviderAccount{
		ProviderInternalID: id.ID,
		Login:              login,
		Type:               types.AccountTypeUser,
		Metadata:           map[string]string{"display_name": id.ProviderDisplayName},
	}
}

// OrganizationAccount is the root account for the organization.
func OrganizationAccount(instanceID, name, baseURL string) reposync.ProviderAccount {
	return reposync.ProviderAccount{
		ProviderInternalID: instanceID,
		Login:              name,
		Type:               types.AccountTypeOrganization,
		URL:                baseURL,
	}
}

// ProjectAccount converts a team project into a child of the organization.
func ProjectAccount(p Project, org reposync.ProviderAccount, baseURL string) reposync.ProviderAccount {
	pa := reposync.ProviderAccount{
		ProviderInternalID: p.ID,
		Login:              org.Login + "/" + p.Name,
		Type:               types.AccountTypeOrganization,
		ParentProviderID:   org.ProviderInternalID,
		URL:                baseURL + "/" + p.Name,
		Metadata:           map[string]string{"project": p.Name, "visibility": p.Visibility},
	}
	return pa
}

// ProviderRepository converts a repository with the caller's permission level.
// Visibility is inherited from the project.
func ProviderRepository(r *Repository, level string) reposync.ProviderRepository {
	return reposync.ProviderRepository{
		ProviderInternalID: r.ID,
		Name:               r.Name,
		FullName:           r.Project.Name + "/" + r.Name,
		DefaultBranch:      strings.TrimPrefix(r.DefaultBranch, "refs/heads/"),
		Visibility:         r.Project.Visibility,
		Private:            r.Project.Visibility != "public",
		Permissions: reposync.Permissions{
			Role:  level,
			Admin: level == LevelAdmin,
			Push:  level == LevelAdmin || level == LevelContributor,
			Pull:  level != "",
		},
	}
}
