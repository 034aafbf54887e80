package bitbucket

import (
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

func init() {
	reposync.Register(types.ProviderBitbucket, func() reposync.Strategy {
		return &Strategy{}
	})
}

// Strategy applies Bitbucket repository permissions (admin, write, read)
// and maps workspace permissions onto roles.
type Strategy struct{}

func (s *Strategy) Provider() types.Provider { return types.ProviderBitbucket }

func (s *Strategy) ToRepository(repo *reposync.ProviderRepository, accountID int64) *types.Repository {
	return reposync.MapRepository(repo, accountID, repo.Private)
}

func (s *Strategy) NeedsUpdate(existing *types.Repository, repo *reposync.ProviderRepository) (*types.Repository, bool) {
	return reposync.DiffRepository(existing, s.ToRepository(repo, existing.AccountID))
}

func (s *Strategy) IsAdmin(repo *reposync.ProviderRepository) bool {
	return repo.Permissions.Role == PermissionAdmin
}

func (s *Strategy) HasWriteAccess(repo *reposync.ProviderRepository) bool {
	return repo.Permissions.Role == PermissionAdmin || repo.Permissions.Role == PermissionWrite
}

func (s *Strategy) AutoEnable() bool { return false }

func (s *Strategy) RoleName(permission string) string {
	switch permission {
	case WorkspaceOwner:
		return types.RoleAdmin
	case WorkspaceCollaborator:
		return types.RoleDeveloper
	case WorkspaceMember:
		return types.RoleReader
	}
	return ""
}
