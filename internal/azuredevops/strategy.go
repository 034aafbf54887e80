package azuredevops

import (
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

func init() {
	reposync.Register(types.ProviderAzureDevOps, func() reposync.Strategy {
		return &Strategy{}
	})
}

// Strategy applies Azure DevOps Git permissions: Administer is admin,
// Contribute or Administer is write.
type Strategy struct{}

func (s *Strategy) Provider() types.Provider { return types.ProviderAzureDevOps }

func (s *Strategy) ToRepository(repo *reposync.ProviderRepository, accountID int64) *types.Repository {
	return reposync.MapRepository(repo, accountID, repo.Visibility != "public")
}

func (s *Strategy) NeedsUpdate(existing *types.Repository, repo *reposync.ProviderRepository) (*types.Repository, bool) {
	return reposync.DiffRepository(existing, s.ToRepository(repo, existing.AccountID))
}

func (s *Strategy) IsAdmin(repo *reposync.ProviderRepository) bool {
	return repo.Permissions.Role == LevelAdmin
}

func (s *Strategy) HasWriteAccess(repo *reposync.ProviderRepository) bool {
	return repo.Permissions.Role == LevelAdmin || repo.Permissions.Role == LevelContributor
}

func (s *Strategy) AutoEnable() bool { return false }

func (s *Strategy) RoleName(permission string) string {
	switch permission {
	case LevelAdmin:
		return types.RoleAdmin
	case LevelContributor:
		return types.RoleDeveloper
	case LevelReader:
		return types.RoleReader
	}
	return ""
}
