package github

import (
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

func init() {
	reposync.Register(types.ProviderGitHub, func() reposync.Strategy {
		return &Strategy{}
	})
}

// Strategy applies GitHub's permission model: admin is the admin bit, write
// is push, maintain, or admin. New GitHub repositories start enabled.
type Strategy struct{}

func (s *Strategy) Provider() types.Provider { return types.ProviderGitHub }

func (s *Strategy) ToRepository(repo *reposync.ProviderRepository, accountID int64) *types.Repository {
	return reposync.MapRepository(repo, accountID, repo.Private)
}

func (s *Strategy) NeedsUpdate(existing *types.Repository, repo *reposync.ProviderRepository) (*types.Repository, bool) {
	return reposync.DiffRepository(existing, s.ToRepository(repo, existing.AccountID))
}

func (s *Strategy) IsAdmin(repo *reposync.ProviderRepository) bool {
	return repo.Permissions.Admin
}

func (s *Strategy) HasWriteAccess(repo *reposync.ProviderRepository) bool {
	p := repo.Permissions
	return p.Admin || p.Maintain || p.Push
}

func (s *Strategy) AutoEnable() bool { return true }

// RoleName maps organization membership roles. Billing managers get no role.
func (s *Strategy) RoleName(permission string) string {
	switch permission {
	case RoleAdmin:
		return types.RoleAdmin
	case RoleMember:
		return types.RoleDeveloper
	}
	return ""
}
