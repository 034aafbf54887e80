package gitlab

import (
	"strconv"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

func init() {
	reposync.Register(types.ProviderGitLab, func() reposync.Strategy {
		return &Strategy{}
	})
}

// Strategy applies GitLab access levels: maintainer and above is admin,
// developer and above can write. Anything but public visibility is private.
type Strategy struct{}

func (s *Strategy) Provider() types.Provider { return types.ProviderGitLab }

func (s *Strategy) ToRepository(repo *reposync.ProviderRepository, accountID int64) *types.Repository {
	return reposync.MapRepository(repo, accountID, repo.Visibility != "public")
}

func (s *Strategy) NeedsUpdate(existing *types.Repository, repo *reposync.ProviderRepository) (*types.Repository, bool) {
	return reposync.DiffRepository(existing, s.ToRepository(repo, existing.AccountID))
}

func (s *Strategy) IsAdmin(repo *reposync.ProviderRepository) bool {
	return repo.Permissions.AccessLevel >= AccessMaintainer
}

func (s *Strategy) HasWriteAccess(repo *reposync.ProviderRepository) bool {
	return repo.Permissions.AccessLevel >= AccessDeveloper
}

func (s *Strategy) AutoEnable() bool { return false }

// RoleName maps a decimal access level onto the role table.
func (s *Strategy) RoleName(permission string) string {
	level, err := strconv.Atoi(permission)
	if err != nil {
		return ""
	}
	switch {
	case level >= AccessOwner:
		return types.RoleAdmin
	case level >= AccessMaintainer:
		return types.RoleMaintainer
	case level >= AccessDeveloper:
		return types.RoleDeveloper
	case level >= AccessGuest:
		return types.RoleReader
	}
	return ""
}
