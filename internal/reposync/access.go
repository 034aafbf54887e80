package reposync

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

type roleChange int

const (
	roleUnchanged roleChange = iota
	roleCreated
	roleUpdated
	rolePinned
)

func (c roleChange) count(stats *SyncStats) {
	switch c {
	case roleCreated:
		stats.RolesCreated++
	case roleUpdated:
		stats.RolesUpdated++
	case rolePinned:
		stats.RolesPinned++
	}
}

// syncUserRole refreshes the session user's role on one account from the
// provider's permission level. A denied lookup is not an error.
func (e *Engine) syncUserRole(ctx context.Context, sess *Session, strategy Strategy, pa ProviderAccount, account *types.Account, roles map[string]*types.Role) (roleChange, error) {
	permission, ok, err := sess.Client.GetUserRoleForAccount(ctx, pa, sess.User)
	if err != nil {
		return roleUnchanged, upstream(sess.Provider, "GetUserRoleForAccount", err)
	}
	if !ok {
		e.logger.Debug("provider denied role lookup", "account", account.Login)
		return roleUnchanged, nil
	}

	role, err := lookupRole(roles, strategy, permission)
	if err != nil || role == nil {
		return roleUnchanged, err
	}
	return e.upsertUserRole(ctx, sess.User.ID, sess.User.ProviderInternalID, account.ID, role)
}

// upsertUserRole creates the association, or moves it to role unless an
// administrator pinned it.
func (e *Engine) upsertUserRole(ctx context.Context, userID int64, providerInternalID string, accountID int64, role *types.Role) (roleChange, error) {
	existing, err := e.store.FindUserRole(ctx, userID, providerInternalID, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		ur := &types.UserRole{
			UserID:             userID,
			AccountID:          accountID,
			RoleID:             role.ID,
			ProviderInternalID: providerInternalID,
		}
		if err := e.store.CreateUserRole(ctx, ur); err != nil {
			return roleUnchanged, fmt.Errorf("create user role: %w", err)
		}
		return roleCreated, nil
	}
	if err != nil {
		return roleUnchanged, fmt.Errorf("find user role: %w", err)
	}

	if existing.RoleOverwrittenAt != nil {
		return rolePinned, nil
	}
	if existing.RoleID == role.ID {
		return roleUnchanged, nil
	}
	if err := e.store.UpdateUserRole(ctx, existing.ID, role.ID); err != nil {
		return roleUnchanged, fmt.Errorf("update user role: %w", err)
	}
	return roleUpdated, nil
}

// lookupRole maps a provider permission onto the role table. A nil role with
// a nil error means the permission grants no role.
func lookupRole(roles map[string]*types.Role, strategy Strategy, permission string) (*types.Role, error) {
	name := strategy.RoleName(permission)
	if name == "" {
		return nil, nil
	}
	role, ok := roles[name]
	if !ok {
		return nil, fmt.Errorf("role %q for %s permission %q: %w", name, strategy.Provider(), permission, storage.ErrNotFound)
	}
	return role, nil
}

func indexRoles(roles []*types.Role) map[string]*types.Role {
	m := make(map[string]*types.Role, len(roles))
	for _, r := range roles {
		m[r.Name] = r
	}
	return m
}
