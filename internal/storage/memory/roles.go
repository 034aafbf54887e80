package memory

import (
	"context"
	"fmt"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

func (m *MemoryStorage) FindAllRoles(_ context.Context) ([]*types.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Role, 0, len(m.roles))
	for _, r := range m.roles {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStorage) FindUserRole(_ context.Context, userID int64, providerInternalID string, accountID int64) (*types.UserRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ur := range m.userRoles {
		if ur.UserID == userID && ur.AccountID == accountID && ur.ProviderInternalID == providerInternalID {
			c := *ur
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user role %d/%d: %w", userID, accountID, storage.ErrNotFound)
}

func (m *MemoryStorage) CreateUserRole(_ context.Context, role *types.UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ur := range m.userRoles {
		if ur.UserID == role.UserID && ur.AccountID == role.AccountID {
			return fmt.Errorf("user role %d/%d: %w", role.UserID, role.AccountID, storage.ErrAlreadyExists)
		}
	}
	now := m.now()
	role.ID = m.allocID()
	role.CreatedAt = now
	role.UpdatedAt = now
	c := *role
	m.userRoles[role.ID] = &c
	return nil
}

func (m *MemoryStorage) UpdateUserRole(_ context.Context, id int64, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ur, ok := m.userRoles[id]
	if !ok {
		return fmt.Errorf("user role %d: %w", id, storage.ErrNotFound)
	}
	ur.RoleID = roleID
	ur.UpdatedAt = m.now()
	return nil
}

// PinUserRole sets RoleOverwrittenAt, as an administrator override would.
func (m *MemoryStorage) PinUserRole(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ur, ok := m.userRoles[id]
	if !ok {
		return fmt.Errorf("user role %d: %w", id, storage.ErrNotFound)
	}
	now := m.now()
	ur.RoleOverwrittenAt = &now
	return nil
}

func (m *MemoryStorage) CreatePolicyForAccounts(_ context.Context, accountIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range accountIDs {
		if _, ok := m.accounts[id]; !ok {
			return fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
		}
	}
	for _, id := range accountIDs {
		if _, ok := m.policies[id]; ok {
			continue
		}
		m.policies[id] = &types.Policy{ID: m.allocID(), AccountID: id, CreatedAt: m.now()}
	}
	return nil
}

func (m *MemoryStorage) UpsertUsers(_ context.Context, users []*types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range users {
		var existing *types.User
		for _, candidate := range m.users {
			if candidate.Provider == u.Provider && candidate.ProviderInternalID == u.ProviderInternalID {
				existing = candidate
				break
			}
		}
		if existing != nil {
			existing.Login = u.Login
			if u.Email != "" {
				existing.Email = u.Email
			}
			u.ID = existing.ID
			u.CreatedAt = existing.CreatedAt
			continue
		}
		u.ID = m.allocID()
		u.CreatedAt = m.now()
		c := *u
		m.users[u.ID] = &c
	}
	return nil
}

func (m *MemoryStorage) GetUserByProviderID(_ context.Context, provider types.Provider, providerInternalID string) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Provider == provider && u.ProviderInternalID == providerInternalID {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s/%s: %w", provider, providerInternalID, storage.ErrNotFound)
}
