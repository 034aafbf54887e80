package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

func (m *MemoryStorage) FindAccountsByProviderIDs(_ context.Context, ids []string, provider types.Provider, accountType types.AccountType) ([]*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var results []*types.Account
	for _, a := range m.accounts {
		if a.Provider == provider && a.Type == accountType && wanted[a.ProviderInternalID] {
			results = append(results, a.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *MemoryStorage) FindAccountByProviderID(_ context.Context, id string, provider types.Provider, accountType types.AccountType) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a := m.findAccountLocked(id, provider, accountType); a != nil {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("account %s/%s/%s: %w", provider, accountType, id, storage.ErrNotFound)
}

func (m *MemoryStorage) findAccountLocked(id string, provider types.Provider, accountType types.AccountType) *types.Account {
	for _, a := range m.accounts {
		if a.Provider == provider && a.Type == accountType && a.ProviderInternalID == id {
			return a
		}
	}
	return nil
}

func (m *MemoryStorage) CreateAccount(_ context.Context, account *types.Account, sub *types.Subscription, changelog *types.SubscriptionChangelog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findAccountLocked(account.ProviderInternalID, account.Provider, account.Type) != nil {
		return fmt.Errorf("account %s/%s/%s: %w", account.Provider, account.Type, account.ProviderInternalID, storage.ErrAlreadyExists)
	}

	now := m.now()
	account.ID = m.allocID()
	account.CreatedAt = now
	account.UpdatedAt = now
	m.accounts[account.ID] = account.Clone()

	if sub != nil {
		sub.ID = m.allocID()
		sub.AccountID = account.ID
		sub.CreatedAt = now
		c := *sub
		m.subscriptions[sub.ID] = &c

		if changelog != nil {
			changelog.ID = m.allocID()
			changelog.SubscriptionID = sub.ID
			changelog.AccountID = account.ID
			changelog.CreatedAt = now
			cl := *changelog
			m.changelogs = append(m.changelogs, &cl)
		}
	}
	return nil
}

func (m *MemoryStorage) UpdateAccount(_ context.Context, id int64, patch types.AccountPatch) (*types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	patch.Apply(a)
	a.UpdatedAt = m.now()
	return a.Clone(), nil
}

func (m *MemoryStorage) FindAccountWithRepos(_ context.Context, providerID string, provider types.Provider, accountType types.AccountType) (*storage.AccountWithRepos, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a := m.findAccountLocked(providerID, provider, accountType)
	if a == nil {
		return nil, fmt.Errorf("account %s/%s/%s: %w", provider, accountType, providerID, storage.ErrNotFound)
	}

	result := &storage.AccountWithRepos{
		Account:      a.Clone(),
		Repositories: m.listRepositoriesLocked(a.ID),
	}

	root := a
	for seen := 0; root.ParentAccountID != nil && seen < len(m.accounts); seen++ {
		parent, ok := m.accounts[*root.ParentAccountID]
		if !ok {
			break
		}
		root = parent
	}
	for _, s := range m.subscriptions {
		if s.AccountID == root.ID {
			c := *s
			result.Subscription = &c
			break
		}
	}
	return result, nil
}
