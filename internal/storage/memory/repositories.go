package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

// CreateRepositories inserts the rows and assigns IDs. A zero CreatedAt is
// stamped with the current time; a preset one is kept so callers can seed history.
func (m *MemoryStorage) CreateRepositories(_ context.Context, repos []*types.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, r := range repos {
		if _, ok := m.accounts[r.AccountID]; !ok {
			return fmt.Errorf("repository %q: account %d: %w", r.Name, r.AccountID, storage.ErrNotFound)
		}
	}
	for _, r := range repos {
		r.ID = m.allocID()
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		m.repositories[r.ID] = r.Clone()
	}
	return nil
}

func (m *MemoryStorage) UpdateRepositories(_ context.Context, repos []*types.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range repos {
		if _, ok := m.repositories[r.ID]; !ok {
			return fmt.Errorf("repository %d: %w", r.ID, storage.ErrNotFound)
		}
	}
	now := m.now()
	for _, r := range repos {
		r.UpdatedAt = now
		m.repositories[r.ID] = r.Clone()
	}
	return nil
}

func (m *MemoryStorage) SetRepositoryEnabled(_ context.Context, id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.repositories[id]
	if !ok {
		return fmt.Errorf("repository %d: %w", id, storage.ErrNotFound)
	}
	r.IsEnabled = enabled
	r.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStorage) ListRepositories(_ context.Context, accountID int64) ([]*types.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRepositoriesLocked(accountID), nil
}

func (m *MemoryStorage) listRepositoriesLocked(accountID int64) []*types.Repository {
	var out []*types.Repository
	for _, r := range m.repositories {
		if r.AccountID == accountID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStorage) HasScanData(_ context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scans[id] > 0, nil
}

func (m *MemoryStorage) RecordScan(_ context.Context, repositoryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.repositories[repositoryID]; !ok {
		return fmt.Errorf("repository %d: %w", repositoryID, storage.ErrNotFound)
	}
	m.scans[repositoryID]++
	return nil
}

func (m *MemoryStorage) DeleteRepositories(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.repositories, id)
		delete(m.scans, id)
	}
	return nil
}

// GetRepository returns a single row. Used by tests to observe background work.
func (m *MemoryStorage) GetRepository(id int64) (*types.Repository, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.repositories[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}
