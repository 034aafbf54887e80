// Package memory implements an in-process storage.Storage.
// It backs the CLI's default mode and the engine tests.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

// MemoryStorage keeps every table in maps guarded by a single RWMutex.
// Repository rows are not unique per (account, provider id), matching the
// backing schema, so duplicates can be seeded for deduplication.
type MemoryStorage struct {
	mu sync.RWMutex

	nextID int64
	now    func() time.Time

	accounts      map[int64]*types.Account
	repositories  map[int64]*types.Repository
	scans         map[int64]int // repository id -> scan count
	subscriptions map[int64]*types.Subscription
	changelogs    []*types.SubscriptionChangelog
	roles         []*types.Role
	userRoles     map[int64]*types.UserRole
	users         map[int64]*types.User
	policies      map[int64]*types.Policy // keyed by account id
	closed        bool
}

var _ storage.Storage = (*MemoryStorage)(nil)

// New returns an empty store seeded with the default role table.
func New() *MemoryStorage {
	m := &MemoryStorage{
		now:           time.Now,
		accounts:      make(map[int64]*types.Account),
		repositories:  make(map[int64]*types.Repository),
		scans:         make(map[int64]int),
		subscriptions: make(map[int64]*types.Subscription),
		userRoles:     make(map[int64]*types.UserRole),
		users:         make(map[int64]*types.User),
		policies:      make(map[int64]*types.Policy),
	}
	for _, name := range types.DefaultRoles {
		m.roles = append(m.roles, &types.Role{ID: m.allocID(), Name: name})
	}
	return m
}

// SetClock overrides the timestamp source. Used by tests.
func (m *MemoryStorage) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// allocID must be called with mu held.
func (m *MemoryStorage) allocID() int64 {
	m.nextID++
	return m.nextID
}

// Close marks the store closed. Data is discarded with the process.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Subscriptions returns a snapshot of all subscriptions ordered by ID.
func (m *MemoryStorage) Subscriptions() []*types.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Changelogs returns a snapshot of the subscription changelog.
func (m *MemoryStorage) Changelogs() []*types.SubscriptionChangelog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.SubscriptionChangelog, 0, len(m.changelogs))
	for _, c := range m.changelogs {
		cc := *c
		out = append(out, &cc)
	}
	return out
}

// HasPolicy reports whether an authorization policy exists for the account.
func (m *MemoryStorage) HasPolicy(accountID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.policies[accountID]
	return ok
}

// AllAccounts returns a snapshot of every account ordered by ID.
func (m *MemoryStorage) AllAccounts() []*types.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
