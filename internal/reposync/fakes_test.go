package reposync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/reposync/internal/debug"
	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/storage/memory"
	"github.com/steveyegge/reposync/internal/types"
)

// fakeClient implements ProviderClient and MemberLister from in-memory data.
type fakeClient struct {
	mu sync.Mutex

	listing     AccountListing
	listErr     error
	repos       map[string][]ProviderRepository // by account provider id
	repoErrs    map[string]error
	permissions map[string]string // by account provider id; missing = denied
	members     map[string][]Member

	repoCalls int
	listCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		repos:       make(map[string][]ProviderRepository),
		repoErrs:    make(map[string]error),
		permissions: make(map[string]string),
		members:     make(map[string][]Member),
	}
}

func (c *fakeClient) GetUserAccounts(_ context.Context) (*AccountListing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	l := c.listing
	return &l, nil
}

func (c *fakeClient) GetRepositories(_ context.Context, account ProviderAccount) ([]ProviderRepository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repoCalls++
	if err := c.repoErrs[account.ProviderInternalID]; err != nil {
		return nil, err
	}
	return append([]ProviderRepository(nil), c.repos[account.ProviderInternalID]...), nil
}

func (c *fakeClient) GetUserRoleForAccount(_ context.Context, account ProviderAccount, _ *types.User) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.permissions[account.ProviderInternalID]
	return p, ok, nil
}

func (c *fakeClient) ListMembers(_ context.Context, account ProviderAccount) ([]Member, error) {
	return c.members[account.ProviderInternalID], nil
}

// plainClient hides the MemberLister capability.
type plainClient struct{ ProviderClient }

// testStrategy follows GitHub's permission model.
type testStrategy struct {
	provider   types.Provider
	autoEnable bool
}

func (s *testStrategy) Provider() types.Provider { return s.provider }
func (s *testStrategy) AutoEnable() bool         { return s.autoEnable }

func (s *testStrategy) ToRepository(repo *ProviderRepository, accountID int64) *types.Repository {
	return MapRepository(repo, accountID, repo.Private)
}

func (s *testStrategy) NeedsUpdate(existing *types.Repository, repo *ProviderRepository) (*types.Repository, bool) {
	return DiffRepository(existing, s.ToRepository(repo, existing.AccountID))
}

func (s *testStrategy) IsAdmin(repo *ProviderRepository) bool { return repo.Permissions.Admin }

func (s *testStrategy) HasWriteAccess(repo *ProviderRepository) bool {
	p := repo.Permissions
	return p.Admin || p.Maintain || p.Push
}

func (s *testStrategy) RoleName(permission string) string {
	switch permission {
	case "admin":
		return types.RoleAdmin
	case "member":
		return types.RoleDeveloper
	case "ghost":
		return "ghost"
	}
	return ""
}

// countingStore records writes on top of the memory store.
type countingStore struct {
	*memory.MemoryStorage

	mu             sync.Mutex
	accountUpdates int
	accountCreates int
	repoCreates    int
	repoUpdates    int
	deleted        []int64

	findByIDHook func(id string) (*types.Account, error)
	findAllHook  func(ids []string) ([]*types.Account, error)
	scanErr      error
}

func (s *countingStore) CreateAccount(ctx context.Context, a *types.Account, sub *types.Subscription, cl *types.SubscriptionChangelog) error {
	s.mu.Lock()
	s.accountCreates++
	s.mu.Unlock()
	return s.MemoryStorage.CreateAccount(ctx, a, sub, cl)
}

func (s *countingStore) UpdateAccount(ctx context.Context, id int64, patch types.AccountPatch) (*types.Account, error) {
	s.mu.Lock()
	s.accountUpdates++
	s.mu.Unlock()
	return s.MemoryStorage.UpdateAccount(ctx, id, patch)
}

func (s *countingStore) FindAccountByProviderID(ctx context.Context, id string, p types.Provider, t types.AccountType) (*types.Account, error) {
	if s.findByIDHook != nil {
		return s.findByIDHook(id)
	}
	return s.MemoryStorage.FindAccountByProviderID(ctx, id, p, t)
}

func (s *countingStore) FindAccountsByProviderIDs(ctx context.Context, ids []string, p types.Provider, t types.AccountType) ([]*types.Account, error) {
	if s.findAllHook != nil {
		return s.findAllHook(ids)
	}
	return s.MemoryStorage.FindAccountsByProviderIDs(ctx, ids, p, t)
}

func (s *countingStore) CreateRepositories(ctx context.Context, repos []*types.Repository) error {
	s.mu.Lock()
	s.repoCreates++
	s.mu.Unlock()
	return s.MemoryStorage.CreateRepositories(ctx, repos)
}

func (s *countingStore) UpdateRepositories(ctx context.Context, repos []*types.Repository) error {
	s.mu.Lock()
	s.repoUpdates++
	s.mu.Unlock()
	return s.MemoryStorage.UpdateRepositories(ctx, repos)
}

func (s *countingStore) HasScanData(ctx context.Context, id int64) (bool, error) {
	if s.scanErr != nil {
		return false, s.scanErr
	}
	return s.MemoryStorage.HasScanData(ctx, id)
}

func (s *countingStore) DeleteRepositories(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, ids...)
	s.mu.Unlock()
	return s.MemoryStorage.DeleteRepositories(ctx, ids)
}

var _ storage.Storage = (*countingStore)(nil)

type sinkRecorder struct {
	mu    sync.Mutex
	errs  []error
	names []string
}

func (r *sinkRecorder) Report(_ context.Context, task string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, task)
	r.errs = append(r.errs, err)
}

type testEnv struct {
	store    *countingStore
	engine   *Engine
	client   *fakeClient
	sink     *sinkRecorder
	strategy *testStrategy
	user     *types.User
}

func (env *testEnv) session() *Session {
	return &Session{Provider: types.ProviderGitHub, User: env.user, Client: env.client}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := &countingStore{MemoryStorage: memory.New()}
	sink := &sinkRecorder{}
	strategy := &testStrategy{provider: types.ProviderGitHub, autoEnable: true}

	registry := NewRegistry()
	registry.Register(types.ProviderGitHub, func() Strategy { return strategy })

	logger := debug.Discard()
	tasks := NewTasks(TaskOptions{
		Retries:    0,
		Sink:       sink,
		Logger:     logger,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	engine := New(store, Config{
		DefaultPlan: "FREE",
		LegacyPlans: []string{"LEGACY"},
		Concurrency: 4,
		Registry:    registry,
		Tasks:       tasks,
		Logger:      logger,
	})

	user := &types.User{Provider: types.ProviderGitHub, ProviderInternalID: "u-1", Login: "alice"}
	if err := store.UpsertUsers(context.Background(), []*types.User{user}); err != nil {
		t.Fatalf("UpsertUsers: %v", err)
	}

	client := newFakeClient()
	client.listing.User = ProviderAccount{ProviderInternalID: "u-1", Login: "alice", Type: types.AccountTypeUser}

	t.Cleanup(engine.Wait)
	return &testEnv{store: store, engine: engine, client: client, sink: sink, strategy: strategy, user: user}
}

func org(id, login string) ProviderAccount {
	return ProviderAccount{ProviderInternalID: id, Login: login, Type: types.AccountTypeOrganization}
}

func repo(id, name string, perms Permissions) ProviderRepository {
	return ProviderRepository{
		ProviderInternalID: id,
		Name:               name,
		FullName:           "acme/" + name,
		DefaultBranch:      "main",
		Permissions:        perms,
	}
}

// seedAccount creates an organization account directly in the store.
func seedAccount(t *testing.T, s storage.Storage, id, login, plan string) *types.Account {
	t.Helper()
	acc := &types.Account{
		Provider:           types.ProviderGitHub,
		ProviderInternalID: id,
		Type:               types.AccountTypeOrganization,
		Login:              login,
	}
	var sub *types.Subscription
	if plan != "" {
		sub = &types.Subscription{PlanCode: plan}
	}
	if err := s.CreateAccount(context.Background(), acc, sub, nil); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acc
}

var errBoom = errors.New("boom")
