package reposync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/reposync/internal/types"
)

func TestReconcileRepositoriesCreatesAutoEnabledRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := seedAccount(t, env.store, "g-1", "acme", "FREE")

	out, err := env.engine.ReconcileRepositories(ctx, env.strategy, RepositoryInput{
		Account:      acc,
		Subscription: &types.Subscription{PlanCode: "FREE"},
		Fetched:      []ProviderRepository{repo("42", "svc", Permissions{Push: true})},
	})
	require.NoError(t, err)

	require.Len(t, out.Created, 1)
	created := out.Created[0]
	assert.True(t, created.IsEnabled)
	assert.Equal(t, "42", created.ProviderInternalID)
	assert.Equal(t, acc.ID, created.AccountID)
	assert.NotZero(t, created.ID)

	assert.Equal(t, []int64{created.ID}, out.Allowed.Read)
	assert.Empty(t, out.Allowed.Admin)
	assert.Empty(t, out.Updated)
}

func TestReconcileRepositoriesAdminClassification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := seedAccount(t, env.store, "g-1", "acme", "FREE")

	existing := &types.Repository{AccountID: acc.ID, ProviderInternalID: "1", Name: "api", FullName: "acme/api", DefaultBranch: "main"}
	require.NoError(t, env.store.CreateRepositories(ctx, []*types.Repository{existing}))

	out, err := env.engine.ReconcileRepositories(ctx, env.strategy, RepositoryInput{
		Account: acc,
		Known:   []*types.Repository{existing},
		Fetched: []ProviderRepository{
			repo("1", "api", Permissions{Admin: true, Push: true}),
			repo("2", "web", Permissions{Admin: true}),
			repo("3", "docs", Permissions{Pull: true}),
		},
	})
	require.NoError(t, err)

	require.Len(t, out.Created, 2)
	assert.Len(t, out.Allowed.Admin, 2)
	assert.Len(t, out.Allowed.Read, 1)
	assert.Contains(t, out.Allowed.Admin, existing.ID)
	for _, id := range out.Allowed.Admin {
		assert.NotContains(t, out.Allowed.Read, id)
	}
}

func TestReconcileRepositoriesLegacyPlanLeavesDisabled(t *testing.T) {
	env := newTestEnv(t)
	acc := seedAccount(t, env.store, "g-1", "acme", "LEGACY")

	out, err := env.engine.ReconcileRepositories(context.Background(), env.strategy, RepositoryInput{
		Account:      acc,
		Subscription: &types.Subscription{PlanCode: "LEGACY"},
		Fetched:      []ProviderRepository{repo("42", "svc", Permissions{Push: true})},
	})
	require.NoError(t, err)
	require.Len(t, out.Created, 1)
	assert.False(t, out.Created[0].IsEnabled)
}

func TestReconcileRepositoriesWithoutAutoEnable(t *testing.T) {
	env := newTestEnv(t)
	env.strategy.autoEnable = false
	acc := seedAccount(t, env.store, "g-1", "acme", "FREE")

	out, err := env.engine.ReconcileRepositories(context.Background(), env.strategy, RepositoryInput{
		Account:      acc,
		Subscription: &types.Subscription{PlanCode: "FREE"},
		Fetched:      []ProviderRepository{repo("42", "svc", Permissions{Push: true})},
	})
	require.NoError(t, err)
	require.Len(t, out.Created, 1)
	assert.False(t, out.Created[0].IsEnabled)
}

func TestReconcileRepositoriesUpdatesOnlyDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := seedAccount(t, env.store, "g-1", "acme", "FREE")

	same := &types.Repository{AccountID: acc.ID, ProviderInternalID: "1", Name: "api", FullName: "acme/api", DefaultBranch: "main", IsEnabled: true}
	drifted := &types.Repository{AccountID: acc.ID, ProviderInternalID: "2", Name: "web", FullName: "acme/web", DefaultBranch: "master", IsEnabled: true}
	require.NoError(t, env.store.CreateRepositories(ctx, []*types.Repository{same, drifted}))

	out, err := env.engine.ReconcileRepositories(ctx, env.strategy, RepositoryInput{
		Account: acc,
		Known:   []*types.Repository{same, drifted},
		Fetched: []ProviderRepository{
			repo("1", "api", Permissions{Pull: true}),
			repo("2", "web", Permissions{Pull: true}),
		},
	})
	require.NoError(t, err)

	assert.Empty(t, out.Created)
	require.Len(t, out.Updated, 1)
	assert.Equal(t, drifted.ID, out.Updated[0].ID)
	assert.Equal(t, "main", out.Updated[0].DefaultBranch)
	assert.True(t, out.Updated[0].IsEnabled, "updates never touch the enabled flag")
	assert.Equal(t, 0, env.store.repoCreates)
	assert.Equal(t, 1, env.store.repoUpdates)

	stored, ok := env.store.GetRepository(drifted.ID)
	require.True(t, ok)
	assert.Equal(t, "main", stored.DefaultBranch)
}

func TestReconcileRepositoriesWriteFilter(t *testing.T) {
	env := newTestEnv(t)
	acc := seedAccount(t, env.store, "g-1", "acme", "FREE")

	out, err := env.engine.ReconcileRepositories(context.Background(), env.strategy, RepositoryInput{
		Account: acc,
		Fetched: []ProviderRepository{
			repo("1", "api", Permissions{Push: true}),
			repo("2", "web", Permissions{Pull: true}),
			repo("3", "ops", Permissions{Maintain: true}),
		},
		FilterByWriteAccess: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Filtered)
	require.Len(t, out.Created, 2)
	for _, r := range out.Created {
		assert.NotEqual(t, "2", r.ProviderInternalID)
	}
}

func TestReconcileRepositoriesIgnoresSubRepositories(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := seedAccount(t, env.store, "g-1", "acme", "FREE")

	parent := &types.Repository{AccountID: acc.ID, ProviderInternalID: "1", Name: "mono", FullName: "acme/mono", DefaultBranch: "main"}
	require.NoError(t, env.store.CreateRepositories(ctx, []*types.Repository{parent}))
	sub := &types.Repository{AccountID: acc.ID, ProviderInternalID: "2", Name: "mono/pkg", ParentRepositoryID: &parent.ID}
	require.NoError(t, env.store.CreateRepositories(ctx, []*types.Repository{sub}))

	out, err := env.engine.ReconcileRepositories(ctx, env.strategy, RepositoryInput{
		Account: acc,
		Known:   []*types.Repository{parent, sub},
		// The provider reports an id that only a sub-repository carries.
		Fetched: []ProviderRepository{
			repo("1", "mono", Permissions{Pull: true}),
			repo("2", "pkg", Permissions{Pull: true}),
		},
	})
	require.NoError(t, err)

	// The sub-repository is neither matched nor updated; a top-level row is created instead.
	require.Len(t, out.Created, 1)
	assert.Nil(t, out.Created[0].ParentRepositoryID)
	assert.Empty(t, out.Updated)
	assert.NotContains(t, out.Allowed.Read, sub.ID)
	assert.NotContains(t, out.Allowed.Admin, sub.ID)
}

func TestReconcileRepositoriesDropsRepeatedProviderRows(t *testing.T) {
	env := newTestEnv(t)
	acc := seedAccount(t, env.store, "g-1", "acme", "FREE")

	out, err := env.engine.ReconcileRepositories(context.Background(), env.strategy, RepositoryInput{
		Account: acc,
		Fetched: []ProviderRepository{
			repo("1", "api", Permissions{Pull: true}),
			repo("1", "api", Permissions{Pull: true}),
		},
	})
	require.NoError(t, err)
	assert.Len(t, out.Created, 1)
	assert.Len(t, out.Allowed.Read, 1)
}
