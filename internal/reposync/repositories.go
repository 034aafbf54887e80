package reposync

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/reposync/internal/types"
)

// RepositoryInput is everything the repository reconciler needs for one account.
type RepositoryInput struct {
	Account      *types.Account
	Subscription *types.Subscription // root subscription; nil when none exists
	Known        []*types.Repository // deduplicated catalog rows
	Fetched      []ProviderRepository
	// FilterByWriteAccess drops provider repositories the user cannot push to.
	FilterByWriteAccess bool
}

// RepositoryOutcome is what the reconciler wrote and how the user may access it.
type RepositoryOutcome struct {
	Allowed  types.AllowedRepositories
	Created  []*types.Repository
	Updated  []*types.Repository
	Filtered int
}

// ReconcileRepositories computes and applies the minimal create/update set for
// an account and classifies each repository as admin or read for the user.
// Monorepo sub-repositories are ignored on both sides.
func (e *Engine) ReconcileRepositories(ctx context.Context, strategy Strategy, in RepositoryInput) (*RepositoryOutcome, error) {
	out := &RepositoryOutcome{
		Allowed: types.AllowedRepositories{Read: []int64{}, Admin: []int64{}},
	}

	byProviderID := make(map[string]*types.Repository, len(in.Known))
	for _, r := range in.Known {
		if r.IsSubRepository() {
			continue
		}
		if _, dup := byProviderID[r.ProviderInternalID]; !dup {
			byProviderID[r.ProviderInternalID] = r
		}
	}

	autoEnable := strategy.AutoEnable() && !e.isLegacyPlan(in.Subscription)

	var creates []*types.Repository
	var createAdmin []bool
	seen := make(map[string]bool, len(in.Fetched))
	for i := range in.Fetched {
		repo := &in.Fetched[i]
		if seen[repo.ProviderInternalID] {
			continue
		}
		seen[repo.ProviderInternalID] = true

		if in.FilterByWriteAccess && !strategy.HasWriteAccess(repo) {
			out.Filtered++
			continue
		}
		admin := strategy.IsAdmin(repo)

		existing, ok := byProviderID[repo.ProviderInternalID]
		if !ok {
			row := strategy.ToRepository(repo, in.Account.ID)
			row.IsEnabled = autoEnable
			creates = append(creates, row)
			createAdmin = append(createAdmin, admin)
			continue
		}

		out.Allowed.Add(existing.ID, admin)
		if updated, changed := strategy.NeedsUpdate(existing, repo); changed {
			out.Updated = append(out.Updated, updated)
		}
	}

	var g errgroup.Group
	if len(creates) > 0 {
		g.Go(func() error {
			if err := e.store.CreateRepositories(ctx, creates); err != nil {
				return fmt.Errorf("create %d repositories: %w", len(creates), err)
			}
			return nil
		})
	}
	if len(out.Updated) > 0 {
		g.Go(func() error {
			if err := e.store.UpdateRepositories(ctx, out.Updated); err != nil {
				return fmt.Errorf("update %d repositories: %w", len(out.Updated), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, row := range creates {
		out.Allowed.Add(row.ID, createAdmin[i])
	}
	out.Created = creates

	e.logger.Debug("repositories reconciled",
		"account", in.Account.Login,
		"created", len(out.Created),
		"updated", len(out.Updated),
		"filtered", out.Filtered,
		"auto_enable", autoEnable,
	)
	return out, nil
}

func (e *Engine) isLegacyPlan(sub *types.Subscription) bool {
	return sub != nil && slices.Contains(e.cfg.LegacyPlans, sub.PlanCode)
}
