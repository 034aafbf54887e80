package reposync

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/reposync/internal/types"
)

// DedupResult is the outcome of Deduplicate. Deleted and Reenabled list the
// ids handed to background tasks; the store may not reflect them yet.
type DedupResult struct {
	Repositories []*types.Repository
	Deleted      []int64
	Reenabled    []int64
	Conflicts    int
}

type dupGroup struct {
	key     string
	members []int // indexes into the input slice, in input order
}

// Deduplicate collapses rows sharing (account, provider id) into one canonical
// row without losing scan data or disabling a repository the user had enabled.
//
// Per group:
//   - no row owns scan data: keep the first by (enabled desc, createdAt asc)
//   - one row owns scan data: keep it; if it is disabled and a discarded
//     sibling was enabled, re-enable it
//   - several rows own scan data: keep all of them
//
// The canonical row takes the position of the group's first row; all other
// rows keep their relative order. Sub-repositories pass through untouched.
func (e *Engine) Deduplicate(ctx context.Context, repos []*types.Repository) (*DedupResult, error) {
	groups := groupDuplicates(repos)
	result := &DedupResult{}
	if len(groups) == 0 {
		result.Repositories = repos
		return result, nil
	}

	hasData, err := e.scanOwnership(ctx, repos, groups)
	if err != nil {
		return nil, err
	}

	// replacement[i] is the row emitted at position i; drop[i] removes it.
	replacement := make(map[int]*types.Repository)
	drop := make(map[int]bool)

	for _, g := range groups {
		var owners []int
		for _, idx := range g.members {
			if hasData[idx] {
				owners = append(owners, idx)
			}
		}

		var canonical int
		switch len(owners) {
		case 0:
			ordered := append([]int(nil), g.members...)
			sort.SliceStable(ordered, func(a, b int) bool {
				ra, rb := repos[ordered[a]], repos[ordered[b]]
				if ra.IsEnabled != rb.IsEnabled {
					return ra.IsEnabled
				}
				return ra.CreatedAt.Before(rb.CreatedAt)
			})
			canonical = ordered[0]
		case 1:
			canonical = owners[0]
		default:
			result.Conflicts++
			e.logger.Warn("duplicate repositories all own scan data; leaving them in place",
				"provider_id", repos[g.members[0]].ProviderInternalID,
				"account_id", repos[g.members[0]].AccountID,
				"rows", len(g.members),
				"owners", len(owners),
			)
			continue
		}

		keep := repos[canonical]
		siblingEnabled := false
		for _, idx := range g.members {
			if idx == canonical {
				continue
			}
			if repos[idx].IsEnabled {
				siblingEnabled = true
			}
			result.Deleted = append(result.Deleted, repos[idx].ID)
			drop[idx] = true
		}

		if !keep.IsEnabled && siblingEnabled {
			keep = keep.Clone()
			keep.IsEnabled = true
			result.Reenabled = append(result.Reenabled, keep.ID)
		}

		first := g.members[0]
		drop[canonical] = true
		delete(drop, first)
		replacement[first] = keep
	}

	out := make([]*types.Repository, 0, len(repos)-len(result.Deleted))
	for i, r := range repos {
		if drop[i] {
			continue
		}
		if rep, ok := replacement[i]; ok {
			out = append(out, rep)
			continue
		}
		out = append(out, r)
	}
	result.Repositories = out

	e.submitDedupRepairs(ctx, result)
	return result, nil
}

// submitDedupRepairs hands deletions and re-enables to the background runner.
func (e *Engine) submitDedupRepairs(ctx context.Context, result *DedupResult) {
	for _, id := range result.Reenabled {
		repoID := id
		e.tasks.Submit(ctx, "reenable-repository", func(ctx context.Context) error {
			return e.store.SetRepositoryEnabled(ctx, repoID, true)
		})
	}
	if len(result.Deleted) > 0 {
		ids := append([]int64(nil), result.Deleted...)
		e.tasks.Submit(ctx, "delete-duplicate-repositories", func(ctx context.Context) error {
			return e.store.DeleteRepositories(ctx, ids)
		})
		e.logger.Debug("duplicate repositories scheduled for deletion", "count", len(ids))
	}
}

// scanOwnership asks the store, concurrently, whether each grouped row owns scan data.
func (e *Engine) scanOwnership(ctx context.Context, repos []*types.Repository, groups []dupGroup) ([]bool, error) {
	hasData := make([]bool, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, grp := range groups {
		for _, idx := range grp.members {
			g.Go(func() error {
				ok, err := e.store.HasScanData(gctx, repos[idx].ID)
				if err != nil {
					return fmt.Errorf("check scan data for repository %d: %w", repos[idx].ID, err)
				}
				hasData[idx] = ok
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hasData, nil
}

// groupDuplicates returns the groups with more than one member, ordered by
// first appearance.
func groupDuplicates(repos []*types.Repository) []dupGroup {
	index := make(map[string]int)
	var groups []dupGroup
	for i, r := range repos {
		if r.IsSubRepository() {
			continue
		}
		key := fmt.Sprintf("%d/%s", r.AccountID, r.ProviderInternalID)
		gi, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, dupGroup{key: key, members: []int{i}})
			continue
		}
		groups[gi].members = append(groups[gi].members, i)
	}

	dups := groups[:0]
	for _, g := range groups {
		if len(g.members) > 1 {
			dups = append(dups, g)
		}
	}
	return dups
}
