package reposync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/reposync/internal/debug"
	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/telemetry"
	"github.com/steveyegge/reposync/internal/types"
)

const syncScopeName = "github.com/steveyegge/reposync/sync"

// Config holds engine settings. Zero values fall back to defaults.
type Config struct {
	DefaultPlan string   // plan code given to new root accounts
	LegacyPlans []string // plan codes that suppress auto-enable
	Concurrency int      // parallel account branches and store lookups

	Registry *Registry // nil uses the global registry
	Tasks    *Tasks    // nil creates a runner with default options
	Logger   *slog.Logger
}

const (
	DefaultPlan        = "FREE"
	defaultConcurrency = 8
)

// Engine synchronizes one provider's view of a user into the catalog.
type Engine struct {
	store    storage.Storage
	cfg      Config
	registry *Registry
	tasks    *Tasks
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *syncMetrics
}

// New creates an Engine over store.
func New(store storage.Storage, cfg Config) *Engine {
	if cfg.DefaultPlan == "" {
		cfg.DefaultPlan = DefaultPlan
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = debug.Logger()
	}
	if cfg.Registry == nil {
		cfg.Registry = globalRegistry
	}
	if cfg.Tasks == nil {
		cfg.Tasks = NewTasks(TaskOptions{Retries: defaultTaskRetries, Logger: cfg.Logger})
	}
	return &Engine{
		store:    store,
		cfg:      cfg,
		registry: cfg.Registry,
		tasks:    cfg.Tasks,
		logger:   cfg.Logger,
		tracer:   telemetry.Tracer(syncScopeName),
		metrics:  newSyncMetrics(),
	}
}

// Tasks returns the background task runner.
func (e *Engine) Tasks() *Tasks {
	return e.tasks
}

// Wait blocks until background work submitted by earlier syncs has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// SyncOptions tunes a single Synchronize call.
type SyncOptions struct {
	// FilterReposByWriteAccess overrides each account's own setting when non-nil.
	FilterReposByWriteAccess *bool
}

type accountLoad struct {
	data *storage.AccountWithRepos
	err  error
}

type branchResult struct {
	summary *types.AccountSummary
	stats   SyncStats
	err     error
}

// Synchronize reconciles the session user's accounts and repositories and
// returns the repositories they may access, per account.
//
// Failures inside one account's branch are collected in SyncResult.Failures
// and never hide sibling accounts. The returned error is reserved for
// failures that affect every account: an invalid session, the account
// reconciliation itself, or loading the role table.
func (e *Engine) Synchronize(ctx context.Context, sess *Session, opts SyncOptions) (*SyncResult, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	strategy, err := e.registry.Strategy(sess.Provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "reposync.Synchronize",
		trace.WithAttributes(attribute.String("reposync.provider", string(sess.Provider))),
	)
	defer span.End()

	result := &SyncResult{
		Provider: sess.Provider,
		Accounts: make(map[int64]types.AccountSummary),
	}

	reconciled, stats, err := e.ReconcileAccounts(ctx, sess)
	result.Stats.add(stats)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Load every account with its repositories and the role table in parallel.
	loads := make([]accountLoad, len(reconciled))
	var roles map[string]*types.Role
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	g.Go(func() error {
		all, err := e.store.FindAllRoles(gctx)
		if err != nil {
			return fmt.Errorf("load role table: %w", err)
		}
		roles = indexRoles(all)
		return nil
	})
	for i, ra := range reconciled {
		g.Go(func() error {
			data, err := e.store.FindAccountWithRepos(gctx, ra.Account.ProviderInternalID, sess.Provider, ra.Account.Type)
			loads[i] = accountLoad{data: data, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// All-settled fan-out: every branch reports, none cancels another.
	branches := make([]branchResult, len(reconciled))
	var fan errgroup.Group
	fan.SetLimit(e.cfg.Concurrency)
	for i, ra := range reconciled {
		if loads[i].err != nil {
			branches[i] = branchResult{err: fmt.Errorf("load account: %w", loads[i].err)}
			continue
		}
		fan.Go(func() error {
			branches[i] = e.processAccount(ctx, sess, strategy, ra, loads[i].data, roles, opts)
			return nil
		})
	}
	_ = fan.Wait()

	for i, b := range branches {
		ra := reconciled[i]
		result.Stats.add(b.stats)
		if b.err != nil {
			result.Stats.AccountsFailed++
			result.Failures = append(result.Failures, AccountFailure{
				AccountID: ra.Account.ID,
				Login:     ra.Account.Login,
				Error:     b.err.Error(),
				Err:       b.err,
			})
			e.logAccountFailure(ra, b.err)
			continue
		}
		result.Stats.AccountsSynced++
		result.Accounts[ra.Account.ID] = *b.summary
	}

	e.metrics.record(ctx, sess.Provider, result.Stats, time.Since(start))
	span.SetAttributes(
		attribute.Int("reposync.accounts.synced", result.Stats.AccountsSynced),
		attribute.Int("reposync.accounts.failed", result.Stats.AccountsFailed),
	)
	e.logger.Info("sync complete",
		"provider", sess.Provider,
		"user", sess.User.Login,
		"accounts", result.Stats.AccountsSynced,
		"failed", result.Stats.AccountsFailed,
		"repos_created", result.Stats.RepositoriesCreated,
		"repos_updated", result.Stats.RepositoriesUpdated,
		"duplicates_removed", result.Stats.DuplicatesRemoved,
	)
	return result, nil
}

func (e *Engine) logAccountFailure(ra ReconciledAccount, err error) {
	var ce *ConsistencyError
	if errors.As(err, &ce) {
		e.logger.Error("account sync failed", "account", ra.Account.Login, "error", err)
		return
	}
	e.logger.Warn("account sync failed", "account", ra.Account.Login, "error", err)
}

// processAccount is one branch of the fan-out.
func (e *Engine) processAccount(ctx context.Context, sess *Session, strategy Strategy, ra ReconciledAccount, loaded *storage.AccountWithRepos, roles map[string]*types.Role, opts SyncOptions) branchResult {
	ctx, span := e.tracer.Start(ctx, "reposync.account",
		trace.WithAttributes(
			attribute.Int64("reposync.account.id", loaded.Account.ID),
			attribute.String("reposync.account.login", loaded.Account.Login),
		),
	)
	defer span.End()

	var stats SyncStats
	fail := func(err error) branchResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return branchResult{stats: stats, err: err}
	}

	account := loaded.Account
	dedup, err := e.Deduplicate(ctx, loaded.Repositories)
	if err != nil {
		return fail(fmt.Errorf("deduplicate: %w", err))
	}
	stats.DuplicatesRemoved = len(dedup.Deleted)
	stats.DuplicateConflicts = dedup.Conflicts
	stats.RepositoriesReenabled = len(dedup.Reenabled)

	fetched, err := sess.Client.GetRepositories(ctx, ra.Provider)
	if err != nil {
		return fail(upstream(sess.Provider, "GetRepositories", err))
	}

	filter := account.FilterReposByWriteAccess
	if opts.FilterReposByWriteAccess != nil {
		filter = *opts.FilterReposByWriteAccess
	}
	outcome, err := e.ReconcileRepositories(ctx, strategy, RepositoryInput{
		Account:             account,
		Subscription:        loaded.Subscription,
		Known:               dedup.Repositories,
		Fetched:             fetched,
		FilterByWriteAccess: filter,
	})
	if err != nil {
		return fail(fmt.Errorf("reconcile repositories: %w", err))
	}
	stats.RepositoriesCreated = len(outcome.Created)
	stats.RepositoriesUpdated = len(outcome.Updated)
	stats.RepositoriesFiltered = outcome.Filtered

	change, err := e.syncUserRole(ctx, sess, strategy, ra.Provider, account, roles)
	if err != nil {
		return fail(fmt.Errorf("sync user role: %w", err))
	}
	change.count(&stats)

	summary := &types.AccountSummary{
		Login:               account.Login,
		Provider:            account.Provider,
		AvatarURL:           firstNonEmpty(ra.Provider.AvatarURL, account.AvatarURL),
		URL:                 firstNonEmpty(ra.Provider.URL, account.URL),
		AllowedRepositories: outcome.Allowed,
	}
	return branchResult{summary: summary, stats: stats}
}

// SynchronizeUsers imports the members of an organization account and keeps
// their roles current. It returns false without error when the account is a
// personal account or the provider client cannot list members.
func (e *Engine) SynchronizeUsers(ctx context.Context, sess *Session, account *types.Account) (bool, error) {
	if err := sess.validate(); err != nil {
		return false, err
	}
	if account == nil || account.Type != types.AccountTypeOrganization {
		return false, nil
	}
	lister, ok := sess.Client.(MemberLister)
	if !ok {
		e.logger.Debug("provider cannot list members", "provider", sess.Provider)
		return false, nil
	}
	strategy, err := e.registry.Strategy(sess.Provider)
	if err != nil {
		return false, err
	}

	ctx, span := e.tracer.Start(ctx, "reposync.SynchronizeUsers",
		trace.WithAttributes(attribute.Int64("reposync.account.id", account.ID)),
	)
	defer span.End()

	members, err := lister.ListMembers(ctx, ProviderAccount{
		ProviderInternalID: account.ProviderInternalID,
		Login:              account.Login,
		Type:               account.Type,
	})
	if err != nil {
		return false, upstream(sess.Provider, "ListMembers", err)
	}
	if len(members) == 0 {
		return true, nil
	}

	users := make([]*types.User, 0, len(members))
	for _, m := range members {
		users = append(users, &types.User{
			Provider:           sess.Provider,
			ProviderInternalID: m.ProviderInternalID,
			Login:              m.Login,
			Email:              m.Email,
		})
	}
	if err := e.store.UpsertUsers(ctx, users); err != nil {
		return false, fmt.Errorf("upsert users: %w", err)
	}

	all, err := e.store.FindAllRoles(ctx)
	if err != nil {
		return false, fmt.Errorf("load role table: %w", err)
	}
	roles := indexRoles(all)

	var stats SyncStats
	stats.UsersImported = len(users)
	var errs []error
	for i, m := range members {
		role, err := lookupRole(roles, strategy, m.Permission)
		if err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", m.Login, err))
			continue
		}
		if role == nil {
			continue
		}
		change, err := e.upsertUserRole(ctx, users[i].ID, m.ProviderInternalID, account.ID, role)
		if err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", m.Login, err))
			continue
		}
		change.count(&stats)
	}
	e.logger.Info("members synchronized",
		"account", account.Login,
		"users", stats.UsersImported,
		"roles_created", stats.RolesCreated,
		"roles_updated", stats.RolesUpdated,
	)
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
