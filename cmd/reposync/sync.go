package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steveyegge/reposync/internal/config"
	"github.com/steveyegge/reposync/internal/debug"
	"github.com/steveyegge/reposync/internal/fixture"
	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
	"github.com/steveyegge/reposync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize accounts and repositories from a provider",
	Long: `Fetch every account and repository visible to the authenticated user and
reconcile them into the catalog: create and update accounts, link the account
hierarchy, create and update repositories, remove duplicate rows and record the
user's role on each account.

Credentials come from --token or the provider's environment variable
(GITHUB_TOKEN, GITLAB_TOKEN, BITBUCKET_TOKEN, AZURE_DEVOPS_PAT).

With --fixture the provider's view is read from a YAML or TOML snapshot
instead; --watch then re-runs the sync whenever the snapshot changes.

Examples:
  reposync sync --provider github
  reposync sync --provider gitlab --url https://gitlab.example.com
  reposync sync --provider github --write-only=false
  reposync sync --fixture acme.yaml --watch
  reposync sync --provider gitlab --users --json`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("provider", "", "Provider: github, gitlab, bitbucket, azuredevops")
	syncCmd.Flags().String("token", "", "Provider access token (default: provider environment variable)")
	syncCmd.Flags().String("url", "", "Provider API URL or Azure DevOps organization (default: <provider>.url)")
	syncCmd.Flags().Bool("write-only", false, "Only catalog repositories the user can write to (default: provider's own setting)")
	syncCmd.Flags().Bool("users", false, "Also import organization members and their roles")
	syncCmd.Flags().String("fixture", "", "Read the provider's view from a YAML or TOML snapshot")
	syncCmd.Flags().Bool("watch", false, "Re-run the sync whenever the --fixture file changes")
	syncCmd.Flags().Duration("debounce", fixture.DefaultDebounce, "Quiet period before a --watch re-run")
	rootCmd.AddCommand(syncCmd)
}

// syncRun holds what one sync invocation needs across --watch re-runs.
type syncRun struct {
	provider types.Provider
	client   reposync.ProviderClient
	store    storage.Storage
	engine   *reposync.Engine
	opts     reposync.SyncOptions
	users    bool
	noPager  bool
	out      io.Writer
}

func runSync(cmd *cobra.Command, args []string) error {
	providerFlag, _ := cmd.Flags().GetString("provider")
	token, _ := cmd.Flags().GetString("token")
	baseURL, _ := cmd.Flags().GetString("url")
	fixturePath, _ := cmd.Flags().GetString("fixture")
	watch, _ := cmd.Flags().GetBool("watch")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	users, _ := cmd.Flags().GetBool("users")

	if watch && fixturePath == "" {
		return fmt.Errorf("--watch requires --fixture")
	}

	var opts reposync.SyncOptions
	if cmd.Flags().Changed("write-only") {
		writeOnly, _ := cmd.Flags().GetBool("write-only")
		opts.FilterReposByWriteAccess = &writeOnly
	}

	provider, client, fc, err := resolveClient(providerFlag, fixturePath, clientOptions{Token: token, URL: baseURL})
	if err != nil {
		return err
	}

	ctx := rootCtx
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine := newEngine(store)
	// Background repairs must finish before the store closes.
	defer engine.Wait()

	run := &syncRun{
		provider: provider,
		client:   client,
		store:    store,
		engine:   engine,
		opts:     opts,
		users:    users,
		noPager:  watch,
		out:      cmd.OutOrStdout(),
	}
	if err := run.once(ctx); err != nil && !watch {
		return err
	} else if err != nil {
		warnf("%v", err)
	}
	if !watch {
		return nil
	}

	debug.Logger().Info("watching fixture", "path", fc.Path())
	return fixture.Watch(ctx, fc.Path(), debounce, debug.Logger(), func() {
		if err := fc.Reload(); err != nil {
			warnf("fixture reload failed, keeping previous snapshot: %v", err)
			return
		}
		if fc.Provider() != run.provider {
			warnf("fixture now describes %s; restart to switch providers", fc.Provider())
			return
		}
		if err := run.once(ctx); err != nil {
			warnf("%v", err)
		}
	})
}

// once performs a single sync and prints its result. Account-independent
// failures are returned before anything is printed; per-account failures are
// printed with the result and then returned as one error.
func (r *syncRun) once(ctx context.Context) error {
	sess, listing, err := newSession(ctx, r.provider, r.client, r.store)
	if err != nil {
		return err
	}

	result, err := r.engine.Synchronize(ctx, sess, r.opts)
	if err != nil {
		return err
	}
	if r.users {
		n := importMembers(ctx, r.engine, sess, r.store, listing.Organizations, r.out)
		debug.Logger().Debug("member import finished", "accounts", n)
	}

	if jsonOutput {
		if err := outputJSON(r.out, result); err != nil {
			return err
		}
	} else if err := ui.ToPager(r.out, ui.RenderSyncSummary(result), ui.PagerOptions{NoPager: r.noPager}); err != nil {
		return err
	}
	if ferr := result.Err(); ferr != nil {
		return fmt.Errorf("%d of %d account(s) failed to sync: %w", len(result.Failures), len(result.Failures)+len(result.Accounts), ferr)
	}
	return nil
}

// newSession identifies the authenticated user on the provider, records it
// when it is new or renamed, and returns the sync session carrying the
// account listing it fetched.
func newSession(ctx context.Context, provider types.Provider, client reposync.ProviderClient, store storage.Storage) (*reposync.Session, *reposync.AccountListing, error) {
	listing, err := client.GetUserAccounts(ctx)
	if err != nil {
		return nil, nil, &reposync.UpstreamError{Provider: provider, Op: "get user accounts", Err: err}
	}
	own := listing.User

	var record bool
	user, err := store.GetUserByProviderID(ctx, provider, own.ProviderInternalID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user = &types.User{Provider: provider, ProviderInternalID: own.ProviderInternalID, Login: own.Login}
		record = true
	case err != nil:
		return nil, nil, fmt.Errorf("failed to load user %s: %w", own.Login, err)
	case user.Login != own.Login:
		user.Login = own.Login
		record = true
	}
	if record {
		if err := store.UpsertUsers(ctx, []*types.User{user}); err != nil {
			return nil, nil, fmt.Errorf("failed to record user %s: %w", own.Login, err)
		}
	}
	return &reposync.Session{Provider: provider, User: user, Client: client, Accounts: listing}, listing, nil
}

// importMembers runs member import for every organization already in the
// catalog and returns how many accounts imported members.
func importMembers(ctx context.Context, engine *reposync.Engine, sess *reposync.Session, store storage.Storage, orgs []reposync.ProviderAccount, out io.Writer) int {
	imported := 0
	for _, org := range orgs {
		account, err := store.FindAccountByProviderID(ctx, org.ProviderInternalID, sess.Provider, types.AccountTypeOrganization)
		if errors.Is(err, storage.ErrNotFound) {
			warnf("%s is not in the catalog; run sync first", org.Login)
			continue
		}
		if err != nil {
			warnf("failed to load %s: %v", org.Login, err)
			continue
		}
		ok, err := engine.SynchronizeUsers(ctx, sess, account)
		if err != nil {
			warnf("member import for %s failed: %v", org.Login, err)
			continue
		}
		if ok {
			imported++
		}
		if !jsonOutput {
			_, _ = fmt.Fprint(out, ui.RenderUserImport(org.Login, ok))
		}
	}
	return imported
}

func newEngine(store storage.Storage) *reposync.Engine {
	logger := debug.Logger()
	tasks := reposync.NewTasks(reposync.TaskOptions{
		Retries: config.GetTaskRetries(),
		Timeout: config.GetTaskTimeout(),
		Logger:  logger,
		Sink: reposync.ErrorSinkFunc(func(ctx context.Context, task string, err error) {
			warnf("background task %s failed: %v", task, err)
		}),
	})
	return reposync.New(store, reposync.Config{
		DefaultPlan: config.GetString("billing.default-plan"),
		LegacyPlans: config.GetLegacyPlans(),
		Concurrency: config.GetSyncConcurrency(),
		Tasks:       tasks,
		Logger:      logger,
	})
}
