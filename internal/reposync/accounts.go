package reposync

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

// ReconciledAccount pairs a provider account with its catalog record.
type ReconciledAccount struct {
	Provider ProviderAccount
	Account  *types.Account
}

// ReconcileAccounts guarantees a catalog account exists for the session user
// and for every organization visible to them, with current login and hierarchy.
// Organizations come first in the result, the user's own account last.
// The session's prefetched listing is used when present.
func (e *Engine) ReconcileAccounts(ctx context.Context, sess *Session) ([]ReconciledAccount, SyncStats, error) {
	var stats SyncStats

	listing := sess.Accounts
	if listing == nil {
		var err error
		listing, err = sess.Client.GetUserAccounts(ctx)
		if err != nil {
			return nil, stats, upstream(sess.Provider, "GetUserAccounts", err)
		}
	}

	orgs, err := e.reconcileGroup(ctx, sess, types.AccountTypeOrganization, listing.Organizations, &stats)
	if err != nil {
		return nil, stats, err
	}

	var own []ProviderAccount
	if listing.User.ProviderInternalID != "" {
		own = append(own, listing.User)
	}
	users, err := e.reconcileGroup(ctx, sess, types.AccountTypeUser, own, &stats)
	if err != nil {
		return nil, stats, err
	}

	return append(orgs, users...), stats, nil
}

// reconcileGroup reconciles accounts of a single type.
func (e *Engine) reconcileGroup(ctx context.Context, sess *Session, accountType types.AccountType, incoming []ProviderAccount, stats *SyncStats) ([]ReconciledAccount, error) {
	incoming = uniqueAccounts(incoming)
	if len(incoming) == 0 {
		return nil, nil
	}
	ids := make([]string, len(incoming))
	visible := make(map[string]bool, len(incoming))
	for i, pa := range incoming {
		ids[i] = pa.ProviderInternalID
		visible[pa.ProviderInternalID] = true
	}

	existing, err := e.store.FindAccountsByProviderIDs(ctx, ids, sess.Provider, accountType)
	if err != nil {
		return nil, fmt.Errorf("find %s accounts: %w", accountType, err)
	}
	if err := e.assertCorrespondence("FindAccountsByProviderIDs", ids, existing, false); err != nil {
		return nil, err
	}
	known := indexAccounts(existing)

	for _, pa := range incoming {
		acc, ok := known[pa.ProviderInternalID]
		if !ok {
			// A parent outside the listing is never linked, so the account is a root.
			root := pa.ParentProviderID == "" || pa.ParentProviderID == pa.ProviderInternalID || !visible[pa.ParentProviderID]
			if _, err := e.createAccount(ctx, sess, accountType, pa, root); err != nil {
				return nil, err
			}
			stats.AccountsCreated++
			continue
		}

		patch := accountPatch(acc, pa)
		if patch.IsEmpty() {
			continue
		}
		if _, err := e.store.UpdateAccount(ctx, acc.ID, patch); err != nil {
			return nil, fmt.Errorf("update account %s: %w", acc.Login, err)
		}
		stats.AccountsUpdated++
	}

	// Re-fetch so hierarchy links can resolve against newly created rows.
	all, err := e.store.FindAccountsByProviderIDs(ctx, ids, sess.Provider, accountType)
	if err != nil {
		return nil, fmt.Errorf("re-fetch %s accounts: %w", accountType, err)
	}
	if err := e.assertCorrespondence("FindAccountsByProviderIDs", ids, all, true); err != nil {
		return nil, err
	}
	byProviderID := indexAccounts(all)

	out := make([]ReconciledAccount, 0, len(incoming))
	for _, pa := range incoming {
		acc := byProviderID[pa.ProviderInternalID]
		if parent, ok := byProviderID[pa.ParentProviderID]; ok && pa.ParentProviderID != "" && parent.ID != acc.ID {
			if acc.ParentAccountID == nil || *acc.ParentAccountID != parent.ID {
				updated, err := e.store.UpdateAccount(ctx, acc.ID, types.AccountPatch{ParentAccountID: &parent.ID})
				if err != nil {
					return nil, fmt.Errorf("link account %s to parent %s: %w", acc.Login, parent.Login, err)
				}
				acc = updated
				stats.ParentsLinked++
			}
		}
		out = append(out, ReconciledAccount{Provider: pa, Account: acc})
	}
	return out, nil
}

// createAccount inserts an account the partition classified as unknown.
// Root accounts get a subscription on the default plan in the same write.
func (e *Engine) createAccount(ctx context.Context, sess *Session, accountType types.AccountType, pa ProviderAccount, root bool) (*types.Account, error) {
	_, err := e.store.FindAccountByProviderID(ctx, pa.ProviderInternalID, sess.Provider, accountType)
	switch {
	case err == nil:
		return nil, e.consistency("CreateAccount", "%s account %s (%s) appeared after partitioning", sess.Provider, pa.ProviderInternalID, pa.Login)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("check account %s: %w", pa.Login, err)
	}

	acc := &types.Account{
		Provider:           sess.Provider,
		ProviderInternalID: pa.ProviderInternalID,
		Type:               accountType,
		Login:              pa.Login,
		CLIToken:           uuid.NewString(),
		AvatarURL:          pa.AvatarURL,
		URL:                pa.URL,
		ProviderMetadata:   maps.Clone(pa.Metadata),
	}

	var sub *types.Subscription
	var changelog *types.SubscriptionChangelog
	if root {
		sub = &types.Subscription{PlanCode: e.cfg.DefaultPlan}
		changelog = &types.SubscriptionChangelog{
			Action:   types.SubscriptionCreated,
			PlanCode: e.cfg.DefaultPlan,
			ActorID:  sess.User.ID,
		}
	}

	if err := e.store.CreateAccount(ctx, acc, sub, changelog); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, e.consistency("CreateAccount", "%s account %s (%s) created concurrently: %v", sess.Provider, pa.ProviderInternalID, pa.Login, err)
		}
		return nil, fmt.Errorf("create account %s: %w", pa.Login, err)
	}
	e.logger.Debug("account created", "provider", sess.Provider, "login", acc.Login, "id", acc.ID, "root", sub != nil)

	accountID := acc.ID
	e.tasks.Submit(ctx, "bootstrap-policy", func(ctx context.Context) error {
		return e.store.CreatePolicyForAccounts(ctx, []int64{accountID})
	})
	return acc, nil
}

// assertCorrespondence checks that accounts maps 1:1 onto a subset of ids,
// or onto all of them when exact is set.
func (e *Engine) assertCorrespondence(op string, ids []string, accounts []*types.Account, exact bool) error {
	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if !requested[a.ProviderInternalID] {
			return e.consistency(op, "returned unrequested account %s", a.ProviderInternalID)
		}
		if seen[a.ProviderInternalID] {
			return e.consistency(op, "returned account %s more than once", a.ProviderInternalID)
		}
		seen[a.ProviderInternalID] = true
	}
	if exact && len(seen) != len(requested) {
		return e.consistency(op, "expected %d accounts, found %d", len(requested), len(seen))
	}
	return nil
}

func (e *Engine) consistency(op, format string, args ...any) error {
	err := &ConsistencyError{Op: op, Detail: fmt.Sprintf(format, args...)}
	e.logger.Error("consistency violation", "op", op, "detail", err.Detail)
	return err
}

// accountPatch diffs the provider-owned fields.
func accountPatch(acc *types.Account, pa ProviderAccount) types.AccountPatch {
	var patch types.AccountPatch
	if pa.Login != "" && acc.Login != pa.Login {
		login := pa.Login
		patch.Login = &login
	}
	if pa.AvatarURL != "" && acc.AvatarURL != pa.AvatarURL {
		avatar := pa.AvatarURL
		patch.AvatarURL = &avatar
	}
	if pa.URL != "" && acc.URL != pa.URL {
		u := pa.URL
		patch.URL = &u
	}
	if pa.Metadata != nil && !maps.Equal(acc.ProviderMetadata, pa.Metadata) {
		patch.ProviderMetadata = maps.Clone(pa.Metadata)
	}
	return patch
}

func uniqueAccounts(in []ProviderAccount) []ProviderAccount {
	seen := make(map[string]bool, len(in))
	out := make([]ProviderAccount, 0, len(in))
	for _, pa := range in {
		if pa.ProviderInternalID == "" || seen[pa.ProviderInternalID] {
			continue
		}
		seen[pa.ProviderInternalID] = true
		out = append(out, pa)
	}
	return out
}

func indexAccounts(accounts []*types.Account) map[string]*types.Account {
	m := make(map[string]*types.Account, len(accounts))
	for _, a := range accounts {
		m[a.ProviderInternalID] = a
	}
	return m
}
