package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

const accountColumns = `id, provider, provider_internal_id, type, login, parent_account_id,
	cli_token, avatar_url, url, provider_metadata, filter_repos_by_write_access,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*types.Account, error) {
	var (
		a                    types.Account
		parent               sql.NullInt64
		avatarURL, url, meta sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.Provider, &a.ProviderInternalID, &a.Type, &a.Login, &parent,
		&a.CLIToken, &avatarURL, &url, &meta, &a.FilterReposByWriteAccess,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.ParentAccountID = int64Ptr(parent)
	a.AvatarURL = avatarURL.String
	a.URL = url.String
	a.ProviderMetadata = unmarshalMetadata(meta)
	a.CreatedAt = parseTimeString(createdAt)
	a.UpdatedAt = parseTimeString(updatedAt)
	return &a, nil
}

func (s *DoltStore) FindAccountsByProviderIDs(ctx context.Context, ids []string, provider types.Provider, accountType types.AccountType) ([]*types.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, provider, accountType)
	for _, id := range ids {
		args = append(args, id)
	}
	//nolint:gosec // G201: placeholders only
	query := fmt.Sprintf(`SELECT %s FROM accounts
		WHERE provider = ? AND type = ? AND provider_internal_id IN (%s)
		ORDER BY id`, accountColumns, placeholders(len(ids)))

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find accounts: %w", err)
	}
	defer rows.Close()

	var out []*types.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *DoltStore) FindAccountByProviderID(ctx context.Context, id string, provider types.Provider, accountType types.AccountType) (*types.Account, error) {
	var account *types.Account
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		var scanErr error
		account, scanErr = scanAccount(row)
		return scanErr
	}, `SELECT `+accountColumns+` FROM accounts
		WHERE provider = ? AND type = ? AND provider_internal_id = ?`, provider, accountType, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s/%s/%s: %w", provider, accountType, id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// CreateAccount inserts the account and, for root accounts, its subscription
// and changelog in one transaction. A concurrent insert of the same
// (provider, provider_internal_id, type) surfaces as storage.ErrAlreadyExists.
func (s *DoltStore) CreateAccount(ctx context.Context, account *types.Account, sub *types.Subscription, changelog *types.SubscriptionChangelog) error {
	meta, err := marshalMetadata(account.ProviderMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode provider metadata: %w", err)
	}
	now := time.Now().UTC()

	err = s.runInTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO accounts (provider, provider_internal_id, type, login,
			parent_account_id, cli_token, avatar_url, url, provider_metadata,
			filter_repos_by_write_access, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			account.Provider, account.ProviderInternalID, account.Type, account.Login,
			nullInt64(account.ParentAccountID), account.CLIToken, account.AvatarURL, account.URL, meta,
			account.FilterReposByWriteAccess, now, now)
		if err != nil {
			return err
		}
		accountID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read account id: %w", err)
		}
		account.ID = accountID

		if sub == nil {
			return nil
		}
		res, err = tx.ExecContext(ctx, `INSERT INTO subscriptions (account_id, plan_code, created_at) VALUES (?, ?, ?)`,
			accountID, sub.PlanCode, now)
		if err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		if sub.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read subscription id: %w", err)
		}
		sub.AccountID = accountID
		sub.CreatedAt = now

		if changelog == nil {
			return nil
		}
		res, err = tx.ExecContext(ctx, `INSERT INTO subscription_changelogs
			(subscription_id, account_id, action, plan_code, actor_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sub.ID, accountID, changelog.Action, changelog.PlanCode, changelog.ActorID, now)
		if err != nil {
			return fmt.Errorf("failed to create subscription changelog: %w", err)
		}
		if changelog.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read changelog id: %w", err)
		}
		changelog.SubscriptionID = sub.ID
		changelog.AccountID = accountID
		changelog.CreatedAt = now
		return nil
	})
	if isDuplicateEntry(err) {
		return fmt.Errorf("account %s/%s/%s: %w", account.Provider, account.Type, account.ProviderInternalID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

func (s *DoltStore) UpdateAccount(ctx context.Context, id int64, patch types.AccountPatch) (*types.Account, error) {
	var (
		sets []string
		args []any
	)
	if patch.Login != nil {
		sets = append(sets, "login = ?")
		args = append(args, *patch.Login)
	}
	if patch.ParentAccountID != nil {
		sets = append(sets, "parent_account_id = ?")
		args = append(args, *patch.ParentAccountID)
	}
	if patch.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *patch.AvatarURL)
	}
	if patch.URL != nil {
		sets = append(sets, "url = ?")
		args = append(args, *patch.URL)
	}
	if patch.ProviderMetadata != nil {
		meta, err := marshalMetadata(patch.ProviderMetadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode provider metadata: %w", err)
		}
		sets = append(sets, "provider_metadata = ?")
		args = append(args, meta)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	//nolint:gosec // G201: column names are fixed above
	res, err := s.execContext(ctx, "UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update account %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	return s.getAccount(ctx, id)
}

func (s *DoltStore) getAccount(ctx context.Context, id int64) (*types.Account, error) {
	var account *types.Account
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		var scanErr error
		account, scanErr = scanAccount(row)
		return scanErr
	}, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return account, nil
}

// FindAccountWithRepos loads the account, its repositories, and the
// subscription of its root account.
func (s *DoltStore) FindAccountWithRepos(ctx context.Context, providerID string, provider types.Provider, accountType types.AccountType) (*storage.AccountWithRepos, error) {
	account, err := s.FindAccountByProviderID(ctx, providerID, provider, accountType)
	if err != nil {
		return nil, err
	}
	repos, err := s.ListRepositories(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	result := &storage.AccountWithRepos{Account: account, Repositories: repos}

	root := account
	for depth := 0; root.ParentAccountID != nil && depth < maxHierarchyDepth; depth++ {
		parent, err := s.getAccount(ctx, *root.ParentAccountID)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		root = parent
	}

	var sub types.Subscription
	var createdAt string
	err = s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&sub.ID, &sub.AccountID, &sub.PlanCode, &createdAt)
	}, `SELECT id, account_id, plan_code, created_at FROM subscriptions
		WHERE account_id = ? ORDER BY id LIMIT 1`, root.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	default:
		sub.CreatedAt = parseTimeString(createdAt)
		result.Subscription = &sub
	}
	return result, nil
}

// maxHierarchyDepth bounds the parent walk against cycles in bad data.
const maxHierarchyDepth = 32
