package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

func (s *DoltStore) FindAllRoles(ctx context.Context) ([]*types.Role, error) {
	rows, err := s.queryContext(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var out []*types.Role
	for rows.Next() {
		var r types.Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *DoltStore) FindUserRole(ctx context.Context, userID int64, providerInternalID string, accountID int64) (*types.UserRole, error) {
	var (
		ur                   types.UserRole
		overwritten          sql.NullString
		createdAt, updatedAt string
	)
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&ur.ID, &ur.UserID, &ur.AccountID, &ur.RoleID, &ur.ProviderInternalID,
			&overwritten, &createdAt, &updatedAt)
	}, `SELECT id, user_id, account_id, role_id, provider_internal_id, role_overwritten_at, created_at, updated_at
		FROM user_roles WHERE user_id = ? AND account_id = ? AND provider_internal_id = ?`,
		userID, accountID, providerInternalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user role %d/%d: %w", userID, accountID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user role: %w", err)
	}
	ur.RoleOverwrittenAt = parseNullableTimeString(overwritten)
	ur.CreatedAt = parseTimeString(createdAt)
	ur.UpdatedAt = parseTimeString(updatedAt)
	return &ur, nil
}

func (s *DoltStore) CreateUserRole(ctx context.Context, role *types.UserRole) error {
	now := time.Now().UTC()
	res, err := s.execContext(ctx, `INSERT INTO user_roles
		(user_id, account_id, role_id, provider_internal_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		role.UserID, role.AccountID, role.RoleID, role.ProviderInternalID, now, now)
	if isDuplicateEntry(err) {
		return fmt.Errorf("user role %d/%d: %w", role.UserID, role.AccountID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create user role: %w", err)
	}
	if role.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read user role id: %w", err)
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

func (s *DoltStore) UpdateUserRole(ctx context.Context, id int64, roleID int64) error {
	res, err := s.execContext(ctx, `UPDATE user_roles SET role_id = ?, updated_at = ? WHERE id = ?`,
		roleID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user role %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user role %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// PinUserRole marks the association as manually overridden so syncs leave it alone.
func (s *DoltStore) PinUserRole(ctx context.Context, id int64) error {
	res, err := s.execContext(ctx, `UPDATE user_roles SET role_overwritten_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to pin user role %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user role %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// CreatePolicyForAccounts bootstraps one policy per account. Accounts that
// already have a policy are skipped.
func (s *DoltStore) CreatePolicyForAccounts(ctx context.Context, accountIDs []int64) error {
	if len(accountIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.runInTransaction(ctx, func(tx *sql.Tx) error {
		for _, id := range accountIDs {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO policies (account_id, created_at) VALUES (?, ?)`, id, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create policies: %w", err)
	}
	return nil
}

// HasPolicy reports whether a policy was bootstrapped for the account.
func (s *DoltStore) HasPolicy(ctx context.Context, accountID int64) (bool, error) {
	var one int
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&one)
	}, `SELECT 1 FROM policies WHERE account_id = ?`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check policy: %w", err)
	}
	return true, nil
}

// UpsertUsers matches on (provider, provider_internal_id). Existing users
// get their login refreshed, and their email when one is supplied.
func (s *DoltStore) UpsertUsers(ctx context.Context, users []*types.User) error {
	if len(users) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.runInTransaction(ctx, func(tx *sql.Tx) error {
		for _, u := range users {
			if _, err := tx.ExecContext(ctx, `INSERT INTO users (provider, provider_internal_id, login, email, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE login = VALUES(login),
					email = IF(VALUES(email) = '', email, VALUES(email))`,
				u.Provider, u.ProviderInternalID, u.Login, u.Email, now); err != nil {
				return fmt.Errorf("user %s: %w", u.Login, err)
			}
			var createdAt string
			if err := tx.QueryRowContext(ctx, `SELECT id, created_at FROM users WHERE provider = ? AND provider_internal_id = ?`,
				u.Provider, u.ProviderInternalID).Scan(&u.ID, &createdAt); err != nil {
				return fmt.Errorf("user %s: %w", u.Login, err)
			}
			u.CreatedAt = parseTimeString(createdAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert users: %w", err)
	}
	return nil
}

func (s *DoltStore) GetUserByProviderID(ctx context.Context, provider types.Provider, providerInternalID string) (*types.User, error) {
	var (
		u         types.User
		createdAt string
	)
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&u.ID, &u.Provider, &u.ProviderInternalID, &u.Login, &u.Email, &createdAt)
	}, `SELECT id, provider, provider_internal_id, login, email, created_at FROM users
		WHERE provider = ? AND provider_internal_id = ?`, provider, providerInternalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s/%s: %w", provider, providerInternalID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = parseTimeString(createdAt)
	return &u, nil
}
