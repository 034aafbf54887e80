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

const repositoryColumns = `id, account_id, provider_internal_id, name, full_name, is_private,
	is_enabled, language, default_branch, parent_repository_id, created_at, updated_at`

func scanRepository(row rowScanner) (*types.Repository, error) {
	var (
		r                    types.Repository
		parent               sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.AccountID, &r.ProviderInternalID, &r.Name, &r.FullName, &r.IsPrivate,
		&r.IsEnabled, &r.Language, &r.DefaultBranch, &parent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.ParentRepositoryID = int64Ptr(parent)
	r.CreatedAt = parseTimeString(createdAt)
	r.UpdatedAt = parseTimeString(updatedAt)
	return &r, nil
}

// CreateRepositories inserts the rows in one transaction and writes the
// generated IDs back. A preset CreatedAt is kept.
func (s *DoltStore) CreateRepositories(ctx context.Context, repos []*types.Repository) error {
	if len(repos) == 0 {
		return nil
	}
	now := time.Now().UTC()
	ids := make([]int64, len(repos))

	err := s.runInTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO repositories (account_id, provider_internal_id, name,
			full_name, is_private, is_enabled, language, default_branch, parent_repository_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for i, r := range repos {
			createdAt := r.CreatedAt.UTC()
			if r.CreatedAt.IsZero() {
				createdAt = now
			}
			res, err := stmt.ExecContext(ctx, r.AccountID, r.ProviderInternalID, r.Name, r.FullName,
				r.IsPrivate, r.IsEnabled, r.Language, r.DefaultBranch, nullInt64(r.ParentRepositoryID), createdAt, now)
			if err != nil {
				return fmt.Errorf("repository %q: %w", r.Name, err)
			}
			if ids[i], err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to read repository id: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	for i, r := range repos {
		r.ID = ids[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
	}
	return nil
}

func (s *DoltStore) UpdateRepositories(ctx context.Context, repos []*types.Repository) error {
	if len(repos) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.runInTransaction(ctx, func(tx *sql.Tx) error {
		for _, r := range repos {
			res, err := tx.ExecContext(ctx, `UPDATE repositories SET name = ?, full_name = ?, is_private = ?,
				is_enabled = ?, language = ?, default_branch = ?, updated_at = ? WHERE id = ?`,
				r.Name, r.FullName, r.IsPrivate, r.IsEnabled, r.Language, r.DefaultBranch, now, r.ID)
			if err != nil {
				return fmt.Errorf("repository %d: %w", r.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("repository %d: %w", r.ID, storage.ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update repositories: %w", err)
	}
	for _, r := range repos {
		r.UpdatedAt = now
	}
	return nil
}

func (s *DoltStore) SetRepositoryEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.execContext(ctx, `UPDATE repositories SET is_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update repository %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("repository %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *DoltStore) ListRepositories(ctx context.Context, accountID int64) ([]*types.Repository, error) {
	rows, err := s.queryContext(ctx, `SELECT `+repositoryColumns+` FROM repositories
		WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var out []*types.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DoltStore) HasScanData(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&one)
	}, `SELECT 1 FROM scans WHERE repository_id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check scan data for repository %d: %w", id, err)
	}
	return true, nil
}

func (s *DoltStore) RecordScan(ctx context.Context, repositoryID int64) error {
	var one int
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&one)
	}, `SELECT 1 FROM repositories WHERE id = ?`, repositoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("repository %d: %w", repositoryID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	if _, err := s.execContext(ctx, `INSERT INTO scans (repository_id, created_at) VALUES (?, ?)`,
		repositoryID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}

// DeleteRepositories removes the rows and their scans. Missing ids are ignored.
func (s *DoltStore) DeleteRepositories(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := placeholders(len(ids))
	err := s.runInTransaction(ctx, func(tx *sql.Tx) error {
		//nolint:gosec // G201: placeholders only
		if _, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE repository_id IN (`+in+`)`, args...); err != nil {
			return err
		}
		//nolint:gosec // G201: placeholders only
		_, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE id IN (`+in+`)`, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete repositories: %w", err)
	}
	return nil
}
