// Package storage provides the store interfaces used by the sync engine.
//
// Concrete implementations live in the memory and dolt sub-packages.
// This package holds the interface and value types that are referenced by
// both the implementations and their consumers (internal/reposync, cmd/reposync).
package storage

import (
	"context"
	"errors"

	"github.com/steveyegge/reposync/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a create would violate a uniqueness constraint.
var ErrAlreadyExists = errors.New("already exists")

// AccountWithRepos is an account loaded together with its repositories and
// the subscription of its root account (nil when none exists).
type AccountWithRepos struct {
	Account      *types.Account
	Repositories []*types.Repository
	Subscription *types.Subscription
}

// AccountStore persists accounts and their root subscriptions.
type AccountStore interface {
	// FindAccountsByProviderIDs returns the accounts matching any of ids,
	// scoped by provider and type.
	FindAccountsByProviderIDs(ctx context.Context, ids []string, provider types.Provider, accountType types.AccountType) ([]*types.Account, error)
	// FindAccountByProviderID returns ErrNotFound when no account matches.
	FindAccountByProviderID(ctx context.Context, id string, provider types.Provider, accountType types.AccountType) (*types.Account, error)
	// CreateAccount inserts the account and, when sub is non-nil, the
	// subscription and its changelog in the same transaction. IDs are
	// written back into the arguments.
	CreateAccount(ctx context.Context, account *types.Account, sub *types.Subscription, changelog *types.SubscriptionChangelog) error
	UpdateAccount(ctx context.Context, id int64, patch types.AccountPatch) (*types.Account, error)
	FindAccountWithRepos(ctx context.Context, providerID string, provider types.Provider, accountType types.AccountType) (*AccountWithRepos, error)
}

// RepositoryStore persists repositories and answers scan-data ownership.
type RepositoryStore interface {
	CreateRepositories(ctx context.Context, repos []*types.Repository) error
	UpdateRepositories(ctx context.Context, repos []*types.Repository) error
	SetRepositoryEnabled(ctx context.Context, id int64, enabled bool) error
	ListRepositories(ctx context.Context, accountID int64) ([]*types.Repository, error)
	// HasScanData reports whether any scan was recorded against the repository.
	HasScanData(ctx context.Context, id int64) (bool, error)
	RecordScan(ctx context.Context, repositoryID int64) error
	// DeleteRepositories removes the rows. Missing ids are ignored.
	DeleteRepositories(ctx context.Context, ids []int64) error
}

// RoleStore persists the role lookup table and user-role associations.
type RoleStore interface {
	FindAllRoles(ctx context.Context) ([]*types.Role, error)
	// FindUserRole returns ErrNotFound when the user has no role on the account.
	FindUserRole(ctx context.Context, userID int64, providerInternalID string, accountID int64) (*types.UserRole, error)
	CreateUserRole(ctx context.Context, role *types.UserRole) error
	UpdateUserRole(ctx context.Context, id int64, roleID int64) error
}

// PolicyStore bootstraps authorization policies.
type PolicyStore interface {
	CreatePolicyForAccounts(ctx context.Context, accountIDs []int64) error
}

// UserStore persists provider users.
type UserStore interface {
	// UpsertUsers matches on (provider, provider_internal_id) and writes
	// the resulting IDs back into users.
	UpsertUsers(ctx context.Context, users []*types.User) error
	GetUserByProviderID(ctx context.Context, provider types.Provider, providerInternalID string) (*types.User, error)
}

// Storage is the interface satisfied by *dolt.DoltStore and *memory.MemoryStorage.
// Consumers depend on this interface rather than on a concrete type so that
// alternative implementations (mocks, instrumented wrappers) can be substituted.
type Storage interface {
	AccountStore
	RepositoryStore
	RoleStore
	PolicyStore
	UserStore

	Close() error
}
