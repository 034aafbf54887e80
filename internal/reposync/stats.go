package reposync

import (
	"errors"
	"fmt"

	"github.com/steveyegge/reposync/internal/types"
)

// SyncStats tracks counters for one Synchronize or SynchronizeUsers call.
type SyncStats struct {
	AccountsCreated       int `json:"accounts_created"`
	AccountsUpdated       int `json:"accounts_updated"`
	ParentsLinked         int `json:"parents_linked"`
	AccountsSynced        int `json:"accounts_synced"`
	AccountsFailed        int `json:"accounts_failed"`
	RepositoriesCreated   int `json:"repositories_created"`
	RepositoriesUpdated   int `json:"repositories_updated"`
	RepositoriesFiltered  int `json:"repositories_filtered"` // dropped by the write-access filter
	DuplicatesRemoved     int `json:"duplicates_removed"`
	DuplicateConflicts    int `json:"duplicate_conflicts"` // groups left alone because several rows own scan data
	RepositoriesReenabled int `json:"repositories_reenabled"`
	RolesCreated          int `json:"roles_created"`
	RolesUpdated          int `json:"roles_updated"`
	RolesPinned           int `json:"roles_pinned"` // skipped because an administrator pinned them
	UsersImported         int `json:"users_imported"`
}

func (s *SyncStats) add(o SyncStats) {
	s.AccountsCreated += o.AccountsCreated
	s.AccountsUpdated += o.AccountsUpdated
	s.ParentsLinked += o.ParentsLinked
	s.AccountsSynced += o.AccountsSynced
	s.AccountsFailed += o.AccountsFailed
	s.RepositoriesCreated += o.RepositoriesCreated
	s.RepositoriesUpdated += o.RepositoriesUpdated
	s.RepositoriesFiltered += o.RepositoriesFiltered
	s.DuplicatesRemoved += o.DuplicatesRemoved
	s.DuplicateConflicts += o.DuplicateConflicts
	s.RepositoriesReenabled += o.RepositoriesReenabled
	s.RolesCreated += o.RolesCreated
	s.RolesUpdated += o.RolesUpdated
	s.RolesPinned += o.RolesPinned
	s.UsersImported += o.UsersImported
}

// AccountFailure records an account whose branch did not complete.
type AccountFailure struct {
	AccountID int64  `json:"account_id,omitempty"`
	Login     string `json:"login"`
	Error     string `json:"error"`
	Err       error  `json:"-"`
}

// SyncResult is the outcome of Synchronize. Accounts holds only accounts whose
// branch succeeded, keyed by internal account id.
type SyncResult struct {
	Provider types.Provider                 `json:"provider"`
	Accounts map[int64]types.AccountSummary `json:"accounts"`
	Failures []AccountFailure               `json:"failures,omitempty"`
	Stats    SyncStats                      `json:"stats"`
}

// Err joins every per-account failure, or returns nil.
func (r *SyncResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("account %s: %w", f.Login, f.Err))
	}
	return errors.Join(errs...)
}
