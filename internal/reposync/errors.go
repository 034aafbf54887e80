package reposync

import (
	"errors"
	"fmt"

	"github.com/steveyegge/reposync/internal/types"
)

var (
	// ErrInvalidSession is returned when a Session is missing its provider, user, or client.
	ErrInvalidSession = errors.New("invalid sync session")

	// ErrUnknownProvider is returned when no Strategy is registered for a provider.
	ErrUnknownProvider = errors.New("no strategy registered for provider")
)

// ConsistencyError reports a broken invariant between what the store was asked
// and what it returned, or a create that raced another writer. It is always a
// defect: logged, raised, never shown to end users as-is.
type ConsistencyError struct {
	Op     string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation in %s: %s", e.Op, e.Detail)
}

// UpstreamError wraps a provider failure with the operation that failed.
type UpstreamError struct {
	Provider types.Provider
	Op       string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(provider types.Provider, op string, err error) error {
	return &UpstreamError{Provider: provider, Op: op, Err: err}
}
