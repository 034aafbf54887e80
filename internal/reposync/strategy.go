package reposync

import (
	"fmt"
	"sort"
	"sync"

	"github.com/steveyegge/reposync/internal/types"
)

// Strategy maps one provider's repository shape onto the catalog and
// classifies the caller's access. Implementations register themselves from
// their package init.
type Strategy interface {
	Provider() types.Provider

	// ToRepository maps a provider repository onto a new, disabled row.
	ToRepository(repo *ProviderRepository, accountID int64) *types.Repository

	// NeedsUpdate returns the patched copy of existing and whether any
	// provider-owned field drifted.
	NeedsUpdate(existing *types.Repository, repo *ProviderRepository) (*types.Repository, bool)

	IsAdmin(repo *ProviderRepository) bool
	HasWriteAccess(repo *ProviderRepository) bool

	// AutoEnable reports whether new repositories start enabled.
	AutoEnable() bool

	// RoleName maps a raw provider permission level onto a role table name.
	// An empty result means the permission grants no role.
	RoleName(permission string) string
}

// StrategyFactory creates a Strategy instance.
type StrategyFactory func() Strategy

// Registry manages registered provider strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[types.Provider]StrategyFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[types.Provider]StrategyFactory)}
}

// globalRegistry is the default registry used by Register and StrategyFor.
var globalRegistry = NewRegistry()

// Register adds a strategy factory to the global registry.
// This is called from provider package init() functions.
func Register(provider types.Provider, factory StrategyFactory) {
	globalRegistry.Register(provider, factory)
}

// StrategyFor creates the strategy registered for provider in the global registry.
func StrategyFor(provider types.Provider) (Strategy, error) {
	return globalRegistry.Strategy(provider)
}

// RegisteredProviders returns the providers registered in the global registry.
func RegisteredProviders() []types.Provider {
	return globalRegistry.List()
}

// DefaultRegistry returns the global registry.
func DefaultRegistry() *Registry {
	return globalRegistry
}

func (r *Registry) Register(provider types.Provider, factory StrategyFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[provider] = factory
}

// List returns the registered providers, sorted alphabetically.
func (r *Registry) List() []types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]types.Provider, 0, len(r.strategies))
	for p := range r.strategies {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

func (r *Registry) Strategy(provider types.Provider) (Strategy, error) {
	r.mu.RLock()
	factory := r.strategies[provider]
	r.mu.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, provider, r.List())
	}
	return factory(), nil
}

// MapRepository builds the catalog row shared by every strategy.
func MapRepository(repo *ProviderRepository, accountID int64, private bool) *types.Repository {
	return &types.Repository{
		AccountID:          accountID,
		ProviderInternalID: repo.ProviderInternalID,
		Name:               repo.Name,
		FullName:           repo.FullName,
		IsPrivate:          private,
		Language:           repo.Language,
		DefaultBranch:      repo.DefaultBranch,
	}
}

// DiffRepository copies the provider-owned fields of mapped onto a clone of
// existing and reports whether anything changed. Catalog-owned fields
// (enablement, hierarchy, timestamps) are never touched.
func DiffRepository(existing, mapped *types.Repository) (*types.Repository, bool) {
	updated := existing.Clone()
	changed := false

	if updated.Name != mapped.Name {
		updated.Name = mapped.Name
		changed = true
	}
	if updated.FullName != mapped.FullName {
		updated.FullName = mapped.FullName
		changed = true
	}
	if updated.IsPrivate != mapped.IsPrivate {
		updated.IsPrivate = mapped.IsPrivate
		changed = true
	}
	if updated.DefaultBranch != mapped.DefaultBranch {
		updated.DefaultBranch = mapped.DefaultBranch
		changed = true
	}
	if updated.Language != mapped.Language {
		updated.Language = mapped.Language
		changed = true
	}
	return updated, changed
}
