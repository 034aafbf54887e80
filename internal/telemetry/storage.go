package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/types"
)

const storageScopeName = "github.com/steveyegge/reposync/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in reposync.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return newInstrumentedStorage(s)
}

func newInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("reposync.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("reposync.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("reposync.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func providerAttrs(provider types.Provider, accountType types.AccountType) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("reposync.provider", string(provider)),
		attribute.String("reposync.account.type", string(accountType)),
	}
}

// ── Accounts ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) FindAccountsByProviderIDs(ctx context.Context, ids []string, provider types.Provider, accountType types.AccountType) ([]*types.Account, error) {
	attrs := append(providerAttrs(provider, accountType), attribute.Int("reposync.account.count", len(ids)))
	ctx, span, t := s.op(ctx, "FindAccountsByProviderIDs", attrs...)
	v, err := s.inner.FindAccountsByProviderIDs(ctx, ids, provider, accountType)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) FindAccountByProviderID(ctx context.Context, id string, provider types.Provider, accountType types.AccountType) (*types.Account, error) {
	attrs := providerAttrs(provider, accountType)
	ctx, span, t := s.op(ctx, "FindAccountByProviderID", attrs...)
	v, err := s.inner.FindAccountByProviderID(ctx, id, provider, accountType)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) CreateAccount(ctx context.Context, account *types.Account, sub *types.Subscription, changelog *types.SubscriptionChangelog) error {
	attrs := append(providerAttrs(account.Provider, account.Type), attribute.Bool("reposync.account.root", sub != nil))
	ctx, span, t := s.op(ctx, "CreateAccount", attrs...)
	err := s.inner.CreateAccount(ctx, account, sub, changelog)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) UpdateAccount(ctx context.Context, id int64, patch types.AccountPatch) (*types.Account, error) {
	attrs := []attribute.KeyValue{attribute.Int64("reposync.account.id", id)}
	ctx, span, t := s.op(ctx, "UpdateAccount", attrs...)
	v, err := s.inner.UpdateAccount(ctx, id, patch)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) FindAccountWithRepos(ctx context.Context, providerID string, provider types.Provider, accountType types.AccountType) (*storage.AccountWithRepos, error) {
	attrs := providerAttrs(provider, accountType)
	ctx, span, t := s.op(ctx, "FindAccountWithRepos", attrs...)
	v, err := s.inner.FindAccountWithRepos(ctx, providerID, provider, accountType)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Repositories ────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateRepositories(ctx context.Context, repos []*types.Repository) error {
	attrs := []attribute.KeyValue{attribute.Int("reposync.repository.count", len(repos))}
	ctx, span, t := s.op(ctx, "CreateRepositories", attrs...)
	err := s.inner.CreateRepositories(ctx, repos)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) UpdateRepositories(ctx context.Context, repos []*types.Repository) error {
	attrs := []attribute.KeyValue{attribute.Int("reposync.repository.count", len(repos))}
	ctx, span, t := s.op(ctx, "UpdateRepositories", attrs...)
	err := s.inner.UpdateRepositories(ctx, repos)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) SetRepositoryEnabled(ctx context.Context, id int64, enabled bool) error {
	ctx, span, t := s.op(ctx, "SetRepositoryEnabled")
	err := s.inner.SetRepositoryEnabled(ctx, id, enabled)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) ListRepositories(ctx context.Context, accountID int64) ([]*types.Repository, error) {
	ctx, span, t := s.op(ctx, "ListRepositories")
	v, err := s.inner.ListRepositories(ctx, accountID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) HasScanData(ctx context.Context, id int64) (bool, error) {
	ctx, span, t := s.op(ctx, "HasScanData")
	v, err := s.inner.HasScanData(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) RecordScan(ctx context.Context, repositoryID int64) error {
	ctx, span, t := s.op(ctx, "RecordScan")
	err := s.inner.RecordScan(ctx, repositoryID)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) DeleteRepositories(ctx context.Context, ids []int64) error {
	attrs := []attribute.KeyValue{attribute.Int("reposync.repository.count", len(ids))}
	ctx, span, t := s.op(ctx, "DeleteRepositories", attrs...)
	err := s.inner.DeleteRepositories(ctx, ids)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Roles, policies, users ──────────────────────────────────────────────────

func (s *InstrumentedStorage) FindAllRoles(ctx context.Context) ([]*types.Role, error) {
	ctx, span, t := s.op(ctx, "FindAllRoles")
	v, err := s.inner.FindAllRoles(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) FindUserRole(ctx context.Context, userID int64, providerInternalID string, accountID int64) (*types.UserRole, error) {
	ctx, span, t := s.op(ctx, "FindUserRole")
	v, err := s.inner.FindUserRole(ctx, userID, providerInternalID, accountID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CreateUserRole(ctx context.Context, role *types.UserRole) error {
	ctx, span, t := s.op(ctx, "CreateUserRole")
	err := s.inner.CreateUserRole(ctx, role)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) UpdateUserRole(ctx context.Context, id int64, roleID int64) error {
	ctx, span, t := s.op(ctx, "UpdateUserRole")
	err := s.inner.UpdateUserRole(ctx, id, roleID)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) CreatePolicyForAccounts(ctx context.Context, accountIDs []int64) error {
	attrs := []attribute.KeyValue{attribute.Int("reposync.account.count", len(accountIDs))}
	ctx, span, t := s.op(ctx, "CreatePolicyForAccounts", attrs...)
	err := s.inner.CreatePolicyForAccounts(ctx, accountIDs)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) UpsertUsers(ctx context.Context, users []*types.User) error {
	attrs := []attribute.KeyValue{attribute.Int("reposync.user.count", len(users))}
	ctx, span, t := s.op(ctx, "UpsertUsers", attrs...)
	err := s.inner.UpsertUsers(ctx, users)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetUserByProviderID(ctx context.Context, provider types.Provider, providerInternalID string) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetUserByProviderID")
	v, err := s.inner.GetUserByProviderID(ctx, provider, providerInternalID)
	s.done(ctx, span, t, err)
	return v, err
}

// Close closes the underlying store.
func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

// Unwrap returns the underlying storage.
func (s *InstrumentedStorage) Unwrap() storage.Storage {
	return s.inner
}
