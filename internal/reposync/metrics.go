package reposync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/reposync/internal/telemetry"
	"github.com/steveyegge/reposync/internal/types"
)

type syncMetrics struct {
	accounts     metric.Int64Counter
	repositories metric.Int64Counter
	duplicates   metric.Int64Counter
	duration     metric.Float64Histogram
}

func newSyncMetrics() *syncMetrics {
	m := telemetry.Meter(syncScopeName)
	accounts, _ := m.Int64Counter("reposync.accounts",
		metric.WithDescription("Accounts processed by sync, by outcome"),
	)
	repositories, _ := m.Int64Counter("reposync.repositories",
		metric.WithDescription("Repositories written by sync, by operation"),
	)
	duplicates, _ := m.Int64Counter("reposync.duplicates.removed",
		metric.WithDescription("Duplicate repository rows scheduled for deletion"),
	)
	duration, _ := m.Float64Histogram("reposync.sync.duration",
		metric.WithDescription("Synchronize duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &syncMetrics{
		accounts:     accounts,
		repositories: repositories,
		duplicates:   duplicates,
		duration:     duration,
	}
}

func (m *syncMetrics) record(ctx context.Context, provider types.Provider, stats SyncStats, elapsed time.Duration) {
	p := attribute.String("reposync.provider", string(provider))
	add := func(c metric.Int64Counter, n int, label string) {
		if n > 0 {
			c.Add(ctx, int64(n), metric.WithAttributes(p, attribute.String("outcome", label)))
		}
	}
	add(m.accounts, stats.AccountsCreated, "created")
	add(m.accounts, stats.AccountsUpdated, "updated")
	add(m.accounts, stats.AccountsSynced, "synced")
	add(m.accounts, stats.AccountsFailed, "failed")
	add(m.repositories, stats.RepositoriesCreated, "created")
	add(m.repositories, stats.RepositoriesUpdated, "updated")
	add(m.repositories, stats.RepositoriesReenabled, "reenabled")
	add(m.duplicates, stats.DuplicatesRemoved, "removed")
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(p))
}
