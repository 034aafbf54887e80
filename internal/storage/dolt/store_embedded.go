//go:build cgo

package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
)

const embeddedOpenMaxElapsed = 30 * time.Second

func newEmbeddedOpenBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// embeddedDSN builds a file:// DSN. An empty database opens the engine
// without selecting one.
func embeddedDSN(absPath string, cfg *Config, database string) string {
	q := url.Values{}
	q.Set("commitname", cfg.CommitterName)
	q.Set("commitemail", cfg.CommitterEmail)
	if database != "" {
		q.Set("database", database)
	}
	return "file://" + absPath + "?" + q.Encode()
}

// newEmbeddedMode opens the catalog with the in-process Dolt engine.
func newEmbeddedMode(ctx context.Context, cfg *Config) (*DoltStore, error) {
	if info, statErr := os.Stat(cfg.Path); statErr == nil && !info.IsDir() {
		return nil, fmt.Errorf("database path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// The driver stacks relative paths onto its own working directory, so
	// always hand it an absolute one.
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	configureRetries := func(c *embedded.Config) {
		c.BackOff = newEmbeddedOpenBackoff()
	}

	if err := withEmbeddedDolt(ctx, embeddedDSN(absPath, cfg, ""), configureRetries, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // G201: validated by validateDatabaseName
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create dolt database: %w", err)
	}

	dbDSN := embeddedDSN(absPath, cfg, cfg.Database)
	if err := withEmbeddedDolt(ctx, dbDSN, configureRetries, func(ctx context.Context, db *sql.DB) error {
		return initSchemaOnDB(ctx, db)
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db, connector, err := openEmbeddedConnection(dbDSN)
	if err != nil {
		return nil, err
	}

	// The driver derives its session context from the first Connect and
	// reuses it, so never open the pool with a caller context that may be
	// canceled once New returns.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("failed to ping Dolt database: %w", err)
	}

	return &DoltStore{db: db, closer: connector.Close}, nil
}

func openEmbeddedConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Dolt DSN: %w", err)
	}
	openCfg.BackOff = newEmbeddedOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Embedded Dolt is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, connector, nil
}

// withEmbeddedDolt runs one unit of work on its own connector and releases
// the engine's filesystem locks before returning.
func withEmbeddedDolt(
	ctx context.Context,
	dsn string,
	configure func(cfg *embedded.Config),
	fn func(ctx context.Context, db *sql.DB) error,
) (err error) {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	if configure != nil {
		configure(&cfg)
	}

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)

	defer func() {
		cerr := errors.Join(
			ignoreContextCanceled(db.Close()),
			ignoreContextCanceled(connector.Close()),
		)
		err = errors.Join(err, cerr)
	}()

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return fn(ctx, db)
}

// ignoreContextCanceled drops the context.Canceled noise the engine's
// shutdown path surfaces from background goroutines.
func ignoreContextCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
