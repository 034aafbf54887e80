// Package dolt implements storage.Storage on Dolt, a versioned MySQL-compatible
// database.
//
// Connection modes:
//   - Embedded: no server required, database/sql through github.com/dolthub/driver
//     (cgo builds only)
//   - Server: MySQL protocol to a running dolt sql-server, for deployments
//     where several sync workers share one catalog
package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"github.com/steveyegge/reposync/internal/storage"
)

// DefaultSQLPort is the port dolt sql-server listens on unless told otherwise.
const DefaultSQLPort = 3307

// DoltStore implements storage.Storage using Dolt.
type DoltStore struct {
	db         *sql.DB
	closed     atomic.Bool
	mu         sync.RWMutex
	serverMode bool

	// closer releases the embedded engine's filesystem locks. Nil in server mode.
	closer func() error
}

var _ storage.Storage = (*DoltStore)(nil)

// Config holds Dolt database configuration.
type Config struct {
	Path           string // Embedded database directory
	Database       string // Database name (default: reposync)
	CommitterName  string
	CommitterEmail string

	ServerMode     bool
	ServerHost     string // default 127.0.0.1
	ServerPort     int    // default 3307
	ServerUser     string // default root
	ServerPassword string // falls back to REPOSYNC_STORE_PASSWORD
	ServerTLS      bool
}

const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableError returns true if the error is a transient connection error
// that should be retried in server mode.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection", // 2013
		"gone away",       // 2006
		"i/o timeout",
	} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

// isDuplicateEntry reports a unique-key violation (MySQL error 1062).
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate entry")
}

// withRetry executes an operation with retry for transient errors.
// Only active in server mode; embedded mode has driver-level retry.
func (s *DoltStore) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return op()
	}
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newServerRetryBackoff(), ctx))
}

func (s *DoltStore) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

func (s *DoltStore) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

// queryRowContext runs a single-row query. scan receives the *sql.Row and
// should call Scan on it.
func (s *DoltStore) queryRowContext(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	return s.withRetry(ctx, func() error {
		return scan(s.db.QueryRowContext(ctx, query, args...))
	})
}

// runInTransaction runs fn in a transaction, retrying the whole unit on
// transient errors in server mode.
func (s *DoltStore) runInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// New opens (and if needed creates) the catalog database.
func New(ctx context.Context, cfg *Config) (*DoltStore, error) {
	if cfg.Database == "" {
		cfg.Database = "reposync"
	}
	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}
	if cfg.CommitterName == "" {
		cfg.CommitterName = "reposync"
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = "reposync@local"
	}

	if !cfg.ServerMode {
		if cfg.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		return newEmbeddedMode(ctx, cfg)
	}

	if cfg.ServerHost == "" {
		cfg.ServerHost = "127.0.0.1"
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = DefaultSQLPort
	}
	if cfg.ServerUser == "" {
		cfg.ServerUser = "root"
	}
	if cfg.ServerPassword == "" {
		cfg.ServerPassword = os.Getenv("REPOSYNC_STORE_PASSWORD")
	}

	// Fail fast with a clear message if nothing is listening.
	addr := net.JoinHostPort(cfg.ServerHost, strconv.Itoa(cfg.ServerPort))
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("Dolt server unreachable at %s: %w\n\nStart one in the database directory:\n  dolt sql-server", addr, err)
	}
	_ = conn.Close()

	db, err := openServerConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &DoltStore{db: db, serverMode: true}
	if err := store.withRetry(ctx, func() error { return initSchemaOnDB(ctx, db) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// buildServerDSN constructs a MySQL DSN for a Dolt server. An empty database
// connects without selecting one, for CREATE DATABASE.
func buildServerDSN(cfg *Config, database string) string {
	mc := mysql.NewConfig()
	mc.User = cfg.ServerUser
	mc.Passwd = cfg.ServerPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.ServerHost, strconv.Itoa(cfg.ServerPort))
	mc.DBName = database
	mc.ParseTime = true
	// RowsAffected counts matched rows, so an UPDATE of an existing row
	// that changes nothing is not mistaken for a missing one.
	mc.ClientFoundRows = true
	if cfg.ServerTLS {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

func openServerConnection(ctx context.Context, cfg *Config) (*sql.DB, error) {
	initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to open init connection: %w", err)
	}
	defer func() { _ = initDB.Close() }()

	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // G201: validated by validateDatabaseName
	if err != nil {
		// Dolt may return error 1007 even with IF NOT EXISTS.
		errLower := strings.ToLower(err.Error())
		if !strings.Contains(errLower, "database exists") && !strings.Contains(errLower, "1007") {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	db, err := sql.Open("mysql", buildServerDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open Dolt server connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping Dolt server: %w", err)
	}
	return db, nil
}

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]{0,63}$`)

// validateDatabaseName rejects names that cannot be safely interpolated
// into backtick-quoted DDL.
func validateDatabaseName(name string) error {
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("must be 1-64 characters of letters, digits, '_' or '-'")
	}
	return nil
}

// Close closes the database connection and releases embedded locks.
func (s *DoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	if s.closer != nil {
		if cerr := s.closer(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = errors.Join(err, cerr)
		}
		s.closer = nil
	}
	return err
}

// DB exposes the underlying handle for diagnostics and tests.
func (s *DoltStore) DB() *sql.DB {
	return s.db
}
