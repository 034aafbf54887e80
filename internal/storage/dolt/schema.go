package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/steveyegge/reposync/internal/types"
)

// currentSchemaVersion is bumped whenever schema changes. initSchemaOnDB
// skips all DDL when the stored version is current.
const currentSchemaVersion = 1

// schema is the catalog. (provider, provider_internal_id, type) is unique on
// accounts; repositories deliberately carry only a plain index on
// (account_id, provider_internal_id) because historical duplicates exist
// and are repaired by deduplication rather than rejected.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    provider VARCHAR(32) NOT NULL,
    provider_internal_id VARCHAR(255) NOT NULL,
    type VARCHAR(16) NOT NULL,
    login VARCHAR(255) NOT NULL,
    parent_account_id BIGINT,
    cli_token VARCHAR(64) NOT NULL DEFAULT '',
    avatar_url TEXT,
    url TEXT,
    provider_metadata JSON,
    filter_repos_by_write_access TINYINT(1) NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    UNIQUE KEY uq_accounts_provider_id (provider, provider_internal_id, type),
    INDEX idx_accounts_parent (parent_account_id)
);

CREATE TABLE IF NOT EXISTS repositories (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    account_id BIGINT NOT NULL,
    provider_internal_id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    full_name VARCHAR(512) NOT NULL DEFAULT '',
    is_private TINYINT(1) NOT NULL DEFAULT 0,
    is_enabled TINYINT(1) NOT NULL DEFAULT 0,
    language VARCHAR(64) NOT NULL DEFAULT '',
    default_branch VARCHAR(255) NOT NULL DEFAULT '',
    parent_repository_id BIGINT,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_repositories_account_provider_id (account_id, provider_internal_id)
);

CREATE TABLE IF NOT EXISTS scans (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    repository_id BIGINT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_scans_repository (repository_id)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    account_id BIGINT NOT NULL,
    plan_code VARCHAR(64) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_subscriptions_account (account_id)
);

CREATE TABLE IF NOT EXISTS subscription_changelogs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    subscription_id BIGINT NOT NULL,
    account_id BIGINT NOT NULL,
    action VARCHAR(32) NOT NULL,
    plan_code VARCHAR(64) NOT NULL,
    actor_id BIGINT NOT NULL,
    created_at DATETIME(6) NOT NULL
);

CREATE TABLE IF NOT EXISTS roles (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    name VARCHAR(64) NOT NULL,
    UNIQUE KEY uq_roles_name (name)
);

CREATE TABLE IF NOT EXISTS user_roles (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    account_id BIGINT NOT NULL,
    role_id BIGINT NOT NULL,
    provider_internal_id VARCHAR(255) NOT NULL,
    role_overwritten_at DATETIME(6),
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    UNIQUE KEY uq_user_roles_user_account (user_id, account_id)
);

CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    provider VARCHAR(32) NOT NULL,
    provider_internal_id VARCHAR(255) NOT NULL,
    login VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL DEFAULT '',
    created_at DATETIME(6) NOT NULL,
    UNIQUE KEY uq_users_provider_id (provider, provider_internal_id)
);

CREATE TABLE IF NOT EXISTS policies (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    account_id BIGINT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    UNIQUE KEY uq_policies_account (account_id)
);

CREATE TABLE IF NOT EXISTS config (
    ` + "`key`" + ` VARCHAR(255) PRIMARY KEY,
    ` + "`value`" + ` TEXT NOT NULL
);
`

// initSchemaOnDB creates all tables and seeds the role table. Idempotent.
func initSchemaOnDB(ctx context.Context, db *sql.DB) error {
	var version int
	err := db.QueryRowContext(ctx, "SELECT `value` FROM config WHERE `key` = 'schema_version'").Scan(&version)
	if err == nil && version >= currentSchemaVersion {
		return nil
	}

	for _, stmt := range splitStatements(schema) {
		if isOnlyComments(stmt) {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w\nStatement: %s", err, truncateForError(stmt))
		}
	}

	for _, name := range types.DefaultRoles {
		if _, err := db.ExecContext(ctx, "INSERT IGNORE INTO roles (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to seed role %q: %w", name, err)
		}
	}

	if _, err := db.ExecContext(ctx,
		"INSERT INTO config (`key`, `value`) VALUES ('schema_version', ?) "+
			"ON DUPLICATE KEY UPDATE `value` = ?",
		currentSchemaVersion, currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// splitStatements splits a SQL script into individual statements, since
// MySQL/Dolt do not accept several statements in one Exec.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && script[i-1] != '\\' {
				inString = false
			}
			continue
		}

		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}

		if c == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

func truncateForError(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// isOnlyComments returns true if the statement contains only SQL comments.
func isOnlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}
