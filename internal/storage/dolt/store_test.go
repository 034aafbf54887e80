package dolt

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x TEXT DEFAULT ';');\n-- only a comment\n;\nINSERT INTO a VALUES ('it''s; fine')")
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x TEXT DEFAULT ';')", stmts[0])
	assert.True(t, isOnlyComments(stmts[1]))
	assert.False(t, isOnlyComments(stmts[2]))
}

func TestSchemaStatements(t *testing.T) {
	var tables int
	for _, stmt := range splitStatements(schema) {
		if !isOnlyComments(stmt) {
			tables++
		}
	}
	assert.Equal(t, 10, tables)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{mysql.ErrInvalidConn, true},
		{fmt.Errorf("query: %w", mysql.ErrInvalidConn), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("Error 2006: MySQL server has gone away"), true},
		{errors.New("read: i/o timeout"), true},
		{errors.New("Error 1064: syntax error"), false},
		{sql.ErrNoRows, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}

func TestIsDuplicateEntry(t *testing.T) {
	assert.True(t, isDuplicateEntry(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'uq'"}))
	assert.True(t, isDuplicateEntry(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1062})))
	assert.False(t, isDuplicateEntry(&mysql.MySQLError{Number: 1064}))
	assert.True(t, isDuplicateEntry(errors.New("duplicate entry 'github-1-USER' for key 'uq_accounts_provider_id'")))
	assert.False(t, isDuplicateEntry(nil))
}

func TestBuildServerDSN(t *testing.T) {
	cfg := &Config{ServerUser: "root", ServerPassword: "p@ss:word", ServerHost: "db.local", ServerPort: 3307}

	dsn := buildServerDSN(cfg, "reposync")
	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "root", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "db.local:3307", parsed.Addr)
	assert.Equal(t, "reposync", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.True(t, parsed.ClientFoundRows)

	parsed, err = mysql.ParseDSN(buildServerDSN(cfg, ""))
	require.NoError(t, err)
	assert.Empty(t, parsed.DBName)
}

func TestValidateDatabaseName(t *testing.T) {
	for _, name := range []string{"reposync", "repo_sync", "repo-sync-2"} {
		assert.NoError(t, validateDatabaseName(name), name)
	}
	for _, name := range []string{"", "-x", "a`b", "a b", "a;drop"} {
		assert.Error(t, validateDatabaseName(name), name)
	}
}

func TestParseTimeString(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)
	assert.Equal(t, want, parseTimeString("2024-03-01T12:30:45.123456Z"))
	assert.Equal(t, want, parseTimeString("2024-03-01 12:30:45.123456"))
	assert.True(t, parseTimeString("garbage").IsZero())

	assert.Nil(t, parseNullableTimeString(sql.NullString{}))
	got := parseNullableTimeString(sql.NullString{String: "2024-03-01 12:30:45", Valid: true})
	require.NotNil(t, got)
	assert.Equal(t, want.Truncate(time.Second), *got)
}

func TestMetadataEncoding(t *testing.T) {
	ns, err := marshalMetadata(nil)
	require.NoError(t, err)
	assert.False(t, ns.Valid)
	assert.Nil(t, unmarshalMetadata(ns))

	ns, err = marshalMetadata(map[string]string{"name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Acme"}, unmarshalMetadata(ns))
	assert.Nil(t, unmarshalMetadata(sql.NullString{String: "{not json", Valid: true}))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
