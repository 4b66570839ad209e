// Package sql is the SQL-backed storage.Repository, grounded on the
// teacher's own storage/sql package shape: a thin wrapper around
// *sql.DB plus a squirrel.StatementBuilderType, one blank-imported driver
// per supported backend, and go-sqlmock-driven tests (see mock_test.go,
// grounded on storage/sql/private_test.go's NewMock/ExpectQuery/ExpectExec
// pattern in the pack).
package sql

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/storage"
)

var _ storage.Repository = (*Repository)(nil)

// Dialect names the backend so the repository can pick a placeholder
// format and the auto-increment DDL of the schema. PutState does not
// consult it: it tries the ON CONFLICT upsert first and falls back to
// MySQL's ON DUPLICATE KEY UPDATE when that fails.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Repository is a storage.Repository backed by database/sql, spec §3/§7.
// One Repository serves every host's Pub/Sub node tree; node identity is
// scoped by the (host, path) columns, not by a separate schema per host.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

// Open wraps an already-configured *sql.DB. Callers normally reach this
// through NewMySQL/NewPostgres/NewSQLite; Open is exported for callers that
// need to share a pool already opened and tuned by their own process
// (connection limits, lifetime) before handing it to the repository.
func Open(db *sql.DB, dialect Dialect) *Repository {
	placeholder := sq.Question
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &Repository{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// NewMySQL opens a MySQL-backed repository, spec §6 (no single backend is
// mandated; MySQL is the teacher's first-listed driver).
func NewMySQL(dsn string) (*Repository, error) {
	db, err := sql.Open(string(DialectMySQL), dsn)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: open mysql")
	}
	return Open(db, DialectMySQL), nil
}

// NewPostgres opens a PostgreSQL-backed repository via lib/pq.
func NewPostgres(dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: open postgres")
	}
	return Open(db, DialectPostgres), nil
}

// NewSQLite opens a SQLite-backed repository, the default/test backend
// (spec §6 "outgoing_s2s_options"/"nodetree" defaults imply a single-process
// deployment where SQLite is a reasonable zero-config choice).
func NewSQLite(path string) (*Repository, error) {
	db, err := sql.Open(string(DialectSQLite), path)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: open sqlite3")
	}
	return Open(db, DialectSQLite), nil
}

// Close releases the underlying pool.
func (r *Repository) Close() error { return r.db.Close() }

// querier is satisfied by both *sql.DB and *sql.Tx so the CRUD methods
// below work identically inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// txKey retrieves the active transaction's querier from ctx, falling back
// to the pool when no transaction is open (sync_dirty mode, spec §5).
type txKeyType struct{}

var txKey txKeyType

func (r *Repository) q(ctx context.Context) querier {
	if q, ok := ctx.Value(txKey).(querier); ok {
		return q
	}
	return r.db
}
