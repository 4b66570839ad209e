package sql

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// NewMock returns a Repository backed by a go-sqlmock connection, the same
// helper name and shape as the teacher's storage/sql/private_test.go uses
// for its own mocked-DB tests (NewMock() (*Storage, sqlmock.Sqlmock)).
func NewMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Open(db, DialectSQLite), mock
}
