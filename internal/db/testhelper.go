package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a hardened SQLite write/read pool pair in t.TempDir(),
// runs all pending migrations on the write pool, and registers cleanup.
//
// Tests that don't need the read/write split can use writeDB for everything.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")

	writeDB, readDB, err := OpenSQLitePair(path, 4)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := RunMigrations(writeDB); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return writeDB, readDB
}

// OpenTestLedger opens the restricted append/read ledger pools against a
// migrated SQLite file in t.TempDir() and registers cleanup. The returned
// pools refuse UPDATE and DELETE on ledger tables at the connection level.
func OpenTestLedger(t *testing.T) (appendDB, readDB *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")

	writeDB, generalRead, err := OpenSQLitePair(path, 2)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	if err := RunMigrations(writeDB); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	_ = generalRead.Close()
	_ = writeDB.Close()

	appendDB, readDB, err = OpenLedgerPair(path, 4)
	if err != nil {
		t.Fatalf("open test ledger: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = appendDB.Close()
	})

	return appendDB, readDB
}
