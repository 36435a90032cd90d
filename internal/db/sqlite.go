// Package db provides database connectivity helpers and migration support.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLite DSN parameters for production hardening.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

// OpenSQLite opens a *sql.DB pool for the given SQLite file path.
//
// mode controls write-safety and pool sizing:
//   - "write": MaxOpenConns=1, MaxIdleConns=1, includes _txlock=immediate
//   - "read":  MaxOpenConns=maxOpen (use 0 for default of 4), no _txlock
//
// Both modes set WAL journal, busy_timeout=5000ms, synchronous=NORMAL,
// and foreign_keys=on.
func OpenSQLite(path string, mode string, maxOpen int) (*sql.DB, error) {
	return open("sqlite3", path, mode, maxOpen)
}

// OpenSQLitePair opens both a write pool (MaxOpenConns=1) and a read pool
// for the same SQLite file. This is the recommended way to configure SQLite
// for concurrent access from a Go HTTP server.
//
// readMaxOpen controls the read pool size (0 defaults to 4).
func OpenSQLitePair(path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = OpenSQLite(path, "write", 0)
	if err != nil {
		return nil, nil, err
	}

	readDB, err = OpenSQLite(path, "read", readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}

	return writeDB, readDB, nil
}

// ledgerDriverName is the restricted driver used for all runtime ledger I/O.
const ledgerDriverName = "sqlite3_ledger"

// ledgerTables are refused UPDATE, DELETE, and DDL through the ledger
// credential. Schema changes go through migrations on the regular driver.
var ledgerTables = map[string]bool{
	"ledger_events": true,
}

var registerLedgerDriver sync.Once

// OpenLedgerPair opens append and read pools whose connections hold an
// INSERT+SELECT-only credential for the ledger tables: the SQLite authorizer
// refuses UPDATE, DELETE, DROP, and ALTER against them at the storage layer,
// before the schema-level triggers are even consulted.
func OpenLedgerPair(path string, readMaxOpen int) (appendDB, readDB *sql.DB, err error) {
	registerLedgerDriver.Do(func() {
		sql.Register(ledgerDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterAuthorizer(ledgerAuthorizer)
			},
		})
	})

	appendDB, err = open(ledgerDriverName, path, "write", 0)
	if err != nil {
		return nil, nil, err
	}

	readDB, err = open(ledgerDriverName, path, "read", readMaxOpen)
	if err != nil {
		_ = appendDB.Close()
		return nil, nil, err
	}

	return appendDB, readDB, nil
}

// ledgerAuthorizer is consulted by SQLite for every action a ledger
// connection prepares. arg1 carries the table name for the actions we gate.
func ledgerAuthorizer(op int, arg1, arg2, arg3 string) int {
	switch op {
	case sqlite3.SQLITE_UPDATE, sqlite3.SQLITE_DELETE,
		sqlite3.SQLITE_DROP_TABLE, sqlite3.SQLITE_ALTER_TABLE:
		if ledgerTables[arg1] {
			return sqlite3.SQLITE_DENY
		}
	}
	return sqlite3.SQLITE_OK
}

// IsAuthorizerDenial reports whether err came from the authorizer refusing a
// statement. The ledger layer converts these into security events.
func IsAuthorizerDenial(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrAuth
}

func open(driver, path, mode string, maxOpen int) (*sql.DB, error) {
	if mode != "read" && mode != "write" {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be \"read\" or \"write\"", mode)
	}

	dsn := buildDSN(path, mode)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case "write":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "read":
		if maxOpen <= 0 {
			maxOpen = 4
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	// Verify the connection is usable.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}

	return db, nil
}

// buildDSN constructs a SQLite DSN with hardened parameters.
func buildDSN(path string, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")

	if mode == "write" {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}
