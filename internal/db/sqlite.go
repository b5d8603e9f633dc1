// Package db opens the catalog database and runs its migrations.
package db

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB bundles the write and read pools for one SQLite file. SQLite allows a
// single writer, so the write pool is capped at one connection while reads
// fan out.
type DB struct {
	Write *sql.DB
	Read  *sql.DB
}

// OpenSQLite opens the catalog database at path with WAL journaling and a
// busy timeout, creating the file if needed.
func OpenSQLite(path string) (*DB, error) {
	dsn := func(mode string) string {
		q := url.Values{}
		q.Set("_journal_mode", "WAL")
		q.Set("_busy_timeout", "5000")
		q.Set("_synchronous", "NORMAL")
		q.Set("_foreign_keys", "on")
		q.Set("mode", mode)
		return fmt.Sprintf("file:%s?%s", path, q.Encode())
	}

	write, err := sql.Open("sqlite3", dsn("rwc"))
	if err != nil {
		return nil, fmt.Errorf("opening write pool: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite3", dsn("ro"))
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("opening read pool: %w", err)
	}
	read.SetMaxOpenConns(8)

	if err := write.Ping(); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{Write: write, Read: read}, nil
}

// OpenMemory opens an in-memory database with a shared cache, for tests.
// Both pools point at the same connection.
func OpenMemory() (*DB, error) {
	conn, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return &DB{Write: conn, Read: conn}, nil
}

// Close closes both pools.
func (d *DB) Close() error {
	rerr := d.Read.Close()
	werr := d.Write.Close()
	if werr != nil {
		return werr
	}
	if d.Read != d.Write {
		return rerr
	}
	return nil
}
