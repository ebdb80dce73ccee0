// Package testutil provides an in-memory database with the production schema
// and an in-process cache for repository, service and handler tests.
package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE ads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	author_id   INTEGER NOT NULL,
	title       TEXT NOT NULL,
	price       DECIMAL(12, 2) NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	image       TEXT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE TABLE comments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	author_id  INTEGER NOT NULL,
	ad_id      INTEGER NOT NULL,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);`

// OpenDB returns a fresh in-memory database that is closed with the test.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}
