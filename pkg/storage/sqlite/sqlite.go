// Package sqlite opens the persona memory.db shared by the conversation,
// episode and memopedia stores.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout is how long a statement waits on a locked database
// before failing with SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// Open opens the database at dbPath using the mattn/go-sqlite3 driver.
// dbPath may be ":memory:". The pool is limited to one connection so all
// stores sharing the handle see the same database and writes are serialized.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", DefaultBusyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}
