// Package episode serves "arasuji": short narrative summaries of what
// happened in a persona's past, used as background for extraction prompts.
package episode

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxEntries bounds how many summaries ContextForRange joins.
const DefaultMaxEntries = 5

const schema = `
CREATE TABLE IF NOT EXISTS arasuji_entries (
	id TEXT PRIMARY KEY,
	level INTEGER NOT NULL DEFAULT 1,
	content TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_arasuji_entries_end ON arasuji_entries(end_time);
`

// Entry is one summary covering [Start, End].
type Entry struct {
	ID      string
	Level   int
	Content string
	Start   time.Time
	End     time.Time
}

// Store reads arasuji entries.
type Store struct {
	db         *sql.DB
	maxEntries int
}

// NewStore creates the arasuji table on db if needed.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate arasuji tables: %w", err)
	}
	return &Store{db: db, maxEntries: DefaultMaxEntries}, nil
}

// Add stores an entry, replacing one with the same id.
func (s *Store) Add(ctx context.Context, e Entry) error {
	level := e.Level
	if level == 0 {
		level = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO arasuji_entries (id, level, content, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
		e.ID, level, e.Content, e.Start.Unix(), e.End.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert arasuji entry: %w", err)
	}
	return nil
}

// ContextForRange returns the summaries of episodes that finished before
// start, newest maxEntries of them, oldest first. end is accepted so a
// caller can pass a batch's full span; only entries ending at or before
// start are considered prior history. Returns "" when there are none.
func (s *Store) ContextForRange(ctx context.Context, start, end time.Time) (string, error) {
	if end.Before(start) {
		start, end = end, start
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, level, content, start_time, end_time FROM arasuji_entries
		 WHERE end_time <= ?
		 ORDER BY end_time DESC, level DESC
		 LIMIT ?`,
		start.Unix(), s.maxEntries,
	)
	if err != nil {
		return "", fmt.Errorf("failed to query arasuji: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			startUnix  int64
			finishUnix int64
		)
		if err := rows.Scan(&e.ID, &e.Level, &e.Content, &startUnix, &finishUnix); err != nil {
			return "", fmt.Errorf("failed to scan arasuji: %w", err)
		}
		e.Start = time.Unix(startUnix, 0)
		e.End = time.Unix(finishUnix, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating rows: %w", err)
	}

	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "### %s - %s\n%s\n\n",
			e.Start.UTC().Format("2006-01-02 15:04"),
			e.End.UTC().Format("2006-01-02 15:04"),
			strings.TrimSpace(e.Content),
		)
	}

	return strings.TrimSpace(b.String()), nil
}
