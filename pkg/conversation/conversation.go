// Package conversation reads persona chat history from memory.db. It never
// writes to the messages table.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"

	// RoleModel is the label some providers store for assistant turns.
	RoleModel Role = "model"
)

// Message is one stored conversation turn.
type Message struct {
	ID        string
	ThreadID  string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// pageSize is the number of messages read per query when walking a thread.
const pageSize = 100

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at);
`

// Store fetches messages from the threads and messages tables.
type Store struct {
	db *sql.DB
}

// NewStore wraps db. The tables are created if missing so an empty persona
// database reads as "no messages" rather than failing.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate conversation tables: %w", err)
	}
	return &Store{db: db}, nil
}

// FetchOptions selects which messages Fetch returns.
type FetchOptions struct {
	Limit    int
	Offset   int
	ThreadID string // empty means every thread
}

// Fetch returns up to Limit messages after skipping Offset. Without a
// ThreadID, threads are visited in order of their first message, threads
// with no messages last; within a thread messages are in creation order.
func (s *Store) Fetch(ctx context.Context, opts FetchOptions) ([]Message, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}

	threads := []string{opts.ThreadID}
	if opts.ThreadID == "" {
		var err error
		threads, err = s.orderedThreads(ctx)
		if err != nil {
			return nil, err
		}
	}

	want := opts.Offset + opts.Limit
	var all []Message

	for _, tid := range threads {
		for page := 0; len(all) < want; page++ {
			batch, err := s.page(ctx, tid, page)
			if err != nil {
				return nil, err
			}
			if len(batch) == 0 {
				break
			}
			all = append(all, batch...)
		}
		if len(all) >= want {
			break
		}
	}

	if opts.Offset >= len(all) {
		return nil, nil
	}
	end := min(want, len(all))
	return all[opts.Offset:end], nil
}

func (s *Store) orderedThreads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, MIN(m.created_at) AS first_msg_ts
		FROM threads t
		LEFT JOIN messages m ON t.id = m.thread_id
		GROUP BY t.id
		ORDER BY first_msg_ts IS NULL, first_msg_ts, t.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var (
			id    string
			first sql.NullInt64
		)
		if err := rows.Scan(&id, &first); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

func (s *Store) page(ctx context.Context, threadID string, page int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, created_at FROM messages
		 WHERE thread_id = ? ORDER BY created_at, rowid LIMIT ? OFFSET ?`,
		threadID, pageSize, page*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m    Message
			role string
			ts   int64
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return msgs, nil
}

// TimeRange returns the earliest and latest CreatedAt in msgs.
func TimeRange(msgs []Message) (start, end time.Time) {
	for i, m := range msgs {
		if i == 0 || m.CreatedAt.Before(start) {
			start = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(end) {
			end = m.CreatedAt
		}
	}
	return start, end
}
