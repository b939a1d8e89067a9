package memopedia

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RNA4219/SAIVerse/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS memopedia_pages (
	id TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES memopedia_pages(id) ON DELETE CASCADE,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '[]',
	is_trunk INTEGER NOT NULL DEFAULT 0,
	is_important INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memopedia_pages_parent ON memopedia_pages(parent_id);
CREATE INDEX IF NOT EXISTS idx_memopedia_pages_title ON memopedia_pages(category, title);
`

const pageColumns = `id, parent_id, category, title, summary, content, keywords, is_trunk, is_important, created_at, updated_at`

// SQLiteStore persists the knowledge tree in the memopedia_pages table.
// Each method is a single statement or transaction; callers get no
// cross-call isolation.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewSQLiteStore creates the memopedia tables on db if needed and seeds the
// category roots.
func NewSQLiteStore(db *sql.DB, log *slog.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, log: logger.OrNop(log), now: time.Now}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate memopedia: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	ts := s.now().UnixMilli()
	for _, c := range Categories {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO memopedia_pages (id, parent_id, category, title, is_trunk, created_at, updated_at)
			 VALUES (?, NULL, ?, ?, 1, ?, ?)`,
			rootIDs[c], string(c), rootTitles[c], ts, ts,
		)
		if err != nil {
			return fmt.Errorf("seeding root %s: %w", c, err)
		}
	}

	return nil
}

// Get returns the page with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Page, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM memopedia_pages WHERE id = ?`, id)

	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan page: %w", err)
	}

	return p, nil
}

// FindByTitle returns the earliest non-root page with exactly this title in
// the category, or nil when there is none.
func (s *SQLiteStore) FindByTitle(ctx context.Context, title string, category Category) (*Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM memopedia_pages
		 WHERE title = ? AND category = ? AND parent_id IS NOT NULL
		 ORDER BY created_at, rowid LIMIT 1`,
		title, string(category),
	)

	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find page %q: %w", title, err)
	}

	return p, nil
}

// CreatePage inserts a child of np.ParentID. The new page takes the
// parent's category.
func (s *SQLiteStore) CreatePage(ctx context.Context, np NewPage) (*Page, error) {
	parent, err := s.Get(ctx, np.ParentID)
	if err != nil {
		return nil, fmt.Errorf("resolving parent: %w", err)
	}

	now := s.now()
	p := &Page{
		ID:        uuid.NewString(),
		ParentID:  parent.ID,
		Category:  parent.Category,
		Title:     np.Title,
		Summary:   np.Summary,
		Content:   np.Content,
		Keywords:  normalizeKeywords(np.Keywords),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.insert(ctx, s.db, p); err != nil {
		return nil, err
	}

	s.log.Debug("page created", "id", p.ID, "category", p.Category, "title", p.Title)
	return p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insert(ctx context.Context, ex execer, p *Page) error {
	kw, err := json.Marshal(normalizeKeywords(p.Keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	var parent any
	if p.ParentID != "" {
		parent = p.ParentID
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO memopedia_pages (`+pageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			category = excluded.category,
			title = excluded.title,
			summary = excluded.summary,
			content = excluded.content,
			keywords = excluded.keywords,
			is_trunk = excluded.is_trunk,
			is_important = excluded.is_important,
			updated_at = excluded.updated_at`,
		p.ID, parent, string(p.Category), p.Title, p.Summary, p.Content, string(kw),
		p.IsTrunk, p.IsImportant, p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

// AppendToContent appends content to the page's body, separated by a blank
// line when the body is not empty.
func (s *SQLiteStore) AppendToContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memopedia_pages
		 SET content = CASE WHEN content = '' THEN ? ELSE content || char(10) || char(10) || ? END,
		     updated_at = ?
		 WHERE id = ?`,
		content, content, s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to append content: %w", err)
	}

	if err := requireOneRow(res, id); err != nil {
		return err
	}

	s.log.Debug("page content appended", "id", id, "chars", len(content))
	return nil
}

// UpdatePage replaces the content, summary and keywords of a page.
func (s *SQLiteStore) UpdatePage(ctx context.Context, id string, u PageUpdate) error {
	kw, err := json.Marshal(normalizeKeywords(u.Keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE memopedia_pages SET content = ?, summary = ?, keywords = ?, updated_at = ? WHERE id = ?`,
		u.Content, u.Summary, string(kw), s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}

	if err := requireOneRow(res, id); err != nil {
		return err
	}

	s.log.Debug("page updated", "id", id)
	return nil
}

// ClearAllPages deletes every page except the category roots and returns
// how many were removed.
// Rows removed by the parent cascade are included in the count.
func (s *SQLiteStore) ClearAllPages(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memopedia_pages WHERE parent_id IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memopedia_pages WHERE parent_id IS NOT NULL`); err != nil {
		return 0, fmt.Errorf("failed to clear pages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clear: %w", err)
	}

	s.log.Debug("pages cleared", "count", n)
	return n, nil
}

// Children returns the direct children of parentID in creation order.
func (s *SQLiteStore) Children(ctx context.Context, parentID string) ([]*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM memopedia_pages WHERE parent_id = ? ORDER BY created_at, rowid`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return pages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (*Page, error) {
	var (
		p         Page
		parentID  sql.NullString
		category  string
		keywords  string
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(&p.ID, &parentID, &category, &p.Title, &p.Summary, &p.Content,
		&keywords, &p.IsTrunk, &p.IsImportant, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.ParentID = parentID.String
	p.Category = Category(category)
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)

	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	p.Keywords = normalizeKeywords(p.Keywords)

	return &p, nil
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated rows: %w", err)
	}
	if n == 0 {
		return NotFoundError{ID: id}
	}
	return nil
}

func normalizeKeywords(kw []string) []string {
	if kw == nil {
		return []string{}
	}
	return kw
}
