package memopedia

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ExportVersion is written to every export and checked on import.
const ExportVersion = 1

// Export is the JSON document produced by ExportJSON. Roots are not
// included; pages are ordered parents first.
type Export struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Pages      []ExportedPage `json:"pages" validate:"dive"`
}

// ExportedPage is the serialized form of a non-root page.
type ExportedPage struct {
	ID          string   `json:"id"`
	ParentID    string   `json:"parent_id" validate:"required"`
	Category    Category `json:"category" validate:"required,oneof=people terms plans"`
	Title       string   `json:"title" validate:"required"`
	Summary     string   `json:"summary"`
	Content     string   `json:"content"`
	Keywords    []string `json:"keywords"`
	IsTrunk     bool     `json:"is_trunk"`
	IsImportant bool     `json:"is_important"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ExportJSON walks the tree depth-first and returns every non-root page.
func (s *SQLiteStore) ExportJSON(ctx context.Context) (*Export, error) {
	out := &Export{Version: ExportVersion, ExportedAt: s.now().UTC(), Pages: []ExportedPage{}}

	var walk func(parentID string) error
	walk = func(parentID string) error {
		children, err := s.Children(ctx, parentID)
		if err != nil {
			return err
		}
		for _, p := range children {
			out.Pages = append(out.Pages, ExportedPage{
				ID:          p.ID,
				ParentID:    p.ParentID,
				Category:    p.Category,
				Title:       p.Title,
				Summary:     p.Summary,
				Content:     p.Content,
				Keywords:    p.Keywords,
				IsTrunk:     p.IsTrunk,
				IsImportant: p.IsImportant,
				CreatedAt:   p.CreatedAt.UnixMilli(),
				UpdatedAt:   p.UpdatedAt.UnixMilli(),
			})
			if err := walk(p.ID); err != nil {
				return err
			}
		}
		return nil
	}

	for _, c := range Categories {
		if err := walk(rootIDs[c]); err != nil {
			return nil, fmt.Errorf("exporting %s: %w", c, err)
		}
	}

	return out, nil
}

// ImportJSON writes the exported pages into the store in one transaction
// and returns how many were imported. Pages whose id already exists are
// overwritten. A page whose parent is neither imported earlier nor present
// in the store is attached to its category root. With clearExisting every
// non-root page is deleted first.
func (s *SQLiteStore) ImportJSON(ctx context.Context, data *Export, clearExisting bool) (int, error) {
	if data == nil {
		return 0, fmt.Errorf("cannot import nil export")
	}
	if data.Version != 0 && data.Version != ExportVersion {
		return 0, fmt.Errorf("unsupported export version %d (expected %d)", data.Version, ExportVersion)
	}
	if err := validate.Struct(data); err != nil {
		return 0, fmt.Errorf("invalid export: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if clearExisting {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memopedia_pages WHERE parent_id IS NOT NULL`); err != nil {
			return 0, fmt.Errorf("failed to clear pages: %w", err)
		}
	}

	known := map[string]bool{}
	for _, c := range Categories {
		known[rootIDs[c]] = true
	}

	now := s.now()
	imported := 0
	for _, ep := range data.Pages {
		p := &Page{
			ID:          ep.ID,
			ParentID:    ep.ParentID,
			Category:    ep.Category,
			Title:       ep.Title,
			Summary:     ep.Summary,
			Content:     ep.Content,
			Keywords:    ep.Keywords,
			IsTrunk:     ep.IsTrunk,
			IsImportant: ep.IsImportant,
			CreatedAt:   millisOr(ep.CreatedAt, now),
			UpdatedAt:   millisOr(ep.UpdatedAt, now),
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}

		if !known[p.ParentID] {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memopedia_pages WHERE id = ?`, p.ParentID).Scan(&exists)
			if err != nil {
				return 0, fmt.Errorf("failed to check parent: %w", err)
			}
			if exists == 0 {
				s.log.Warn("import parent missing, attaching to root", "title", p.Title, "parent_id", p.ParentID)
				p.ParentID = rootIDs[p.Category]
			}
		}

		if err := s.insert(ctx, tx, p); err != nil {
			return 0, err
		}
		known[p.ID] = true
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}

	return imported, nil
}

func millisOr(ms int64, fallback time.Time) time.Time {
	if ms == 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}
