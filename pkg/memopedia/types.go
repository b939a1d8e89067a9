// Package memopedia is the persona knowledge tree: pages organized under
// fixed category roots, persisted in the persona's memory.db.
package memopedia

import (
	"slices"
	"time"
)

// Category is one of the fixed top-level branches of the tree.
type Category string

const (
	CategoryPeople Category = "people"
	CategoryTerms  Category = "terms"
	CategoryPlans  Category = "plans"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryPeople, CategoryTerms, CategoryPlans}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

var rootIDs = map[Category]string{
	CategoryPeople: "root_people",
	CategoryTerms:  "root_terms",
	CategoryPlans:  "root_plans",
}

var rootTitles = map[Category]string{
	CategoryPeople: "People",
	CategoryTerms:  "Terms",
	CategoryPlans:  "Plans",
}

// RootID returns the id of the category's root page. ok is false for
// categories without a root.
func RootID(c Category) (id string, ok bool) {
	id, ok = rootIDs[c]
	return id, ok
}

// IsRootID reports whether id names a category root.
func IsRootID(id string) bool {
	for _, rid := range rootIDs {
		if rid == id {
			return true
		}
	}
	return false
}

// Page is one entry in the knowledge tree. ParentID is empty only for
// category roots.
type Page struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	Keywords    []string  `json:"keywords"`
	IsTrunk     bool      `json:"is_trunk"`
	IsImportant bool      `json:"is_important"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewPage holds the fields for CreatePage. The category is inherited from
// the parent.
type NewPage struct {
	ParentID string
	Title    string
	Summary  string
	Content  string
	Keywords []string
}

// PageUpdate replaces the mutable fields of a page. Category and title are
// never changed after creation.
type PageUpdate struct {
	Content  string
	Summary  string
	Keywords []string
}

// TreeOptions controls TreeMarkdown rendering.
type TreeOptions struct {
	IncludeKeywords bool
	ShowMarkers     bool
}

// NotFoundError is returned when a page id does not exist.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "page not found"
	}
	return "page not found: " + e.ID
}
