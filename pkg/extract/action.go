package extract

import (
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
)

// Action kinds.
const (
	KindCreate = "create"
	KindAppend = "append"
)

// Action is a pending change to the knowledge store. The set of
// implementations is closed: Create and Append.
type Action interface {
	Kind() string
	PageTitle() string
	isAction()
}

// Create adds a new page under a category root.
type Create struct {
	ParentID string
	Title    string
	Summary  string
	Content  string
	Keywords []string
}

// Append adds content to an existing page. When Refined is set, Content is
// the full merged body and Summary and Keywords replace the page's own.
type Append struct {
	PageID  string
	Title   string
	Content string

	Refined  bool
	Summary  string
	Keywords []string
}

func (Create) Kind() string { return KindCreate }
func (Append) Kind() string { return KindAppend }

func (c Create) PageTitle() string { return c.Title }
func (a Append) PageTitle() string { return a.Title }

func (Create) isAction() {}
func (Append) isAction() {}

// BuildActions turns candidates into actions. A candidate whose key is in
// existing becomes an Append to that page id; any other candidate becomes a
// Create under its category root. Candidates with an unknown category are
// dropped. Candidates are not deduplicated against each other.
func BuildActions(pages []CandidatePage, existing map[string]string) []Action {
	return buildActions(pages, existing, nil)
}

func buildActions(pages []CandidatePage, existing map[string]string, refined map[int]bool) []Action {
	actions := make([]Action, 0, len(pages))
	for i, p := range pages {
		rootID, ok := memopedia.RootID(p.Category)
		if !ok {
			continue
		}

		if pageID, found := existing[p.Key()]; found {
			a := Append{PageID: pageID, Title: p.Title, Content: p.Content}
			if refined[i] {
				a.Refined = true
				a.Summary = p.Summary
				a.Keywords = p.Keywords
			}
			actions = append(actions, a)
			continue
		}

		keywords := p.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		actions = append(actions, Create{
			ParentID: rootID,
			Title:    p.Title,
			Summary:  p.Summary,
			Content:  p.Content,
			Keywords: keywords,
		})
	}
	return actions
}
