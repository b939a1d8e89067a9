package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RNA4219/SAIVerse/pkg/logger"
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
	"github.com/RNA4219/SAIVerse/pkg/metrics"
	"github.com/RNA4219/SAIVerse/pkg/utils"
)

// Store is the subset of the knowledge store the pipeline reads and
// mutates.
type Store interface {
	TreeMarkdown(ctx context.Context, opts memopedia.TreeOptions) (string, error)
	FindByTitle(ctx context.Context, title string, category memopedia.Category) (*memopedia.Page, error)
	CreatePage(ctx context.Context, np memopedia.NewPage) (*memopedia.Page, error)
	AppendToContent(ctx context.Context, id, content string) error
	UpdatePage(ctx context.Context, id string, u memopedia.PageUpdate) error
}

// Matcher decides whether candidates update existing pages or create new
// ones, and applies the resulting actions.
type Matcher struct {
	store   Store
	refiner *Refiner
	dryRun  bool
	log     *slog.Logger
	metrics *metrics.Run
}

// NewMatcher creates a Matcher. A nil refiner disables refinement; refiner
// is also ignored in dry-run mode.
func NewMatcher(store Store, refiner *Refiner, dryRun bool, log *slog.Logger, m *metrics.Run) *Matcher {
	return &Matcher{
		store:   store,
		refiner: refiner,
		dryRun:  dryRun,
		log:     logger.OrNop(log),
		metrics: m,
	}
}

// MatchAndBuild looks up each candidate by (title, category) and builds
// the actions for the batch. Matched candidates are refined first when
// refinement is enabled and the run is live.
func (m *Matcher) MatchAndBuild(ctx context.Context, pages []CandidatePage) ([]Action, error) {
	pages = append([]CandidatePage(nil), pages...)
	existing := make(map[string]string)
	refined := make(map[int]bool)

	for i := range pages {
		p := &pages[i]
		page, err := m.store.FindByTitle(ctx, p.Title, p.Category)
		if err != nil {
			return nil, fmt.Errorf("looking up %q: %w", p.Key(), err)
		}
		if page == nil {
			continue
		}

		existing[p.Key()] = page.ID
		if m.refiner == nil || m.dryRun {
			continue
		}

		r := m.refiner.Refine(ctx, page, p.Content)
		p.Content = r.Content
		p.Summary = r.Summary
		p.Keywords = r.Keywords
		refined[i] = true
	}

	return buildActions(pages, existing, refined), nil
}

// Apply executes actions in order. In dry-run mode it only logs. The first
// store error stops the run; earlier actions stay applied.
func (m *Matcher) Apply(ctx context.Context, actions []Action) error {
	for _, action := range actions {
		m.metrics.Action(action.Kind(), m.dryRun)

		if m.dryRun {
			m.log.Info("[DRY RUN] would apply action",
				"type", action.Kind(),
				"title", action.PageTitle(),
				"content", utils.Truncate(actionContent(action), 100),
			)
			continue
		}

		switch a := action.(type) {
		case Append:
			if err := m.applyAppend(ctx, a); err != nil {
				return err
			}
		case Create:
			page, err := m.store.CreatePage(ctx, memopedia.NewPage{
				ParentID: a.ParentID,
				Title:    a.Title,
				Summary:  a.Summary,
				Content:  a.Content,
				Keywords: a.Keywords,
			})
			if err != nil {
				return fmt.Errorf("creating page %q: %w", a.Title, err)
			}
			m.log.Info("created page", "title", a.Title, "id", page.ID)
		default:
			panic(fmt.Sprintf("extract: unhandled action %T", action))
		}
	}
	return nil
}

func actionContent(a Action) string {
	switch a := a.(type) {
	case Create:
		return a.Content
	case Append:
		return a.Content
	default:
		return ""
	}
}

func (m *Matcher) applyAppend(ctx context.Context, a Append) error {
	if a.Refined {
		err := m.store.UpdatePage(ctx, a.PageID, memopedia.PageUpdate{
			Content:  a.Content,
			Summary:  a.Summary,
			Keywords: a.Keywords,
		})
		if err != nil {
			return fmt.Errorf("updating page %q: %w", a.Title, err)
		}
		m.log.Info("refined page", "title", a.Title, "id", a.PageID)
		return nil
	}

	if err := m.store.AppendToContent(ctx, a.PageID, a.Content); err != nil {
		return fmt.Errorf("appending to page %q: %w", a.Title, err)
	}
	m.log.Info("appended to page", "title", a.Title, "id", a.PageID)
	return nil
}

// ApplyPages matches pages against the store and applies the resulting
// actions. It returns the actions that were applied, or would have been in
// dry-run mode.
func (m *Matcher) ApplyPages(ctx context.Context, pages []CandidatePage) ([]Action, error) {
	actions, err := m.MatchAndBuild(ctx, pages)
	if err != nil {
		return nil, err
	}
	if err := m.Apply(ctx, actions); err != nil {
		return actions, err
	}
	return actions, nil
}
