package extract

import (
	"context"
	"log/slog"
	"slices"

	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/logger"
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
	"github.com/RNA4219/SAIVerse/pkg/metrics"
)

// Refinement is the merged state of a page after new information has been
// folded in.
type Refinement struct {
	Content  string
	Summary  string
	Keywords []string
}

// Refiner merges new information into existing page content by asking the
// model for edit operations.
type Refiner struct {
	gen     llm.Generator
	prompts *Prompts
	log     *slog.Logger
	metrics *metrics.Run
}

// NewRefiner creates a Refiner. prompts, log and m may be nil.
func NewRefiner(gen llm.Generator, prompts *Prompts, log *slog.Logger, m *metrics.Run) *Refiner {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Refiner{
		gen:     gen,
		prompts: prompts,
		log:     logger.OrNop(log),
		metrics: m,
	}
}

// Refine returns page's content with newInfo merged in. It never loses
// information: any failure falls back to concatenating newInfo after the
// existing content and keeps the page's summary and keywords.
func (r *Refiner) Refine(ctx context.Context, page *memopedia.Page, newInfo string) Refinement {
	if page.Content == "" {
		return Refinement{Content: newInfo, Summary: page.Summary, Keywords: page.Keywords}
	}

	fallback := Refinement{
		Content:  page.Content + "\n\n" + newInfo,
		Summary:  page.Summary,
		Keywords: page.Keywords,
	}
	log := r.log.With("title", page.Title)

	prompt, err := r.prompts.BuildRefinePrompt(page.Title, page.Summary, page.Keywords, page.Content, newInfo)
	if err != nil {
		log.Warn("failed to build refine prompt", "error", err)
		r.metrics.Refinement(metrics.OutcomeFallback)
		return fallback
	}

	text, err := r.gen.Generate(ctx, []llm.Message{llm.UserMessage(prompt)}, RefineSchema())
	if err != nil {
		log.Warn("failed to refine content", "error", err)
		r.metrics.Refinement(metrics.OutcomeFallback)
		return fallback
	}
	if text == "" {
		log.Warn("empty response from model for refine")
		r.metrics.Refinement(metrics.OutcomeFallback)
		return fallback
	}

	obj, ok := ParseObject(text)
	if !ok {
		log.Warn("failed to parse edit JSON")
		log.Debug("refine response", "text", text)
		r.metrics.Refinement(metrics.OutcomeFallback)
		return fallback
	}

	summary := page.Summary
	if s, ok := obj["summary"].(string); ok {
		summary = s
	}
	keywords := page.Keywords
	if _, ok := obj["keywords"]; ok {
		keywords = stringList(obj["keywords"])
	}

	if summary != page.Summary {
		log.Info("summary updated", "summary", summary)
	}
	if !slices.Equal(keywords, page.Keywords) {
		log.Info("keywords updated", "keywords", keywords)
	}

	edits := DecodeEdits(obj["edits"], log)
	if len(edits) == 0 {
		log.Info("no edits needed")
		r.metrics.Refinement(metrics.OutcomeUnchanged)
		return Refinement{Content: page.Content, Summary: summary, Keywords: keywords}
	}

	log.Info("applying edits", "count", len(edits))
	for _, e := range edits {
		log.Debug("edit", "operation", e.Operation(), "edit", e)
	}
	r.metrics.Refinement(metrics.OutcomeEdited)

	return Refinement{
		Content:  ApplyEdits(page.Content, edits, log),
		Summary:  summary,
		Keywords: keywords,
	}
}
