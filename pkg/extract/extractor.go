// Package extract turns conversation history into Memopedia pages. It
// batches messages, prompts a model against the current knowledge tree,
// parses the structured reply with bounded retries and merges the result
// into the store before the next batch is formatted.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/RNA4219/SAIVerse/pkg/conversation"
	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/logger"
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
	"github.com/RNA4219/SAIVerse/pkg/metrics"
)

// Defaults for Options.
const (
	DefaultBatchSize  = 20
	DefaultMaxRetries = 2
)

// EpisodeSource supplies background summaries for a time range.
type EpisodeSource interface {
	ContextForRange(ctx context.Context, start, end time.Time) (string, error)
}

// Options configures an Extractor.
type Options struct {
	// BatchSize is the number of messages per generation call.
	BatchSize int

	// MaxRetries is the number of extra attempts per batch after an empty,
	// unparseable or page-less response. Zero means DefaultMaxRetries;
	// negative disables retries.
	MaxRetries int

	// DryRun performs every decision but never mutates the store.
	DryRun bool

	// Refine merges matched pages through model-proposed edits instead of
	// plain concatenation. Ignored in dry-run mode.
	Refine bool

	// Episodes, when set, prepends episode context to each batch prompt.
	Episodes EpisodeSource

	// DebugLog receives the first prompt and response of every batch.
	DebugLog io.Writer

	Prompts *Prompts
	Logger  *slog.Logger
	Metrics *metrics.Run
}

// Extractor runs the extraction pipeline.
type Extractor struct {
	gen     llm.Generator
	store   Store
	matcher *Matcher
	prompts *Prompts
	opts    Options
	log     *slog.Logger
	metrics *metrics.Run
	now     func() time.Time
}

// New creates an Extractor writing to store.
func New(gen llm.Generator, store Store, opts Options) *Extractor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.Prompts == nil {
		opts.Prompts = DefaultPrompts()
	}
	log := logger.OrNop(opts.Logger)

	var refiner *Refiner
	if opts.Refine {
		refiner = NewRefiner(gen, opts.Prompts, log, opts.Metrics)
	}

	return &Extractor{
		gen:     gen,
		store:   store,
		matcher: NewMatcher(store, refiner, opts.DryRun, log, opts.Metrics),
		prompts: opts.Prompts,
		opts:    opts,
		log:     log,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// Extract processes msgs in batches, strictly in order, and returns every
// page accepted across all batches. A batch that exhausts its retries is
// skipped; earlier batches stay applied.
func (e *Extractor) Extract(ctx context.Context, msgs []conversation.Message) ([]CandidatePage, error) {
	var all []CandidatePage
	for i := 0; i < len(msgs); i += e.opts.BatchSize {
		end := min(i+e.opts.BatchSize, len(msgs))
		e.log.Info("processing messages", "from", i+1, "to", end, "total", len(msgs))

		res, err := e.RunBatch(ctx, i/e.opts.BatchSize, msgs[i:end])
		if err != nil {
			return all, err
		}
		all = append(all, res.Pages...)
	}
	return all, nil
}

// ExtractFromText mines free text, such as a persona's system prompt, with
// a single generation call. Failures yield no pages. The pages are not
// applied; see ApplyPages.
func (e *Extractor) ExtractFromText(ctx context.Context, text, source string) ([]CandidatePage, error) {
	log := e.log.With("source", source)
	log.Info("extracting knowledge from text")

	tree, err := e.store.TreeMarkdown(ctx, memopedia.TreeOptions{IncludeKeywords: true})
	if err != nil {
		return nil, fmt.Errorf("reading knowledge tree: %w", err)
	}

	prompt, err := e.prompts.BuildSystemPromptExtraction(tree, text)
	if err != nil {
		return nil, err
	}

	resp, err := e.gen.Generate(ctx, []llm.Message{llm.UserMessage(prompt)}, SystemPromptSchema())
	if err != nil {
		log.Error("error extracting from text", "error", err)
		e.metrics.Generation(metrics.OutcomeError)
		return nil, nil
	}
	if resp == "" {
		log.Warn("empty response from model")
		e.metrics.Generation(metrics.OutcomeEmpty)
		return nil, nil
	}

	obj, ok := ParseObject(resp)
	if !ok {
		log.Error("failed to parse JSON response")
		e.metrics.Generation(metrics.OutcomeParseError)
		return nil, nil
	}
	e.metrics.Generation(metrics.OutcomeSuccess)

	pages := ToCandidates(FilterValidPages(PageMaps(obj)))
	for _, p := range pages {
		log.Info("extracted page", "category", p.Category, "title", p.Title)
	}
	e.metrics.PagesExtracted(len(pages))
	return pages, nil
}

// ApplyPages matches and applies pages outside the batch loop, honoring
// the dry-run and refine options.
func (e *Extractor) ApplyPages(ctx context.Context, pages []CandidatePage) ([]Action, error) {
	return e.matcher.ApplyPages(ctx, pages)
}
