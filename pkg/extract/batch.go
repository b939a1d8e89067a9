package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RNA4219/SAIVerse/pkg/conversation"
	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
	"github.com/RNA4219/SAIVerse/pkg/metrics"
	"github.com/RNA4219/SAIVerse/pkg/utils"
)

// BatchState is a step of the per-batch extraction state machine:
// Formatting -> Calling -> Parsing -> (Retry | Applying) -> Done.
type BatchState int

const (
	StateFormatting BatchState = iota
	StateCalling
	StateParsing
	StateRetry
	StateApplying
	StateDone
)

func (s BatchState) String() string {
	switch s {
	case StateFormatting:
		return "formatting"
	case StateCalling:
		return "calling"
	case StateParsing:
		return "parsing"
	case StateRetry:
		return "retry"
	case StateApplying:
		return "applying"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("BatchState(%d)", int(s))
	}
}

// BatchResult reports how one batch ended.
type BatchResult struct {
	// Outcome is metrics.OutcomeSuccess, OutcomeSkipped or OutcomeAbandoned.
	Outcome string

	// Calls is the number of generation calls made.
	Calls int

	// Pages are the valid candidates accepted for the batch.
	Pages []CandidatePage

	// Actions are the actions applied, or logged in dry-run mode.
	Actions []Action
}

// batch carries the state of one batch between transitions.
type batch struct {
	index    int
	messages []conversation.Message

	state    BatchState
	attempt  int
	prompt   string
	response string
	reason   string

	result BatchResult
}

// RunBatch drives one batch through the state machine. index is only used
// for logging. Errors are returned for store or prompt failures; generation
// failures are retried and then abandon the batch without an error.
func (e *Extractor) RunBatch(ctx context.Context, index int, msgs []conversation.Message) (BatchResult, error) {
	b := &batch{index: index, messages: msgs, state: StateFormatting}
	for b.state != StateDone {
		next, err := e.step(ctx, b)
		if err != nil {
			return b.result, err
		}
		e.log.Debug("batch transition", "batch", b.index, "from", b.state.String(), "to", next.String(), "attempt", b.attempt)
		b.state = next
	}

	e.metrics.Batch(b.result.Outcome)
	return b.result, nil
}

func (e *Extractor) step(ctx context.Context, b *batch) (BatchState, error) {
	switch b.state {
	case StateFormatting:
		return e.format(ctx, b)
	case StateCalling:
		return e.call(ctx, b), nil
	case StateParsing:
		return e.parse(b), nil
	case StateRetry:
		return e.retry(b), nil
	case StateApplying:
		return e.apply(ctx, b)
	default:
		return StateDone, fmt.Errorf("invalid batch state %s", b.state)
	}
}

func (e *Extractor) format(ctx context.Context, b *batch) (BatchState, error) {
	text := FormatMessages(b.messages)
	if strings.TrimSpace(text) == "" {
		b.result.Outcome = metrics.OutcomeSkipped
		return StateDone, nil
	}

	tree, err := e.store.TreeMarkdown(ctx, memopedia.TreeOptions{IncludeKeywords: false})
	if err != nil {
		return StateDone, fmt.Errorf("reading knowledge tree: %w", err)
	}

	episodeCtx := e.episodeContext(ctx, b.messages)

	b.prompt, err = e.prompts.BuildExtractionPrompt(tree, text, episodeCtx)
	if err != nil {
		return StateDone, err
	}
	return StateCalling, nil
}

func (e *Extractor) episodeContext(ctx context.Context, msgs []conversation.Message) string {
	if e.opts.Episodes == nil {
		return ""
	}

	start, end := conversation.TimeRange(msgs)
	text, err := e.opts.Episodes.ContextForRange(ctx, start, end)
	if err != nil {
		e.log.Warn("failed to add episode context", "error", err)
		return ""
	}
	if text != "" {
		e.log.Info("added episode context", "chars", len(text))
	}
	return text
}

func (e *Extractor) call(ctx context.Context, b *batch) BatchState {
	if b.attempt == 0 {
		e.debugPrompt(b.prompt)
	}

	b.result.Calls++
	text, err := e.gen.Generate(ctx, []llm.Message{llm.UserMessage(b.prompt)}, ExtractionSchema())

	if b.attempt == 0 {
		e.debugResponse(text)
	}

	switch {
	case err != nil:
		e.log.Error("error during extraction", "error", err)
		e.metrics.Generation(metrics.OutcomeError)
		b.reason = "generation error"
		return StateRetry
	case text == "":
		e.log.Warn("empty response from model")
		e.metrics.Generation(metrics.OutcomeEmpty)
		b.reason = "empty response"
		return StateRetry
	}

	b.response = text
	return StateParsing
}

func (e *Extractor) parse(b *batch) BatchState {
	obj, ok := ParseObject(b.response)
	if !ok {
		e.log.Warn("failed to parse JSON response")
		e.log.Debug("response text", "text", utils.Truncate(b.response, 500))
		e.metrics.Generation(metrics.OutcomeParseError)
		b.reason = "unparseable response"
		return StateRetry
	}

	raw, _ := obj["pages"].([]any)
	if len(raw) == 0 {
		e.log.Warn("model returned empty pages array")
		e.metrics.Generation(metrics.OutcomeNoPages)
		b.reason = "empty pages array"
		return StateRetry
	}

	e.metrics.Generation(metrics.OutcomeSuccess)
	b.result.Pages = ToCandidates(FilterValidPages(PageMaps(obj)))
	for _, p := range b.result.Pages {
		e.log.Info("extracted page", "category", p.Category, "title", p.Title)
	}
	e.metrics.PagesExtracted(len(b.result.Pages))
	return StateApplying
}

func (e *Extractor) retry(b *batch) BatchState {
	if b.attempt < e.opts.MaxRetries {
		b.attempt++
		e.log.Info("retrying", "attempt", b.attempt, "max", e.opts.MaxRetries, "reason", b.reason)
		return StateCalling
	}

	e.log.Warn("max retries reached, skipping this batch", "batch", b.index, "reason", b.reason)
	b.result.Outcome = metrics.OutcomeAbandoned
	return StateDone
}

func (e *Extractor) apply(ctx context.Context, b *batch) (BatchState, error) {
	b.result.Outcome = metrics.OutcomeSuccess
	if len(b.result.Pages) == 0 {
		return StateDone, nil
	}

	actions, err := e.matcher.ApplyPages(ctx, b.result.Pages)
	b.result.Actions = actions
	return StateDone, err
}

const debugRule = "================================================================================"

func (e *Extractor) debugPrompt(prompt string) {
	if e.opts.DebugLog == nil {
		return
	}
	fmt.Fprintf(e.opts.DebugLog, "\n%s\n[MEMOPEDIA] %s\n%s\n--- PROMPT ---\n%s\n",
		debugRule, e.now().Format(time.RFC3339), debugRule, prompt)
}

func (e *Extractor) debugResponse(text string) {
	if e.opts.DebugLog == nil {
		return
	}
	if text == "" {
		text = "(empty)"
	}
	fmt.Fprintf(e.opts.DebugLog, "--- RESPONSE ---\n%s\n", text)
}
