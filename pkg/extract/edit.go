package extract

import (
	"log/slog"
	"strings"

	"github.com/RNA4219/SAIVerse/pkg/logger"
	"github.com/RNA4219/SAIVerse/pkg/utils"
)

// Edit operation names as they appear in model output.
const (
	OpAppendAfter = "append_after"
	OpReplace     = "replace"
	OpAppendEnd   = "append_end"
)

// Edit is one change to a page body. The set of implementations is closed:
// AppendAfter, Replace and AppendEnd.
type Edit interface {
	Operation() string
	apply(buf string, log *slog.Logger) string
}

// AppendAfter inserts Content right after the first occurrence of Target.
// When Target is empty or absent, Content is appended on a new line.
type AppendAfter struct {
	Target  string
	Content string
}

// Replace substitutes the first occurrence of Target with Content. When
// Target is empty or absent the buffer is left unchanged.
type Replace struct {
	Target  string
	Content string
}

// AppendEnd appends Content after a blank line. Empty Content is a no-op.
type AppendEnd struct {
	Content string
}

func (AppendAfter) Operation() string { return OpAppendAfter }
func (Replace) Operation() string     { return OpReplace }
func (AppendEnd) Operation() string   { return OpAppendEnd }

func (e AppendAfter) apply(buf string, log *slog.Logger) string {
	if e.Target != "" {
		if i := strings.Index(buf, e.Target); i >= 0 {
			at := i + len(e.Target)
			return buf[:at] + e.Content + buf[at:]
		}
	}
	log.Warn("target not found for append_after, appending at end", "target", targetLabel(e.Target))
	return buf + "\n" + e.Content
}

func (e Replace) apply(buf string, log *slog.Logger) string {
	if e.Target != "" && strings.Contains(buf, e.Target) {
		return strings.Replace(buf, e.Target, e.Content, 1)
	}
	log.Warn("target not found for replace, skipping", "target", targetLabel(e.Target))
	return buf
}

func (e AppendEnd) apply(buf string, _ *slog.Logger) string {
	if e.Content == "" {
		return buf
	}
	return buf + "\n\n" + e.Content
}

func targetLabel(t string) string {
	if t == "" {
		return "(empty)"
	}
	return utils.Truncate(t, 50)
}

// ApplyEdits applies edits to content in order; each edit sees the result
// of the previous one. log may be nil.
func ApplyEdits(content string, edits []Edit, log *slog.Logger) string {
	log = logger.OrNop(log)

	buf := content
	for _, e := range edits {
		buf = e.apply(buf, log)
	}
	return buf
}

// DecodeEdits converts the "edits" array of a refine response into Edit
// values. Entries with an unknown operation, or that are not objects, are
// logged and dropped.
func DecodeEdits(raw any, log *slog.Logger) []Edit {
	log = logger.OrNop(log)

	arr, ok := raw.([]any)
	if !ok {
		return nil
	}

	edits := make([]Edit, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			log.Warn("skipping malformed edit", "edit", item)
			continue
		}

		op := stringField(m["operation"])
		target := stringField(m["target"])
		content := stringField(m["content"])

		switch op {
		case OpAppendAfter:
			edits = append(edits, AppendAfter{Target: target, Content: content})
		case OpReplace:
			edits = append(edits, Replace{Target: target, Content: content})
		case OpAppendEnd:
			edits = append(edits, AppendEnd{Content: content})
		default:
			log.Warn("unknown edit operation", "operation", op)
		}
	}
	return edits
}
