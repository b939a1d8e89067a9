package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RNA4219/SAIVerse/pkg/memopedia"
)

// RequiredPageFields are the keys a generated page must carry to be kept.
var RequiredPageFields = []string{"category", "title", "summary", "content"}

// CandidatePage is one page proposed by the model, before matching.
type CandidatePage struct {
	Category memopedia.Category `json:"category"`
	Title    string             `json:"title"`
	Summary  string             `json:"summary"`
	Content  string             `json:"content"`
	Keywords []string           `json:"keywords,omitempty"`
}

// Key is the matching key "category:title".
func (c CandidatePage) Key() string {
	return PageKey(c.Category, c.Title)
}

// PageKey builds the "category:title" key used to match candidates to
// existing pages.
func PageKey(category memopedia.Category, title string) string {
	return string(category) + ":" + title
}

// ParseObject extracts a JSON object from free-form model output. Fenced
// blocks are preferred (a json-tagged one first), otherwise the first
// balanced {...} span is used, including when a leading object is followed
// by prose. It returns false for empty input, decode
// failures and any top-level value that is not an object.
func ParseObject(raw string) (map[string]any, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, false
	}

	candidate := text
	if block, ok := fencedBlock(text); ok {
		candidate = block
	}
	candidate = strings.TrimSpace(candidate)

	if !strings.HasPrefix(candidate, "{") {
		span, ok := firstObjectSpan(text)
		if !ok {
			return nil, false
		}
		candidate = span
	}

	if obj, ok := decodeObject(candidate); ok {
		return obj, true
	}

	// A leading object followed by prose fails to decode as a whole.
	span, ok := firstObjectSpan(text)
	if !ok || span == candidate {
		return nil, false
	}
	return decodeObject(span)
}

func decodeObject(s string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// fencedBlock returns the body of the first ```json block, or of the first
// fenced block of any kind.
func fencedBlock(text string) (string, bool) {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return body, true
	}

	_, after, ok := strings.Cut(text, "```")
	if !ok {
		return "", false
	}
	body, _, _ := strings.Cut(after, "```")

	// Drop an info string such as "JSON" or "text" on the opening fence line.
	if first, rest, found := strings.Cut(body, "\n"); found {
		info := strings.TrimSpace(first)
		if info != "" && !strings.ContainsAny(info, "{[\"") {
			body = rest
		}
	}
	return body, true
}

// firstObjectSpan returns the first balanced {...} span in text, skipping
// braces inside JSON strings.
func firstObjectSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// PageMaps returns the objects in obj["pages"], skipping non-object
// entries. A missing or non-array value yields nil.
func PageMaps(obj map[string]any) []map[string]any {
	arr, ok := obj["pages"].([]any)
	if !ok {
		return nil
	}

	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// FilterValidPages keeps the pages that contain every required field,
// preserving order.
func FilterValidPages(pages []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(pages))
	for _, p := range pages {
		if hasFields(p, RequiredPageFields) {
			out = append(out, p)
		}
	}
	return out
}

func hasFields(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// ToCandidates converts validated page objects to CandidatePage values.
func ToCandidates(pages []map[string]any) []CandidatePage {
	out := make([]CandidatePage, 0, len(pages))
	for _, p := range pages {
		out = append(out, CandidatePage{
			Category: memopedia.Category(stringField(p["category"])),
			Title:    stringField(p["title"]),
			Summary:  stringField(p["summary"]),
			Content:  stringField(p["content"]),
			Keywords: stringList(p["keywords"]),
		})
	}
	return out
}

func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
