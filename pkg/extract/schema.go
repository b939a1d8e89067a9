package extract

import (
	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
)

func categoryEnum() []string {
	out := make([]string, 0, len(memopedia.Categories))
	for _, c := range memopedia.Categories {
		out = append(out, string(c))
	}
	return out
}

func pagesSchema(withKeywords bool) *llm.Schema {
	page := &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"category": {Type: "string", Enum: categoryEnum()},
			"title":    {Type: "string"},
			"summary":  {Type: "string"},
			"content":  {Type: "string"},
		},
		Required: append([]string(nil), RequiredPageFields...),
	}
	if withKeywords {
		page.Properties["keywords"] = &llm.Schema{Type: "array", Items: &llm.Schema{Type: "string"}}
		page.Required = append(page.Required, "keywords")
	}

	return &llm.Schema{
		Type:       "object",
		Properties: map[string]*llm.Schema{"pages": {Type: "array", Items: page}},
		Required:   []string{"pages"},
	}
}

// ExtractionSchema is the response schema for batch extraction.
func ExtractionSchema() *llm.Schema {
	return pagesSchema(true)
}

// SystemPromptSchema is the response schema for system-prompt extraction,
// which does not ask for keywords.
func SystemPromptSchema() *llm.Schema {
	return pagesSchema(false)
}

// RefineSchema is the response schema for content refinement.
func RefineSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"summary":  {Type: "string"},
			"keywords": {Type: "array", Items: &llm.Schema{Type: "string"}},
			"edits": {
				Type: "array",
				Items: &llm.Schema{
					Type: "object",
					Properties: map[string]*llm.Schema{
						"operation": {Type: "string", Enum: []string{OpAppendAfter, OpReplace, OpAppendEnd}},
						"target":    {Type: "string"},
						"content":   {Type: "string"},
					},
					Required: []string{"operation", "content"},
				},
			},
		},
		Required: []string{"summary", "keywords", "edits"},
	}
}
