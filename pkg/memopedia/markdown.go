package memopedia

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// TreeMarkdown renders the page titles and summaries as a nested list, one
// section per category. It is the snapshot shown to the model when it
// decides between appending to an existing page and creating a new one.
func (s *SQLiteStore) TreeMarkdown(ctx context.Context, opts TreeOptions) (string, error) {
	var b strings.Builder

	for i, c := range Categories {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s (%s)\n", rootTitles[c], c)

		children, err := s.Children(ctx, rootIDs[c])
		if err != nil {
			return "", err
		}
		if len(children) == 0 {
			b.WriteString("(no pages)\n")
			continue
		}

		if err := s.writeTree(ctx, &b, children, 0, opts); err != nil {
			return "", err
		}
	}

	return b.String(), nil
}

func (s *SQLiteStore) writeTree(ctx context.Context, b *strings.Builder, pages []*Page, depth int, opts TreeOptions) error {
	indent := strings.Repeat("  ", depth)

	for _, p := range pages {
		b.WriteString(indent)
		b.WriteString("- ")
		if opts.ShowMarkers {
			b.WriteString(markers(p))
		}
		b.WriteString(p.Title)
		if p.Summary != "" {
			b.WriteString(": ")
			b.WriteString(p.Summary)
		}
		if opts.IncludeKeywords && len(p.Keywords) > 0 {
			fmt.Fprintf(b, " [keywords: %s]", strings.Join(p.Keywords, ", "))
		}
		b.WriteString("\n")

		children, err := s.Children(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.writeTree(ctx, b, children, depth+1, opts); err != nil {
			return err
		}
	}

	return nil
}

func markers(p *Page) string {
	var m string
	if p.IsImportant {
		m += "★ "
	}
	if p.IsTrunk {
		m += "[trunk] "
	}
	return m
}

// ExportAllMarkdown renders every page, with full content, as a markdown
// document. Nesting depth maps to heading level.
func (s *SQLiteStore) ExportAllMarkdown(ctx context.Context) (string, error) {
	var b strings.Builder

	for _, c := range Categories {
		fmt.Fprintf(&b, "# %s\n\n", rootTitles[c])

		children, err := s.Children(ctx, rootIDs[c])
		if err != nil {
			return "", err
		}
		if len(children) == 0 {
			b.WriteString("_No pages._\n\n")
			continue
		}

		if err := s.writeDocument(ctx, &b, children, 2); err != nil {
			return "", err
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func (s *SQLiteStore) writeDocument(ctx context.Context, b *strings.Builder, pages []*Page, level int) error {
	heading := strings.Repeat("#", min(level, 6))

	for _, p := range pages {
		fmt.Fprintf(b, "%s %s\n\n", heading, p.Title)
		if p.Summary != "" {
			fmt.Fprintf(b, "> %s\n\n", p.Summary)
		}
		if len(p.Keywords) > 0 {
			fmt.Fprintf(b, "Keywords: %s\n\n", strings.Join(p.Keywords, ", "))
		}
		if c := strings.TrimSpace(p.Content); c != "" {
			b.WriteString(c)
			b.WriteString("\n\n")
		}

		children, err := s.Children(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.writeDocument(ctx, b, children, level+1); err != nil {
			return err
		}
	}

	return nil
}

// ExportHTML renders ExportAllMarkdown as an HTML fragment.
func (s *SQLiteStore) ExportHTML(ctx context.Context) ([]byte, error) {
	md, err := s.ExportAllMarkdown(ctx)
	if err != nil {
		return nil, err
	}

	return RenderHTML(md)
}

// RenderHTML converts markdown to HTML with GitHub-flavored extensions.
func RenderHTML(md string) ([]byte, error) {
	conv := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var buf bytes.Buffer
	if err := conv.Convert([]byte(md), &buf); err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}

	return buf.Bytes(), nil
}
