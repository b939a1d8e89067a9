package memopedia_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/memopedia"
)

var _ = Describe("Markdown rendering", func() {
	var (
		ctx   context.Context
		store *memopedia.SQLiteStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store, _ = newTestStore()

		alice, err := store.CreatePage(ctx, memopedia.NewPage{
			ParentID: "root_people", Title: "Alice", Summary: "a friend",
			Content: "Likes tea.", Keywords: []string{"friend", "tea"},
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = store.CreatePage(ctx, memopedia.NewPage{
			ParentID: alice.ID, Title: "Alice's cat", Summary: "a cat", Content: "Named Mochi.",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("TreeMarkdown", func() {
		It("lists titles and summaries per category", func() {
			md, err := store.TreeMarkdown(ctx, memopedia.TreeOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(md).To(ContainSubstring("## People (people)\n- Alice: a friend\n  - Alice's cat: a cat\n"))
			Expect(md).To(ContainSubstring("## Terms (terms)\n(no pages)\n"))
			Expect(md).NotTo(ContainSubstring("keywords"))
			Expect(md).NotTo(ContainSubstring("Likes tea"))
		})

		It("adds keywords when asked", func() {
			md, err := store.TreeMarkdown(ctx, memopedia.TreeOptions{IncludeKeywords: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(md).To(ContainSubstring("- Alice: a friend [keywords: friend, tea]"))
		})
	})

	Describe("ExportAllMarkdown", func() {
		It("renders content with nested headings", func() {
			md, err := store.ExportAllMarkdown(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(md).To(ContainSubstring("# People\n\n## Alice\n\n> a friend\n\nKeywords: friend, tea\n\nLikes tea.\n\n### Alice's cat"))
			Expect(md).To(ContainSubstring("# Plans\n\n_No pages._"))
		})
	})

	Describe("ExportHTML", func() {
		It("converts the document to HTML", func() {
			html, err := store.ExportHTML(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(html)).To(ContainSubstring("<h2>Alice</h2>"))
			Expect(string(html)).To(ContainSubstring("<blockquote>"))
		})
	})
})
