package models_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/llm/models"
)

var _ = Describe("Registry", func() {
	var reg *models.Registry

	BeforeEach(func() {
		reg = models.NewRegistry(
			models.Model{ID: "local-qwen", Provider: "ollama", Name: "qwen3:8b", BaseURL: "http://gpu:11434"},
			models.Model{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "Overridden"},
		)
	})

	Describe("Find", func() {
		It("matches an exact ID", func() {
			m, err := reg.Find("gemini-2.5-flash")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Provider).To(Equal("gemini"))
		})

		It("matches case-insensitively on ID", func() {
			m, err := reg.Find("GEMINI-2.5-PRO")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ID).To(Equal("gemini-2.5-pro"))
		})

		It("matches the provider model name", func() {
			m, err := reg.Find("qwen3:8b")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ID).To(Equal("local-qwen"))
			Expect(m.BaseURL).To(Equal("http://gpu:11434"))
		})

		It("matches a unique substring", func() {
			m, err := reg.Find("sonnet")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ModelName()).To(Equal("claude-sonnet-4-5-20250929"))
		})

		It("rejects an ambiguous substring", func() {
			_, err := reg.Find("gemini")
			Expect(err).To(MatchError(models.ErrAmbiguousModel))
		})

		It("reports unknown identifiers", func() {
			_, err := reg.Find("does-not-exist")
			Expect(err).To(MatchError(models.ErrModelNotFound))
		})
	})

	It("lets configured models override built-ins", func() {
		m, err := reg.Find("gpt-4o-mini")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Label()).To(Equal("Overridden"))
	})

	It("lists models sorted by provider then ID", func() {
		list := reg.List()
		Expect(list).To(HaveLen(len(models.Builtin()) + 1))
		Expect(list[0].Provider).To(Equal("anthropic"))
		Expect(list[len(list)-1].Provider).To(Equal("openai"))
	})
})
