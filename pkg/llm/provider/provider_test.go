package provider_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/llm/provider"
)

var _ = Describe("SupportedProviders", func() {
	It("lists every provider New accepts", func() {
		Expect(provider.SupportedProviders()).To(ConsistOf("gemini", "openai", "anthropic", "ollama"))
	})

	It("matches names case-insensitively", func() {
		Expect(provider.IsSupported("OpenAI")).To(BeTrue())
		Expect(provider.IsSupported("bedrock")).To(BeFalse())
	})
})

var _ = Describe("ResolveAPIKey", func() {
	BeforeEach(func() {
		for _, env := range []string{"OPENAI_API_KEY", "MY_CUSTOM_KEY"} {
			prev, had := os.LookupEnv(env)
			os.Unsetenv(env)
			DeferCleanup(func() {
				if had {
					os.Setenv(env, prev)
				}
			})
		}
	})

	It("prefers the explicit key", func() {
		os.Setenv("OPENAI_API_KEY", "from-env")
		Expect(provider.ResolveAPIKey("openai", "explicit", "")).To(Equal("explicit"))
	})

	It("checks the extra variable before the provider default", func() {
		os.Setenv("OPENAI_API_KEY", "from-env")
		os.Setenv("MY_CUSTOM_KEY", "custom")
		Expect(provider.ResolveAPIKey("openai", "", "MY_CUSTOM_KEY")).To(Equal("custom"))
	})

	It("falls back to the provider's standard variable", func() {
		os.Setenv("OPENAI_API_KEY", "from-env")
		Expect(provider.ResolveAPIKey("openai", "", "MY_CUSTOM_KEY")).To(Equal("from-env"))
	})

	It("returns empty for ollama", func() {
		Expect(provider.ResolveAPIKey("ollama", "", "")).To(BeEmpty())
	})
})

var _ = Describe("New", func() {
	ctx := context.Background()

	It("builds an ollama generator without a key", func() {
		g, err := provider.New(ctx, provider.Config{Provider: "ollama", Model: "qwen3"})
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Model()).To(Equal("qwen3"))
	})

	It("builds an anthropic generator with an explicit key", func() {
		g, err := provider.New(ctx, provider.Config{Provider: "anthropic", APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Model()).To(Equal("claude-haiku-4-5-20251001"))
	})

	It("fails when a hosted provider has no key", func() {
		prev, had := os.LookupEnv("ANTHROPIC_API_KEY")
		os.Unsetenv("ANTHROPIC_API_KEY")
		DeferCleanup(func() {
			if had {
				os.Setenv("ANTHROPIC_API_KEY", prev)
			}
		})

		_, err := provider.New(ctx, provider.Config{Provider: "anthropic"})
		Expect(err).To(MatchError(provider.ErrMissingAPIKey))
	})

	It("rejects unknown providers", func() {
		_, err := provider.New(ctx, provider.Config{Provider: "bedrock", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported provider: bedrock")))
	})
})
