package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider/anthropic"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		received map[string]any
		headers  http.Header
		status   int
		reply    string
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		reply = `{"content":[{"type":"text","text":"{\"pages\":[]}"}]}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			headers = r.Header.Clone()
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
		DeferCleanup(server.Close)
	})

	It("requires an API key", func() {
		_, err := anthropic.New("", "", "")
		Expect(err).To(HaveOccurred())
	})

	It("sends messages and returns the text content", func() {
		c, err := anthropic.New("test-key", "claude-test", server.URL)
		Expect(err).NotTo(HaveOccurred())

		out, err := c.Generate(context.Background(), []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			llm.UserMessage("hello"),
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"pages":[]}`))

		Expect(headers.Get("x-api-key")).To(Equal("test-key"))
		Expect(headers.Get("anthropic-version")).To(Equal("2023-06-01"))
		Expect(received["model"]).To(Equal("claude-test"))
		Expect(received["system"]).To(Equal("be brief"))
		Expect(received["messages"]).To(Equal([]any{
			map[string]any{"role": "user", "content": "hello"},
		}))
	})

	It("describes the schema in the system prompt", func() {
		c, err := anthropic.New("k", "", server.URL)
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Generate(context.Background(), []llm.Message{llm.UserMessage("hi")}, &llm.Schema{Type: "object"})
		Expect(err).NotTo(HaveOccurred())
		Expect(received["system"]).To(ContainSubstring(`{"type":"object"}`))
	})

	It("returns an error on non-200 responses", func() {
		status = http.StatusTooManyRequests
		reply = `{"error":{"message":"slow down"}}`
		c, err := anthropic.New("k", "", server.URL)
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Generate(context.Background(), []llm.Message{llm.UserMessage("hi")}, nil)
		Expect(err).To(MatchError(ContainSubstring("status 429")))
	})
})
