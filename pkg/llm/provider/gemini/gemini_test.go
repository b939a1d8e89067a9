package gemini_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider/gemini"
)

const generateResponse = `{
  "candidates": [
    {"content": {"role": "model", "parts": [{"text": "{\"pages\":[]}"}]}, "finishReason": "STOP"}
  ]
}`

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		path   string
		body   string
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			path = r.URL.Path
			data, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			body = string(data)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(generateResponse))
		}))
		DeferCleanup(server.Close)
	})

	It("requires an API key", func() {
		_, err := gemini.New(context.Background(), "", "", "")
		Expect(err).To(HaveOccurred())
	})

	It("defaults the model", func() {
		c, err := gemini.New(context.Background(), "key", "", server.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Model()).To(Equal(gemini.DefaultModel))
	})

	It("requests JSON output and returns the response text", func() {
		c, err := gemini.New(context.Background(), "key", "gemini-test", server.URL)
		Expect(err).NotTo(HaveOccurred())

		schema := &llm.Schema{
			Type:       "object",
			Properties: map[string]*llm.Schema{"pages": {Type: "array", Items: &llm.Schema{Type: "object"}}},
			Required:   []string{"pages"},
		}
		out, err := c.Generate(context.Background(), []llm.Message{llm.UserMessage("hello")}, schema)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"pages":[]}`))

		Expect(path).To(ContainSubstring("gemini-test:generateContent"))
		Expect(body).To(ContainSubstring("application/json"))
		Expect(body).To(ContainSubstring("hello"))
	})
})
