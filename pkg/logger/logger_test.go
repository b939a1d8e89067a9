package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/logger"
)

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	Expect(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("New", func() {
	It("writes text records with attributes", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf))
		l.Info("batch done", "pages", 3)

		Expect(buf.String()).To(ContainSubstring("batch done"))
		Expect(buf.String()).To(ContainSubstring("pages=3"))
	})

	It("hides debug records by default", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf)).Debug("prompt")
		Expect(buf.String()).To(BeEmpty())
	})

	It("shows debug records with WithDebug", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithDebug(true)).Debug("prompt")
		Expect(buf.String()).To(ContainSubstring("prompt"))
	})

	It("emits JSON records", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
		l.Warn("empty response", "attempt", 2)

		parsed := decodeLine(&buf)
		Expect(parsed["msg"]).To(Equal("empty response"))
		Expect(parsed["level"]).To(Equal("WARN"))
		Expect(parsed["attempt"]).To(BeNumerically("==", 2))
	})

	It("renders pretty output", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Info("building memopedia")
		Expect(buf.String()).To(ContainSubstring("building memopedia"))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		l := logger.Nop()
		Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		Expect(func() { l.With("k", "v").Error("x") }).NotTo(Panic())
	})

	It("backs OrNop for nil loggers", func() {
		Expect(logger.OrNop(nil)).NotTo(BeNil())
		l := logger.Nop()
		Expect(logger.OrNop(l)).To(BeIdenticalTo(l))
	})
})

var _ = Describe("Multi", func() {
	It("sends each record to all loggers", func() {
		var text, js bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&text)),
			logger.New(logger.WithWriter(&js), logger.WithJSON(true)),
		)
		multi.Info("applied", "action", "create")

		Expect(text.String()).To(ContainSubstring("action=create"))
		Expect(decodeLine(&js)["action"]).To(Equal("create"))
	})

	It("respects each logger's level", func() {
		var info, debug bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&info)),
			logger.New(logger.WithWriter(&debug), logger.WithDebug(true)),
		)
		multi.Debug("prompt body")

		Expect(info.String()).To(BeEmpty())
		Expect(debug.String()).To(ContainSubstring("prompt body"))
	})

	It("carries With and WithGroup attributes", func() {
		var buf bytes.Buffer
		multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)), nil)
		multi.With("persona", "air").WithGroup("batch").Info("start", "index", 1)

		parsed := decodeLine(&buf)
		Expect(parsed["persona"]).To(Equal("air"))
		group, ok := parsed["batch"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(group["index"]).To(BeNumerically("==", 1))
	})
})
