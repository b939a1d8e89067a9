package memopediacmder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/RNA4219/SAIVerse/pkg/conversation"
	"github.com/RNA4219/SAIVerse/pkg/dotdir"
	"github.com/RNA4219/SAIVerse/pkg/llm"
	"github.com/RNA4219/SAIVerse/pkg/llm/models"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider"
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
	"github.com/RNA4219/SAIVerse/pkg/storage/sqlite"
)

const tanakaReply = `{"pages":[{"category":"people","title":"田中さん","summary":"ユーザーの友人","content":"猫が好き。","keywords":["友人"]}]}`

type fakeGenerator struct {
	reply string
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, _ []llm.Message, _ *llm.Schema) (string, error) {
	f.calls++
	return f.reply, nil
}

func (f *fakeGenerator) Model() string { return "fake" }

var _ = Describe("memopedia command", func() {
	var (
		ctx         context.Context
		baseDir     string
		configDir   string
		personasDir string
		gen         *fakeGenerator
		gotConfig   provider.Config
	)

	seedPersona := func(id string, messages int) string {
		dir := filepath.Join(personasDir, id)
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

		path := filepath.Join(dir, "memory.db")
		db, err := sqlite.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		_, err = conversation.NewStore(db)
		Expect(err).NotTo(HaveOccurred())

		_, err = db.Exec("INSERT INTO threads (id) VALUES ('t1')")
		Expect(err).NotTo(HaveOccurred())
		for i := range messages {
			_, err := db.Exec(
				"INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, 't1', 'user', ?, ?)",
				fmt.Sprintf("m%d", i), fmt.Sprintf("田中さんは猫が好きです (%d)", i), 1000+i,
			)
			Expect(err).NotTo(HaveOccurred())
		}
		return path
	}

	writeCredentials := func(dir, providerName, key string) {
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		data := fmt.Sprintf("[providers.%s]\napi_key = %q\n", providerName, key)
		Expect(os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(data), 0o600)).To(Succeed())
	}

	findPage := func(dbPath, title string) *memopedia.Page {
		db, err := sqlite.Open(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		store, err := memopedia.NewSQLiteStore(db, nil)
		Expect(err).NotTo(HaveOccurred())
		page, err := store.FindByTitle(ctx, title, memopedia.CategoryPeople)
		Expect(err).NotTo(HaveOccurred())
		return page
	}

	execute := func(args ...string) (string, error) {
		cmder := &MemopediaCommander{
			newGenerator: func(_ context.Context, cfg provider.Config) (provider.Generator, error) {
				gotConfig = cfg
				return gen, nil
			},
		}
		cmd := newCommand(cmder)

		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--config-dir", configDir, "--personas-dir", personasDir}, args...))

		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		baseDir, err = os.MkdirTemp("", "memopedia-cmd-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			_ = os.RemoveAll(baseDir)
		})

		configDir = filepath.Join(baseDir, ".saiverse")
		personasDir = filepath.Join(baseDir, "personas")
		gen = &fakeGenerator{reply: tanakaReply}
		gotConfig = provider.Config{}
	})

	Describe("list models", func() {
		It("prints the registry without a persona", func() {
			out, err := execute("--list-models")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("gemini-2.5-flash-lite-preview-09-2025"))
			Expect(out).To(ContainSubstring(fmt.Sprintf("Total: %d models", len(models.Builtin()))))
			Expect(gen.calls).To(Equal(0))
		})

		It("includes models from config.toml", func() {
			Expect(os.MkdirAll(configDir, 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(`[[models]]
id = "local-qwen"
display_name = "Local Qwen"
provider = "ollama"
`), 0o600)).To(Succeed())

			out, err := execute("--list-models")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Local Qwen"))
			Expect(out).To(ContainSubstring(fmt.Sprintf("Total: %d models", len(models.Builtin())+1)))
		})
	})

	Describe("fatal configuration errors", func() {
		It("requires a persona id", func() {
			_, err := execute()
			Expect(err).To(MatchError(ContainSubstring("persona_id is required")))
		})

		It("fails when the persona database does not exist", func() {
			_, err := execute("ghost")
			Expect(err).To(MatchError(dotdir.ErrPersonaNotFound))
		})

		It("fails on an unknown model", func() {
			seedPersona("air", 1)
			_, err := execute("air", "--model", "no-such-model")
			Expect(err).To(MatchError(models.ErrModelNotFound))
			Expect(gen.calls).To(Equal(0))
		})

		It("fails when the system prompt file is missing", func() {
			seedPersona("air", 1)
			_, err := execute("air", "--system-prompt", filepath.Join(baseDir, "missing.txt"))
			Expect(err).To(MatchError(ContainSubstring("system prompt file not found")))
		})

		It("rejects an invalid batch size", func() {
			seedPersona("air", 1)
			_, err := execute("air", "--batch-size", "0")
			Expect(err).To(MatchError(ContainSubstring("BatchSize")))
		})
	})

	Describe("extraction", func() {
		It("extracts pages and prints the final state", func() {
			dbPath := seedPersona("air", 3)

			out, err := execute("air")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.calls).To(Equal(1))
			Expect(out).To(ContainSubstring("Final Memopedia state"))
			Expect(out).To(ContainSubstring("## 田中さん"))

			page := findPage(dbPath, "田中さん")
			Expect(page).NotTo(BeNil())
			Expect(page.Content).To(Equal("猫が好き。"))
		})

		It("uses the default gemini model", func() {
			seedPersona("air", 1)
			_, err := execute("air")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotConfig.Provider).To(Equal("gemini"))
			Expect(gotConfig.Model).To(Equal("gemini-2.5-flash-lite-preview-09-2025"))
		})

		It("resolves a partial model id and applies the provider override", func() {
			seedPersona("air", 1)
			_, err := execute("air", "--model", "claude-haiku", "--provider", "ollama")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotConfig.Model).To(Equal("claude-haiku-4-5-20251001"))
			Expect(gotConfig.Provider).To(Equal("ollama"))
		})

		It("uses a key stored in credentials.toml", func() {
			seedPersona("air", 1)
			writeCredentials(configDir, "gemini", "gm-stored")

			_, err := execute("air")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotConfig.APIKey).To(Equal("gm-stored"))
		})

		It("fails on a credentials.toml naming an unknown provider", func() {
			seedPersona("air", 1)
			writeCredentials(configDir, "mistral", "x")

			_, err := execute("air")
			Expect(err).To(MatchError(ContainSubstring(`unknown provider "mistral"`)))
			Expect(gen.calls).To(BeZero())
		})

		It("prefers the configured api key over stored credentials", func() {
			seedPersona("air", 1)
			writeCredentials(configDir, "gemini", "gm-stored")
			GinkgoT().Setenv("SAIVERSE_LLM_API_KEY", "gm-env")

			_, err := execute("air")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotConfig.APIKey).To(Equal("gm-env"))
		})

		It("batches messages by --batch-size", func() {
			seedPersona("air", 5)
			_, err := execute("air", "--batch-size", "2")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.calls).To(Equal(3))
		})

		It("honors --limit", func() {
			seedPersona("air", 5)
			_, err := execute("air", "--batch-size", "1", "--limit", "2")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.calls).To(Equal(2))
		})

		It("does not write or print the final state in dry-run mode", func() {
			dbPath := seedPersona("air", 2)

			out, err := execute("air", "--dry-run")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.calls).To(Equal(1))
			Expect(out).NotTo(ContainSubstring("Final Memopedia state"))
			Expect(findPage(dbPath, "田中さん")).To(BeNil())
		})

		It("exits cleanly when there are no messages", func() {
			seedPersona("air", 0)
			out, err := execute("air")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.calls).To(Equal(0))
			Expect(out).To(BeEmpty())
		})

		It("extracts from a system prompt before the messages", func() {
			dbPath := seedPersona("air", 0)
			promptFile := filepath.Join(baseDir, "persona.txt")
			Expect(os.WriteFile(promptFile, []byte("あなたは田中さんの友人です。"), 0o600)).To(Succeed())

			out, err := execute("air", "--system-prompt", promptFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.calls).To(Equal(1))
			Expect(out).To(ContainSubstring("## 田中さん"))
			Expect(findPage(dbPath, "田中さん")).NotTo(BeNil())
		})

		It("runs with episode context enabled", func() {
			seedPersona("air", 2)
			_, err := execute("air", "--with-episode-context")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.calls).To(Equal(1))
		})

		It("writes the debug log and metrics file", func() {
			seedPersona("air", 2)
			debugLog := filepath.Join(baseDir, "debug.log")
			metricsFile := filepath.Join(baseDir, "memopedia.prom")

			_, err := execute("air", "--debug-log", debugLog, "--metrics-file", metricsFile)
			Expect(err).NotTo(HaveOccurred())

			logged, err := os.ReadFile(debugLog)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(logged)).To(ContainSubstring("--- PROMPT ---"))
			Expect(string(logged)).To(ContainSubstring("--- RESPONSE ---"))

			counters, err := os.ReadFile(metricsFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(counters)).To(ContainSubstring("memopedia_batches_total"))
		})
	})

	Describe("maintenance", func() {
		It("exports, clears and re-imports pages", func() {
			dbPath := seedPersona("air", 1)
			_, err := execute("air")
			Expect(err).NotTo(HaveOccurred())

			exportFile := filepath.Join(baseDir, "backup.json")
			_, err = execute("air", "--export", exportFile)
			Expect(err).NotTo(HaveOccurred())
			raw, err := os.ReadFile(exportFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring("田中さん"))

			_, err = execute("air", "--clear")
			Expect(err).NotTo(HaveOccurred())
			Expect(findPage(dbPath, "田中さん")).To(BeNil())

			_, err = execute("air", "--import", exportFile, "--clear")
			Expect(err).NotTo(HaveOccurred())
			Expect(findPage(dbPath, "田中さん")).NotTo(BeNil())

			Expect(gen.calls).To(Equal(1))
		})

		It("exports HTML", func() {
			seedPersona("air", 1)
			_, err := execute("air")
			Expect(err).NotTo(HaveOccurred())

			htmlFile := filepath.Join(baseDir, "memopedia.html")
			_, err = execute("air", "--export-html", htmlFile)
			Expect(err).NotTo(HaveOccurred())

			html, err := os.ReadFile(htmlFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(html)).To(ContainSubstring("<h2>田中さん</h2>"))
		})
	})
})
