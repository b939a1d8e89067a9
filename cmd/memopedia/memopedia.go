// Package memopediacmder builds a persona's Memopedia from its conversation
// history.
package memopediacmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RNA4219/SAIVerse/pkg/cliui"
	"github.com/RNA4219/SAIVerse/pkg/config"
	"github.com/RNA4219/SAIVerse/pkg/conversation"
	"github.com/RNA4219/SAIVerse/pkg/credentials"
	"github.com/RNA4219/SAIVerse/pkg/dotdir"
	"github.com/RNA4219/SAIVerse/pkg/episode"
	"github.com/RNA4219/SAIVerse/pkg/extract"
	"github.com/RNA4219/SAIVerse/pkg/llm/models"
	"github.com/RNA4219/SAIVerse/pkg/llm/provider"
	"github.com/RNA4219/SAIVerse/pkg/logger"
	"github.com/RNA4219/SAIVerse/pkg/memopedia"
	"github.com/RNA4219/SAIVerse/pkg/metrics"
	"github.com/RNA4219/SAIVerse/pkg/storage/sqlite"
	"github.com/RNA4219/SAIVerse/pkg/utils"
)

const memopediaLongDesc string = `Build a persona's Memopedia from its conversation history.

Messages are read from <personas_dir>/<persona_id>/memory.db, sent to the
model in batches, and the extracted people, terms and plans are merged into
the knowledge tree stored in the same database.

Examples:
  memopedia air_city_a --limit 200
  memopedia air_city_a --model claude-haiku --dry-run
  memopedia air_city_a --system-prompt persona.txt --refine-writes
  memopedia air_city_a --export backup.json
  memopedia air_city_a --import backup.json --clear
  memopedia --list-models`

const memopediaShortDesc string = "Build Memopedia from conversation history"

// memopediaFlags are the flags backed by config keys.
var memopediaFlags = config.FlagSet{
	config.FlagProvider:    {Name: "provider", ViperKey: "llm.provider", Description: "LLM provider override (gemini, openai, anthropic, ollama)"},
	config.FlagModel:       {Name: "model", Shorthand: "m", ViperKey: "llm.model", Description: "Model ID, model name or unique fragment of an ID"},
	config.FlagBaseURL:     {Name: "base-url", ViperKey: "llm.base_url", Description: "Override the provider endpoint"},
	config.FlagBatchSize:   {Name: "batch-size", Shorthand: "b", ViperKey: "extract.batch_size", Description: "Messages per generation call"},
	config.FlagMaxRetries:  {Name: "max-retries", ViperKey: "extract.max_retries", Description: "Extra attempts per batch after an unusable response"},
	config.FlagLimit:       {Name: "limit", Shorthand: "l", ViperKey: "extract.limit", Description: "Maximum number of messages to process"},
	config.FlagPersonasDir: {Name: "personas-dir", ViperKey: "storage.personas_dir", Description: "Directory holding <persona_id>/memory.db"},
	config.FlagPromptsDir:  {Name: "prompts-dir", ViperKey: "prompts.dir", Description: "Directory of prompt template overrides"},
}

var boundFlags = []string{
	config.FlagProvider,
	config.FlagModel,
	config.FlagBaseURL,
	config.FlagBatchSize,
	config.FlagMaxRetries,
	config.FlagLimit,
	config.FlagPersonasDir,
	config.FlagPromptsDir,
}

type generatorFactory func(ctx context.Context, cfg provider.Config) (provider.Generator, error)

type MemopediaCommander struct {
	personaID string
	configDir string

	// Config-backed flag targets. Read values from cfg after PreRunE.
	providerName string
	model        string
	baseURL      string
	batchSize    int
	maxRetries   int
	limit        int
	personasDir  string
	promptsDir   string

	offset       int
	thread       string
	dryRun       bool
	listModels   bool
	systemPrompt string
	refineWrites bool
	withEpisodes bool
	exportFile   string
	exportHTML   string
	importFile   string
	clear        bool
	metricsFile  string
	debug        bool
	debugLog     string
	jsonLogs     bool

	cfg          *config.Config
	logger       *slog.Logger
	debugFile    *os.File
	out          io.Writer
	errOut       io.Writer
	newGenerator generatorFactory
}

func NewMemopediaCmd() *cobra.Command {
	return newCommand(&MemopediaCommander{newGenerator: provider.New})
}

func newCommand(cmder *MemopediaCommander) *cobra.Command {
	if cmder.newGenerator == nil {
		cmder.newGenerator = provider.New
	}

	cmd := &cobra.Command{
		Use:           "memopedia [persona_id]",
		Short:         memopediaShortDesc,
		Long:          memopediaLongDesc,
		Args:          cobra.MaximumNArgs(1),
		Version:       utils.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, memopediaFlags, boundFlags)
			return cmder.loadConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cmder.personaID = args[0]
			}
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			return cmder.run(cmd.Context())
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("memopedia %s (%s, built %s)\n", utils.Version, utils.Sha, utils.Buildtime))

	config.AddStringFlag(cmd, memopediaFlags, config.FlagProvider, &cmder.providerName)
	config.AddStringFlag(cmd, memopediaFlags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, memopediaFlags, config.FlagBaseURL, &cmder.baseURL)
	config.AddIntFlag(cmd, memopediaFlags, config.FlagBatchSize, &cmder.batchSize)
	config.AddIntFlag(cmd, memopediaFlags, config.FlagMaxRetries, &cmder.maxRetries)
	config.AddIntFlag(cmd, memopediaFlags, config.FlagLimit, &cmder.limit)
	config.AddStringFlag(cmd, memopediaFlags, config.FlagPersonasDir, &cmder.personasDir)
	config.AddStringFlag(cmd, memopediaFlags, config.FlagPromptsDir, &cmder.promptsDir)

	cmd.Flags().StringVar(&cmder.configDir, "config-dir", "", "Override path to the .saiverse/ config directory")
	cmd.Flags().IntVar(&cmder.offset, "offset", 0, "Number of messages to skip")
	cmd.Flags().StringVar(&cmder.thread, "thread", "", "Only read messages from this thread")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Extract and log actions without writing")
	cmd.Flags().BoolVar(&cmder.listModels, "list-models", false, "List available models and exit")
	cmd.Flags().StringVar(&cmder.systemPrompt, "system-prompt", "", "Extract knowledge from this system prompt file first")
	cmd.Flags().BoolVar(&cmder.refineWrites, "refine-writes", false, "Merge updates to existing pages through model-proposed edits")
	cmd.Flags().BoolVar(&cmder.withEpisodes, "with-episode-context", false, "Prefix each batch with episode summaries (arasuji)")
	cmd.Flags().StringVar(&cmder.exportFile, "export", "", "Export Memopedia to a JSON file and exit")
	cmd.Flags().StringVar(&cmder.exportHTML, "export-html", "", "Export Memopedia as an HTML document and exit")
	cmd.Flags().StringVar(&cmder.importFile, "import", "", "Import Memopedia from a JSON file and exit")
	cmd.Flags().BoolVar(&cmder.clear, "clear", false, "Delete all pages (with --import: before importing)")
	cmd.Flags().StringVar(&cmder.metricsFile, "metrics-file", "", "Write run counters in Prometheus text format to this file")
	cmd.Flags().BoolVarP(&cmder.debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&cmder.debugLog, "debug-log", "", "Append prompts, responses and JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit logs as JSON")

	return cmd
}

func (c *MemopediaCommander) loadConfig(v *viper.Viper) error {
	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return err
	}

	cfg, err := cfger.Resolve(v)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *MemopediaCommander) run(ctx context.Context) error {
	closeLogs, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLogs()

	registry := models.NewRegistry(c.cfg.Models...)

	if c.listModels {
		return c.printModels(registry)
	}

	if c.personaID == "" {
		return errors.New("persona_id is required (unless using --list-models)")
	}

	personasDir, err := dotdir.NewManager().PersonasDir(c.cfg.Storage.PersonasDir, c.configDir)
	if err != nil {
		return err
	}
	dbPath, err := dotdir.PersonaDB(personasDir, c.personaID)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := memopedia.NewSQLiteStore(db, c.logger)
	if err != nil {
		return err
	}

	done, err := c.maintenance(ctx, store)
	if done || err != nil {
		return err
	}

	c.logger.Info("building memopedia",
		"persona", c.personaID,
		"database", dbPath,
		"limit", c.cfg.Extract.Limit,
		"dry_run", c.dryRun,
		"refine_writes", c.refineWrites,
	)

	gen, err := c.generator(ctx, registry)
	if err != nil {
		return err
	}

	var prompts *extract.Prompts
	if c.cfg.Prompts.Dir != "" {
		prompts, err = extract.LoadPrompts(c.cfg.Prompts.Dir)
		if err != nil {
			return err
		}
	}

	run := metrics.NewRun()
	defer c.writeMetrics(run)

	opts := extract.Options{
		BatchSize:  c.cfg.Extract.BatchSize,
		MaxRetries: c.cfg.Extract.MaxRetries,
		DryRun:     c.dryRun,
		Refine:     c.refineWrites,
		Prompts:    prompts,
		Logger:     c.logger,
		Metrics:    run,
	}

	if c.debugFile != nil {
		opts.DebugLog = c.debugFile
	}

	if c.withEpisodes {
		episodes, err := episode.NewStore(db)
		if err != nil {
			return err
		}
		opts.Episodes = episodes
		c.logger.Info("episode context enabled (arasuji)")
	}

	extractor := extract.New(gen, store, opts)

	if c.systemPrompt != "" {
		if err := c.extractSystemPrompt(ctx, extractor); err != nil {
			return err
		}
	}

	conv, err := conversation.NewStore(db)
	if err != nil {
		return err
	}

	c.logger.Info("fetching messages", "offset", c.offset, "limit", c.cfg.Extract.Limit, "thread", threadLabel(c.thread))
	msgs, err := conv.Fetch(ctx, conversation.FetchOptions{
		Limit:    c.cfg.Extract.Limit,
		Offset:   c.offset,
		ThreadID: c.thread,
	})
	if err != nil {
		return err
	}
	c.logger.Info("fetched messages", "count", len(msgs))

	if len(msgs) == 0 && c.systemPrompt == "" {
		c.logger.Warn("no messages found")
		return nil
	}

	if len(msgs) > 0 {
		c.logger.Info("extracting knowledge from messages")
		pages, err := extractor.Extract(ctx, msgs)
		if err != nil {
			return err
		}
		c.logger.Info("extracted and applied pages", "total", len(pages))
	}

	if !c.dryRun {
		md, err := store.ExportAllMarkdown(ctx)
		if err != nil {
			return err
		}
		cliui.Header(c.out, "Final Memopedia state")
		if err := cliui.PrintMarkdown(c.out, md); err != nil {
			return err
		}
	}

	c.logger.Info("done")
	return nil
}

func (c *MemopediaCommander) setupLogger() (func(), error) {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.jsonLogs && cliui.IsTerminal(c.errOut)),
		logger.WithJSON(c.jsonLogs),
		logger.WithWriter(c.errOut),
	)

	if c.debugLog == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(c.debugLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening debug log: %w", err)
	}
	c.debugFile = f
	c.logger = logger.Multi(c.logger, logger.New(
		logger.WithDebug(true),
		logger.WithJSON(true),
		logger.WithWriter(f),
	))
	return func() { f.Close() }, nil
}

func (c *MemopediaCommander) printModels(registry *models.Registry) error {
	list := registry.List()

	fmt.Fprintln(c.out, "Available models:")
	rows := make([][]string, 0, len(list))
	for _, m := range list {
		rows = append(rows, []string{m.ID, m.Label(), "(" + m.Provider + ")"})
	}
	if err := cliui.Table(c.out, "  ", rows); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nTotal: %d models\n", len(list))
	return nil
}

// maintenance runs the export, clear and import paths. done reports that
// one of them ran and the command should exit.
func (c *MemopediaCommander) maintenance(ctx context.Context, store *memopedia.SQLiteStore) (bool, error) {
	switch {
	case c.exportFile != "" || c.exportHTML != "":
		if c.exportFile != "" {
			if err := c.exportJSON(ctx, store); err != nil {
				return true, err
			}
		}
		if c.exportHTML != "" {
			if err := c.writeHTML(ctx, store); err != nil {
				return true, err
			}
		}
		return true, nil

	case c.clear && c.importFile == "":
		var deleted int
		err := cliui.Step(c.errOut, "Clearing all Memopedia pages", func() error {
			var err error
			deleted, err = store.ClearAllPages(ctx)
			return err
		})
		if err != nil {
			return true, err
		}
		c.logger.Info("deleted pages", "count", deleted)
		return true, nil

	case c.importFile != "":
		return true, c.importJSON(ctx, store)
	}

	return false, nil
}

func (c *MemopediaCommander) exportJSON(ctx context.Context, store *memopedia.SQLiteStore) error {
	c.logger.Info("exporting memopedia", "file", c.exportFile)

	data, err := store.ExportJSON(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}

	if err := os.WriteFile(c.exportFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	c.logger.Info("exported pages", "count", len(data.Pages))
	return nil
}

func (c *MemopediaCommander) writeHTML(ctx context.Context, store *memopedia.SQLiteStore) error {
	c.logger.Info("exporting memopedia as HTML", "file", c.exportHTML)

	html, err := store.ExportHTML(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.exportHTML, html, 0o644); err != nil {
		return fmt.Errorf("writing HTML export: %w", err)
	}
	return nil
}

func (c *MemopediaCommander) importJSON(ctx context.Context, store *memopedia.SQLiteStore) error {
	c.logger.Info("importing memopedia", "file", c.importFile, "clear", c.clear)

	raw, err := os.ReadFile(c.importFile)
	if err != nil {
		return fmt.Errorf("reading import: %w", err)
	}

	var data memopedia.Export
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decoding import: %w", err)
	}

	var imported int
	err = cliui.Step(c.errOut, "Importing Memopedia pages", func() error {
		var err error
		imported, err = store.ImportJSON(ctx, &data, c.clear)
		return err
	})
	if err != nil {
		return err
	}
	c.logger.Info("imported pages", "count", imported)
	return nil
}

// generator resolves the configured model and creates its client.
func (c *MemopediaCommander) generator(ctx context.Context, registry *models.Registry) (provider.Generator, error) {
	requested := c.cfg.LLM.Model
	m, err := registry.Find(requested)
	if err != nil {
		c.logger.Error("model not found, use --list-models to see available options", "model", requested)
		return nil, err
	}
	if m.ID != requested {
		c.logger.Info("resolved model", "requested", requested, "model", m.ID)
	}

	providerName := m.Provider
	if c.cfg.LLM.Provider != "" {
		providerName = c.cfg.LLM.Provider
	}
	baseURL := m.BaseURL
	if c.cfg.LLM.BaseURL != "" {
		baseURL = c.cfg.LLM.BaseURL
	}

	c.logger.Info("using model", "model", m.ModelName(), "provider", providerName)

	creds, err := credentials.Load(c.configDir)
	if err != nil {
		return nil, err
	}
	apiKey, source := creds.APIKey(providerName, c.cfg.LLM.APIKey)
	c.logger.Debug("api key source", "source", source, "credentials", creds.Path())

	return c.newGenerator(ctx, provider.Config{
		Provider:  providerName,
		Model:     m.ModelName(),
		APIKey:    apiKey,
		APIKeyEnv: m.APIKeyEnv,
		BaseURL:   baseURL,
	})
}

func (c *MemopediaCommander) extractSystemPrompt(ctx context.Context, extractor *extract.Extractor) error {
	text, err := os.ReadFile(c.systemPrompt)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("system prompt file not found: %s", c.systemPrompt)
		}
		return fmt.Errorf("reading system prompt: %w", err)
	}

	c.logger.Info("processing system prompt", "file", c.systemPrompt)
	pages, err := extractor.ExtractFromText(ctx, string(text), "system_prompt")
	if err != nil {
		return err
	}
	c.logger.Info("extracted pages from system prompt", "count", len(pages))

	if len(pages) == 0 || c.dryRun {
		return nil
	}
	_, err = extractor.ApplyPages(ctx, pages)
	return err
}

func (c *MemopediaCommander) writeMetrics(run *metrics.Run) {
	if c.metricsFile == "" {
		return
	}
	if err := run.WriteFile(c.metricsFile); err != nil {
		c.logger.Warn("failed to write metrics", "error", err)
	}
}

func threadLabel(thread string) string {
	if thread == "" {
		return "all"
	}
	return thread
}
