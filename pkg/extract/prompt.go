package extract

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/RNA4219/SAIVerse/pkg/conversation"
)

//go:embed prompts/*.tmpl
var embeddedPrompts embed.FS

// Template names. A prompts directory override must use the same file names.
const (
	ExtractionTemplate   = "extraction.tmpl"
	SystemPromptTemplate = "system_prompt_extraction.tmpl"
	RefineTemplate       = "refine_content.tmpl"
	EpisodeTemplate      = "episode_context.tmpl"
)

var templateNames = []string{ExtractionTemplate, SystemPromptTemplate, RefineTemplate, EpisodeTemplate}

// noKeywords is shown to the refiner when a page has no keywords yet.
const noKeywords = "(なし)"

// Prompts renders every prompt the pipeline sends.
type Prompts struct {
	templates map[string]*template.Template
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	p, err := LoadPrompts("")
	if err != nil {
		// The embedded templates are parsed in tests; a failure here is a
		// build defect.
		panic(err)
	}
	return p
}

// LoadPrompts parses the embedded templates, replacing any that exist as
// files in dir. dir may be empty. A directory that does not exist or a
// template that fails to parse is an error.
func LoadPrompts(dir string) (*Prompts, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("prompts directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("prompts directory %s is not a directory", dir)
		}
	}

	p := &Prompts{templates: make(map[string]*template.Template, len(templateNames))}
	for _, name := range templateNames {
		text, err := readTemplate(dir, name)
		if err != nil {
			return nil, err
		}

		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parsing prompt %s: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

func readTemplate(dir, name string) (string, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			return string(data), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("reading prompt %s: %w", name, err)
		}
	}

	data, err := embeddedPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("reading embedded prompt %s: %w", name, err)
	}
	return string(data), nil
}

func (p *Prompts) render(name string, data any) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %s", name)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return b.String(), nil
}

// BuildExtractionPrompt renders the batch extraction prompt. A non-empty
// episodeContext is prepended as a delimited preamble.
func (p *Prompts) BuildExtractionPrompt(existingPages, conversationText, episodeContext string) (string, error) {
	prompt, err := p.render(ExtractionTemplate, struct {
		ExistingPages string
		Conversation  string
	}{existingPages, conversationText})
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(episodeContext) == "" {
		return prompt, nil
	}
	return p.render(EpisodeTemplate, struct {
		EpisodeContext string
		Prompt         string
	}{episodeContext, prompt})
}

// BuildSystemPromptExtraction renders the prompt used to mine a persona's
// system prompt.
func (p *Prompts) BuildSystemPromptExtraction(existingPages, text string) (string, error) {
	return p.render(SystemPromptTemplate, struct {
		ExistingPages string
		Text          string
	}{existingPages, text})
}

// BuildRefinePrompt renders the prompt asking for edit operations that
// merge newInfo into an existing page.
func (p *Prompts) BuildRefinePrompt(title, summary string, keywords []string, existingContent, newInfo string) (string, error) {
	kw := noKeywords
	if len(keywords) > 0 {
		kw = strings.Join(keywords, ", ")
	}
	return p.render(RefineTemplate, struct {
		Title           string
		Summary         string
		Keywords        string
		ExistingContent string
		NewInfo         string
	}{title, summary, kw, existingContent, newInfo})
}

// FormatMessages renders messages as "[role]: content" blocks separated by
// blank lines. Messages with blank content are skipped and the "model" role
// is shown as "assistant".
func FormatMessages(msgs []conversation.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}

		role := m.Role
		if role == conversation.RoleModel {
			role = conversation.RoleAssistant
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", role, content))
	}
	return strings.Join(lines, "\n\n")
}
