// Package render prints conversations and personalities to a terminal.
// Assistant replies are rendered as markdown with glamour when enabled.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// MarkdownEnabled resolves an auto/always/never mode against out.
func MarkdownEnabled(mode string, out io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := out.(*os.File)
	return ok && IsTerminal(f)
}

type Renderer struct {
	out             io.Writer
	markdown        bool
	style           string
	wordWrap        int
	assistantPrefix string
	tr              *glamour.TermRenderer
}

type Option func(*Renderer)

func WithMarkdown(enabled bool) Option {
	return func(r *Renderer) {
		r.markdown = enabled
	}
}

// WithStyle sets the glamour style name (dark, light, notty, ...).
func WithStyle(style string) Option {
	return func(r *Renderer) {
		r.style = style
	}
}

func WithWordWrap(width int) Option {
	return func(r *Renderer) {
		r.wordWrap = width
	}
}

// WithAssistantName labels assistant messages with name instead of the role.
func WithAssistantName(name string) Option {
	return func(r *Renderer) {
		r.assistantPrefix = name
	}
}

func NewRenderer(out io.Writer, options ...Option) (*Renderer, error) {
	r := &Renderer{
		out:      out,
		style:    "dark",
		wordWrap: 100,
	}
	for _, option := range options {
		option(r)
	}
	if r.markdown {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(r.wordWrap),
		)
		if err != nil {
			return nil, errors.Wrap(err, "could not create markdown renderer")
		}
		r.tr = tr
	}
	return r, nil
}

func (r *Renderer) SetAssistantName(name string) {
	r.assistantPrefix = name
}

// Message prints a single message.
func (r *Renderer) Message(m types.Message) error {
	label := "You"
	if m.Role == types.RoleAssistant {
		label = "Assistant"
		if r.assistantPrefix != "" {
			label = r.assistantPrefix
		}
	}

	content := m.Content
	if r.tr != nil && m.Role == types.RoleAssistant {
		styled, err := r.tr.Render(content)
		if err != nil {
			return errors.Wrap(err, "could not render message")
		}
		_, err = fmt.Fprintf(r.out, "%s:\n%s", label, styled)
		return err
	}

	_, err := fmt.Fprintf(r.out, "%s: %s\n", label, strings.TrimRight(content, "\n"))
	return err
}

func (r *Renderer) Messages(messages []types.Message) error {
	for _, m := range messages {
		if err := r.Message(m); err != nil {
			return err
		}
	}
	return nil
}

// Conversation prints a header line followed by the messages.
func (r *Renderer) Conversation(c *types.Conversation) error {
	if _, err := fmt.Fprintf(r.out, "Conversation %s (personality %s, %s)\n\n",
		c.ID, c.PersonalityID, formatTimestamp(c.CreatedAt)); err != nil {
		return err
	}
	return r.Messages(c.Messages)
}

// Summaries prints one line per conversation.
func (r *Renderer) Summaries(summaries []types.ConversationSummary, total int) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(r.out, "No conversations yet.")
		return err
	}
	for _, s := range summaries {
		if _, err := fmt.Fprintf(r.out, "%-36s  %-22s  %s\n", s.ID, s.PersonalityID, formatTimestamp(s.CreatedAt)); err != nil {
			return err
		}
	}
	if total > len(summaries) {
		_, err := fmt.Fprintf(r.out, "(%d of %d)\n", len(summaries), total)
		return err
	}
	return nil
}

// Personalities prints the catalog and marks the selected entry.
func (r *Renderer) Personalities(items []types.Personality, selectedID string) error {
	for _, p := range items {
		marker := " "
		if p.ID == selectedID {
			marker = "*"
		}
		kind := "custom"
		if p.IsDefault {
			kind = "default"
		}
		if _, err := fmt.Fprintf(r.out, "%s %-24s %-24s [%s] tone=%d verbosity=%d creativity=%d formality=%d\n",
			marker, p.ID, p.Name, kind, p.Tone, p.Verbosity, p.Creativity, p.Formality); err != nil {
			return err
		}
	}
	return nil
}

func formatTimestamp(t types.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
