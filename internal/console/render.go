package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"cosmconsole/internal/logger"
	"cosmconsole/pkg/cosmtypes"
)

// styles holds the lipgloss styling for transcript rendering. On dumb
// terminals (NO_COLOR, ascii profile) every style collapses to plain text.
type styles struct {
	user        lipgloss.Style
	coordinator lipgloss.Style
	agent       lipgloss.Style
	tool        lipgloss.Style
	progress    lipgloss.Style
	errLine     lipgloss.Style

	markdown *glamour.TermRenderer
}

func newStyles() styles {
	s := styles{
		user:        lipgloss.NewStyle(),
		coordinator: lipgloss.NewStyle(),
		agent:       lipgloss.NewStyle(),
		tool:        lipgloss.NewStyle(),
		progress:    lipgloss.NewStyle(),
		errLine:     lipgloss.NewStyle(),
	}

	if termenv.EnvColorProfile() != termenv.Ascii {
		s.user = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
		s.coordinator = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
		s.agent = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("245"))
		s.tool = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("66"))
		s.progress = lipgloss.NewStyle().Faint(true).Italic(true)
		s.errLine = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		logger.Warn("markdown renderer unavailable, falling back to plain text", "error", err)
	} else {
		s.markdown = renderer
	}

	return s
}

// renderMarkdown renders the primary responder's reply through glamour,
// falling back to the raw text when rendering fails.
func (s styles) renderMarkdown(text string) string {
	if s.markdown == nil {
		return text
	}
	rendered, err := s.markdown.Render(text)
	if err != nil {
		logger.Debug("markdown render failed", "error", err)
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// renderEntry prints one finalized transcript entry.
func (c *Console) renderEntry(entry cosmtypes.Entry) {
	switch entry.Author {
	case c.cfg.UserAuthor:
		fmt.Fprintln(c.out, c.styles.user.Render("you ▸ ")+entry.Text)
	case c.cfg.PrimaryAgent:
		c.progressShown = false
		fmt.Fprintln(c.out, c.styles.renderMarkdown(entry.Text))
	default:
		c.renderAgentEntry(entry)
	}
}

func (c *Console) renderAgentEntry(entry cosmtypes.Entry) {
	for _, call := range entry.FunctionCalls {
		fmt.Fprintln(c.out, c.styles.tool.Render(fmt.Sprintf("  ⚙ %s → %s", entry.Author, call.Name)))
	}
	if entry.Text != "" {
		fmt.Fprintln(c.out, c.styles.agent.Render(fmt.Sprintf("  · %s: %s", entry.Author, summarize(entry.Text))))
	}
}

// renderProgress prints the synthetic progress indicator once per pending
// turn, so a block with no coordinator reply never renders as nothing.
func (c *Console) renderProgress(author string) {
	c.mu.Lock()
	shown := c.progressShown
	c.progressShown = true
	c.mu.Unlock()
	if shown {
		return
	}
	fmt.Fprintln(c.out, c.styles.progress.Render(fmt.Sprintf("  ⋯ %s is working", author)))
}

func (c *Console) printError(msg string) {
	fmt.Fprintln(c.out, c.styles.errLine.Render(msg))
}

// RenderHistory prints the whole transcript grouped into conversation
// blocks, pending blocks included.
func (c *Console) RenderHistory() {
	blocks := c.transcript.Blocks()
	if len(blocks) == 0 {
		fmt.Fprintln(c.out, c.styles.progress.Render("(empty session)"))
		return
	}

	for i, block := range blocks {
		if i > 0 {
			fmt.Fprintln(c.out)
		}
		c.renderBlock(block)
	}
}

func (c *Console) renderBlock(block cosmtypes.Block) {
	if block.User != nil {
		fmt.Fprintln(c.out, c.styles.user.Render("you ▸ ")+block.User.Text)
	}
	for _, author := range block.AgentOrder {
		for _, entry := range block.AgentActivity[author] {
			c.renderAgentEntry(entry)
		}
	}
	switch {
	case block.Coordinator != nil:
		fmt.Fprintln(c.out, c.styles.renderMarkdown(block.Coordinator.Text))
	case block.LastAgentMessage != nil:
		// No coordinator reply yet; the latest agent output stands in.
		fmt.Fprintln(c.out, c.styles.agent.Render(fmt.Sprintf("  (latest) %s: %s",
			block.LastAgentMessage.Author, summarize(block.LastAgentMessage.Text))))
	default:
		fmt.Fprintln(c.out, c.styles.progress.Render("  ⋯ waiting for a reply"))
	}
}

// summarize trims long auxiliary output to one display line.
func summarize(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	const max = 120
	if len(text) > max {
		return text[:max] + "…"
	}
	return text
}
