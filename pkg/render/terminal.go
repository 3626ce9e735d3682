package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/sipeed/billabee/pkg/conversation"
	"github.com/sipeed/billabee/pkg/logger"
)

const defaultWidth = 80

var (
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	botStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	typingStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("246"))
	alertStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1)
	summaryStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

// IsTerminal reports whether f is attached to a TTY.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the column count of f, or 80 when it is not a terminal.
func Width(f *os.File) int {
	if !IsTerminal(f) {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Terminal formats conversation output for a text console.
type Terminal struct {
	md    *glamour.TermRenderer
	width int
}

// NewTerminal builds a renderer. With markdown on, bot replies are rendered
// through glamour; if the renderer cannot be built, plain text is used.
func NewTerminal(markdown bool, width int) *Terminal {
	if width <= 0 {
		width = defaultWidth
	}
	t := &Terminal{width: width}
	if !markdown {
		return t
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		logger.WarnCF("render", "markdown renderer unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return t
	}
	t.md = r
	return t
}

func (t *Terminal) Message(m conversation.Message) string {
	who := botStyle.Render("Billa")
	if m.Sender == conversation.SenderUser {
		who = userStyle.Render("You")
	}
	header := fmt.Sprintf("%s %s", who, timeStyle.Render(m.Timestamp()))

	body := m.Text
	if m.Sender == conversation.SenderBot && t.md != nil {
		if out, err := t.md.Render(m.Text); err == nil {
			body = strings.Trim(out, "\n")
		}
	}
	return header + "\n" + body
}

func (t *Terminal) Typing() string {
	return typingStyle.Render(conversation.TypingText)
}

func (t *Terminal) Alert(text string) string {
	return alertStyle.Render("! " + text)
}

// Panel renders candidate cards followed by the confirm hint. The empty
// panel renders as an empty string.
func (t *Terminal) Panel(p conversation.Panel) string {
	if len(p.Cards) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range p.Cards {
		b.WriteString(cardStyle.Width(t.width - 4).Render(t.card(c)))
		b.WriteString("\n")
	}
	if p.Confirm {
		hint := "/confirm to add the checked events, /toggle N to (un)check"
		if len(p.Themes) > 0 {
			hint += ", /theme N NAME (" + strings.Join(p.Themes, ", ") + ")"
		}
		b.WriteString(dimStyle.Render(hint))
	}
	return b.String()
}

func (t *Terminal) card(c conversation.Card) string {
	box := "[ ]"
	if c.Selected {
		box = "[x]"
	}
	lines := []string{
		fmt.Sprintf("%s %d. %s", box, c.Index, summaryStyle.Render(c.Summary)),
		fmt.Sprintf("    %s to %s", c.Start, c.End),
	}
	if c.Location != "" {
		lines = append(lines, "    @ "+c.Location)
	}
	if c.Recurrence != "" {
		lines = append(lines, "    "+dimStyle.Render(c.Recurrence))
	}
	lines = append(lines, "    "+dimStyle.Render("theme: "+c.Theme))
	if c.Warning != "" {
		lines = append(lines, "    "+warnStyle.Render("warning: "+c.Warning))
	}
	return strings.Join(lines, "\n")
}
