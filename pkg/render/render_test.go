package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sipeed/billabee/pkg/conversation"
)

var at = time.Date(2024, 1, 2, 14, 5, 0, 0, time.UTC)

func TestTerminalMessagePlain(t *testing.T) {
	r := NewTerminal(false, 60)

	out := r.Message(conversation.Message{Text: "lunch with Sam", Sender: conversation.SenderUser, Time: at})
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "14:05")
	assert.True(t, strings.HasSuffix(out, "lunch with Sam"))

	out = r.Message(conversation.Message{Text: "**Here** you go", Sender: conversation.SenderBot, Time: at})
	assert.Contains(t, out, "Billa")
	assert.Contains(t, out, "**Here** you go")
}

func TestTerminalMessageMarkdown(t *testing.T) {
	r := NewTerminal(true, 60)
	out := r.Message(conversation.Message{Text: "**Here** you go", Sender: conversation.SenderBot, Time: at})
	assert.Contains(t, out, "Here")
	assert.NotContains(t, out, "**Here**")
}

func TestTerminalPanel(t *testing.T) {
	r := NewTerminal(false, 60)
	assert.Empty(t, r.Panel(conversation.Panel{}))

	out := r.Panel(conversation.Panel{
		Cards: []conversation.Card{
			{Index: 1, Summary: "Lunch with Sam", Start: "Tue Jan 2, 2024 12:00", End: "Tue Jan 2, 2024 13:00", Selected: true, Theme: "Auto"},
			{Index: 2, Summary: "Gym", Start: "a", End: "b", Theme: "Exercise", Warning: "end time must be after the start time"},
		},
		Themes:  []string{"Auto", "Exercise"},
		Confirm: true,
	})
	assert.Contains(t, out, "[x] 1. Lunch with Sam")
	assert.Contains(t, out, "[ ] 2. Gym")
	assert.Contains(t, out, "Tue Jan 2, 2024 12:00 to Tue Jan 2, 2024 13:00")
	assert.Contains(t, out, "theme: Exercise")
	assert.Contains(t, out, "warning: end time must be after")
	assert.Equal(t, 1, strings.Count(out, "/confirm"))
	assert.Contains(t, out, "(Auto, Exercise)")
}

func TestTerminalTypingAndAlert(t *testing.T) {
	r := NewTerminal(false, 0)
	assert.Contains(t, r.Typing(), "Billa the Bee is typing...")
	assert.Contains(t, r.Alert(conversation.SelectionAlert), conversation.SelectionAlert)
}

func TestHTML(t *testing.T) {
	out := HTML("**bold** and [link](https://example.com)\n\n<script>alert(1)</script>")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, `target="_blank"`)
	assert.NotContains(t, out, "<script>")
}

func TestMessageHTML(t *testing.T) {
	user := conversation.Message{Text: "<b>hi</b>", Sender: conversation.SenderUser}
	assert.Equal(t, "<p>&lt;b&gt;hi&lt;/b&gt;</p>", MessageHTML(user, true))

	bot := conversation.Message{Text: "*hey*", Sender: conversation.SenderBot}
	assert.Equal(t, "<p><em>hey</em></p>", MessageHTML(bot, true))
	assert.Equal(t, "<p>*hey*</p>", MessageHTML(bot, false))
}

func TestWidthFallsBackWhenNotATerminal(t *testing.T) {
	assert.Equal(t, defaultWidth, Width(nil))
}
