package channels

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/billabee/pkg/api"
	"github.com/sipeed/billabee/pkg/config"
	"github.com/sipeed/billabee/pkg/conversation"
	"github.com/sipeed/billabee/pkg/render"
)

func newTestTerminal(t *testing.T, creates *atomic.Int32, copied *string) (*TerminalChannel, *bytes.Buffer) {
	t.Helper()
	backend := newBackend(t, creates)
	var out bytes.Buffer
	term := NewTerminalChannel(&out, render.NewTerminal(false, 80), "")
	client := conversation.NewClient(api.New(backend.URL, api.WithTimeout(2*time.Second)), term,
		conversation.Options{ConfirmMode: config.ConfirmDirect})
	term.Bind(conversation.NewDispatcher(client, conversation.WithCopier(func(s string) error {
		if copied == nil {
			return errors.New("no clipboard")
		}
		*copied = s
		return nil
	})))
	return term, &out
}

func TestTerminalConversationFlow(t *testing.T) {
	var creates atomic.Int32
	var copied string
	term, out := newTestTerminal(t, &creates, &copied)
	ctx := context.Background()

	require.NoError(t, term.Handle(ctx, "lunch with Sam tomorrow"))
	assert.True(t, term.inChat)
	text := out.String()
	assert.Contains(t, text, "lunch with Sam tomorrow")
	assert.Contains(t, text, conversation.TypingText)
	assert.Contains(t, text, "[x] 1. Lunch with Sam")
	assert.Contains(t, text, "[x] 2. Coffee")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/toggle 2"))
	assert.Contains(t, out.String(), "[ ] 2. Coffee")

	require.NoError(t, term.Handle(ctx, "/theme 1 Social"))
	assert.Contains(t, out.String(), "theme: Social")

	require.NoError(t, term.Handle(ctx, "/copy"))
	assert.Equal(t, conversation.ScheduleAck, copied)

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/confirm"))
	assert.Equal(t, int32(1), creates.Load())
	assert.Contains(t, out.String(), "Your event was added to your calendar!")
	assert.True(t, term.confirmEnabled)

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/confirm"))
	assert.Contains(t, out.String(), conversation.SelectionAlert)
	assert.Equal(t, int32(1), creates.Load())
}

func TestTerminalCommands(t *testing.T) {
	var creates atomic.Int32
	term, out := newTestTerminal(t, &creates, nil)
	ctx := context.Background()

	assert.ErrorIs(t, term.Handle(ctx, "/quit"), errQuit)
	assert.NoError(t, term.Handle(ctx, "   "))

	require.NoError(t, term.Handle(ctx, "/help"))
	assert.Contains(t, out.String(), "/confirm")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/toggle x"))
	assert.Contains(t, out.String(), "usage: /toggle N")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/toggle 1"))
	assert.Contains(t, out.String(), "no event #1")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/theme 1"))
	assert.Contains(t, out.String(), "usage: /theme N NAME")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/bogus"))
	assert.Contains(t, out.String(), "unknown command /bogus")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/copy"))
	assert.Contains(t, out.String(), "nothing to copy")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/user alice"))
	assert.Contains(t, out.String(), "alice")
}

func TestTerminalHomeReturnsToEntry(t *testing.T) {
	var creates atomic.Int32
	term, out := newTestTerminal(t, &creates, nil)
	ctx := context.Background()

	require.NoError(t, term.Handle(ctx, "lunch"))
	require.True(t, term.inChat)
	require.NoError(t, term.Handle(ctx, "/home"))
	assert.False(t, term.inChat)
	assert.Contains(t, out.String(), "Back home")

	out.Reset()
	require.NoError(t, term.Handle(ctx, "/confirm"))
	assert.Contains(t, out.String(), conversation.SelectionAlert, "home drops the batch")
}

func TestTerminalExport(t *testing.T) {
	var creates atomic.Int32
	term, out := newTestTerminal(t, &creates, nil)
	ctx := context.Background()

	require.NoError(t, term.Handle(ctx, "lunch"))
	path := filepath.Join(t.TempDir(), "lunch.ics")
	require.NoError(t, term.Handle(ctx, "/export "+path))
	assert.Contains(t, out.String(), "Saved 2 event(s)")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:Lunch with Sam")
}

func TestTerminalUnbound(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminalChannel(&out, render.NewTerminal(false, 80), "")
	require.NoError(t, term.Handle(context.Background(), "hello"))
	assert.Contains(t, out.String(), "not bound")
}
