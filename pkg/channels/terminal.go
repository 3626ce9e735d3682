package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ergochat/readline"

	"github.com/sipeed/billabee/pkg/conversation"
	"github.com/sipeed/billabee/pkg/logger"
	"github.com/sipeed/billabee/pkg/render"
)

const (
	entryPrompt = "billabee> "
	chatPrompt  = "you> "
)

const terminalHelp = `Type a request to talk to Billa, e.g. "lunch with Sam tomorrow".

  /toggle N        check or uncheck event N
  /theme N NAME    set the theme of event N (Auto lets Billa decide)
  /confirm         add the checked events to your calendar
  /export [FILE]   save the checked events as an .ics file
  /copy            copy Billa's last reply to the clipboard
  /user ID         act on the calendar of ID
  /home            back to the start screen
  /help            show this help
  /quit            leave`

// errQuit is returned by Handle when the user asks to leave.
var errQuit = errors.New("quit")

// TerminalChannel is an interactive console front end. It implements
// conversation.View and turns typed lines into intents.
type TerminalChannel struct {
	out         io.Writer
	render      *render.Terminal
	historyFile string
	dispatcher  *conversation.Dispatcher

	mu             sync.Mutex
	inChat         bool
	confirmEnabled bool
	rl             *readline.Instance
}

func NewTerminalChannel(out io.Writer, r *render.Terminal, historyFile string) *TerminalChannel {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalChannel{
		out:            out,
		render:         r,
		historyFile:    historyFile,
		confirmEnabled: true,
	}
}

// Bind attaches the dispatcher that receives this channel's intents.
func (t *TerminalChannel) Bind(d *conversation.Dispatcher) {
	t.dispatcher = d
}

func (t *TerminalChannel) println(s string) {
	if s == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var w io.Writer = t.out
	if t.rl != nil {
		w = t.rl
	}
	fmt.Fprintln(w, s)
}

func (t *TerminalChannel) AppendMessage(m conversation.Message) {
	t.println(t.render.Message(m))
}

func (t *TerminalChannel) ShowTyping() {
	t.println(t.render.Typing())
}

func (t *TerminalChannel) HideTyping() {}

func (t *TerminalChannel) RenderCandidates(p conversation.Panel) {
	t.println(t.render.Panel(p))
}

func (t *TerminalChannel) SetConfirmEnabled(enabled bool) {
	t.mu.Lock()
	t.confirmEnabled = enabled
	t.mu.Unlock()
}

func (t *TerminalChannel) Alert(text string) {
	t.println(t.render.Alert(text))
}

func (t *TerminalChannel) ShowConversation() {
	t.mu.Lock()
	t.inChat = true
	t.mu.Unlock()
	t.setPrompt(chatPrompt)
}

func (t *TerminalChannel) ShowEntry() {
	t.mu.Lock()
	t.inChat = false
	t.mu.Unlock()
	t.println("Back home. What can Billa do for you?")
}

func (t *TerminalChannel) FocusEntry() {
	t.setPrompt(entryPrompt)
}

func (t *TerminalChannel) setPrompt(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rl != nil {
		t.rl.SetPrompt(p)
	}
}

// Handle runs one input line. It returns errQuit for /quit.
func (t *TerminalChannel) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		t.mu.Lock()
		intent := conversation.IntentSendMessage
		if !t.inChat {
			intent = conversation.IntentSubmitQuery
		}
		t.mu.Unlock()
		t.dispatch(ctx, intent, conversation.Request{Text: line})
		return nil
	}

	name, args := splitCommand(line)
	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		t.println(terminalHelp)
		return nil
	case "confirm":
		t.mu.Lock()
		enabled := t.confirmEnabled
		t.mu.Unlock()
		if !enabled {
			t.Alert("Still adding the previous events, hang on.")
			return nil
		}
		t.dispatch(ctx, conversation.IntentConfirmSelection, conversation.Request{})
		return nil
	case "home":
		t.dispatch(ctx, conversation.IntentNavigateHome, conversation.Request{})
		return nil
	case "toggle":
		n, err := cardIndex(args)
		if err != nil {
			t.Alert("usage: /toggle N")
			return nil
		}
		t.dispatch(ctx, conversation.IntentToggleEvent, conversation.Request{Index: n})
		return nil
	case "theme":
		n, err := cardIndex(args)
		if err != nil || len(args) < 2 {
			t.Alert("usage: /theme N NAME")
			return nil
		}
		theme := strings.Join(args[1:], " ")
		t.dispatch(ctx, conversation.IntentSetTheme, conversation.Request{Index: n, Theme: theme})
		return nil
	case "user":
		if len(args) == 0 {
			t.Alert("usage: /user ID")
			return nil
		}
		t.dispatch(ctx, conversation.IntentSetUser, conversation.Request{User: strings.Join(args, " ")})
		return nil
	case "export":
		t.dispatch(ctx, conversation.IntentExportEvents, conversation.Request{Path: strings.Join(args, " ")})
		return nil
	case "copy":
		if t.dispatch(ctx, conversation.IntentCopyReply, conversation.Request{}) {
			t.println("Copied Billa's last reply.")
		}
		return nil
	default:
		t.Alert(fmt.Sprintf("unknown command /%s, try /help", name))
		return nil
	}
}

// dispatch forwards an intent and reports whether it succeeded. Failures
// are shown as alerts.
func (t *TerminalChannel) dispatch(ctx context.Context, intent conversation.Intent, req conversation.Request) bool {
	if t.dispatcher == nil {
		t.Alert("terminal is not bound to a conversation")
		return false
	}
	err := t.dispatcher.Handle(ctx, intent, req)
	switch {
	case err == nil:
		return true
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrNothingSelected):
		// already surfaced through the view
		return false
	default:
		t.Alert(strings.TrimPrefix(err.Error(), "conversation: "))
		return false
	}
}

func splitCommand(line string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func cardIndex(args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing event number")
	}
	return strconv.Atoi(args[0])
}

// Run reads lines until /quit, EOF or ctx is done.
func (t *TerminalChannel) Run(ctx context.Context) error {
	if t.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(t.historyFile), 0o755); err != nil {
			logger.WarnCF("channels", "history directory unavailable", map[string]interface{}{
				"path":  t.historyFile,
				"error": err.Error(),
			})
			t.historyFile = ""
		}
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          entryPrompt,
		HistoryFile:     t.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/toggle"),
			readline.PcItem("/theme"),
			readline.PcItem("/confirm"),
			readline.PcItem("/export"),
			readline.PcItem("/copy"),
			readline.PcItem("/user"),
			readline.PcItem("/home"),
			readline.PcItem("/help"),
			readline.PcItem("/quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("channels: terminal: %w", err)
	}
	t.mu.Lock()
	t.rl = rl
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.rl = nil
		t.mu.Unlock()
		rl.Close()
	}()

	logger.InfoCF("channels", "terminal started", map[string]interface{}{"history": t.historyFile})
	t.println(`Hi, I'm Billa the Bee! Ask me about your schedule, or type /help.`)

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("channels: terminal: %w", err)
		}
		if err := t.Handle(ctx, line); errors.Is(err, errQuit) {
			return nil
		} else if err != nil {
			t.Alert(err.Error())
		}
	}
}
