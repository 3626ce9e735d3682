package conversation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/billabee/pkg/calendar"
	"github.com/sipeed/billabee/pkg/logger"
)

// Intent names a user action coming from a front end.
type Intent string

const (
	IntentSubmitQuery      Intent = "submit-query"
	IntentSendMessage      Intent = "send-message"
	IntentConfirmSelection Intent = "confirm-selection"
	IntentNavigateHome     Intent = "navigate-home"
	IntentToggleEvent      Intent = "toggle-event"
	IntentSetTheme         Intent = "set-theme"
	IntentSetUser          Intent = "set-user"
	IntentExportEvents     Intent = "export-events"
	IntentCopyReply        Intent = "copy-reply"
)

// Request carries the arguments of an intent. Index is 1-based, as shown
// on the cards.
type Request struct {
	Text  string
	Index int
	Theme string
	User  string
	Path  string
}

type Handler func(ctx context.Context, req Request) error

type DispatcherOption func(*Dispatcher)

// WithCopier enables the copy-reply intent.
func WithCopier(fn func(text string) error) DispatcherOption {
	return func(d *Dispatcher) { d.copier = fn }
}

// Dispatcher maps intents to handlers for one session and holds that
// session's current batch.
type Dispatcher struct {
	client   *Client
	handlers map[Intent]Handler
	copier   func(string) error

	mu    sync.Mutex
	batch *Batch
}

func NewDispatcher(client *Client, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{client: client}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[Intent]Handler{
		IntentSubmitQuery:      d.submitQuery,
		IntentSendMessage:      d.sendMessage,
		IntentConfirmSelection: d.confirm,
		IntentNavigateHome:     d.home,
		IntentToggleEvent:      d.toggle,
		IntentSetTheme:         d.setTheme,
		IntentSetUser:          d.setUser,
		IntentExportEvents:     d.export,
	}
	if d.copier != nil {
		d.handlers[IntentCopyReply] = d.copyReply
	}
	return d
}

func (d *Dispatcher) Client() *Client {
	return d.client
}

// Batch returns the batch awaiting confirmation, if any.
func (d *Dispatcher) Batch() *Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batch
}

func (d *Dispatcher) setBatch(b *Batch) {
	d.mu.Lock()
	d.batch = b
	d.mu.Unlock()
}

func (d *Dispatcher) Handle(ctx context.Context, intent Intent, req Request) error {
	d.mu.Lock()
	h, ok := d.handlers[intent]
	d.mu.Unlock()
	if !ok {
		logger.WarnCF("conversation", "unknown intent", map[string]interface{}{"intent": string(intent)})
		return fmt.Errorf("conversation: unknown intent %q", intent)
	}
	logger.DebugCF("conversation", "dispatch", map[string]interface{}{"intent": string(intent)})
	return h(ctx, req)
}

// submitQuery starts a conversation from the entry view.
func (d *Dispatcher) submitQuery(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyMessage
	}
	d.client.view.ShowConversation()
	return d.sendMessage(ctx, req)
}

func (d *Dispatcher) sendMessage(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyMessage
	}
	d.setBatch(nil)
	b, err := d.client.Submit(ctx, req.Text)
	if err != nil {
		return err
	}
	d.setBatch(b)
	return nil
}

func (d *Dispatcher) confirm(ctx context.Context, _ Request) error {
	b := d.Batch()
	_, err := d.client.Confirm(ctx, b)
	if err != nil {
		return err
	}
	d.setBatch(nil)
	return nil
}

func (d *Dispatcher) home(context.Context, Request) error {
	d.setBatch(nil)
	d.client.Home()
	return nil
}

func (d *Dispatcher) toggle(_ context.Context, req Request) error {
	b := d.Batch()
	if _, err := b.Toggle(req.Index - 1); err != nil {
		return err
	}
	d.client.Render(b)
	return nil
}

func (d *Dispatcher) setTheme(_ context.Context, req Request) error {
	b := d.Batch()
	if err := b.SetTheme(req.Index-1, req.Theme); err != nil {
		return err
	}
	d.client.Render(b)
	return nil
}

func (d *Dispatcher) setUser(ctx context.Context, req Request) error {
	return d.client.SetUser(ctx, req.User)
}

// export writes the selected candidates to an .ics file.
func (d *Dispatcher) export(_ context.Context, req Request) error {
	events := d.Batch().Selected()
	if len(events) == 0 {
		d.client.view.Alert(SelectionAlert)
		return ErrNothingSelected
	}
	now := d.client.opts.Now()
	path := req.Path
	if path == "" {
		path = calendar.ICSFileName(events, now)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("conversation: export: %w", err)
	}
	if err := calendar.WriteICS(f, events, now.UTC().Truncate(time.Second)); err != nil {
		f.Close()
		return fmt.Errorf("conversation: export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("conversation: export: %w", err)
	}
	logger.InfoCF("conversation", "events exported", map[string]interface{}{
		"path":   path,
		"events": len(events),
	})
	d.client.view.Alert(fmt.Sprintf("Saved %d event(s) to %s", len(events), path))
	return nil
}

func (d *Dispatcher) copyReply(context.Context, Request) error {
	m, ok := d.client.transcript.LastFrom(SenderBot)
	if !ok {
		return fmt.Errorf("conversation: nothing to copy yet")
	}
	if err := d.copier(m.Text); err != nil {
		return fmt.Errorf("conversation: copy: %w", err)
	}
	return nil
}
