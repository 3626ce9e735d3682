package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/billabee/pkg/api"
	"github.com/sipeed/billabee/pkg/calendar"
	"github.com/sipeed/billabee/pkg/config"
	"github.com/sipeed/billabee/pkg/logger"
)

const (
	ApologyText      = "Oh, honey! My antennae are a bit fuzzy right now. I couldn't connect to the hive. Please try again later."
	SelectionAlert   = "Select at least one event to proceed."
	ScheduleAck      = "Here is your schedule:"
	TypingText       = "Billa the Bee is typing..."
	genericFailure   = "Sorry, something went wrong"
	noEventsFoundAck = "I couldn't find any events for that."
)

var (
	ErrEmptyMessage    = errors.New("conversation: message is empty")
	ErrNothingSelected = errors.New("conversation: no events selected")
	ErrEmptyUser       = errors.New("conversation: user is empty")
)

// Backend is the remote chat/calendar API. *api.Client satisfies it.
type Backend interface {
	Chat(ctx context.Context, message string) (api.Reply, error)
	CreateEvent(ctx context.Context, event calendar.Event) error
	SetUser(ctx context.Context, user string) error
}

type State int

const (
	StateIdle State = iota
	StateAwaitingReply
	StateRenderingReply
	StateRenderingCandidates
	StateAwaitingCreate
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting-reply"
	case StateRenderingReply:
		return "rendering-reply"
	case StateRenderingCandidates:
		return "rendering-candidates"
	case StateAwaitingCreate:
		return "awaiting-create"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// ConfirmMode is config.ConfirmInstruction (default) or config.ConfirmDirect.
	ConfirmMode string
	// MaxConcurrentCreates caps in-flight confirmation requests; 0 is unlimited.
	MaxConcurrentCreates int
	Themes               []string
	Now                  func() time.Time
}

// OptionsFromConfig maps the chat section of the config.
func OptionsFromConfig(cfg config.ChatConfig) Options {
	return Options{
		ConfirmMode:          cfg.ConfirmMode,
		MaxConcurrentCreates: cfg.MaxConcurrentCreates,
		Themes:               cfg.Themes,
	}
}

// Outcome summarizes a confirmation: Succeeded of Total requests went through.
type Outcome struct {
	Total     int
	Succeeded int
}

func (o Outcome) AllSucceeded() bool {
	return o.Total > 0 && o.Succeeded == o.Total
}

func (o Outcome) Message() string {
	switch {
	case o.AllSucceeded() && o.Total == 1:
		return "Your event was added to your calendar!"
	case o.AllSucceeded():
		return fmt.Sprintf("All %d events were added to your calendar!", o.Total)
	default:
		return fmt.Sprintf("%d out of %d events were added to your calendar.", o.Succeeded, o.Total)
	}
}

// Client runs conversation turns against a Backend and renders them to a
// View. Intents for one Client must not be issued concurrently.
type Client struct {
	backend    Backend
	view       View
	opts       Options
	transcript *Transcript

	mu    sync.Mutex
	state State
}

func NewClient(backend Backend, view View, opts Options) *Client {
	if view == nil {
		view = NopView{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ConfirmMode == "" {
		opts.ConfirmMode = config.ConfirmInstruction
	}
	if len(opts.Themes) == 0 {
		opts.Themes = config.DefaultThemes()
	}
	return &Client{
		backend:    backend,
		view:       view,
		opts:       opts,
		transcript: &Transcript{},
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		logger.DebugCF("conversation", "state change", map[string]interface{}{
			"from": prev.String(),
			"to":   s.String(),
		})
	}
}

func (c *Client) Transcript() *Transcript {
	return c.transcript
}

func (c *Client) Themes() []string {
	return append([]string(nil), c.opts.Themes...)
}

func (c *Client) say(text string, sender Sender) Message {
	m := newMessage(text, sender, c.opts.Now())
	c.transcript.append(m)
	c.view.AppendMessage(m)
	return m
}

// Submit runs one turn. The user message is appended before the backend is
// contacted. A non-nil Batch is returned when the reply carried candidate
// events. Backend failures are rendered into the transcript, not returned.
func (c *Client) Submit(ctx context.Context, text string) (*Batch, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	c.setState(StateAwaitingReply)
	c.say(text, SenderUser)
	c.view.ShowTyping()
	c.view.RenderCandidates(Panel{})

	reply, err := c.backend.Chat(ctx, text)
	c.view.HideTyping()
	if err != nil {
		c.fail(err)
		c.setState(StateIdle)
		return nil, nil
	}
	return c.dispatch(reply), nil
}

func (c *Client) fail(err error) {
	var se *api.StatusError
	if errors.As(err, &se) {
		logger.WarnCF("conversation", "backend rejected chat", map[string]interface{}{
			"status": se.Code,
			"error":  se.Message,
		})
		c.say(failureText(se.Message), SenderBot)
		return
	}
	if api.IsTransport(err) {
		logger.ErrorCF("conversation", "backend unreachable", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		logger.ErrorCF("conversation", "chat request failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.say(ApologyText, SenderBot)
}

func failureText(detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return genericFailure + "."
	}
	return genericFailure + ": " + detail
}

func (c *Client) dispatch(reply api.Reply) *Batch {
	switch reply.Kind {
	case api.KindText, api.KindAction:
		c.setState(StateRenderingReply)
		text := reply.Text
		if strings.TrimSpace(text) == "" {
			text = failureText("")
		}
		c.say(text, SenderBot)
		c.setState(StateIdle)
		return nil

	case api.KindEvents:
		text := reply.Text
		if strings.TrimSpace(text) == "" {
			text = ScheduleAck
			if len(reply.Events) == 0 {
				text = noEventsFoundAck
			}
		}
		c.say(text, SenderBot)
		if len(reply.Events) == 0 {
			c.setState(StateIdle)
			return nil
		}
		c.setState(StateRenderingCandidates)
		b := NewBatch(reply.Events)
		c.Render(b)
		logger.InfoCF("conversation", "candidate events received", map[string]interface{}{
			"batch":  b.ID,
			"events": b.Len(),
		})
		return b

	case api.KindError:
		c.setState(StateRenderingReply)
		logger.WarnCF("conversation", "backend reported error", map[string]interface{}{
			"tool":  reply.Tool,
			"error": reply.Text,
		})
		c.say(failureText(reply.Text), SenderBot)
		c.setState(StateIdle)
		return nil

	default:
		c.setState(StateRenderingReply)
		logger.WarnCF("conversation", "unrecognized reply", map[string]interface{}{
			"kind": reply.Kind.String(),
			"tool": reply.Tool,
		})
		c.say(failureText(reply.Text), SenderBot)
		c.setState(StateIdle)
		return nil
	}
}

// Render redraws the candidate area from b.
func (c *Client) Render(b *Batch) {
	c.view.RenderCandidates(b.Panel(c.opts.Themes))
}

// Confirm sends one request per selected candidate, concurrently, and waits
// for all of them. The candidate area is cleared and the confirm control
// re-enabled whatever the result.
func (c *Client) Confirm(ctx context.Context, b *Batch) (Outcome, error) {
	selected := b.Selected()
	if len(selected) == 0 {
		c.view.Alert(SelectionAlert)
		return Outcome{}, ErrNothingSelected
	}

	c.setState(StateAwaitingCreate)
	c.view.SetConfirmEnabled(false)
	defer func() {
		c.view.RenderCandidates(Panel{})
		c.view.SetConfirmEnabled(true)
		c.setState(StateIdle)
	}()

	results := make([]error, len(selected))
	var g errgroup.Group
	if c.opts.MaxConcurrentCreates > 0 {
		g.SetLimit(c.opts.MaxConcurrentCreates)
	}
	for i, ev := range selected {
		g.Go(func() error {
			results[i] = c.create(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{Total: len(selected)}
	for i, err := range results {
		if err == nil {
			out.Succeeded++
			continue
		}
		logger.WarnCF("conversation", "event creation failed", map[string]interface{}{
			"batch":   b.ID,
			"summary": selected[i].Summary,
			"error":   err.Error(),
		})
	}

	logger.InfoCF("conversation", "confirmation settled", map[string]interface{}{
		"batch":     b.ID,
		"mode":      c.opts.ConfirmMode,
		"total":     out.Total,
		"succeeded": out.Succeeded,
	})
	c.say(out.Message(), SenderBot)
	return out, nil
}

func (c *Client) create(ctx context.Context, ev calendar.Event) error {
	if c.opts.ConfirmMode == config.ConfirmDirect {
		return c.backend.CreateEvent(ctx, ev)
	}
	reply, err := c.backend.Chat(ctx, ev.Instruction())
	if err != nil {
		return err
	}
	if reply.Kind == api.KindError {
		return fmt.Errorf("conversation: create %q: %s", ev.Summary, reply.Text)
	}
	return nil
}

// Home returns to the entry view and drops the candidate area. The
// transcript is kept.
func (c *Client) Home() {
	c.view.ShowEntry()
	c.view.RenderCandidates(Panel{})
	c.view.FocusEntry()
	c.setState(StateIdle)
}

// SetUser scopes later calendar operations to user and reports the result
// in the transcript.
func (c *Client) SetUser(ctx context.Context, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrEmptyUser
	}
	if err := c.backend.SetUser(ctx, user); err != nil {
		logger.WarnCF("conversation", "set user failed", map[string]interface{}{
			"user":  user,
			"error": err.Error(),
		})
		c.say(fmt.Sprintf("I couldn't switch to %s. Please try again later.", user), SenderBot)
		return fmt.Errorf("conversation: set user: %w", err)
	}
	logger.InfoCF("conversation", "user selected", map[string]interface{}{"user": user})
	c.say(fmt.Sprintf("Buzzing along as %s now.", user), SenderBot)
	return nil
}
