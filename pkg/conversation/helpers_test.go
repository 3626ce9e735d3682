package conversation

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sipeed/billabee/pkg/api"
)

// recordingView captures every call in order.
type recordingView struct {
	mu       sync.Mutex
	calls    []string
	messages []Message
	panels   []Panel
	alerts   []string
	confirm  []bool
}

func (v *recordingView) record(name string) {
	v.mu.Lock()
	v.calls = append(v.calls, name)
	v.mu.Unlock()
}

func (v *recordingView) AppendMessage(m Message) {
	v.mu.Lock()
	v.messages = append(v.messages, m)
	v.mu.Unlock()
	v.record("message:" + string(m.Sender))
}

func (v *recordingView) ShowTyping() { v.record("typing") }
func (v *recordingView) HideTyping() { v.record("typing-done") }

func (v *recordingView) RenderCandidates(p Panel) {
	v.mu.Lock()
	v.panels = append(v.panels, p)
	v.mu.Unlock()
	v.record("panel")
}

func (v *recordingView) SetConfirmEnabled(on bool) {
	v.mu.Lock()
	v.confirm = append(v.confirm, on)
	v.mu.Unlock()
	v.record("confirm-enabled")
}

func (v *recordingView) Alert(text string) {
	v.mu.Lock()
	v.alerts = append(v.alerts, text)
	v.mu.Unlock()
	v.record("alert")
}

func (v *recordingView) ShowConversation() { v.record("show-conversation") }
func (v *recordingView) ShowEntry() { v.record("show-entry") }
func (v *recordingView) FocusEntry() { v.record("focus-entry") }

func (v *recordingView) lastPanel() Panel {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.panels) == 0 {
		return Panel{}
	}
	return v.panels[len(v.panels)-1]
}

func (v *recordingView) lastConfirm() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.confirm) > 0 && v.confirm[len(v.confirm)-1]
}

// fakeBackend is an httptest server speaking the chat API. Handlers are
// keyed by path; every request is recorded.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

type recordedRequest struct {
	Path string
	Body map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, handlers: map[string]http.HandlerFunc{}}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	assert.NoError(b.t, err)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{Path: r.URL.Path, Body: body})
	h := b.handlers[r.URL.Path]
	b.mu.Unlock()

	if h == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"success","tool_name":"reply_text","data":"ok"}`))
		return
	}
	h(w, r)
}

func (b *fakeBackend) handle(path string, h http.HandlerFunc) {
	b.mu.Lock()
	b.handlers[path] = h
	b.mu.Unlock()
}

func (b *fakeBackend) reply(path, body string) {
	b.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (b *fakeBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *fakeBackend) bodies(path string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, r := range b.requests {
		if r.Path == path {
			out = append(out, r.Body)
		}
	}
	return out
}

var fixedNow = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func newTestClient(t *testing.T, opts Options) (*Client, *recordingView, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend(t)
	view := &recordingView{}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	c := NewClient(api.New(backend.srv.URL, api.WithTimeout(2*time.Second)), view, opts)
	return c, view, backend
}

const lunchWithSam = `{"status":"success","tool_name":"find_event","data":[
	{"summary":"Lunch with Sam","start":{"dateTime":"2024-01-02T12:00:00"},"end":{"dateTime":"2024-01-02T13:00:00"}}
]}`

const threeEvents = `{"status":"success","tool_name":"find_event","data":[
	{"summary":"Standup","start":{"dateTime":"2024-01-02T09:00:00"},"end":{"dateTime":"2024-01-02T09:15:00"}},
	{"summary":"Gym","start":{"dateTime":"2024-01-02T18:00:00"},"end":{"dateTime":"2024-01-02T19:00:00"}},
	{"summary":"Dinner","start":{"dateTime":"2024-01-02T20:00:00"},"end":{"dateTime":"2024-01-02T21:30:00"}}
]}`
