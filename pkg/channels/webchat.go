package channels

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/billabee/pkg/config"
	"github.com/sipeed/billabee/pkg/conversation"
	"github.com/sipeed/billabee/pkg/logger"
	"github.com/sipeed/billabee/pkg/render"
)

const (
	authCookie    = "billabee_session"
	chatCookie    = "billabee_chat"
	sessionTTL    = 24 * time.Hour
	maxRequestLen = 64 << 10

	errConfirmInFlight = "still adding the previous events"
)

// WebChatChannel serves the browser widget and relays its intents to one
// conversation.Client per browser session.
type WebChatChannel struct {
	config   config.WebChatConfig
	backend  conversation.Backend
	opts     conversation.Options
	markdown bool

	server   *http.Server
	addr     string
	sessions map[string]time.Time   // auth token -> expiry
	chats    map[string]*webSession // chat cookie -> conversation
	running  bool
	mu       sync.RWMutex
}

// webSession is one browser's conversation. Intents are serialized by mu;
// confirming is set while a confirmation batch is in flight.
type webSession struct {
	mu         sync.Mutex
	confirming atomic.Bool
	view       *frameView
	dispatcher *conversation.Dispatcher
	lastSeen   time.Time
}

type frame struct {
	Type    string              `json:"type"`
	Message *messageFrame       `json:"message,omitempty"`
	Panel   *conversation.Panel `json:"panel,omitempty"`
	Enabled *bool               `json:"enabled,omitempty"`
	Text    string              `json:"text,omitempty"`
}

type messageFrame struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	HTML   string `json:"html"`
	Time   string `json:"time"`
}

// frameView records view calls as frames, returned to the browser as the
// response of the intent that produced them.
type frameView struct {
	markdown bool
	frames   []frame
}

func (v *frameView) push(f frame) { v.frames = append(v.frames, f) }

func (v *frameView) drain() []frame {
	out := v.frames
	v.frames = nil
	if out == nil {
		out = []frame{}
	}
	return out
}

func toMessageFrame(m conversation.Message, markdown bool) *messageFrame {
	return &messageFrame{
		ID:     m.ID,
		Sender: string(m.Sender),
		Text:   m.Text,
		HTML:   render.MessageHTML(m, markdown),
		Time:   m.Timestamp(),
	}
}

func (v *frameView) AppendMessage(m conversation.Message) {
	v.push(frame{Type: "message", Message: toMessageFrame(m, v.markdown)})
}

func (v *frameView) ShowTyping() { v.push(frame{Type: "typing", Text: conversation.TypingText}) }
func (v *frameView) HideTyping() { v.push(frame{Type: "typing_done"}) }

func (v *frameView) RenderCandidates(p conversation.Panel) {
	v.push(frame{Type: "candidates", Panel: &p})
}

func (v *frameView) SetConfirmEnabled(enabled bool) {
	v.push(frame{Type: "confirm_enabled", Enabled: &enabled})
}

func (v *frameView) Alert(text string) { v.push(frame{Type: "alert", Text: text}) }
func (v *frameView) ShowConversation() { v.push(frame{Type: "show_conversation"}) }
func (v *frameView) ShowEntry() { v.push(frame{Type: "show_entry"}) }
func (v *frameView) FocusEntry() { v.push(frame{Type: "focus_entry"}) }

type intentRequest struct {
	Message string `json:"message"`
	Index   int    `json:"index"`
	Theme   string `json:"theme"`
	User    string `json:"user"`
}

type intentResponse struct {
	Frames []frame `json:"frames"`
	Error  string  `json:"error,omitempty"`
}

func NewWebChatChannel(cfg config.WebChatConfig, backend conversation.Backend, opts conversation.Options, markdown bool) (*WebChatChannel, error) {
	if backend == nil {
		return nil, fmt.Errorf("channels: webchat: backend is required")
	}
	return &WebChatChannel{
		config:   cfg,
		backend:  backend,
		opts:     opts,
		markdown: markdown,
		sessions: make(map[string]time.Time),
		chats:    make(map[string]*webSession),
	}, nil
}

// authEnabled returns true when both username and password are configured.
func (c *WebChatChannel) authEnabled() bool {
	return c.config.Username != "" && c.config.Password != ""
}

// createSession generates a random session token and stores it, dropping
// tokens that have expired.
func (c *WebChatChannel) createSession() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("channels: webchat: session token: %w", err)
	}
	token := hex.EncodeToString(b)
	now := time.Now()
	c.mu.Lock()
	for k, expiry := range c.sessions {
		if !now.Before(expiry) {
			delete(c.sessions, k)
		}
	}
	c.sessions[token] = now.Add(sessionTTL)
	c.mu.Unlock()
	return token, nil
}

// validSession checks if the request carries a valid session cookie.
func (c *WebChatChannel) validSession(r *http.Request) bool {
	cookie, err := r.Cookie(authCookie)
	if err != nil {
		return false
	}
	c.mu.RLock()
	expiry, ok := c.sessions[cookie.Value]
	c.mu.RUnlock()
	return ok && time.Now().Before(expiry)
}

// requireAuth wraps a handler with authentication. If auth is not configured, it passes through.
func (c *WebChatChannel) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.authEnabled() || c.validSession(r) {
			next(w, r)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// requireAuthAPI is like requireAuth but returns 401 JSON for API endpoints.
func (c *WebChatChannel) requireAuthAPI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.authEnabled() || c.validSession(r) {
			next(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

// chat returns the conversation bound to the request's chat cookie,
// creating one (and setting the cookie) when missing.
func (c *WebChatChannel) chat(w http.ResponseWriter, r *http.Request) *webSession {
	now := time.Now()
	if cookie, err := r.Cookie(chatCookie); err == nil {
		c.mu.Lock()
		s, ok := c.chats[cookie.Value]
		if ok {
			s.lastSeen = now
		}
		c.mu.Unlock()
		if ok {
			return s
		}
	}

	view := &frameView{markdown: c.markdown}
	client := conversation.NewClient(c.backend, view, c.opts)
	s := &webSession{
		view:       view,
		dispatcher: conversation.NewDispatcher(client),
		lastSeen:   now,
	}
	id := uuid.NewString()

	c.mu.Lock()
	for k, old := range c.chats {
		if now.Sub(old.lastSeen) > sessionTTL {
			delete(c.chats, k)
		}
	}
	c.chats[id] = s
	c.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     chatCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	logger.InfoCF("channels", "WebChat conversation started", map[string]interface{}{
		"chat":   id,
		"remote": r.RemoteAddr,
	})
	return s
}

// Handler returns the HTTP routes of the widget.
func (c *WebChatChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.requireAuth(c.handleUI))
	mux.HandleFunc("/chat/start", c.requireAuthAPI(c.intentHandler(conversation.IntentSubmitQuery)))
	mux.HandleFunc("/chat/send", c.requireAuthAPI(c.intentHandler(conversation.IntentSendMessage)))
	mux.HandleFunc("/chat/confirm", c.requireAuthAPI(c.intentHandler(conversation.IntentConfirmSelection)))
	mux.HandleFunc("/chat/toggle", c.requireAuthAPI(c.intentHandler(conversation.IntentToggleEvent)))
	mux.HandleFunc("/chat/theme", c.requireAuthAPI(c.intentHandler(conversation.IntentSetTheme)))
	mux.HandleFunc("/chat/home", c.requireAuthAPI(c.intentHandler(conversation.IntentNavigateHome)))
	mux.HandleFunc("/chat/user", c.requireAuthAPI(c.intentHandler(conversation.IntentSetUser)))
	mux.HandleFunc("/chat/poll", c.requireAuthAPI(c.handlePoll))
	mux.HandleFunc("/login", c.handleLogin)
	mux.HandleFunc("/logout", c.handleLogout)
	return mux
}

// Start binds the listen address and serves in the background. Bind
// failures are returned.
func (c *WebChatChannel) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("channels: webchat: listen %s: %w", addr, err)
	}
	addr = ln.Addr().String()
	srv := &http.Server{Handler: c.Handler(), ReadHeaderTimeout: 10 * time.Second}

	c.mu.Lock()
	c.server = srv
	c.addr = addr
	c.running = true
	c.mu.Unlock()

	if c.authEnabled() {
		logger.InfoCF("channels", "WebChat started (auth enabled)", map[string]interface{}{"addr": addr})
	} else {
		logger.InfoCF("channels", "WebChat started (no auth)", map[string]interface{}{"addr": addr})
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("channels", "WebChat server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	return nil
}

func (c *WebChatChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.running = false
	srv := c.server
	c.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// Addr is the bound listen address, empty before Start.
func (c *WebChatChannel) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

func (c *WebChatChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *WebChatChannel) intentHandler(intent conversation.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body intentRequest
		if r.ContentLength != 0 {
			err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestLen)).Decode(&body)
			if err != nil && !errors.Is(err, io.EOF) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
				return
			}
		}

		s := c.chat(w, r)
		if intent == conversation.IntentConfirmSelection {
			if !s.confirming.CompareAndSwap(false, true) {
				writeJSON(w, http.StatusConflict, intentResponse{Error: errConfirmInFlight})
				return
			}
			defer s.confirming.Store(false)
		}
		s.mu.Lock()
		defer s.mu.Unlock()

		// Once issued, backend calls run to completion even if the browser
		// goes away.
		ctx := context.WithoutCancel(r.Context())
		err := s.dispatcher.Handle(ctx, intent, conversation.Request{
			Text:  body.Message,
			Index: body.Index,
			Theme: body.Theme,
			User:  body.User,
		})

		resp := intentResponse{Frames: s.view.drain()}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusUnprocessableEntity
			logger.DebugCF("channels", "WebChat intent rejected", map[string]interface{}{
				"intent": string(intent),
				"error":  err.Error(),
			})
		}
		writeJSON(w, status, resp)
	}
}

// handlePoll returns the transcript and the current candidate panel, used
// by the page to restore itself after a reload.
func (c *WebChatChannel) handlePoll(w http.ResponseWriter, r *http.Request) {
	s := c.chat(w, r)
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.dispatcher.Client()
	msgs := client.Transcript().Messages()
	out := struct {
		Messages []*messageFrame    `json:"messages"`
		Panel    conversation.Panel `json:"panel"`
		State    string             `json:"state"`
	}{
		Messages: make([]*messageFrame, 0, len(msgs)),
		Panel:    s.dispatcher.Batch().Panel(client.Themes()),
		State:    client.State().String(),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toMessageFrame(m, c.markdown))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *WebChatChannel) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !c.authEnabled() || c.validSession(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, webChatLoginPage(""))
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}
	} else {
		r.ParseForm()
		body.Username = r.FormValue("username")
		body.Password = r.FormValue("password")
	}

	usernameMatch := subtle.ConstantTimeCompare([]byte(body.Username), []byte(c.config.Username)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(body.Password), []byte(c.config.Password)) == 1

	if !usernameMatch || !passwordMatch {
		logger.WarnCF("channels", "WebChat login failed", map[string]interface{}{
			"remote": r.RemoteAddr,
		})
		if contentType == "application/json" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, webChatLoginPage("Invalid username or password"))
		return
	}

	token, err := c.createSession()
	if err != nil {
		logger.ErrorCF("channels", "WebChat session creation failed", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})

	if contentType == "application/json" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (c *WebChatChannel) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(authCookie); err == nil {
		c.mu.Lock()
		delete(c.sessions, cookie.Value)
		c.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (c *WebChatChannel) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, webChatHTML)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
