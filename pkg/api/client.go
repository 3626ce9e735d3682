package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sipeed/billabee/pkg/calendar"
	"github.com/sipeed/billabee/pkg/logger"
)

const (
	PathChat        = "/api/chat"
	PathCreateEvent = "/api/create_event"
	PathSetUser     = "/api/set_user"

	maxBodyBytes = 4 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s: HTTP %d: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %s: HTTP %d", e.Path, e.Code)
}

// TransportError wraps network, timeout and body-read failures.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api: %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to the BillaBee chat/calendar backend. Every call is a single
// attempt bounded by the configured timeout.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds each request. Zero disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit paces outgoing requests. Zero or negative means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat posts a user message and decodes the assistant's reply.
func (c *Client) Chat(ctx context.Context, message string) (Reply, error) {
	body, err := c.post(ctx, PathChat, map[string]string{"message": message})
	if err != nil {
		return Reply{}, err
	}
	reply, err := DecodeReply(body)
	if err != nil {
		return Reply{}, err
	}
	logger.DebugCF("api", "chat reply decoded", map[string]interface{}{
		"kind":   reply.Kind.String(),
		"tool":   reply.Tool,
		"events": len(reply.Events),
		"legacy": reply.Legacy,
	})
	return reply, nil
}

// CreateEvent posts a single event. Only the HTTP status is inspected.
func (c *Client) CreateEvent(ctx context.Context, event calendar.Event) error {
	_, err := c.post(ctx, PathCreateEvent, event)
	return err
}

// SetUser scopes subsequent calendar operations to user.
func (c *Client) SetUser(ctx context.Context, user string) error {
	_, err := c.post(ctx, PathSetUser, map[string]string{"user": user})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("api: %s: marshal: %w", path, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Path: path, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.WarnCF("api", "request failed", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return nil, &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	logger.DebugCF("api", "request completed", map[string]interface{}{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage pulls a message out of an error body, if it has one.
func errorMessage(body []byte) string {
	var obj struct {
		Message  string `json:"message"`
		Error    string `json:"error"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	switch {
	case obj.Message != "":
		return obj.Message
	case obj.Error != "":
		return obj.Error
	default:
		return obj.Response
	}
}

// IsTransport reports whether err is a network, timeout or malformed-body
// failure, as opposed to a backend answer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrMalformedReply)
}
