package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/billabee/pkg/calendar"
)

func TestChatPostsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathChat, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])

		w.Write([]byte(`{"status":"success","tool_name":"reply_text","data":"hi"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	assert.Equal(t, srv.URL, c.BaseURL())

	reply, err := c.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, KindText, reply.Kind)
	assert.Equal(t, "hi", reply.Text)
}

func TestChatNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "hello")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "slow down", se.Message)
	assert.False(t, IsTransport(err))
}

func TestChatMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrMalformedReply)
	assert.True(t, IsTransport(err))
}

func TestChatTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).Chat(context.Background(), "hello")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, PathChat, te.Path)
	assert.True(t, IsTransport(err))
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCreateEventSendsEventObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathCreateEvent, r.URL.Path)
		var e calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		assert.Equal(t, "Gym", e.Summary)
		assert.Equal(t, "Exercise", e.Theme)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ev := calendar.Event{
		Summary: "Gym",
		Start:   calendar.DateTime{DateTime: "2024-01-02T07:00:00"},
		End:     calendar.DateTime{DateTime: "2024-01-02T08:00:00"},
	}.WithTheme("Exercise")
	require.NoError(t, New(srv.URL).CreateEvent(context.Background(), ev))
}

func TestCreateEventIgnoresBodyButNotStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).CreateEvent(context.Background(), calendar.Event{Summary: "x"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Empty(t, se.Message)
}

func TestSetUser(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathSetUser, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body["user"]
		w.Write([]byte(`not even json`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).SetUser(context.Background(), "alice"))
	assert.Equal(t, "alice", got)
}

func TestRateLimitPacesRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(20))
	start := time.Now()
	for i := 0; i < 25; i++ {
		_, err := c.Chat(context.Background(), "hi")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(25), hits.Load())
	// burst of 20, then 5 more at 20/s
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "api: /api/chat: HTTP 502", (&StatusError{Path: PathChat, Code: 502}).Error())
	assert.Equal(t, "api: /api/chat: HTTP 400: bad", (&StatusError{Path: PathChat, Code: 400, Message: "bad"}).Error())
}
