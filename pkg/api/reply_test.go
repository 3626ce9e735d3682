package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReplyLegacyText(t *testing.T) {
	r, err := DecodeReply([]byte(`{"response":"Hello there"}`))
	require.NoError(t, err)
	assert.Equal(t, KindText, r.Kind)
	assert.Equal(t, "Hello there", r.Text)
	assert.True(t, r.Legacy)
	assert.Empty(t, r.Events)
}

func TestDecodeReplyLegacyEvents(t *testing.T) {
	r, err := DecodeReply([]byte(`{"response":"","events":[
		{"summary":"Gym","start":"2024-01-02T07:00:00","end":"2024-01-02T08:00:00"}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, KindEvents, r.Kind)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "Gym", r.Events[0].Summary)
	assert.Equal(t, "2024-01-02T07:00:00", r.Events[0].Start.DateTime)
}

func TestDecodeReplyFindEventArray(t *testing.T) {
	r, err := DecodeReply([]byte(`{"status":"success","tool_name":"find_event","data":[
		{"summary":"Lunch with Sam","start":{"dateTime":"2024-01-02T12:00:00"},"end":{"dateTime":"2024-01-02T13:00:00"}}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, KindEvents, r.Kind)
	assert.Equal(t, ToolFindEvent, r.Tool)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "Lunch with Sam", r.Events[0].Summary)
	assert.False(t, r.Legacy)
}

func TestDecodeReplyFindEventObject(t *testing.T) {
	r, err := DecodeReply([]byte(`{"status":"success","tool_name":"find_event","data":{
		"message":"Found two",
		"items":[{"summary":"A"},{"summary":"B"}]
	}}`))
	require.NoError(t, err)
	assert.Equal(t, KindEvents, r.Kind)
	assert.Equal(t, "Found two", r.Text)
	assert.Len(t, r.Events, 2)
}

func TestDecodeReplyFindEventBadData(t *testing.T) {
	_, err := DecodeReply([]byte(`{"status":"success","tool_name":"find_event","data":[1,2]}`))
	assert.ErrorIs(t, err, ErrMalformedReply)
}

func TestDecodeReplyText(t *testing.T) {
	cases := map[string]string{
		"string payload":  `{"status":"success","tool_name":"reply_text","data":"Hi!"}`,
		"object payload":  `{"status":"success","tool_name":"reply_text","data":{"text":"Hi!"}}`,
		"top-level":       `{"status":"success","tool_name":"reply_text","message":"Hi!"}`,
		"response object": `{"status":"success","tool_name":"reply_text","data":{"response":"Hi!"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := DecodeReply([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, KindText, r.Kind)
			assert.Equal(t, "Hi!", r.Text)
		})
	}
}

func TestDecodeReplyActions(t *testing.T) {
	r, err := DecodeReply([]byte(`{"status":"success","tool_name":"create_event","data":{"message":"Created Gym"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindAction, r.Kind)
	assert.Equal(t, "Created Gym", r.Text)

	r, err = DecodeReply([]byte(`{"status":"success","tool_name":"delete_event","data":{"summary":"Gym"}}`))
	require.NoError(t, err)
	assert.Equal(t, `Event "Gym" deleted.`, r.Text)

	r, err = DecodeReply([]byte(`{"status":"success","tool_name":"update_event"}`))
	require.NoError(t, err)
	assert.Equal(t, "Event updated.", r.Text)
}

func TestDecodeReplyErrorStatus(t *testing.T) {
	r, err := DecodeReply([]byte(`{"status":"error","message":"rate limited"}`))
	require.NoError(t, err)
	assert.Equal(t, KindError, r.Kind)
	assert.Equal(t, "rate limited", r.Text)
	assert.Empty(t, r.Events)
}

func TestDecodeReplyUnknownTool(t *testing.T) {
	r, err := DecodeReply([]byte(`{"status":"success","tool_name":"summon_wasp","message":"bzz"}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, r.Kind)
	assert.Equal(t, "summon_wasp", r.Tool)
	assert.Equal(t, "bzz", r.Text)
}

func TestDecodeReplyMalformed(t *testing.T) {
	for _, body := range []string{``, `not json`, `{}`, `{"events":[]}`, `[1]`} {
		_, err := DecodeReply([]byte(body))
		assert.True(t, errors.Is(err, ErrMalformedReply), "body %q", body)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "events", KindEvents.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
