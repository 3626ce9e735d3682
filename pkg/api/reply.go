package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sipeed/billabee/pkg/calendar"
)

// Tool names used by the backend's tool-dispatch responses.
const (
	ToolReplyText   = "reply_text"
	ToolFindEvent   = "find_event"
	ToolCreateEvent = "create_event"
	ToolUpdateEvent = "update_event"
	ToolDeleteEvent = "delete_event"

	StatusSuccess = "success"
)

// ErrMalformedReply is returned when a chat response matches neither the
// legacy nor the tool-dispatch shape.
var ErrMalformedReply = errors.New("api: malformed chat reply")

type Kind int

const (
	// KindText is a plain assistant reply.
	KindText Kind = iota + 1
	// KindEvents carries candidate events awaiting approval.
	KindEvents
	// KindAction acknowledges a create/update/delete performed by the backend.
	KindAction
	// KindError is a backend-reported business error.
	KindError
	// KindUnknown is a success response tagged with a tool name this client
	// does not know.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindEvents:
		return "events"
	case KindAction:
		return "action"
	case KindError:
		return "error"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Reply is a decoded /api/chat response.
type Reply struct {
	Kind   Kind
	Tool   string
	Text   string
	Events []calendar.Event
	// Legacy is set when the backend answered with {response, events}.
	Legacy bool
}

type wireReply struct {
	Response *string          `json:"response"`
	Events   []calendar.Event `json:"events"`
	Status   *string          `json:"status"`
	ToolName string           `json:"tool_name"`
	Data     json.RawMessage  `json:"data"`
	Message  string           `json:"message"`
}

// DecodeReply decodes either response shape into a Reply.
func DecodeReply(body []byte) (Reply, error) {
	var w wireReply
	if err := json.Unmarshal(body, &w); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	switch {
	case w.Status != nil:
		return decodeToolReply(w)
	case w.Response != nil:
		r := Reply{Kind: KindText, Text: *w.Response, Legacy: true}
		if len(w.Events) > 0 {
			r.Kind = KindEvents
			r.Events = w.Events
		}
		return r, nil
	default:
		return Reply{}, ErrMalformedReply
	}
}

func decodeToolReply(w wireReply) (Reply, error) {
	if !strings.EqualFold(*w.Status, StatusSuccess) {
		msg := w.Message
		if msg == "" {
			msg = payloadText(w.Data)
		}
		return Reply{Kind: KindError, Tool: w.ToolName, Text: msg}, nil
	}

	switch w.ToolName {
	case ToolReplyText:
		text := payloadText(w.Data)
		if text == "" {
			text = w.Message
		}
		return Reply{Kind: KindText, Tool: w.ToolName, Text: text}, nil

	case ToolFindEvent:
		events, msg, err := decodeEvents(w.Data)
		if err != nil {
			return Reply{}, err
		}
		if msg == "" {
			msg = w.Message
		}
		return Reply{Kind: KindEvents, Tool: w.ToolName, Text: msg, Events: events}, nil

	case ToolCreateEvent, ToolUpdateEvent, ToolDeleteEvent:
		text := payloadText(w.Data)
		if text == "" {
			text = w.Message
		}
		if text == "" {
			text = defaultActionText(w.ToolName, w.Data)
		}
		return Reply{Kind: KindAction, Tool: w.ToolName, Text: text}, nil

	default:
		text := w.Message
		if text == "" {
			text = payloadText(w.Data)
		}
		return Reply{Kind: KindUnknown, Tool: w.ToolName, Text: text}, nil
	}
}

// decodeEvents accepts either a bare array or {events: [...], message}.
func decodeEvents(data json.RawMessage) ([]calendar.Event, string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, "", nil
	}
	if data[0] == '[' {
		var events []calendar.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, "", fmt.Errorf("%w: find_event data: %v", ErrMalformedReply, err)
		}
		return events, "", nil
	}
	var obj struct {
		Events  []calendar.Event `json:"events"`
		Items   []calendar.Event `json:"items"`
		Message string           `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, "", fmt.Errorf("%w: find_event data: %v", ErrMalformedReply, err)
	}
	if len(obj.Events) == 0 {
		obj.Events = obj.Items
	}
	return obj.Events, obj.Message, nil
}

// payloadText extracts a human-readable string from a tool payload.
func payloadText(data json.RawMessage) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
		return ""
	}
	var obj struct {
		Text     string `json:"text"`
		Message  string `json:"message"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	switch {
	case obj.Text != "":
		return obj.Text
	case obj.Message != "":
		return obj.Message
	default:
		return obj.Response
	}
}

func defaultActionText(tool string, data json.RawMessage) string {
	var obj struct {
		Summary string `json:"summary"`
	}
	_ = json.Unmarshal(data, &obj)

	verb := map[string]string{
		ToolCreateEvent: "created",
		ToolUpdateEvent: "updated",
		ToolDeleteEvent: "deleted",
	}[tool]
	if obj.Summary != "" {
		return fmt.Sprintf("Event %q %s.", obj.Summary, verb)
	}
	return fmt.Sprintf("Event %s.", verb)
}
