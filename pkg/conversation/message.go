package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one transcript entry. It is never modified after being appended.
type Message struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Sender Sender    `json:"sender"`
	Time   time.Time `json:"time"`
}

// Timestamp is the hour:minute label shown next to the bubble.
func (m Message) Timestamp() string {
	return m.Time.Format("15:04")
}

func newMessage(text string, sender Sender, now time.Time) Message {
	return Message{
		ID:     uuid.NewString(),
		Text:   text,
		Sender: sender,
		Time:   now,
	}
}

// Transcript is the append-only, in-memory conversation history.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

func (t *Transcript) append(m Message) {
	t.mu.Lock()
	t.messages = append(t.messages, m)
	t.mu.Unlock()
}

// Messages returns a copy of the history.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// LastFrom returns the most recent message by sender.
func (t *Transcript) LastFrom(sender Sender) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Sender == sender {
			return t.messages[i], true
		}
	}
	return Message{}, false
}
