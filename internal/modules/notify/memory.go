// README: In-memory inbox for local runs and tests.
package notify

import (
	"context"
	"sync"

	"fuelhaul/internal/types"
)

type MemoryInbox struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{}
}

func (m *MemoryInbox) Save(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryInbox) ListUnread(_ context.Context, recipientID types.ID) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID && !msg.Read {
			c := msg
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MemoryInbox) MarkRead(_ context.Context, recipientID, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id && m.messages[i].RecipientID == recipientID {
			m.messages[i].Read = true
			return true, nil
		}
	}
	return false, nil
}
