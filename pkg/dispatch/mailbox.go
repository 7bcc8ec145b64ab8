package dispatch

import (
	"sync"

	"notifier/pkg/proto"
)

// Mailbox is a per-agent FIFO of envelopes. The registry is the only producer
// and the owning agent loop the only consumer. A capacity of zero means
// unbounded; otherwise the oldest envelope is evicted to make room.
type Mailbox struct {
	mu       sync.Mutex
	items    []*proto.Envelope
	capacity int
}

func NewMailbox(capacity int) *Mailbox {
	if capacity < 0 {
		capacity = 0
	}
	return &Mailbox{capacity: capacity}
}

// Push appends env and reports whether an older envelope was evicted.
func (m *Mailbox) Push(env *proto.Envelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := false
	if m.capacity > 0 && len(m.items) >= m.capacity {
		m.items[0] = nil
		m.items = m.items[1:]
		evicted = true
	}
	m.items = append(m.items, env)
	return evicted
}

// Pop removes and returns the oldest envelope.
func (m *Mailbox) Pop() (*proto.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, false
	}
	env := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	if len(m.items) == 0 {
		m.items = nil
	}
	return env, true
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Snapshot returns the queued envelopes oldest first without consuming them.
func (m *Mailbox) Snapshot() []*proto.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*proto.Envelope, len(m.items))
	copy(out, m.items)
	return out
}
