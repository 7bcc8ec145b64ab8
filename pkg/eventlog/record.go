// Package eventlog records agent lifecycle and messaging events.
package eventlog

import (
	"sync"
	"time"
)

// Actions.
const (
	ActionProcess        = "process"
	ActionSendMessage    = "send_message"
	ActionReceiveMessage = "receive_message"
	ActionStart          = "start"
	ActionStop           = "stop"
)

// Statuses.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusAttempt   = "attempt"
	StatusReceived  = "received"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Record is one audit entry emitted by an agent runtime.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	AgentID   string         `json:"agent_id"`
	AgentType string         `json:"agent_type"`
	AgentName string         `json:"agent_name"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
}

// Sink accepts audit records. Callers log Write errors and carry on.
type Sink interface {
	Write(rec Record) error
}

type discard struct{}

func (discard) Write(Record) error { return nil }

// Discard is a Sink that drops everything.
var Discard Sink = discard{} //nolint:gochecknoglobals

// MultiSink fans a record out to several sinks. Every sink is attempted; the
// first error is returned.
type MultiSink []Sink

func (m MultiSink) Write(rec Record) error {
	var first error
	for _, s := range m {
		if err := s.Write(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MemorySink keeps records in memory. Used by tests and the status endpoint.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Write(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything written so far.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Filter returns the records matching agentID, action and status. Empty
// arguments match anything.
func (m *MemorySink) Filter(agentID, action, status string) []Record {
	var out []Record
	for _, r := range m.Records() {
		if agentID != "" && r.AgentID != agentID {
			continue
		}
		if action != "" && r.Action != action {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	return out
}
