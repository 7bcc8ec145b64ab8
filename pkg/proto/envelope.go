// Package proto defines the envelope exchanged between agents and the catalog of
// agent types, channels and content keys that ride inside it.
package proto

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Identity names one agent instance.
type Identity struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
	AgentName string `json:"agent_name"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s(%s)", id.AgentID, id.AgentName)
}

// IsZero reports whether no field is set.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Content is the schema-less payload carried by an envelope. The router never
// inspects it; handlers decode the keys they understand.
type Content map[string]any

// Has reports whether key is present.
func (c Content) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Envelope wraps content with routing metadata. Treat it as immutable; the
// registry produces per-recipient copies with WithRecipient.
type Envelope struct {
	ID        string    `json:"message_id"`
	Sender    Identity  `json:"sender"`
	Recipient Identity  `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
	Content   Content   `json:"content"`
}

// NewEnvelope stamps content with a fresh id and the current UTC time.
func NewEnvelope(sender Identity, content Content) *Envelope {
	if content == nil {
		content = Content{}
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Sender:    sender,
		Timestamp: time.Now().UTC(),
		Content:   content,
	}
}

// WithRecipient returns a copy addressed to recipient. The top-level content
// map is cloned so one recipient cannot add or drop keys seen by another.
func (e *Envelope) WithRecipient(recipient Identity) *Envelope {
	return &Envelope{
		ID:        e.ID,
		Sender:    e.Sender,
		Recipient: recipient,
		Timestamp: e.Timestamp,
		Content:   maps.Clone(e.Content),
	}
}

func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// Validate checks the fields every delivered envelope must carry.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("message_id is required")
	}
	if e.Sender.AgentID == "" {
		return fmt.Errorf("sender agent_id is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
