// Package dispatch tracks live agents by type and routes envelopes into their mailboxes.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"notifier/pkg/logx"
	"notifier/pkg/metrics"
	"notifier/pkg/proto"
)

// Handle is what the registry needs to know about a live agent.
type Handle interface {
	Identity() proto.Identity
	IsRunning() bool
}

// HandlerFunc consumes one envelope drained from a mailbox.
type HandlerFunc func(env *proto.Envelope) error

// Stats is a point-in-time snapshot of registry counters.
type Stats struct {
	RegisteredAgents  int            `json:"registered_agents"`
	MessagesDelivered int64          `json:"messages_delivered"`
	MessagesEvicted   int64          `json:"messages_evicted"`
	ActiveAgentTypes  []string       `json:"active_agent_types"`
	AgentsByType      map[string]int `json:"agents_by_type"`
}

// Registry is the process-wide directory of agents and their mailboxes.
// Construct one at startup and hand it to every agent.
type Registry struct {
	mu         sync.RWMutex
	agents     map[string][]Handle
	typeOrder  []string
	active     map[string]struct{}
	mailboxes  map[string]*Mailbox
	registered int
	delivered  int64
	evicted    int64

	mailboxCapacity int
	metrics         metrics.Recorder
	logger          *logx.Logger
}

type Option func(*Registry)

// WithMailboxCapacity caps every mailbox created afterwards; 0 keeps them unbounded.
func WithMailboxCapacity(n int) Option {
	return func(r *Registry) { r.mailboxCapacity = n }
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		agents:    make(map[string][]Handle),
		active:    make(map[string]struct{}),
		mailboxes: make(map[string]*Mailbox),
		metrics:   metrics.Nop(),
		logger:    logx.NewLogger("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends h under agentType. Ids are not checked for uniqueness:
// registering the same agent twice makes it receive every message twice.
func (r *Registry) Register(agentType string, h Handle) {
	id := h.Identity()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.agents[agentType]; !seen {
		r.typeOrder = append(r.typeOrder, agentType)
	}
	for _, existing := range r.agents[agentType] {
		if existing.Identity().AgentID == id.AgentID {
			r.logger.Warn("Agent %s registered twice as %s; it will receive duplicate deliveries", id.AgentID, agentType)
			break
		}
	}

	r.agents[agentType] = append(r.agents[agentType], h)
	r.registered++
	r.active[agentType] = struct{}{}
	if _, ok := r.mailboxes[id.AgentID]; !ok {
		r.mailboxes[id.AgentID] = NewMailbox(r.mailboxCapacity)
	}

	r.metrics.AgentRegistered(agentType)
	r.logger.Info("Agent %s registered as %s", id.AgentID, agentType)
}

// Unregister removes the first handle with agentID from agentType. The
// agent's mailbox is kept so undrained envelopes remain inspectable.
func (r *Registry) Unregister(agentType, agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := r.agents[agentType]
	idx := slices.IndexFunc(handles, func(h Handle) bool {
		return h.Identity().AgentID == agentID
	})
	if idx < 0 {
		r.logger.Warn("Failed to unregister agent %s from %s: not found", agentID, agentType)
		return false
	}

	r.agents[agentType] = slices.Delete(handles, idx, idx+1)
	r.registered--
	if len(r.agents[agentType]) == 0 {
		delete(r.active, agentType)
	}

	r.metrics.AgentUnregistered(agentType)
	r.logger.Info("Agent %s unregistered from %s", agentID, agentType)
	return true
}

// List returns the handles registered under agentType in registration order.
func (r *Registry) List(agentType string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.agents[agentType])
}

// ListAll returns every handle, grouped by type in first-registration order.
func (r *Registry) ListAll() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Handle, 0, r.registered)
	for _, t := range r.typeOrder {
		all = append(all, r.agents[t]...)
	}
	return all
}

// Deliver enqueues one copy of template, addressed to each live instance of
// targetType, and returns how many were enqueued. An empty audience is a
// normal outcome and returns 0.
func (r *Registry) Deliver(targetType string, template *proto.Envelope) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := r.agents[targetType]
	if len(targets) == 0 {
		r.metrics.DeliveryMissed(targetType)
		r.logger.Warn("No agents of type %s to deliver message %s to", targetType, template.ID)
		return 0
	}

	for _, h := range targets {
		recipient := h.Identity()
		mb, ok := r.mailboxes[recipient.AgentID]
		if !ok {
			mb = NewMailbox(r.mailboxCapacity)
			r.mailboxes[recipient.AgentID] = mb
		}
		if mb.Push(template.WithRecipient(recipient)) {
			r.evicted++
			r.metrics.MailboxEvicted(targetType)
			r.logger.Warn("Mailbox for %s full; evicted oldest envelope", recipient.AgentID)
		}
	}

	n := len(targets)
	r.delivered += int64(n)
	r.metrics.MessagesDelivered(targetType, n)
	logx.Debug(logx.WithAgent(context.Background(), template.Sender.AgentID), "dispatch",
		"Message %s delivered to %d agents of type %s", template.ID, n, targetType)
	return n
}

// DrainAndHandle pops envelopes from agentID's mailbox oldest first and passes
// each to fn until the mailbox is empty. A failing or panicking fn is logged
// and the envelope is still consumed. Returns the number of envelopes consumed.
func (r *Registry) DrainAndHandle(agentID string, fn HandlerFunc) int {
	r.mu.RLock()
	mb, ok := r.mailboxes[agentID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	consumed := 0
	for {
		env, ok := mb.Pop()
		if !ok {
			return consumed
		}
		consumed++
		if err := safeHandle(fn, env); err != nil {
			r.logger.Error("Error processing message %s for agent %s: %v", env.ID, agentID, err)
		}
	}
}

func safeHandle(fn HandlerFunc, env *proto.Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return fn(env)
}

// Pending returns the number of envelopes waiting in agentID's mailbox.
func (r *Registry) Pending(agentID string) int {
	r.mu.RLock()
	mb, ok := r.mailboxes[agentID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return mb.Len()
}

// Peek returns agentID's queued envelopes oldest first without consuming them.
func (r *Registry) Peek(agentID string) []*proto.Envelope {
	r.mu.RLock()
	mb, ok := r.mailboxes[agentID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return mb.Snapshot()
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]string, 0, len(r.active))
	byType := make(map[string]int, len(r.typeOrder))
	for _, t := range r.typeOrder {
		byType[t] = len(r.agents[t])
		if _, ok := r.active[t]; ok {
			active = append(active, t)
		}
	}

	return Stats{
		RegisteredAgents:  r.registered,
		MessagesDelivered: r.delivered,
		MessagesEvicted:   r.evicted,
		ActiveAgentTypes:  active,
		AgentsByType:      byType,
	}
}

// IsActive reports whether agentType has at least one registered instance.
func (r *Registry) IsActive(agentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[agentType]
	return ok
}
