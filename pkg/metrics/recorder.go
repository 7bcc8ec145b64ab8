// Package metrics records registry and agent-loop activity.
package metrics

import "time"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder defines the interface for recording routing and lifecycle metrics.
type Recorder interface {
	// AgentRegistered and AgentUnregistered track live instances per type.
	AgentRegistered(agentType string)
	AgentUnregistered(agentType string)

	// MessagesDelivered counts envelopes enqueued for a target type.
	MessagesDelivered(targetType string, n int)

	// DeliveryMissed counts sends to a type with no live instances.
	DeliveryMissed(targetType string)

	// MailboxEvicted counts envelopes dropped by a capped mailbox.
	MailboxEvicted(agentType string)

	// ObserveProcess records one Process call.
	ObserveProcess(agentType, status string, duration time.Duration)

	// MessageHandled records one inbound message outcome.
	MessageHandled(agentType, status string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) AgentRegistered(string) {}
func (n *NoopRecorder) AgentUnregistered(string) {}
func (n *NoopRecorder) MessagesDelivered(string, int) {}
func (n *NoopRecorder) DeliveryMissed(string) {}
func (n *NoopRecorder) MailboxEvicted(string) {}
func (n *NoopRecorder) ObserveProcess(string, string, time.Duration) {}
func (n *NoopRecorder) MessageHandled(string, string) {}
