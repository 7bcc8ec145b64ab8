// Package agent provides the runtime every notifier agent runs on: a
// drain-process-sleep loop bound to a dispatch.Registry, with failure
// isolation and an audit trail.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"notifier/pkg/dispatch"
	"notifier/pkg/eventlog"
	"notifier/pkg/logx"
	"notifier/pkg/metrics"
	"notifier/pkg/proto"
)

// DefaultCheckInterval is used when no interval option is given.
const DefaultCheckInterval = 60 * time.Second

var (
	// ErrAlreadyRunning is returned by Run when the loop is already active.
	ErrAlreadyRunning = errors.New("agent already running")
	// ErrUnknownAgentType is returned by New for types outside the catalog.
	ErrUnknownAgentType = errors.New("unknown agent type")
)

// Behavior is what a concrete agent implements.
type Behavior interface {
	// Process runs once per tick, after the mailbox has been drained.
	Process(ctx context.Context) error
	// HandleMessage handles one inbound envelope's content.
	HandleMessage(ctx context.Context, content proto.Content, sender proto.Identity) error
}

// Runtime owns one agent's identity, registration and loop.
type Runtime struct {
	identity proto.Identity
	behavior Behavior
	registry *dispatch.Registry
	audit    eventlog.Sink
	metrics  metrics.Recorder
	logger   *logx.Logger
	now      func() time.Time
	interval time.Duration

	mu         sync.Mutex
	running    bool
	registered bool
	wake       chan struct{}
	done       chan struct{}
	lastRun    time.Time
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithCheckInterval sets the tick interval. Non-positive values are ignored.
func WithCheckInterval(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithAudit sets the audit sink.
func WithAudit(sink eventlog.Sink) Option {
	return func(r *Runtime) {
		if sink != nil {
			r.audit = sink
		}
	}
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(r *Runtime) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// WithClock replaces time.Now for timing and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// New creates a runtime for behavior and registers it under agentType. The id
// is agentType followed by eight hex characters.
func New(reg *dispatch.Registry, agentType, name string, behavior Behavior, opts ...Option) (*Runtime, error) {
	if reg == nil {
		return nil, fmt.Errorf("agent %s: registry is required", name)
	}
	if behavior == nil {
		return nil, fmt.Errorf("agent %s: behavior is required", name)
	}
	if !proto.IsKnownAgentType(agentType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, agentType)
	}

	id := fmt.Sprintf("%s_%s", agentType, uuid.NewString()[:8])
	closed := make(chan struct{})
	close(closed)

	r := &Runtime{
		identity: proto.Identity{AgentID: id, AgentType: agentType, AgentName: name},
		behavior: behavior,
		registry: reg,
		audit:    eventlog.Discard,
		metrics:  metrics.Nop(),
		logger:   logx.NewLogger(id),
		now:      time.Now,
		interval: DefaultCheckInterval,
		done:     closed,
	}
	for _, opt := range opts {
		opt(r)
	}

	reg.Register(agentType, r)
	r.registered = true
	r.logger.Info("Agent %s (%s) initialized", id, name)
	return r, nil
}

func (r *Runtime) Identity() proto.Identity { return r.identity }

func (r *Runtime) ID() string { return r.identity.AgentID }

func (r *Runtime) Interval() time.Duration { return r.interval }

// Now returns the runtime's clock reading.
func (r *Runtime) Now() time.Time { return r.now() }

func (r *Runtime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastRun returns when Process last completed without error.
func (r *Runtime) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// Done is closed when the current (or last) Run returns.
func (r *Runtime) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Run executes the loop until Stop is called or ctx is cancelled. A runtime
// stopped earlier registers itself again, after its previous loop has exited.
// Run returns nil on a clean stop.
func (r *Runtime) Run(ctx context.Context) error {
	wake, done, err := r.begin()
	if err != nil {
		return err
	}
	r.loop(ctx, wake, done)
	return nil
}

// Start marks the runtime running and runs the loop in a new goroutine. When
// a previous loop is still finishing its Process, Start blocks until it exits.
func (r *Runtime) Start(ctx context.Context) error {
	wake, done, err := r.begin()
	if err != nil {
		return err
	}
	go r.loop(ctx, wake, done)
	return nil
}

// begin waits for a loop stopped earlier to exit, so ticks of one runtime
// never overlap, then marks the runtime running.
func (r *Runtime) begin() (wake, done chan struct{}, err error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, r.identity.AgentID)
	}
	prev := r.done
	r.mu.Unlock()

	<-prev

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, r.identity.AgentID)
	}
	r.running = true
	r.wake = make(chan struct{})
	r.done = make(chan struct{})
	if !r.registered {
		r.registry.Register(r.identity.AgentType, r)
		r.registered = true
	}
	return r.wake, r.done, nil
}

func (r *Runtime) loop(ctx context.Context, wake, done chan struct{}) {
	defer close(done)

	ctx = logx.WithAgent(ctx, r.identity.AgentID)
	r.logger.Info("Agent %s (%s) starting", r.identity.AgentID, r.identity.AgentName)
	r.record(eventlog.ActionStart, eventlog.StatusSuccess, nil)

	for r.IsRunning() {
		elapsed := r.tick(ctx)
		if !r.sleep(ctx, wake, SleepDuration(r.interval, elapsed)) {
			break
		}
	}

	if ctx.Err() != nil {
		r.Stop()
	}
	r.logger.Info("Agent %s loop exited", r.identity.AgentID)
}

// Stop marks the runtime stopped and unregisters it. An in-flight Process is
// not interrupted; the loop exits at its next boundary. Stop is idempotent.
func (r *Runtime) Stop() {
	r.mu.Lock()
	wasRunning := r.running
	if wasRunning {
		r.running = false
		close(r.wake)
	}
	wasRegistered := r.registered
	r.registered = false
	r.mu.Unlock()

	if !wasRunning && !wasRegistered {
		return
	}

	r.logger.Info("Stopping agent %s (%s)", r.identity.AgentID, r.identity.AgentName)
	if wasRegistered {
		r.registry.Unregister(r.identity.AgentType, r.identity.AgentID)
	}
	if wasRunning {
		r.record(eventlog.ActionStop, eventlog.StatusSuccess, nil)
	}
}

// SleepDuration returns how long to wait before the next tick: the interval
// minus the time the tick took, floored at zero.
func SleepDuration(interval, elapsed time.Duration) time.Duration {
	return max(0, interval-elapsed)
}

func (r *Runtime) tick(ctx context.Context) time.Duration {
	start := r.now()

	r.registry.DrainAndHandle(r.identity.AgentID, func(env *proto.Envelope) error {
		return r.ReceiveMessage(ctx, env)
	})

	err := r.safeProcess(ctx)
	finished := r.now()
	elapsed := finished.Sub(start)

	if err == nil {
		r.mu.Lock()
		r.lastRun = finished
		r.mu.Unlock()
		r.metrics.ObserveProcess(r.identity.AgentType, metrics.StatusSuccess, elapsed)
		r.record(eventlog.ActionProcess, eventlog.StatusSuccess, map[string]any{
			"execution_time": elapsed.Seconds(),
		})
		return elapsed
	}

	r.metrics.ObserveProcess(r.identity.AgentType, metrics.StatusFailure, elapsed)
	details := map[string]any{
		"error":          err.Error(),
		"execution_time": elapsed.Seconds(),
	}
	var pe *panicError
	if errors.As(err, &pe) {
		details["traceback"] = pe.stack
	}
	r.record(eventlog.ActionProcess, eventlog.StatusFailure, details)
	r.logger.Error("Error in agent %s after %s: %v", r.identity.AgentID, elapsed, err)
	return elapsed
}

func (r *Runtime) sleep(ctx context.Context, wake <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-wake:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-wake:
		return false
	case <-ctx.Done():
		return false
	}
}

type panicError struct {
	value any
	stack string
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func (r *Runtime) safeProcess(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: string(debug.Stack())}
		}
	}()
	return r.behavior.Process(ctx)
}

func (r *Runtime) safeHandle(ctx context.Context, env *proto.Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: string(debug.Stack())}
		}
	}()
	return r.behavior.HandleMessage(ctx, env.Content, env.Sender)
}

// SendMessage delivers content to every live agent of targetType and returns
// the number of recipients. Zero recipients is not an error.
func (r *Runtime) SendMessage(targetType string, content proto.Content) int {
	env := proto.NewEnvelope(r.identity, content)

	r.record(eventlog.ActionSendMessage, eventlog.StatusAttempt, map[string]any{
		"target_agent_type": targetType,
		"message_id":        env.ID,
	})

	n := r.registry.Deliver(targetType, env)

	r.record(eventlog.ActionSendMessage, eventlog.StatusSuccess, map[string]any{
		"target_agent_type": targetType,
		"message_id":        env.ID,
		"recipients":        n,
	})
	return n
}

// ReceiveMessage hands one envelope to the behavior. Failures and panics are
// audited and returned; they never escape as panics.
func (r *Runtime) ReceiveMessage(ctx context.Context, env *proto.Envelope) error {
	r.record(eventlog.ActionReceiveMessage, eventlog.StatusReceived, map[string]any{
		"sender_agent_id":   env.Sender.AgentID,
		"sender_agent_type": env.Sender.AgentType,
		"message_id":        env.ID,
	})

	if err := r.safeHandle(ctx, env); err != nil {
		details := map[string]any{
			"sender_agent_id": env.Sender.AgentID,
			"message_id":      env.ID,
			"error":           err.Error(),
		}
		var pe *panicError
		if errors.As(err, &pe) {
			details["traceback"] = pe.stack
		}
		r.record(eventlog.ActionReceiveMessage, eventlog.StatusFailed, details)
		r.metrics.MessageHandled(r.identity.AgentType, metrics.StatusFailure)
		return fmt.Errorf("agent %s failed to handle message %s: %w", r.identity.AgentID, env.ID, err)
	}

	r.record(eventlog.ActionReceiveMessage, eventlog.StatusProcessed, map[string]any{
		"sender_agent_id": env.Sender.AgentID,
		"message_id":      env.ID,
	})
	r.metrics.MessageHandled(r.identity.AgentType, metrics.StatusSuccess)
	return nil
}

func (r *Runtime) record(action, status string, details map[string]any) {
	rec := eventlog.Record{
		AgentID:   r.identity.AgentID,
		AgentType: r.identity.AgentType,
		AgentName: r.identity.AgentName,
		Action:    action,
		Status:    status,
		Details:   details,
		Timestamp: r.now().UTC(),
	}
	if err := r.audit.Write(rec); err != nil {
		r.logger.Warn("Failed to record %s/%s: %v", action, status, err)
	}
}
