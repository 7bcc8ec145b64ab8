// Package kernel wires the notifier's shared infrastructure: the registry,
// the audit trail, metrics, the delivery limiter and the configured agents.
package kernel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"notifier/pkg/agent"
	"notifier/pkg/agents"
	"notifier/pkg/config"
	"notifier/pkg/dispatch"
	"notifier/pkg/eventlog"
	"notifier/pkg/limiter"
	"notifier/pkg/logx"
	"notifier/pkg/metrics"
	"notifier/pkg/persistence"
	"notifier/pkg/proto"
)

// SystemIdentity is the sender of messages injected from outside the agent graph.
//
//nolint:gochecknoglobals // fixed identity
var SystemIdentity = proto.Identity{AgentID: "system", AgentType: "system", AgentName: "Notifier"}

// Kernel owns the process-wide components and the agent lifecycle.
type Kernel struct {
	// Context is embedded rather than a field to avoid containedctx lint error
	ctx    context.Context //nolint:containedctx // Required for kernel lifecycle management
	cancel context.CancelFunc

	Config *config.Config
	Logger *logx.Logger

	Registry   *dispatch.Registry
	Metrics    *prometheus.Registry
	Recorder   metrics.Recorder
	Database   *sql.DB
	AuditStore *persistence.AuditStore
	EventLog   *eventlog.Writer
	Limiter    *limiter.Limiter
	Sender     agents.Sender
	Agents     []agents.Agent

	extraSinks []eventlog.Sink
	interval   time.Duration
	group      *errgroup.Group
	mu         sync.Mutex
	running    bool
}

// Option customizes a Kernel.
type Option func(*Kernel)

// WithSender replaces the outbound transport used by every channel agent.
func WithSender(s agents.Sender) Option {
	return func(k *Kernel) { k.Sender = s }
}

// WithAuditSink adds a sink next to the JSONL log and SQLite store.
func WithAuditSink(s eventlog.Sink) Option {
	return func(k *Kernel) { k.extraSinks = append(k.extraSinks, s) }
}

// WithInterval overrides every agent's check interval.
func WithInterval(d time.Duration) Option {
	return func(k *Kernel) { k.interval = d }
}

// NewKernel builds every component named by cfg. Nothing runs until Start.
func NewKernel(parent context.Context, cfg *config.Config, opts ...Option) (*Kernel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kernel: config is required")
	}
	ctx, cancel := context.WithCancel(parent)

	k := &Kernel{
		ctx:    ctx,
		cancel: cancel,
		Config: cfg,
		Logger: logx.NewLogger("kernel"),
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := k.initializeServices(); err != nil {
		cancel()
		_ = k.closeStorage()
		return nil, fmt.Errorf("failed to initialize kernel services: %w", err)
	}
	return k, nil
}

func (k *Kernel) initializeServices() error {
	k.Metrics = prometheus.NewRegistry()
	k.Recorder = metrics.Nop()
	if k.Config.Metrics.Enabled {
		k.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		k.Recorder = metrics.NewPrometheusRecorder(k.Metrics)
	}

	k.Registry = dispatch.NewRegistry(
		dispatch.WithMailboxCapacity(k.Config.MailboxCapacity),
		dispatch.WithMetrics(k.Recorder),
	)

	if err := k.initializeAudit(); err != nil {
		return err
	}

	k.Limiter = limiter.NewLimiter(k.Config.Notifications)
	if k.Sender == nil {
		k.Sender = agents.NewBreakerSender(agents.NewLogSender(), agents.DefaultBreakerConfig)
	}

	if err := k.createAgents(); err != nil {
		return err
	}

	k.Logger.Info("Kernel services initialized: %d agents, audit db=%q log dir=%q",
		len(k.Agents), k.Config.Storage.DBPath, k.Config.Storage.LogDir)
	return nil
}

// initializeAudit opens the SQLite summary store and the JSONL detail log.
// Either may be disabled with an empty path.
func (k *Kernel) initializeAudit() error {
	st := k.Config.Storage

	if st.DBPath != "" {
		if dir := filepath.Dir(st.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := persistence.Open(st.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		k.Database = db
		k.AuditStore = persistence.NewAuditStore(db, st.AuditBuffer)
		k.Logger.Info("Database initialized with schema: %s", st.DBPath)
	}

	if st.LogDir != "" {
		w, err := eventlog.NewWriter(st.LogDir)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		k.EventLog = w
	}
	return nil
}

func (k *Kernel) auditSink() eventlog.Sink {
	var sinks eventlog.MultiSink
	if k.EventLog != nil {
		sinks = append(sinks, k.EventLog)
	}
	if k.AuditStore != nil {
		sinks = append(sinks, k.AuditStore)
	}
	sinks = append(sinks, k.extraSinks...)
	if len(sinks) == 0 {
		return eventlog.Discard
	}
	return sinks
}

func (k *Kernel) createAgents() error {
	sink := k.auditSink()
	deps := agents.Deps{
		Limiter:   k.Limiter,
		Sender:    k.Sender,
		MaxPerDay: k.Config.Notifications.MaxPerDay,
	}

	for _, ac := range k.Config.Agents {
		interval := k.Config.IntervalFor(ac)
		if k.interval > 0 {
			interval = k.interval
		}
		count := max(1, ac.Count)
		for i := 0; i < count; i++ {
			name := ac.Name
			if name == "" {
				name = agents.DefaultName(ac.Type)
			}
			if count > 1 {
				name = fmt.Sprintf("%s #%d", name, i+1)
			}

			a, err := agents.New(k.Registry, ac.Type, name, deps,
				agent.WithCheckInterval(interval),
				agent.WithAudit(sink),
				agent.WithMetrics(k.Recorder),
			)
			if err != nil {
				return fmt.Errorf("failed to create %s agent: %w", ac.Type, err)
			}
			k.Agents = append(k.Agents, a)
		}
	}
	return nil
}

// Start launches every agent loop.
func (k *Kernel) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return fmt.Errorf("kernel already running")
	}

	k.Logger.Info("Starting %d agents...", len(k.Agents))
	g, gctx := errgroup.WithContext(k.ctx)
	for _, a := range k.Agents {
		g.Go(func() error {
			if err := a.Run(gctx); err != nil {
				return fmt.Errorf("agent %s: %w", a.ID(), err)
			}
			return nil
		})
	}
	k.group = g
	k.running = true
	return nil
}

// Wait blocks until every agent loop has exited.
func (k *Kernel) Wait() error {
	k.mu.Lock()
	g := k.group
	k.mu.Unlock()
	if g == nil {
		return nil
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("agent loop failed: %w", err)
	}
	return nil
}

// Submit injects a notification request into the recommendation layer and
// returns how many recommendation agents received it.
func (k *Kernel) Submit(n proto.Notification) int {
	return k.Registry.Deliver(proto.AgentTypeRecommendation,
		proto.NewEnvelope(SystemIdentity, proto.Single(proto.KeyNewNotification, n)))
}

// RecordEngagement hands one engagement event to the collector for its channel.
func (k *Kernel) RecordEngagement(ev proto.EngagementEvent) (int, error) {
	collector, ok := proto.CollectorForChannel(ev.Channel)
	if !ok {
		return 0, fmt.Errorf("unknown channel %q", ev.Channel)
	}
	return k.Registry.Deliver(collector,
		proto.NewEnvelope(SystemIdentity, proto.Single(proto.KeyEngagementEvent, ev))), nil
}

// Operations exposes the audit summary queries, or nil when the database is disabled.
func (k *Kernel) Operations() *persistence.DatabaseOperations {
	if k.AuditStore == nil {
		return nil
	}
	return k.AuditStore.Operations()
}

// Stop shuts down in order: agents, then the audit store, then the log and database.
func (k *Kernel) Stop() error {
	k.mu.Lock()
	wasRunning := k.running
	k.running = false
	k.mu.Unlock()

	k.Logger.Info("Stopping kernel services...")

	for _, a := range k.Agents {
		a.Stop()
	}
	k.cancel()

	if wasRunning {
		done := make(chan error, 1)
		go func() { done <- k.Wait() }()

		timeout := k.Config.ShutdownTimeout()
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeoutSec * time.Second
		}
		select {
		case err := <-done:
			if err != nil {
				k.Logger.Error("Agent loop error during shutdown: %v", err)
			}
		case <-time.After(timeout):
			k.Logger.Warn("Timed out after %s waiting for agent loops", timeout)
		}
	}

	k.saveMetricsSnapshot()
	err := k.closeStorage()
	k.Logger.Info("Kernel services stopped")
	return err
}

// saveMetricsSnapshot leaves the final counters next to the audit log.
func (k *Kernel) saveMetricsSnapshot() {
	if !k.Config.Metrics.Enabled || k.Config.Storage.LogDir == "" {
		return
	}
	path, err := metrics.SaveSnapshot(k.Metrics, k.Config.Storage.LogDir, time.Now())
	if err != nil {
		k.Logger.Warn("Failed to save metrics snapshot: %v", err)
		return
	}
	k.Logger.Info("Metrics snapshot written to %s", path)
}

func (k *Kernel) closeStorage() error {
	var errs []error
	if k.AuditStore != nil {
		if err := k.AuditStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit store: %w", err))
		}
		k.AuditStore = nil
	}
	if k.EventLog != nil {
		if err := k.EventLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event log: %w", err))
		}
	}
	if k.Database != nil {
		if err := k.Database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		k.Database = nil
	}
	return errors.Join(errs...)
}
