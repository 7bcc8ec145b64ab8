package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notifier/pkg/agents"
	"notifier/pkg/dispatch"
	"notifier/pkg/logx"
	"notifier/pkg/persistence"
	"notifier/pkg/version"
)

const (
	recentLogWindow = 10 * time.Minute
	maxRecentLogs   = 50
)

// AgentStatus is one row of the /status agent table.
type AgentStatus struct {
	LastRun   *time.Time `json:"last_run,omitempty"`
	AgentID   string     `json:"agent_id"`
	AgentType string     `json:"agent_type"`
	AgentName string     `json:"agent_name"`
	Pending   int        `json:"pending"`
	Running   bool       `json:"running"`
}

// Status is the /status response body.
type Status struct {
	StartedAt     time.Time                 `json:"started_at"`
	Version       string                    `json:"version"`
	Registry      dispatch.Stats            `json:"registry"`
	Agents        []AgentStatus             `json:"agents"`
	ActionSummary []persistence.ActionCount `json:"action_summary,omitempty"`
	RecentIssues  []logx.LogEntry           `json:"recent_issues,omitempty"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
}

// Server holds what the status endpoints report on.
type Server struct {
	registry *dispatch.Registry
	agents   []agents.Agent
	ops      *persistence.DatabaseOperations
	gatherer prometheus.Gatherer
	logger   *logx.Logger
	now      func() time.Time
	started  time.Time
}

// NewServer creates the handler set. ops and gatherer may be nil.
func NewServer(reg *dispatch.Registry, list []agents.Agent, ops *persistence.DatabaseOperations, gatherer prometheus.Gatherer) *Server {
	return &Server{
		registry: reg,
		agents:   list,
		ops:      ops,
		gatherer: gatherer,
		logger:   logx.NewLogger("handlers"),
		now:      time.Now,
		started:  time.Now(),
	}
}

// Routes returns a mux serving /health, /status and, when a gatherer was
// given, /metrics.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/status", s.handleStatus)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Snapshot assembles the current status.
func (s *Server) Snapshot() Status {
	now := s.now()
	st := Status{
		StartedAt:     s.started.UTC(),
		Version:       version.String(),
		UptimeSeconds: now.Sub(s.started).Seconds(),
		Registry:      s.registry.Stats(),
		Agents:        make([]AgentStatus, 0, len(s.agents)),
	}

	for _, a := range s.agents {
		id := a.Identity()
		row := AgentStatus{
			AgentID:   id.AgentID,
			AgentType: id.AgentType,
			AgentName: id.AgentName,
			Running:   a.IsRunning(),
			Pending:   s.registry.Pending(id.AgentID),
		}
		if last := a.LastRun(); !last.IsZero() {
			utc := last.UTC()
			row.LastRun = &utc
		}
		st.Agents = append(st.Agents, row)
	}

	if s.ops != nil {
		summary, err := s.ops.SummarizeActions()
		if err != nil {
			s.logger.Warn("Failed to summarize audit actions: %v", err)
		} else {
			st.ActionSummary = summary
		}
	}

	for _, e := range logx.GetRecentLogEntries("", now.Add(-recentLogWindow)) {
		if e.Level == string(logx.LevelWarn) || e.Level == string(logx.LevelError) {
			st.RecentIssues = append(st.RecentIssues, e)
		}
	}
	if n := len(st.RecentIssues); n > maxRecentLogs {
		st.RecentIssues = st.RecentIssues[n-maxRecentLogs:]
	}
	return st
}

// handleStatus implements GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to encode status response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	s.logger.Debug("Served status: %d agents", len(status.Agents))
}
