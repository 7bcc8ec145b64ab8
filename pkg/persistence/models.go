package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"notifier/pkg/eventlog"
)

// AgentLog is one row of the agent_logs table.
type AgentLog struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	AgentType string    `json:"agent_type"`
	AgentName string    `json:"agent_name"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"` // JSON object
	ID        int64     `json:"id"`
}

// AgentLogFromRecord flattens an audit record into a row.
func AgentLogFromRecord(rec eventlog.Record) (*AgentLog, error) {
	row := &AgentLog{
		Timestamp: rec.Timestamp.UTC(),
		AgentID:   rec.AgentID,
		AgentType: rec.AgentType,
		AgentName: rec.AgentName,
		Action:    rec.Action,
		Status:    rec.Status,
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	if len(rec.Details) > 0 {
		data, err := json.Marshal(rec.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to encode details for %s/%s: %w", rec.Action, rec.Status, err)
		}
		row.Details = string(data)
	}
	return row, nil
}

// DetailsMap decodes the stored details column.
func (l *AgentLog) DetailsMap() (map[string]any, error) {
	if l.Details == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(l.Details), &out); err != nil {
		return nil, fmt.Errorf("failed to decode details of log %d: %w", l.ID, err)
	}
	return out, nil
}

// AgentLogFilter narrows QueryAgentLogs. Empty fields match anything.
type AgentLogFilter struct {
	AgentID   string
	AgentType string
	Action    string
	Status    string
	Limit     int
}

// ActionCount is one row of the action/status summary.
type ActionCount struct {
	AgentType string `json:"agent_type"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	Count     int    `json:"count"`
}
