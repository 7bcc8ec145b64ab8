package persistence

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DatabaseOperations wraps the agent_logs queries.
type DatabaseOperations struct {
	db *sql.DB
}

func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// InsertAgentLog stores one audit row and sets its ID.
func (ops *DatabaseOperations) InsertAgentLog(row *AgentLog) error {
	var details any
	if row.Details != "" {
		details = row.Details
	}

	res, err := ops.db.Exec(`
		INSERT INTO agent_logs (agent_id, agent_type, agent_name, action, status, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.AgentID, row.AgentType, row.AgentName, row.Action, row.Status, details,
		row.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert agent log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read agent log id: %w", err)
	}
	row.ID = id
	return nil
}

// QueryAgentLogs returns matching rows, oldest first.
func (ops *DatabaseOperations) QueryAgentLogs(filter AgentLogFilter) ([]*AgentLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value != "" {
			where = append(where, column+" = ?")
			args = append(args, value)
		}
	}
	add("agent_id", filter.AgentID)
	add("agent_type", filter.AgentType)
	add("action", filter.Action)
	add("status", filter.Status)

	query := "SELECT id, agent_id, agent_type, agent_name, action, status, COALESCE(details, ''), timestamp FROM agent_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := ops.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent logs: %w", err)
	}
	defer rows.Close()

	var out []*AgentLog
	for rows.Next() {
		var (
			row AgentLog
			ts  string
		)
		if err := rows.Scan(&row.ID, &row.AgentID, &row.AgentType, &row.AgentName,
			&row.Action, &row.Status, &row.Details, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan agent log: %w", err)
		}
		row.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q of log %d: %w", ts, row.ID, err)
		}
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent logs: %w", err)
	}
	return out, nil
}

// SummarizeActions counts rows per agent type, action and status.
func (ops *DatabaseOperations) SummarizeActions() ([]ActionCount, error) {
	rows, err := ops.db.Query(`
		SELECT agent_type, action, status, COUNT(*)
		FROM agent_logs
		GROUP BY agent_type, action, status
		ORDER BY agent_type, action, status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize agent logs: %w", err)
	}
	defer rows.Close()

	var out []ActionCount
	for rows.Next() {
		var c ActionCount
		if err := rows.Scan(&c.AgentType, &c.Action, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}
	return out, nil
}
