package persistence

import (
	"database/sql"
	"errors"
	"sync"

	"notifier/pkg/eventlog"
	"notifier/pkg/logx"
)

var (
	// ErrQueueFull is returned by AuditStore.Write when the worker is behind.
	ErrQueueFull = errors.New("audit store queue full")
	// ErrClosed is returned by AuditStore.Write after Close.
	ErrClosed = errors.New("audit store closed")
)

// Request is one queued write for the persistence worker.
type Request struct {
	Row *AgentLog
}

// AuditStore is an eventlog.Sink that writes records to agent_logs from a
// single worker goroutine. Write never blocks on the database.
type AuditStore struct {
	ops    *DatabaseOperations
	logger *logx.Logger
	ch     chan *Request
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewAuditStore starts the worker. buffer is the queue depth; values below 1
// are raised to 1.
func NewAuditStore(db *sql.DB, buffer int) *AuditStore {
	if buffer < 1 {
		buffer = 1
	}
	s := &AuditStore{
		ops:    NewDatabaseOperations(db),
		logger: logx.NewLogger("audit-store"),
		ch:     make(chan *Request, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Write queues rec for insertion (fire-and-forget).
func (s *AuditStore) Write(rec eventlog.Record) error {
	row, err := AgentLogFromRecord(rec)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- &Request{Row: row}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *AuditStore) run() {
	defer close(s.done)
	for req := range s.ch {
		if err := s.ops.InsertAgentLog(req.Row); err != nil {
			s.logger.Error("Failed to persist %s/%s for %s: %v", req.Row.Action, req.Row.Status, req.Row.AgentID, err)
		}
	}
	s.logger.Info("Persistence worker shutting down")
}

// Close stops accepting writes and waits for queued rows to be flushed.
// The database handle is left open.
func (s *AuditStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	<-s.done
	return nil
}

// Operations exposes the store's query helpers.
func (s *AuditStore) Operations() *DatabaseOperations {
	return s.ops
}
