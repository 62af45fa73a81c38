// Package eventlog records attempt lifecycle transitions as structured,
// append-only events instead of inline log calls.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"
)

const (
	AttemptCreated   = "attempt.created"
	AttemptSubmitted = "attempt.submitted"
	AttemptAbandoned = "attempt.abandoned"
	AttemptExpired   = "attempt.expired"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string // natural key: attempt ID
	DataJSON  string
	CreatedAt int64
}

type Sink interface {
	Append(ctx context.Context, typ, key string, data any) error
}

type SQLSink struct{ db *sql.DB }

func NewSQLSink(db *sql.DB) *SQLSink { return &SQLSink{db: db} }

func (s *SQLSink) Append(ctx context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, string(buf), time.Now().Unix())
	return err
}

// MemorySink collects events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Append(_ context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{
		Offset:    int64(len(m.events) + 1),
		Type:      typ,
		Key:       key,
		DataJSON:  string(buf),
		CreatedAt: time.Now().Unix(),
	})
	return nil
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Nop discards events; useful when no observability backend is wired.
type Nop struct{}

func (Nop) Append(context.Context, string, string, any) error { return nil }
