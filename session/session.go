// Package session records dictation session lifecycles and hands them
// to an external sink. The sink is fire-and-forget: a slow or broken
// sink must never block or fail dictation.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/log"
)

// Session is one dictation session from start to stop. Immutable once
// ended; Err carries the failure reason when the session was closed by
// a crash rather than a normal stop.
type Session struct {
	ID          string
	Language    string
	Model       string
	BackendKind string
	StartedAt   time.Time
	EndedAt     time.Time
	Err         string
}

func New(backendKind, language, model string) Session {
	return Session{
		ID:          uuid.NewString(),
		Language:    language,
		Model:       model,
		BackendKind: backendKind,
		StartedAt:   time.Now(),
	}
}

func (s Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Ended returns a closed copy of the session.
func (s Session) Ended(reason string) Session {
	s.EndedAt = time.Now()
	s.Err = reason
	return s
}

// Sink consumes session lifecycle events.
type Sink interface {
	Started(s Session)
	Ended(s Session)
}

// Dispatch wraps a sink so each event runs on its own goroutine with
// panic recovery. A nil sink dispatches nowhere.
type Dispatch struct {
	sink Sink
}

func NewDispatch(sink Sink) *Dispatch { return &Dispatch{sink: sink} }

func (d *Dispatch) Started(s Session) { d.send(func() { d.sink.Started(s) }) }
func (d *Dispatch) Ended(s Session)   { d.send(func() { d.sink.Ended(s) }) }

func (d *Dispatch) send(fn func()) {
	if d.sink == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("session sink panic: %v", r)
			}
		}()
		fn()
	}()
}

// LogSink writes session events to the diagnostics log.
type LogSink struct{}

func (LogSink) Started(s Session) {
	log.SessionStart(s.ID, s.BackendKind, s.Language, s.Model)
}

func (LogSink) Ended(s Session) {
	log.SessionEnd(s.ID, s.Duration(), s.Err)
}

// Memory collects events in memory for tests.
type Memory struct {
	mu      sync.Mutex
	started []Session
	ended   []Session
}

func (m *Memory) Started(s Session) {
	m.mu.Lock()
	m.started = append(m.started, s)
	m.mu.Unlock()
}

func (m *Memory) Ended(s Session) {
	m.mu.Lock()
	m.ended = append(m.ended, s)
	m.mu.Unlock()
}

func (m *Memory) StartedSessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Session(nil), m.started...)
}

func (m *Memory) EndedSessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Session(nil), m.ended...)
}
