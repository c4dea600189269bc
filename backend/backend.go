// Package backend defines the dictation backend lifecycle contract and
// its two implementations: an in-process streaming pipeline and a
// wrapper around an external recognition process.
package backend

import (
	"errors"
	"sync"
)

// State is the backend lifecycle state. Exactly one live value per
// backend; all transitions go through status so readers never observe
// a torn state.
type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrAlreadyActive is returned by Start while a session is running.
	// The running session is left untouched.
	ErrAlreadyActive = errors.New("backend already active")
	// ErrLaunchFailed covers missing executables, missing models and
	// engine load errors during Start.
	ErrLaunchFailed = errors.New("backend launch failed")
	// ErrCrashed prefixes the Failed reason recorded when a session
	// dies unexpectedly while Active, distinguishing crashes from
	// launch failures in the session log.
	ErrCrashed = errors.New("backend crashed")
	// ErrDeviceUnavailable means the audio device is missing or busy.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrStopTimeout means graceful stop exceeded its bound and
	// teardown was forced. The backend still resolves to Idle.
	ErrStopTimeout = errors.New("backend stop timed out")
)

// Backend is the uniform lifecycle contract over streaming and process
// backends. All methods are safe for concurrent use.
type Backend interface {
	// Start launches the backend and returns once the underlying
	// resource is confirmed up (process alive past its grace period,
	// audio stream opened) — not once speech begins.
	Start(language, model string) error
	// Stop tears the backend down. Stop on an Idle backend is a no-op
	// success, so it is always safe to call defensively. A Stop that
	// arrives while a Start is in flight waits for the start to settle
	// and then tears the new session down.
	Stop() error
	State() State
	// Reason is the human-readable failure reason; empty unless Failed.
	Reason() string
	IsAlive() bool
	// Done returns a channel closed when the current session ends for
	// any reason. State and Reason are settled before the close.
	Done() <-chan struct{}
}

// status is the single-writer state cell shared by both backends.
type status struct {
	mu     sync.Mutex
	state  State
	reason string
	done   chan struct{}
}

func newStatus() *status {
	done := make(chan struct{})
	close(done)
	return &status{state: Idle, done: done}
}

func (s *status) get() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// begin moves Idle or Failed to Starting and opens a fresh done
// channel. Any other state reports ErrAlreadyActive.
func (s *status) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle && s.state != Failed {
		return ErrAlreadyActive
	}
	s.state = Starting
	s.reason = ""
	s.done = make(chan struct{})
	return nil
}

func (s *status) set(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// activate moves Starting to Active. It reports false when the session
// already settled (a crash or failure got there first); the settled
// state stands and the starter must treat the launch as failed.
func (s *status) activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Starting {
		return false
	}
	s.state = Active
	return true
}

// settle ends the session: records the terminal state and closes done.
func (s *status) settle(st State, reason string) {
	s.mu.Lock()
	s.state = st
	s.reason = reason
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
}

// failIfActive is the watcher-side transition: Active -> Failed. It
// reports false when a Stop is already in flight, in which case the
// stopper owns the terminal transition.
func (s *status) failIfActive(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active && s.state != Starting {
		return false
	}
	s.state = Failed
	s.reason = reason
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return true
}

func (s *status) doneCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
