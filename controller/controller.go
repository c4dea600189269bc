// Package controller owns the active dictation backend and the session
// state machine. It is the single component the UI and session log talk
// to; callers never touch pipeline internals.
package controller

import (
	"errors"
	"fmt"
	"sync"

	"murmur/backend"
	"murmur/log"
	"murmur/session"
)

// ErrUnacknowledged is returned by Start while the controller sits in
// Failed. The failure must be acknowledged before the next session.
var ErrUnacknowledged = errors.New("failed state must be acknowledged first")

// Params selects a backend and its session parameters.
type Params struct {
	Kind     string // backend kind as registered, e.g. "streaming" or "process"
	Language string
	Model    string
}

type active struct {
	params Params
	b      backend.Backend
	sess   session.Session
}

// Controller mediates all lifecycle transitions. Operations are
// serialized: a Start arriving while a Stop is in flight waits and runs
// only after Idle is reached, never interleaved. State reads never
// block on an in-flight operation.
type Controller struct {
	backends map[string]backend.Backend
	sink     *session.Dispatch
	notify   func(reason string) // optional, called on failure

	opMu    sync.Mutex // serializes Start/Stop/Acknowledge
	stMu    sync.Mutex
	state   backend.State
	reason  string
	current *active
}

// New builds a controller over the registered backends. sink and notify
// may be nil.
func New(backends map[string]backend.Backend, sink session.Sink, notify func(reason string)) *Controller {
	return &Controller{
		backends: backends,
		sink:     session.NewDispatch(sink),
		notify:   notify,
		state:    backend.Idle,
	}
}

// State returns the current state and, when Failed, the reason.
func (c *Controller) State() (backend.State, string) {
	c.stMu.Lock()
	defer c.stMu.Unlock()
	return c.state, c.reason
}

// Current returns the running session, if any.
func (c *Controller) Current() (session.Session, bool) {
	c.stMu.Lock()
	defer c.stMu.Unlock()
	if c.current == nil {
		return session.Session{}, false
	}
	return c.current.sess, true
}

func (c *Controller) setState(st backend.State, reason string) {
	c.stMu.Lock()
	c.state = st
	c.reason = reason
	c.stMu.Unlock()
}

// Start launches a session. While Active with identical parameters it
// returns ErrAlreadyActive; with different parameters it switches:
// stop-then-start, one session ended and one started, never two
// backends running concurrently.
func (c *Controller) Start(p Params) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch st, reason := c.State(); st {
	case backend.Failed:
		return fmt.Errorf("%w: %s", ErrUnacknowledged, reason)
	case backend.Active:
		if c.current != nil && c.current.params == p {
			return backend.ErrAlreadyActive
		}
		log.Infof("switching session: %+v", p)
		if err := c.stopLocked(); err != nil && !errors.Is(err, backend.ErrStopTimeout) {
			return err
		}
	}
	return c.startLocked(p)
}

func (c *Controller) startLocked(p Params) error {
	b, ok := c.backends[p.Kind]
	if !ok {
		return fmt.Errorf("unknown backend kind %q", p.Kind)
	}

	c.setState(backend.Starting, "")
	if err := b.Start(p.Language, p.Model); err != nil {
		reason := b.Reason()
		if reason == "" {
			reason = err.Error()
		}
		c.fail(reason)
		return err
	}

	sess := session.New(p.Kind, p.Language, p.Model)
	c.stMu.Lock()
	c.current = &active{params: p, b: b, sess: sess}
	c.state = backend.Active
	c.reason = ""
	c.stMu.Unlock()

	c.sink.Started(sess)
	go c.watch(sess.ID, b)
	return nil
}

// watch waits for the backend's session to end. A controller-initiated
// stop clears the current session before the backend settles under
// opMu, so anything still current here is a crash.
func (c *Controller) watch(id string, b backend.Backend) {
	<-b.Done()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stMu.Lock()
	cur := c.current
	c.stMu.Unlock()
	if cur == nil || cur.sess.ID != id || b.State() != backend.Failed {
		return
	}

	reason := b.Reason()
	c.stMu.Lock()
	c.current = nil
	c.state = backend.Failed
	c.reason = reason
	c.stMu.Unlock()

	log.Errorf("backend failed while active: %s", reason)
	c.sink.Ended(cur.sess.Ended(reason))
	if c.notify != nil {
		c.notify(reason)
	}
}

// Stop ends the running session. Stop while Idle is a no-op success.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch st, _ := c.State(); st {
	case backend.Idle, backend.Failed:
		return nil
	}
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	c.stMu.Lock()
	cur := c.current
	c.current = nil
	c.stMu.Unlock()
	if cur == nil {
		c.setState(backend.Idle, "")
		return nil
	}

	c.setState(backend.Stopping, "")
	err := cur.b.Stop()
	// Even a stop timeout resolves the backend to Idle after forced
	// teardown; the session still ends cleanly.
	c.sink.Ended(cur.sess.Ended(""))
	c.setState(backend.Idle, "")
	return err
}

// Acknowledge clears a Failed state back to Idle, making the controller
// ready for the next Start. It is a no-op in any other state.
func (c *Controller) Acknowledge() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if st, _ := c.State(); st != backend.Failed {
		return
	}
	// Settle whichever backend failed so it can start again.
	for _, b := range c.backends {
		if b.State() == backend.Failed {
			_ = b.Stop()
		}
	}
	c.setState(backend.Idle, "")
}

func (c *Controller) fail(reason string) {
	c.setState(backend.Failed, reason)
	if c.notify != nil {
		c.notify(reason)
	}
}
