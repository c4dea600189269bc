package controller

import (
	"errors"
	"sync"
	"testing"
	"time"

	"murmur/backend"
	"murmur/session"
)

// fakeBackend is a controllable backend.Backend for state machine tests.
type fakeBackend struct {
	mu       sync.Mutex
	state    backend.State
	reason   string
	done     chan struct{}
	startErr error
	starts   int
	stops    int
}

func newFakeBackend() *fakeBackend {
	done := make(chan struct{})
	close(done)
	return &fakeBackend{state: backend.Idle, done: done}
}

func (f *fakeBackend) Start(language, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == backend.Active || f.state == backend.Starting || f.state == backend.Stopping {
		return backend.ErrAlreadyActive
	}
	f.starts++
	if f.startErr != nil {
		f.state = backend.Failed
		f.reason = f.startErr.Error()
		return f.startErr
	}
	f.state = backend.Active
	f.reason = ""
	f.done = make(chan struct{})
	return nil
}

func (f *fakeBackend) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case backend.Active:
		f.stops++
		close(f.done)
	case backend.Failed:
	case backend.Idle:
		return nil
	}
	f.state = backend.Idle
	f.reason = ""
	return nil
}

// Crash simulates an unexpected backend death while active.
func (f *fakeBackend) Crash(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != backend.Active {
		return
	}
	f.state = backend.Failed
	f.reason = reason
	close(f.done)
}

func (f *fakeBackend) State() backend.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBackend) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

func (f *fakeBackend) IsAlive() bool { return f.State() == backend.Active }

func (f *fakeBackend) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func testController(fb *fakeBackend, sink session.Sink) *Controller {
	return New(map[string]backend.Backend{"streaming": fb}, sink, nil)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartStopLifecycle(t *testing.T) {
	fb := newFakeBackend()
	mem := &session.Memory{}
	c := testController(fb, mem)

	if st, _ := c.State(); st != backend.Idle {
		t.Fatalf("initial state = %v, want idle", st)
	}
	if err := c.Start(Params{Kind: "streaming", Language: "en", Model: "base"}); err != nil {
		t.Fatal(err)
	}
	if st, _ := c.State(); st != backend.Active {
		t.Fatalf("state = %v, want active", st)
	}
	sess, ok := c.Current()
	if !ok || sess.Language != "en" || sess.Model != "base" {
		t.Fatalf("current session = %+v, %v", sess, ok)
	}

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if st, _ := c.State(); st != backend.Idle {
		t.Fatalf("state after stop = %v, want idle", st)
	}
	if _, ok := c.Current(); ok {
		t.Error("current session still set after stop")
	}

	waitFor(t, "session events", func() bool {
		return len(mem.StartedSessions()) == 1 && len(mem.EndedSessions()) == 1
	})
	if ended := mem.EndedSessions()[0]; ended.Err != "" {
		t.Errorf("clean stop recorded error %q", ended.Err)
	}
}

func TestStartWhileActiveSameParams(t *testing.T) {
	fb := newFakeBackend()
	c := testController(fb, nil)
	p := Params{Kind: "streaming", Language: "en", Model: "base"}

	if err := c.Start(p); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(p); !errors.Is(err, backend.ErrAlreadyActive) {
		t.Errorf("second start = %v, want ErrAlreadyActive", err)
	}
	if fb.starts != 1 {
		t.Errorf("backend started %d times, want 1", fb.starts)
	}
}

func TestSwitchStopsThenStarts(t *testing.T) {
	fb := newFakeBackend()
	mem := &session.Memory{}
	c := testController(fb, mem)

	if err := c.Start(Params{Kind: "streaming", Language: "en", Model: "base"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(Params{Kind: "streaming", Language: "de", Model: "base"}); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if st, _ := c.State(); st != backend.Active {
		t.Fatalf("state = %v, want active", st)
	}
	sess, _ := c.Current()
	if sess.Language != "de" {
		t.Errorf("current language = %q, want de", sess.Language)
	}
	if fb.starts != 2 || fb.stops != 1 {
		t.Errorf("starts=%d stops=%d, want 2/1", fb.starts, fb.stops)
	}

	// Exactly one ended and two started events, never two live sessions.
	waitFor(t, "switch events", func() bool {
		return len(mem.StartedSessions()) == 2 && len(mem.EndedSessions()) == 1
	})
	if mem.EndedSessions()[0].ID != mem.StartedSessions()[0].ID {
		t.Error("ended session is not the first started session")
	}
}

func TestCrashThenAcknowledge(t *testing.T) {
	fb := newFakeBackend()
	mem := &session.Memory{}
	c := testController(fb, mem)

	if err := c.Start(Params{Kind: "streaming", Language: "en"}); err != nil {
		t.Fatal(err)
	}
	fb.Crash("engine segfault")

	waitFor(t, "failed state", func() bool {
		st, _ := c.State()
		return st == backend.Failed
	})
	if _, reason := c.State(); reason != "engine segfault" {
		t.Errorf("reason = %q", reason)
	}
	waitFor(t, "ended event", func() bool { return len(mem.EndedSessions()) == 1 })
	if got := mem.EndedSessions()[0].Err; got != "engine segfault" {
		t.Errorf("session error marker = %q", got)
	}

	// No restart without an explicit acknowledge.
	if err := c.Start(Params{Kind: "streaming", Language: "en"}); !errors.Is(err, ErrUnacknowledged) {
		t.Errorf("start while failed = %v, want ErrUnacknowledged", err)
	}

	c.Acknowledge()
	if st, reason := c.State(); st != backend.Idle || reason != "" {
		t.Fatalf("state after acknowledge = %v %q, want idle", st, reason)
	}
	if err := c.Start(Params{Kind: "streaming", Language: "en"}); err != nil {
		t.Errorf("start after acknowledge: %v", err)
	}
}

func TestLaunchFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.startErr = errors.New("model file missing")
	mem := &session.Memory{}
	var notified string
	c := New(map[string]backend.Backend{"streaming": fb}, mem, func(reason string) { notified = reason })

	err := c.Start(Params{Kind: "streaming", Language: "en"})
	if err == nil {
		t.Fatal("start succeeded with failing backend")
	}
	st, reason := c.State()
	if st != backend.Failed || reason == "" {
		t.Errorf("state = %v %q, want failed with reason", st, reason)
	}
	if notified == "" {
		t.Error("failure notification not delivered")
	}

	// A session that never started must not emit events.
	time.Sleep(20 * time.Millisecond)
	if n := len(mem.StartedSessions()); n != 0 {
		t.Errorf("%d started events after failed launch, want 0", n)
	}
}

func TestStopWhileIdle(t *testing.T) {
	c := testController(newFakeBackend(), nil)
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if st, _ := c.State(); st != backend.Idle {
		t.Errorf("state = %v, want idle", st)
	}
}

func TestUnknownBackendKind(t *testing.T) {
	c := testController(newFakeBackend(), nil)
	if err := c.Start(Params{Kind: "telepathy"}); err == nil {
		t.Fatal("expected error for unknown backend kind")
	}
	if st, _ := c.State(); st != backend.Idle {
		t.Errorf("state = %v, want idle (no transition for a caller bug)", st)
	}
}
