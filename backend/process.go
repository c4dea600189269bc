package backend

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"murmur/log"
)

const (
	defaultGracePeriod = 1500 * time.Millisecond
	defaultStopTimeout = 3 * time.Second
	outputTailSize     = 2048
)

// ProcessConfig parameterizes an external recognition process. The
// process is launched as `<executable> begin --model-dir=<dir>` and
// asked to stop with `<executable> end` before signals escalate.
type ProcessConfig struct {
	Executable  string
	ModelDir    string // base directory; the model name is appended
	ExtraArgs   []string
	GracePeriod time.Duration // how long the process must survive to count as started
	StopTimeout time.Duration // per-escalation-step wait during stop
}

// ProcessBackend wraps an external recognition process. It has no
// in-process audio pipeline; the child owns capture and typing.
type ProcessBackend struct {
	cfg ProcessConfig
	st  *status

	// opMu serializes Start and Stop so a Stop arriving during the
	// grace wait blocks until the start settles, then kills the child.
	opMu sync.Mutex

	mu      sync.Mutex
	cmd     *exec.Cmd
	output  *tailBuffer
	exited  chan struct{}
	exitErr error
}

func NewProcess(cfg ProcessConfig) *ProcessBackend {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &ProcessBackend{cfg: cfg, st: newStatus()}
}

func (b *ProcessBackend) State() State          { s, _ := b.st.get(); return s }
func (b *ProcessBackend) Reason() string        { _, r := b.st.get(); return r }
func (b *ProcessBackend) Done() <-chan struct{} { return b.st.doneCh() }

func (b *ProcessBackend) IsAlive() bool {
	if s, _ := b.st.get(); s != Active {
		return false
	}
	b.mu.Lock()
	exited := b.exited
	b.mu.Unlock()
	if exited == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
		return true
	}
}

// Start spawns the process and confirms it survives the grace period.
// An exit within the grace period fails the start with the captured
// output as the reason.
func (b *ProcessBackend) Start(language, model string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if err := b.st.begin(); err != nil {
		return err
	}

	exe, err := exec.LookPath(b.cfg.Executable)
	if err != nil {
		reason := fmt.Sprintf("executable %q not found", b.cfg.Executable)
		b.st.settle(Failed, reason)
		return fmt.Errorf("%w: %s", ErrLaunchFailed, reason)
	}

	modelDir := b.cfg.ModelDir
	if model != "" {
		modelDir = filepath.Join(modelDir, model)
	}
	args := append([]string{"begin", "--model-dir=" + modelDir}, b.cfg.ExtraArgs...)

	out := &tailBuffer{}
	cmd := exec.Command(exe, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	// Bound pipe drainage so orphaned grandchildren holding our pipes
	// cannot block Wait after the process itself is gone.
	cmd.WaitDelay = b.cfg.StopTimeout

	if err := cmd.Start(); err != nil {
		reason := fmt.Sprintf("spawning %s: %v", b.cfg.Executable, err)
		b.st.settle(Failed, reason)
		return fmt.Errorf("%w: %s", ErrLaunchFailed, reason)
	}

	exited := make(chan struct{})
	b.mu.Lock()
	b.cmd = cmd
	b.output = out
	b.exited = exited
	b.mu.Unlock()

	go func() {
		err := cmd.Wait()
		b.mu.Lock()
		b.exitErr = err
		b.mu.Unlock()
		close(exited)
	}()

	select {
	case <-exited:
		reason := b.exitReason()
		b.st.settle(Failed, reason)
		return fmt.Errorf("%w: %s", ErrLaunchFailed, reason)
	case <-time.After(b.cfg.GracePeriod):
	}

	if !b.st.activate() {
		// The session settled under us before we could go Active.
		reason := b.exitReason()
		return fmt.Errorf("%w: %s", ErrLaunchFailed, reason)
	}
	log.Infof("process backend active: %s (model %s, language %s)", b.cfg.Executable, model, language)

	// Watcher: an exit while Active is a crash. If a Stop is already
	// in flight the stopper owns the transition instead.
	go func() {
		<-exited
		reason := fmt.Sprintf("%v: %s", ErrCrashed, b.exitReason())
		if b.st.failIfActive(reason) {
			log.Errorf("process backend crashed: %s", reason)
		}
	}()

	return nil
}

// Stop asks the process to end, then escalates: `<exe> end`, SIGTERM,
// SIGKILL, each bounded by StopTimeout. The backend resolves to Idle
// on every path; ErrStopTimeout is returned only when even SIGKILL did
// not settle in time. Stop during a concurrent Start blocks until the
// start settles, then tears the session down.
func (b *ProcessBackend) Stop() error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	switch s, _ := b.st.get(); s {
	case Idle, Stopping:
		return nil
	case Failed:
		b.st.settle(Idle, "")
		return nil
	}
	b.st.set(Stopping)

	b.mu.Lock()
	cmd := b.cmd
	exited := b.exited
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		b.st.settle(Idle, "")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.StopTimeout)
	_ = exec.CommandContext(ctx, b.cfg.Executable, "end").Run()
	cancel()

	if b.waitExit(exited) {
		b.st.settle(Idle, "")
		return nil
	}
	log.Warnf("process backend ignored end command, sending SIGTERM")
	_ = cmd.Process.Signal(syscall.SIGTERM)
	if b.waitExit(exited) {
		b.st.settle(Idle, "")
		return nil
	}
	log.Warnf("process backend ignored SIGTERM, killing")
	_ = cmd.Process.Kill()
	if b.waitExit(exited) {
		b.st.settle(Idle, "")
		return nil
	}

	b.st.settle(Idle, "")
	return ErrStopTimeout
}

func (b *ProcessBackend) waitExit(exited chan struct{}) bool {
	select {
	case <-exited:
		return true
	case <-time.After(b.cfg.StopTimeout):
		return false
	}
}

func (b *ProcessBackend) exitReason() string {
	b.mu.Lock()
	err := b.exitErr
	out := b.output.String()
	b.mu.Unlock()

	var sb strings.Builder
	if err != nil {
		sb.WriteString(err.Error())
	} else {
		sb.WriteString("process exited")
	}
	if out != "" {
		sb.WriteString(": ")
		sb.WriteString(out)
	}
	return sb.String()
}

// tailBuffer keeps the last outputTailSize bytes of process output so
// crash reasons stay bounded.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > outputTailSize {
		t.buf = t.buf[len(t.buf)-outputTailSize:]
	}
	t.mu.Unlock()
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
