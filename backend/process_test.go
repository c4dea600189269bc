package backend

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// stubEngine writes a shell script standing in for the external
// recognition process.
func stubEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub engine scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "engine")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testProcessConfig(exe string) ProcessConfig {
	return ProcessConfig{
		Executable:  exe,
		ModelDir:    "/tmp/models",
		GracePeriod: 100 * time.Millisecond,
		StopTimeout: 200 * time.Millisecond,
	}
}

func TestProcessStartStop(t *testing.T) {
	exe := stubEngine(t, `[ "$1" = begin ] || exit 0
exec sleep 60`)
	b := NewProcess(testProcessConfig(exe))

	if err := b.Start("en", "small"); err != nil {
		t.Fatal(err)
	}
	if got := b.State(); got != Active {
		t.Fatalf("state = %v, want active", got)
	}
	if !b.IsAlive() {
		t.Error("IsAlive = false while active")
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := b.State(); got != Idle {
		t.Errorf("state after stop = %v, want idle", got)
	}
	if b.IsAlive() {
		t.Error("IsAlive = true after stop")
	}
}

func TestProcessStopOnIdleIsNoop(t *testing.T) {
	b := NewProcess(testProcessConfig("nonexistent"))
	if err := b.Stop(); err != nil {
		t.Fatalf("stop on idle: %v", err)
	}
	if got := b.State(); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestProcessStartAlreadyActive(t *testing.T) {
	exe := stubEngine(t, `exec sleep 60`)
	b := NewProcess(testProcessConfig(exe))
	if err := b.Start("en", ""); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	if err := b.Start("en", ""); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second start = %v, want ErrAlreadyActive", err)
	}
	if got := b.State(); got != Active {
		t.Errorf("state = %v, want active (first session untouched)", got)
	}
}

func TestProcessMissingExecutable(t *testing.T) {
	b := NewProcess(testProcessConfig("definitely-not-installed-anywhere"))
	err := b.Start("en", "")
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("start = %v, want ErrLaunchFailed", err)
	}
	if got := b.State(); got != Failed {
		t.Errorf("state = %v, want failed", got)
	}
	if b.Reason() == "" {
		t.Error("failed state must carry a reason")
	}
}

func TestProcessExitWithinGraceFailsStart(t *testing.T) {
	exe := stubEngine(t, `echo "model dir missing" >&2
exit 1`)
	b := NewProcess(testProcessConfig(exe))

	err := b.Start("en", "")
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("start = %v, want ErrLaunchFailed", err)
	}
	if got := b.State(); got != Failed {
		t.Errorf("state = %v, want failed", got)
	}
	if !strings.Contains(b.Reason(), "model dir missing") {
		t.Errorf("reason %q missing captured output", b.Reason())
	}
}

func TestProcessCrashWhileActive(t *testing.T) {
	exe := stubEngine(t, `sleep 0.3
echo "segfault" >&2
exit 2`)
	b := NewProcess(testProcessConfig(exe))

	if err := b.Start("en", ""); err != nil {
		t.Fatal(err)
	}
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("crash not detected")
	}
	if got := b.State(); got != Failed {
		t.Errorf("state = %v, want failed", got)
	}
	if !strings.Contains(b.Reason(), "segfault") {
		t.Errorf("reason %q missing crash output", b.Reason())
	}
	if !strings.Contains(b.Reason(), ErrCrashed.Error()) {
		t.Errorf("reason %q not marked as a crash", b.Reason())
	}

	// Failed is recoverable: stop clears it, start works again.
	if err := b.Stop(); err != nil {
		t.Fatalf("stop after crash: %v", err)
	}
	if got := b.State(); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestProcessStopDuringStartWaits(t *testing.T) {
	exe := stubEngine(t, `exec sleep 60`)
	cfg := testProcessConfig(exe)
	cfg.GracePeriod = 300 * time.Millisecond
	b := NewProcess(cfg)

	startErr := make(chan error, 1)
	go func() { startErr <- b.Start("en", "") }()
	waitFor(t, "starting state", func() bool { return b.State() == Starting })

	// Stop lands mid-grace: it must wait for the start to settle and
	// then kill the child, never leave a live process behind a
	// successful stop.
	if err := b.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-startErr; err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := b.State(); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
	if b.IsAlive() {
		t.Error("IsAlive = true after stop")
	}
}

func TestProcessStopEscalatesToKill(t *testing.T) {
	exe := stubEngine(t, `trap '' TERM
sleep 60 >/dev/null 2>&1 &
wait`)
	b := NewProcess(testProcessConfig(exe))

	if err := b.Start("en", ""); err != nil {
		t.Fatal(err)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := b.State(); got != Idle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestProcessModelDirArgument(t *testing.T) {
	// The child records its argv so the launch contract is observable.
	out := filepath.Join(t.TempDir(), "argv")
	exe := stubEngine(t, `echo "$@" > `+out+`
exec sleep 60`)
	cfg := testProcessConfig(exe)
	cfg.ExtraArgs = []string{"--punctuate"}
	b := NewProcess(cfg)

	if err := b.Start("en", "vosk-small"); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.TrimSpace(string(data))
	want := "begin --model-dir=" + filepath.Join("/tmp/models", "vosk-small") + " --punctuate"
	if got != want {
		t.Errorf("argv = %q, want %q", got, want)
	}
}
