package shellhost

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/termhub/workbench/internal/session"
)

// syncScheduler runs posted tasks immediately on the calling goroutine,
// which makes retry behavior deterministic in tests.
type syncScheduler struct {
	deferred int
}

func (s *syncScheduler) Post(fn func()) { fn() }

func (s *syncScheduler) PostAfter(_ time.Duration, fn func()) {
	s.deferred++
	fn()
}

type fakeSurface struct {
	readyAfter int // readiness checks that report false before flipping true
	calls      int
	buf        bytes.Buffer
}

func (f *fakeSurface) Ready() bool {
	f.calls++
	return f.calls > f.readyAfter
}

func (f *fakeSurface) ID() string        { return "surface-1" }
func (f *fakeSurface) Output() io.Writer { return &f.buf }

// stubShell swaps the command and PTY seams so tests run a harmless local
// process instead of the real ssh binary. Returns a restore func.
func stubShell(t *testing.T, name string, args ...string) {
	t.Helper()
	origCmd := shellCommandFn
	origPty := startPtyFn
	t.Cleanup(func() { shellCommandFn = origCmd; startPtyFn = origPty })

	shellCommandFn = func(session.Record) (*exec.Cmd, bool) {
		return exec.Command(name, args...), false
	}
	startPtyFn = func(cmd *exec.Cmd) (*os.File, error) {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		cmd.Stdout = w
		if err := cmd.Start(); err != nil {
			r.Close()
			w.Close()
			return nil, err
		}
		w.Close()
		return r, nil
	}
}

func TestStartFailsAfterRetryBudget(t *testing.T) {
	sched := &syncScheduler{}
	surface := &fakeSurface{readyAfter: 100} // never ready within budget
	host := New()

	var result error
	done := false
	host.Start(session.Record{Name: "s", Host: "h", Username: "u", Password: "p"},
		surface, sched,
		func(err error) { result = err; done = true },
		func() { t.Fatal("onExit must not fire when attach fails") })

	if !done {
		t.Fatal("onResult never delivered")
	}
	if !errors.Is(result, ErrSurfaceNotReady) {
		t.Fatalf("expected ErrSurfaceNotReady, got %v", result)
	}
	// Initial attempt + exactly 5 reschedules.
	if sched.deferred != 5 {
		t.Fatalf("expected 5 reschedules, got %d", sched.deferred)
	}
	if surface.calls != 6 {
		t.Fatalf("expected 6 readiness checks, got %d", surface.calls)
	}
}

func TestStartSucceedsOnLateReadiness(t *testing.T) {
	stubShell(t, "sleep", "30")
	host := New()
	defer host.Stop()

	sched := &syncScheduler{}
	surface := &fakeSurface{readyAfter: 3}

	var result error
	host.Start(session.Record{Name: "s", Password: "p"}, surface, sched,
		func(err error) { result = err },
		func() {})
	if result != nil {
		t.Fatalf("attach failed: %v", result)
	}
	if sched.deferred != 3 {
		t.Fatalf("expected 3 reschedules, got %d", sched.deferred)
	}
}

func TestStartSucceedsImmediatelyWhenReady(t *testing.T) {
	stubShell(t, "sleep", "30")

	sched := &syncScheduler{}
	surface := &fakeSurface{}
	host := New()

	var result error
	host.Start(session.Record{Name: "s", Password: "p"}, surface, sched,
		func(err error) { result = err },
		func() {})
	if result != nil {
		t.Fatalf("attach failed: %v", result)
	}
	if sched.deferred != 0 {
		t.Fatalf("ready surface must attach without reschedules, got %d", sched.deferred)
	}
	if !host.Running() {
		t.Fatal("host should report a running shell")
	}

	host.Stop()
	if host.Running() {
		t.Fatal("host still running after Stop")
	}
	// Second Stop is a no-op.
	host.Stop()
}

func TestExitNotificationDeliveredViaScheduler(t *testing.T) {
	stubShell(t, "true")

	sched := &syncScheduler{}
	surface := &fakeSurface{}
	host := New()

	exited := make(chan struct{})
	host.Start(session.Record{Name: "s", Password: "p"}, surface, sched,
		func(err error) {
			if err != nil {
				t.Errorf("attach failed: %v", err)
			}
		},
		func() { close(exited) })

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("exit notification never delivered")
	}
	if host.Running() {
		t.Fatal("host should be stopped after self-exit")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	host := New()
	host.Stop()
	host.Stop()
	if host.Running() {
		t.Fatal("unexpected running state")
	}
}

func TestWriteWithoutShellFails(t *testing.T) {
	host := New()
	if _, err := host.Write([]byte("ls\n")); err == nil {
		t.Fatal("Write without an attached shell should fail")
	}
	if err := host.Resize(24, 80); err == nil {
		t.Fatal("Resize without an attached shell should fail")
	}
}

func TestBuildShellCommandKeyAuth(t *testing.T) {
	cmd, degraded := buildShellCommand(session.Record{
		Name: "s", Host: "h.example", Port: 2222,
		Username: "u", PrivateKeyPath: "/keys/id_ed25519",
	})
	if degraded {
		t.Fatal("key auth should never be degraded")
	}
	joined := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-p 2222", "-i /keys/id_ed25519", "u@h.example"} {
		if !strings.Contains(joined, want) {
			t.Errorf("command %q missing %q", joined, want)
		}
	}
}

func TestBuildShellCommandDefaultPortOmitsFlag(t *testing.T) {
	cmd, _ := buildShellCommand(session.Record{
		Host: "h", Username: "u", PrivateKeyPath: "/k",
	})
	if strings.Contains(strings.Join(cmd.Args, " "), "-p ") {
		t.Error("default port should not produce a -p flag")
	}
}

func TestBuildShellCommandPasswordWithoutHelper(t *testing.T) {
	orig := lookPathFn
	defer func() { lookPathFn = orig }()
	lookPathFn = func(string) (string, error) {
		return "", exec.ErrNotFound
	}

	cmd, degraded := buildShellCommand(session.Record{Host: "h", Username: "u", Password: "p"})
	if !degraded {
		t.Fatal("missing sshpass should report degraded mode")
	}
	if cmd.Args[0] != "ssh" {
		t.Fatalf("expected plain ssh invocation, got %v", cmd.Args)
	}
}

func TestBuildShellCommandPasswordWithHelper(t *testing.T) {
	orig := lookPathFn
	defer func() { lookPathFn = orig }()
	lookPathFn = func(name string) (string, error) {
		if name == "sshpass" {
			return "/usr/bin/sshpass", nil
		}
		return "", exec.ErrNotFound
	}

	cmd, degraded := buildShellCommand(session.Record{Host: "h", Username: "u", Password: "p"})
	if degraded {
		t.Fatal("helper present, should not be degraded")
	}
	if cmd.Args[0] != "/usr/bin/sshpass" {
		t.Fatalf("expected sshpass prefix, got %v", cmd.Args)
	}
}
