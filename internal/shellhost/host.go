package shellhost

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog/log"

	"github.com/termhub/workbench/internal/session"
)

const (
	// surfaceRetryLimit is the number of reschedules after the initial
	// attempt. Surface realization is asynchronous relative to connect-time
	// control flow and exposes no completion signal, so the host polls.
	surfaceRetryLimit = 5
	surfaceRetryDelay = 200 * time.Millisecond

	// stopGracePeriod bounds how long Stop waits before force-killing.
	stopGracePeriod = 2 * time.Second
)

// ErrSurfaceNotReady reports that the display surface never became ready
// within the retry budget. The file channel may still be usable.
var ErrSurfaceNotReady = errors.New("shellhost: display surface not ready")

// Seams for tests.
var (
	startPtyFn     = pty.Start
	lookPathFn     = exec.LookPath
	shellCommandFn = buildShellCommand
)

// Host runs the external ssh binary under a local PTY, bridged to a display
// surface. One Host serves one session tab; it can be started and stopped
// repeatedly across connect/disconnect cycles.
type Host struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	ptmx     *os.File
	stopping bool
	waitCh   chan struct{}
}

func New() *Host {
	return &Host{}
}

// Start schedules attachment of an interactive shell for rec to surface.
// The surface may not exist yet: the host checks readiness, rescheduling
// itself on the control loop up to surfaceRetryLimit extra times before
// giving up with ErrSurfaceNotReady.
//
// onResult runs on the loop with the attachment outcome. onExit runs on the
// loop when the shell process terminates on its own (never on a Stop).
func (h *Host) Start(rec session.Record, surface SurfaceProvider, sched Scheduler, onResult func(error), onExit func()) {
	attempts := 0
	var attempt func()
	attempt = func() {
		if surface.Ready() {
			onResult(h.launch(rec, surface, sched, onExit))
			return
		}
		if attempts >= surfaceRetryLimit {
			log.Warn().Str("surface", surface.ID()).Msg("shellhost: surface never became ready")
			onResult(ErrSurfaceNotReady)
			return
		}
		attempts++
		sched.PostAfter(surfaceRetryDelay, attempt)
	}
	sched.Post(attempt)
}

// Running reports whether a shell process is currently attached.
func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil
}

func (h *Host) launch(rec session.Record, surface SurfaceProvider, sched Scheduler, onExit func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil {
		return fmt.Errorf("shellhost: shell already attached")
	}

	cmd, degraded := shellCommandFn(rec)
	if degraded {
		// The shell will prompt for the password interactively.
		log.Warn().Str("session", rec.Name).Msg("shellhost: sshpass not found, proceeding without password helper")
	}
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "WORKBENCH_SURFACE="+surface.ID())

	ptmx, err := startPtyFn(cmd)
	if err != nil {
		return fmt.Errorf("shellhost: start shell: %w", err)
	}

	h.cmd = cmd
	h.ptmx = ptmx
	h.stopping = false
	waitCh := make(chan struct{})
	h.waitCh = waitCh

	// PTY → surface. Exits when the PTY closes.
	go func() {
		_, _ = io.Copy(surface.Output(), ptmx)
	}()

	// Process watcher. The exit notification is redelivered onto the
	// control loop; no shared state is touched from this goroutine.
	go func() {
		_ = cmd.Wait()
		close(waitCh)

		h.mu.Lock()
		stopped := h.stopping
		h.cmd = nil
		h.ptmx = nil
		h.mu.Unlock()
		_ = ptmx.Close()

		if !stopped {
			log.Info().Str("session", rec.Name).Msg("shellhost: shell exited")
			sched.Post(onExit)
		}
	}()

	log.Info().Str("session", rec.Name).Str("surface", surface.ID()).Msg("shellhost: shell attached")
	return nil
}

// Write sends keyboard input to the shell.
func (h *Host) Write(p []byte) (int, error) {
	h.mu.Lock()
	ptmx := h.ptmx
	h.mu.Unlock()
	if ptmx == nil {
		return 0, fmt.Errorf("shellhost: shell not attached")
	}
	return ptmx.Write(p)
}

// Resize changes the PTY window size.
func (h *Host) Resize(rows, cols uint16) error {
	h.mu.Lock()
	ptmx := h.ptmx
	h.mu.Unlock()
	if ptmx == nil {
		return fmt.Errorf("shellhost: shell not attached")
	}
	return pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Stop terminates the shell process if still running: SIGTERM, a bounded
// wait, then SIGKILL. Idempotent, and tolerates a process that has already
// exited on its own.
func (h *Host) Stop() {
	h.mu.Lock()
	cmd := h.cmd
	waitCh := h.waitCh
	if cmd == nil {
		h.mu.Unlock()
		return
	}
	h.stopping = true
	h.mu.Unlock()

	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-waitCh:
	case <-time.After(stopGracePeriod):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-waitCh
	}
}

// buildShellCommand builds the external ssh invocation for a record:
// non-default port flag, identity flag when a key is configured, and an
// sshpass prefix when a password is configured and the helper is on PATH.
// Returns degraded=true when a password is configured but sshpass is absent.
func buildShellCommand(rec session.Record) (cmd *exec.Cmd, degraded bool) {
	host, port := rec.Addr()

	sshArgs := make([]string, 0, 6)
	if port != 22 {
		sshArgs = append(sshArgs, "-p", strconv.Itoa(port))
	}
	if rec.PrivateKeyPath != "" {
		sshArgs = append(sshArgs, "-i", rec.PrivateKeyPath)
	}
	sshArgs = append(sshArgs, fmt.Sprintf("%s@%s", rec.Username, host))

	if rec.Password != "" && rec.PrivateKeyPath == "" {
		if helper, err := lookPathFn("sshpass"); err == nil {
			args := append([]string{"-p", rec.Password, "ssh"}, sshArgs...)
			return exec.Command(helper, args...), false
		}
		return exec.Command("ssh", sshArgs...), true
	}
	return exec.Command("ssh", sshArgs...), false
}
