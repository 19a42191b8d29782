package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/termhub/workbench/internal/remote"
	"github.com/termhub/workbench/internal/session"
	"github.com/termhub/workbench/internal/shellhost"
	"github.com/termhub/workbench/internal/transfer"
)

// controlChannel and fileChannel are the slices of internal/remote the
// connection drives. Tests substitute fakes through the factory vars below.
type controlChannel interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context, command string) (string, int, error)
	Disconnect() error
}

type fileChannel interface {
	Connect(ctx context.Context) error
	List(dirPath string) ([]remote.Entry, error)
	Attributes(path string) (remote.Attr, error)
	Upload(src io.Reader, remotePath string) error
	Download(remotePath string, dst io.Writer) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
	Mkdir(path string) error
	Disconnect() error
}

type shellHost interface {
	Start(rec session.Record, surface shellhost.SurfaceProvider, sched shellhost.Scheduler, onResult func(error), onExit func())
	Write(p []byte) (int, error)
	Resize(rows, cols uint16) error
	Running() bool
	Stop()
}

var (
	newControlChannel = func(rec session.Record) controlChannel { return remote.NewControlChannel(rec) }
	newFileChannel    = func(rec session.Record) fileChannel { return remote.NewFileChannel(rec) }
	newShellHost      = func() shellHost { return shellhost.New() }
	newArchiver       = func() transfer.Archiver { return transfer.TarArchiver{} }
)

// Connection is the per-session tab state. All fields below the loop are
// owned by the control loop; public methods post tasks onto it and blocking
// I/O runs on worker goroutines that marshal results back.
type Connection struct {
	name       string
	loop       *Loop
	notify     func(Event)
	scratchDir string

	rec        session.Record
	status     Status
	connecting bool
	epoch      int
	remotePath string
	rows       []Row

	control controlChannel
	files   fileChannel
	shell   shellHost
	pipe    *transfer.Pipeline
}

func newConnection(name string, rec session.Record, loop *Loop, scratchDir string, notify func(Event)) *Connection {
	return &Connection{
		name:       name,
		loop:       loop,
		notify:     notify,
		scratchDir: scratchDir,
		rec:        rec,
		status:     StatusIdle,
		remotePath: "/",
	}
}

func (c *Connection) publish(status Status, message, errMsg string) {
	c.status = status
	c.notify(Event{Session: c.name, Status: status, Message: message, Error: errMsg})
}

func (c *Connection) reportError(err error) {
	c.notify(Event{Session: c.name, Status: c.status, Error: err.Error()})
}

// Status returns the current lifecycle phase.
func (c *Connection) Status() Status {
	var s Status
	c.loop.Call(func() { s = c.status })
	return s
}

// Listing returns the formatted rows of the last successful refresh.
func (c *Connection) Listing() (string, []Row) {
	var p string
	var rows []Row
	c.loop.Call(func() {
		p = c.remotePath
		rows = append([]Row(nil), c.rows...)
	})
	return p, rows
}

// Connect brings the session up: file channel, then control channel, then
// the shell host attached to surface. A failed credential check abandons the
// attempt and rolls back whatever already started. Only one Connect may be
// in flight.
func (c *Connection) Connect(ctx context.Context, surface shellhost.SurfaceProvider) {
	c.loop.Post(func() {
		if c.connecting || c.status != StatusIdle {
			c.reportError(fmt.Errorf("orchestrator: session %q is %s", c.name, c.status))
			return
		}
		c.connecting = true
		c.epoch++
		epoch := c.epoch
		c.publish(StatusConnecting, "", "")

		files := newFileChannel(c.rec)
		control := newControlChannel(c.rec)
		go func() {
			err := files.Connect(ctx)
			if err == nil {
				if err = control.Connect(ctx); err != nil {
					if derr := files.Disconnect(); derr != nil {
						log.Warn().Err(derr).Str("session", c.name).Msg("orchestrator: rollback file channel")
					}
				}
			}
			c.loop.Post(func() { c.finishConnect(ctx, epoch, control, files, surface, err) })
		}()
	})
}

func (c *Connection) finishConnect(ctx context.Context, epoch int, control controlChannel, files fileChannel, surface shellhost.SurfaceProvider, err error) {
	if epoch != c.epoch || c.status != StatusConnecting {
		// A Disconnect intervened while the dial was in flight. The
		// disconnected outcome stands; close whatever the dial opened.
		if err == nil {
			go func() {
				if derr := control.Disconnect(); derr != nil {
					log.Warn().Err(derr).Str("session", c.name).Msg("orchestrator: discard control channel")
				}
				if derr := files.Disconnect(); derr != nil {
					log.Warn().Err(derr).Str("session", c.name).Msg("orchestrator: discard file channel")
				}
			}()
		}
		return
	}
	c.connecting = false
	if err != nil {
		c.publish(StatusIdle, "", err.Error())
		return
	}

	c.control = control
	c.files = files
	c.pipe = transfer.NewPipeline(control, files, newArchiver(), c.scratchDir)
	c.remotePath = "/"
	c.publish(StatusConnected, "", "")

	shell := newShellHost()
	c.shell = shell
	shell.Start(c.rec, surface, c.loop,
		func(startErr error) {
			// Shell attachment failing leaves the file channel usable.
			if startErr != nil {
				c.reportError(startErr)
			}
		},
		func() { c.onShellExit() },
	)

	c.refreshLocked(ctx)
}

// onShellExit runs on the loop. The shell going away on its own takes the
// whole session down; the transition is a status change, not an error.
func (c *Connection) onShellExit() {
	if c.status != StatusConnected {
		return
	}
	log.Info().Str("session", c.name).Msg("orchestrator: shell exited")
	c.teardown("shell exited")
}

// Disconnect tears the session down. Each step's failure is swallowed
// independently so one failing channel never blocks the others, and the
// observable outcome is always an idle session with a cleared listing.
func (c *Connection) Disconnect() {
	c.loop.Post(func() {
		if c.status == StatusIdle || c.status == StatusDisconnecting {
			c.rows = nil
			c.publish(StatusIdle, "", "")
			return
		}
		c.teardown("")
	})
}

// teardown runs on the loop. Bumping the epoch invalidates any dial still
// in flight, so a Connect completing later cannot resurrect the session.
func (c *Connection) teardown(message string) {
	c.epoch++
	c.connecting = false
	c.publish(StatusDisconnecting, "", "")
	shell, control, files := c.shell, c.control, c.files
	c.shell, c.control, c.files, c.pipe = nil, nil, nil, nil
	c.rows = nil
	c.remotePath = "/"
	go func() {
		if shell != nil {
			shell.Stop()
		}
		if control != nil {
			if err := control.Disconnect(); err != nil {
				log.Warn().Err(err).Str("session", c.name).Msg("orchestrator: control channel close")
			}
		}
		if files != nil {
			if err := files.Disconnect(); err != nil {
				log.Warn().Err(err).Str("session", c.name).Msg("orchestrator: file channel close")
			}
		}
		c.loop.Post(func() { c.publish(StatusIdle, message, "") })
	}()
}

// RefreshFiles reloads the listing at the current remote path. A listing
// failure is reported and the previous rows stay on screen.
func (c *Connection) RefreshFiles(ctx context.Context) {
	c.loop.Post(func() { c.refreshLocked(ctx) })
}

func (c *Connection) refreshLocked(ctx context.Context) {
	c.refreshInto(ctx, c.remotePath)
}

// refreshInto lists dir and, on success, makes it the current remote path.
// A failed listing reports the error and leaves both the previous rows and
// the previous path in place, so navigation into an unlistable directory
// never strands the session there.
func (c *Connection) refreshInto(ctx context.Context, dir string) {
	if c.status != StatusConnected {
		return
	}
	files := c.files
	epoch := c.epoch
	go func() {
		entries, err := files.List(dir)
		c.loop.Post(func() {
			if c.status != StatusConnected || c.epoch != epoch {
				return
			}
			if err != nil {
				c.reportError(err)
				return
			}
			c.remotePath = dir
			c.rows = formatRows(entries, dir)
			c.notify(Event{Session: c.name, Status: c.status, Message: "listing refreshed"})
		})
	}()
}

// Sync pulls the shell's working directory into the current remote path by
// running pwd over the control channel, then refreshes. A failure leaves the
// path untouched.
func (c *Connection) Sync(ctx context.Context) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		control := c.control
		go func() {
			out, status, err := control.Run(ctx, "pwd")
			c.loop.Post(func() {
				if c.status != StatusConnected {
					return
				}
				if err != nil {
					c.reportError(err)
					return
				}
				if status != 0 {
					c.reportError(fmt.Errorf("orchestrator: pwd exited %d: %s", status, out))
					return
				}
				dir := strings.TrimSpace(out)
				if !path.IsAbs(dir) {
					c.reportError(fmt.Errorf("orchestrator: pwd returned %q", dir))
					return
				}
				c.refreshInto(ctx, path.Clean(dir))
			})
		}()
	})
}

// ChangeDir navigates to a directory entry of the current listing. ".."
// walks up; the path stays absolute and clean.
func (c *Connection) ChangeDir(ctx context.Context, name string) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		target := path.Join(c.remotePath, name)
		if name == ".." {
			target = path.Dir(c.remotePath)
		}
		c.refreshInto(ctx, target)
	})
}

// RenameSelected renames one entry inside the current directory and
// refreshes.
func (c *Connection) RenameSelected(ctx context.Context, oldName, newName string) {
	c.withFiles(ctx, func(files fileChannel, dir string) error {
		return files.Rename(path.Join(dir, oldName), path.Join(dir, newName))
	})
}

// MkdirSelected creates a subdirectory of the current directory.
func (c *Connection) MkdirSelected(ctx context.Context, name string) {
	c.withFiles(ctx, func(files fileChannel, dir string) error {
		return files.Mkdir(path.Join(dir, name))
	})
}

// RemoveSelected deletes one entry of the current directory.
func (c *Connection) RemoveSelected(ctx context.Context, name string) {
	c.withFiles(ctx, func(files fileChannel, dir string) error {
		return files.Remove(path.Join(dir, name))
	})
}

// withFiles offloads one file-channel mutation and refreshes on success.
func (c *Connection) withFiles(ctx context.Context, op func(fileChannel, string) error) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		files := c.files
		dir := c.remotePath
		go func() {
			err := op(files, dir)
			c.loop.Post(func() {
				if err != nil {
					c.reportError(err)
					return
				}
				c.refreshLocked(ctx)
			})
		}()
	})
}

// DownloadSelected fetches one entry of the current directory to localDest.
// Directories go through the archive pipeline, files stream directly.
func (c *Connection) DownloadSelected(ctx context.Context, name, localDest string) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		files, pipe := c.files, c.pipe
		target := path.Join(c.remotePath, name)
		go func() {
			err := downloadEntry(ctx, files, pipe, target, name, localDest)
			c.loop.Post(func() {
				if err != nil {
					c.reportError(err)
					return
				}
				c.notify(Event{Session: c.name, Status: c.status, Message: fmt.Sprintf("downloaded %s", name)})
			})
		}()
	})
}

func downloadEntry(ctx context.Context, files fileChannel, pipe *transfer.Pipeline, target, name, localDest string) error {
	attr, err := files.Attributes(target)
	if err != nil {
		return err
	}
	if attr.IsDir {
		return pipe.DownloadFolder(ctx, target, localDest)
	}
	f, err := os.Create(filepath.Join(localDest, name))
	if err != nil {
		return fmt.Errorf("orchestrator: create %q: %w", name, err)
	}
	if err := files.Download(target, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OpenEntry decides open-vs-navigate for one entry: directories navigate,
// files download into the scratch directory for viewing. A failed stat on
// the entry is a skip, not a fatal error.
func (c *Connection) OpenEntry(ctx context.Context, name string) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		files := c.files
		target := path.Join(c.remotePath, name)
		go func() {
			attr, err := files.Attributes(target)
			c.loop.Post(func() {
				if c.status != StatusConnected {
					return
				}
				if err != nil {
					var attrErr *remote.AttributeError
					if errors.As(err, &attrErr) {
						log.Debug().Str("path", target).Msg("orchestrator: open target not stattable, skipping")
						return
					}
					c.reportError(err)
					return
				}
				if attr.IsDir {
					c.refreshInto(ctx, target)
					return
				}
				c.DownloadSelected(ctx, name, c.scratchDir)
			})
		}()
	})
}

// UploadFolder pushes a local directory tree into remoteDest, or into the
// current remote path when remoteDest is empty.
func (c *Connection) UploadFolder(ctx context.Context, localDir, remoteDest string) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		pipe := c.pipe
		dest := remoteDest
		if dest == "" {
			dest = c.remotePath
		}
		go func() {
			err := pipe.UploadFolder(ctx, localDir, dest)
			c.loop.Post(func() {
				if err != nil {
					c.reportError(err)
					return
				}
				c.notify(Event{Session: c.name, Status: c.status, Message: "uploaded " + filepath.Base(localDir)})
				c.refreshLocked(ctx)
			})
		}()
	})
}

// DownloadFolder pulls one directory entry of the current path to localDest.
func (c *Connection) DownloadFolder(ctx context.Context, name, localDest string) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		pipe := c.pipe
		target := path.Join(c.remotePath, name)
		go func() {
			err := pipe.DownloadFolder(ctx, target, localDest)
			c.loop.Post(func() {
				if err != nil {
					c.reportError(err)
					return
				}
				c.notify(Event{Session: c.name, Status: c.status, Message: "downloaded " + name})
			})
		}()
	})
}

// CompressSelected archives one entry next to itself in the chosen format.
func (c *Connection) CompressSelected(ctx context.Context, name string, format transfer.Format) {
	c.withPipeline(ctx, "compressed "+name, func(pipe *transfer.Pipeline, dir string) error {
		return pipe.CompressEntry(ctx, dir, name, format)
	})
}

// ExtractSelected unpacks one archive entry in place. An unsupported suffix
// is reported as information, not failure.
func (c *Connection) ExtractSelected(ctx context.Context, name string) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		pipe := c.pipe
		dir := c.remotePath
		go func() {
			err := pipe.ExtractEntry(ctx, dir, name)
			c.loop.Post(func() {
				if errors.Is(err, transfer.ErrUnsupportedArchive) {
					c.notify(Event{Session: c.name, Status: c.status, Message: err.Error()})
					return
				}
				if err != nil {
					c.reportError(err)
					return
				}
				c.refreshLocked(ctx)
			})
		}()
	})
}

// withPipeline offloads one pipeline operation bound to the current remote
// path and refreshes on success.
func (c *Connection) withPipeline(ctx context.Context, doneMsg string, op func(*transfer.Pipeline, string) error) {
	c.loop.Post(func() {
		if c.status != StatusConnected {
			return
		}
		pipe := c.pipe
		dir := c.remotePath
		go func() {
			err := op(pipe, dir)
			c.loop.Post(func() {
				if err != nil {
					c.reportError(err)
					return
				}
				c.notify(Event{Session: c.name, Status: c.status, Message: doneMsg})
				c.refreshLocked(ctx)
			})
		}()
	})
}

// maxTextFileSize caps synchronous single-file reads and writes.
const maxTextFileSize = 2 << 20

type cappedWriter struct {
	buf   []byte
	limit int
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if len(w.buf)+len(p) > w.limit {
		return 0, fmt.Errorf("orchestrator: file exceeds %d bytes", w.limit)
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// ReadFile fetches one file of the current directory, capped at 2 MB.
// Unlike the posted operations it is synchronous: the file channel guards
// itself, so the read runs on the caller's goroutine.
func (c *Connection) ReadFile(name string) ([]byte, error) {
	var files fileChannel
	var target string
	c.loop.Call(func() {
		if c.status == StatusConnected {
			files = c.files
			target = path.Join(c.remotePath, name)
		}
	})
	if files == nil {
		return nil, fmt.Errorf("orchestrator: session %q is not connected", c.name)
	}
	w := &cappedWriter{limit: maxTextFileSize}
	if err := files.Download(target, w); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// WriteFile stores data as one file of the current directory, same cap as
// ReadFile, then refreshes the listing.
func (c *Connection) WriteFile(ctx context.Context, name string, data []byte) error {
	if len(data) > maxTextFileSize {
		return fmt.Errorf("orchestrator: file exceeds %d bytes", maxTextFileSize)
	}
	var files fileChannel
	var target string
	c.loop.Call(func() {
		if c.status == StatusConnected {
			files = c.files
			target = path.Join(c.remotePath, name)
		}
	})
	if files == nil {
		return fmt.Errorf("orchestrator: session %q is not connected", c.name)
	}
	if err := files.Upload(bytes.NewReader(data), target); err != nil {
		return err
	}
	c.RefreshFiles(ctx)
	return nil
}

// WriteShell forwards terminal input to the shell's PTY.
func (c *Connection) WriteShell(p []byte) (int, error) {
	var shell shellHost
	c.loop.Call(func() { shell = c.shell })
	if shell == nil {
		return 0, fmt.Errorf("orchestrator: session %q has no shell", c.name)
	}
	return shell.Write(p)
}

// ResizeShell resizes the shell's PTY.
func (c *Connection) ResizeShell(rows, cols uint16) error {
	var shell shellHost
	c.loop.Call(func() { shell = c.shell })
	if shell == nil {
		return fmt.Errorf("orchestrator: session %q has no shell", c.name)
	}
	return shell.Resize(rows, cols)
}
