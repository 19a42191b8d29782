// Package transfer moves whole directory trees between the local machine
// and a session's host through temporary archives, and runs remote
// compress/extract on single entries.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedArchive reports an entry whose suffix matches no known
// archive format. It is informational, not a failure.
var ErrUnsupportedArchive = errors.New("transfer: unsupported archive format")

// CommandRunner executes one-shot commands on the remote host.
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, int, error)
}

// FileStore is the slice of the file channel the pipeline needs.
type FileStore interface {
	Upload(src io.Reader, remotePath string) error
	Download(remotePath string, dst io.Writer) error
	Remove(path string) error
}

// Format names a single-entry compression format.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

// pendingTransfer tracks the two temp artifacts of one folder transfer.
// Both must be deleted on every exit path, success or failure.
type pendingTransfer struct {
	localArchive  string
	remoteArchive string
}

// Pipeline composes the control channel, the file channel, and a local
// archiver into folder-granularity transfer operations.
type Pipeline struct {
	control    CommandRunner
	files      FileStore
	archiver   Archiver
	scratchDir string
}

func NewPipeline(control CommandRunner, files FileStore, archiver Archiver, scratchDir string) *Pipeline {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Pipeline{control: control, files: files, archiver: archiver, scratchDir: scratchDir}
}

// DownloadFolder copies the remote directory tree at remoteDir into
// localDest: remote tar rooted at the parent of remoteDir, download the
// archive, extract locally. Both temp archives are deleted no matter how far
// the operation got; cleanup failures are logged, never surfaced.
func (p *Pipeline) DownloadFolder(ctx context.Context, remoteDir, localDest string) error {
	base := path.Base(remoteDir)
	pending := pendingTransfer{
		localArchive:  p.localTempArchive(base),
		remoteArchive: remoteTempArchive(base),
	}
	defer p.cleanup(ctx, pending)

	compressCmd := fmt.Sprintf("tar -czf %s -C %s %s",
		Quote(pending.remoteArchive), Quote(path.Dir(remoteDir)), Quote(base))
	out, status, err := p.control.Run(ctx, compressCmd)
	if err != nil {
		return fmt.Errorf("transfer: remote compress %q: %w", remoteDir, err)
	}
	if status != 0 {
		return fmt.Errorf("transfer: remote compress %q exited %d: %s", remoteDir, status, out)
	}

	f, err := os.Create(pending.localArchive)
	if err != nil {
		return fmt.Errorf("transfer: create local archive: %w", err)
	}
	if err := p.files.Download(pending.remoteArchive, f); err != nil {
		f.Close()
		return fmt.Errorf("transfer: download archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("transfer: close local archive: %w", err)
	}

	if err := p.archiver.Extract(ctx, pending.localArchive, localDest); err != nil {
		return err
	}
	return nil
}

// UploadFolder copies the local directory tree at localDir into the remote
// directory remoteDest. Mirror image of DownloadFolder, with the same
// unconditional temp cleanup.
func (p *Pipeline) UploadFolder(ctx context.Context, localDir, remoteDest string) error {
	base := filepath.Base(localDir)
	pending := pendingTransfer{
		localArchive:  p.localTempArchive(base),
		remoteArchive: remoteTempArchive(base),
	}
	defer p.cleanup(ctx, pending)

	if err := p.archiver.Compress(ctx, localDir, pending.localArchive); err != nil {
		return err
	}

	f, err := os.Open(pending.localArchive)
	if err != nil {
		return fmt.Errorf("transfer: open local archive: %w", err)
	}
	uploadErr := p.files.Upload(f, pending.remoteArchive)
	f.Close()
	if uploadErr != nil {
		return fmt.Errorf("transfer: upload archive: %w", uploadErr)
	}

	extractCmd := fmt.Sprintf("tar -xzf %s -C %s",
		Quote(pending.remoteArchive), Quote(remoteDest))
	out, status, err := p.control.Run(ctx, extractCmd)
	if err != nil {
		return fmt.Errorf("transfer: remote extract into %q: %w", remoteDest, err)
	}
	if status != 0 {
		return fmt.Errorf("transfer: remote extract into %q exited %d: %s", remoteDest, status, out)
	}
	return nil
}

// CompressEntry produces <name>.zip or <name>.tar.gz alongside the entry
// name inside the remote directory dir. No temp files are involved.
func (p *Pipeline) CompressEntry(ctx context.Context, dir, name string, format Format) error {
	var cmd string
	switch format {
	case FormatTarGz:
		archive := path.Join(dir, name+".tar.gz")
		cmd = fmt.Sprintf("tar -czf %s -C %s %s", Quote(archive), Quote(dir), Quote(name))
	case FormatZip:
		cmd = fmt.Sprintf("cd %s && zip -r -q %s %s", Quote(dir), Quote(name+".zip"), Quote(name))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedArchive, format)
	}

	out, status, err := p.control.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("transfer: compress %q: %w", name, err)
	}
	if status != 0 {
		return fmt.Errorf("transfer: compress %q exited %d: %s", name, status, out)
	}
	return nil
}

// ExtractEntry unpacks the archive entry name inside the remote directory
// dir, dispatching on the filename suffix. An unrecognized suffix yields
// ErrUnsupportedArchive.
func (p *Pipeline) ExtractEntry(ctx context.Context, dir, name string) error {
	archive := path.Join(dir, name)
	var cmd string
	switch {
	case strings.HasSuffix(name, ".zip"):
		cmd = fmt.Sprintf("unzip -o %s -d %s", Quote(archive), Quote(dir))
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		cmd = fmt.Sprintf("tar -xzf %s -C %s", Quote(archive), Quote(dir))
	case strings.HasSuffix(name, ".tar"):
		cmd = fmt.Sprintf("tar -xf %s -C %s", Quote(archive), Quote(dir))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedArchive, name)
	}

	out, status, err := p.control.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("transfer: extract %q: %w", name, err)
	}
	if status != 0 {
		return fmt.Errorf("transfer: extract %q exited %d: %s", name, status, out)
	}
	return nil
}

// cleanup deletes both temp archives. Best effort: failures must never mask
// or block the primary operation's outcome, so they are logged and dropped.
func (p *Pipeline) cleanup(ctx context.Context, pending pendingTransfer) {
	if _, _, err := p.control.Run(ctx, "rm -f "+Quote(pending.remoteArchive)); err != nil {
		log.Warn().Err(err).Str("path", pending.remoteArchive).Msg("transfer: remote archive cleanup failed")
	}
	if err := os.Remove(pending.localArchive); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", pending.localArchive).Msg("transfer: local archive cleanup failed")
	}
}

func (p *Pipeline) localTempArchive(base string) string {
	return filepath.Join(p.scratchDir, fmt.Sprintf("%s-%s.tar.gz", base, uuid.NewString()))
}

// remoteTempArchive returns a collision-free archive path under the remote
// /tmp. The random suffix keeps concurrent operations on the same folder
// from clobbering each other.
func remoteTempArchive(base string) string {
	return path.Join("/tmp", fmt.Sprintf("%s-%s.tar.gz", base, uuid.NewString()))
}
