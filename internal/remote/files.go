package remote

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/sftp"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/termhub/workbench/internal/session"
)

// Entry is a single file or directory in a remote listing.
type Entry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Attr is the subset of remote attributes callers decide on.
type Attr struct {
	IsDir bool `json:"is_dir"`
}

// FileChannel lists directories and moves file streams over an SFTP
// subsystem on a dedicated SSH connection. At most one live connection per
// channel; Disconnect clears it so the channel can be reconnected later.
type FileChannel struct {
	rec session.Record

	mu         sync.Mutex
	sshClient  *cryptossh.Client
	sftpClient *sftp.Client
}

func NewFileChannel(rec session.Record) *FileChannel {
	return &FileChannel{rec: rec}
}

// Connect dials SSH and opens the SFTP subsystem. ErrAuthConfig when the
// record has no usable credential; ConnectError on dial/handshake failure.
func (c *FileChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftpClient != nil {
		return nil
	}

	sshClient, err := dial(ctx, c.rec)
	if err != nil {
		return err
	}
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return &ConnectError{Addr: c.rec.Host, Err: fmt.Errorf("open sftp subsystem: %w", err)}
	}

	c.sshClient = sshClient
	c.sftpClient = sftpClient
	return nil
}

// Connected reports whether the channel currently holds a live connection.
func (c *FileChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sftpClient != nil
}

// Disconnect releases the SFTP and SSH connections. Idempotent and safe on
// a never-opened channel.
func (c *FileChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftpClient == nil {
		return nil
	}
	_ = c.sftpClient.Close()
	err := c.sshClient.Close()
	c.sftpClient = nil
	c.sshClient = nil
	return err
}

func (c *FileChannel) client() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftpClient == nil {
		return nil, fmt.Errorf("remote: file channel not connected")
	}
	return c.sftpClient, nil
}

// List returns the entries of a remote directory. The remote side's own "."
// and ".." entries are excluded; the caller synthesizes its own ".." when
// appropriate.
func (c *FileChannel) List(dirPath string) ([]Entry, error) {
	client, err := c.client()
	if err != nil {
		return nil, &ListError{Path: dirPath, Err: err}
	}

	infos, err := client.ReadDir(dirPath)
	if err != nil {
		return nil, &ListError{Path: dirPath, Err: err}
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	return entries, nil
}

// Attributes stats a remote path. Missing or forbidden paths come back as
// AttributeError so callers can choose to skip rather than fail.
func (c *FileChannel) Attributes(path string) (Attr, error) {
	client, err := c.client()
	if err != nil {
		return Attr{}, &AttributeError{Path: path, Err: err}
	}
	fi, err := client.Stat(path)
	if err != nil {
		return Attr{}, &AttributeError{Path: path, Err: err}
	}
	return Attr{IsDir: fi.IsDir()}, nil
}

// Upload writes src to remotePath as one whole operation.
func (c *FileChannel) Upload(src io.Reader, remotePath string) error {
	client, err := c.client()
	if err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		_ = client.Remove(remotePath)
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	return nil
}

// Download streams the remote file into dst as one whole operation.
func (c *FileChannel) Download(remotePath string, dst io.Writer) error {
	client, err := c.client()
	if err != nil {
		return &TransferError{Op: "download", Path: remotePath, Err: err}
	}

	f, err := client.Open(remotePath)
	if err != nil {
		return &TransferError{Op: "download", Path: remotePath, Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(dst, f); err != nil {
		return &TransferError{Op: "download", Path: remotePath, Err: err}
	}
	return nil
}

// Rename moves oldPath to newPath.
func (c *FileChannel) Rename(oldPath, newPath string) error {
	client, err := c.client()
	if err != nil {
		return &TransferError{Op: "rename", Path: oldPath, Err: err}
	}
	if err := client.Rename(oldPath, newPath); err != nil {
		return &TransferError{Op: "rename", Path: oldPath, Err: err}
	}
	return nil
}

// Remove deletes a remote file.
func (c *FileChannel) Remove(path string) error {
	client, err := c.client()
	if err != nil {
		return &TransferError{Op: "remove", Path: path, Err: err}
	}
	if err := client.Remove(path); err != nil {
		return &TransferError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// Mkdir creates a remote directory (no intermediate directories).
func (c *FileChannel) Mkdir(path string) error {
	client, err := c.client()
	if err != nil {
		return &TransferError{Op: "mkdir", Path: path, Err: err}
	}
	if err := client.Mkdir(path); err != nil {
		return &TransferError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}
