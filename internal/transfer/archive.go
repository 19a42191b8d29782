package transfer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Archiver compresses and extracts local directory trees.
type Archiver interface {
	// Compress writes srcDir (rooted at its base name) into archivePath.
	Compress(ctx context.Context, srcDir, archivePath string) error
	// Extract unpacks archivePath into destDir.
	Extract(ctx context.Context, archivePath, destDir string) error
}

// runCommandFn is swappable in tests.
var runCommandFn = func(cmd *exec.Cmd) error {
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

// TarArchiver shells out to the local tar binary. Archives are gzip tarballs
// rooted at the source directory's base name, matching what the remote side
// produces, so upload and download trees stay symmetric.
type TarArchiver struct{}

func (TarArchiver) Compress(ctx context.Context, srcDir, archivePath string) error {
	parent := filepath.Dir(srcDir)
	base := filepath.Base(srcDir)
	cmd := exec.CommandContext(ctx, "tar", "-czf", archivePath, "-C", parent, base)
	if err := runCommandFn(cmd); err != nil {
		return fmt.Errorf("transfer: local compress %q: %w", srcDir, err)
	}
	return nil
}

func (TarArchiver) Extract(ctx context.Context, archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("transfer: create dest %q: %w", destDir, err)
	}
	cmd := exec.CommandContext(ctx, "tar", "-xzf", archivePath, "-C", destDir)
	if err := runCommandFn(cmd); err != nil {
		return fmt.Errorf("transfer: local extract %q: %w", archivePath, err)
	}
	return nil
}

var _ Archiver = TarArchiver{}
