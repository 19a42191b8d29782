package transfer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestTarArchiverRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not on PATH")
	}

	src := filepath.Join(t.TempDir(), "project")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "readme.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "data.bin"), []byte{0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "project.tar.gz")
	dest := t.TempDir()

	var arch TarArchiver
	ctx := context.Background()
	if err := arch.Compress(ctx, src, archive); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := arch.Extract(ctx, archive, dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "project", "readme.txt"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("readme.txt = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "project", "nested", "data.bin")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
}

func TestTarArchiverCompressCommand(t *testing.T) {
	orig := runCommandFn
	defer func() { runCommandFn = orig }()

	var got []string
	runCommandFn = func(cmd *exec.Cmd) error {
		got = cmd.Args
		return nil
	}

	var arch TarArchiver
	if err := arch.Compress(context.Background(), "/work/site", "/scratch/site.tar.gz"); err != nil {
		t.Fatal(err)
	}
	want := "tar -czf /scratch/site.tar.gz -C /work site"
	if strings.Join(got, " ") != want {
		t.Errorf("args = %q, want %q", strings.Join(got, " "), want)
	}
}
