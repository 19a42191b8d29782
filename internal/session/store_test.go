package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaultStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store := NewStore(path)

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 default record, got %d", len(records))
	}
	if records[0].Name != "localhost" {
		t.Errorf("default record name: got %q", records[0].Name)
	}
	if records[0].RemotePath != "/" {
		t.Errorf("default remote path: got %q", records[0].RemotePath)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default store was not persisted: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store := NewStore(path)

	in := []Record{
		{Name: "build", Host: "build.internal", Port: 2222, Username: "ci", Password: "p4ss", RemotePath: "/srv"},
		{Name: "web", Host: "web.internal", Username: "deploy", PrivateKeyPath: "/home/deploy/.ssh/id_ed25519", PrivateKeyPassphrase: "phrase"},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0].Password != "p4ss" {
		t.Errorf("password did not round-trip: got %q", out[0].Password)
	}
	if out[1].PrivateKeyPassphrase != "phrase" {
		t.Errorf("passphrase did not round-trip: got %q", out[1].PrivateKeyPassphrase)
	}
	// Normalize fills the default port.
	if out[1].Port != 22 {
		t.Errorf("expected default port 22, got %d", out[1].Port)
	}
}

func TestSecretsEncryptedOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store := NewStore(path)

	if err := store.Save([]Record{{Name: "s", Host: "h", Username: "u", Password: "topsecret"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "topsecret") {
		t.Fatal("plaintext password found in store file")
	}

	var onDisk []Record
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("store file is not valid JSON: %v", err)
	}
	if onDisk[0].Password == "" || onDisk[0].Password == "topsecret" {
		t.Fatal("password not encrypted on disk")
	}
}

func TestFind(t *testing.T) {
	records := []Record{{Name: "a"}, {Name: "b"}}
	if _, ok := Find(records, "b"); !ok {
		t.Fatal("expected to find record b")
	}
	if _, ok := Find(records, "c"); ok {
		t.Fatal("did not expect to find record c")
	}
}

func TestHasCredential(t *testing.T) {
	if (Record{}).HasCredential() {
		t.Error("empty record should have no credential")
	}
	if !(Record{Password: "x"}).HasCredential() {
		t.Error("password record should have a credential")
	}
	if !(Record{PrivateKeyPath: "/k"}).HasCredential() {
		t.Error("key record should have a credential")
	}
}
