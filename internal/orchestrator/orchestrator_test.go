package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/termhub/workbench/internal/session"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	records := []session.Record{
		{Name: "alpha", Host: "a.example", Username: "u", Password: "p"},
		{Name: "beta", Host: "b.example", Username: "u", Password: "p"},
	}
	if err := store.Save(records); err != nil {
		t.Fatal(err)
	}
	o := New(store, t.TempDir())
	t.Cleanup(o.Shutdown)
	return o
}

func TestOpenCreatesLazilyAndReuses(t *testing.T) {
	o := newTestOrchestrator(t)

	first, err := o.Open("alpha")
	if err != nil {
		t.Fatal(err)
	}
	again, err := o.Open("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Error("same session name must reuse the Connection")
	}

	other, err := o.Open("beta")
	if err != nil {
		t.Fatal(err)
	}
	if other == first {
		t.Error("different sessions must get independent Connections")
	}
}

func TestOpenUnknownSession(t *testing.T) {
	o := newTestOrchestrator(t)
	if _, err := o.Open("ghost"); err == nil {
		t.Fatal("want error for unknown session")
	}
}

func TestConnectionsStartIdle(t *testing.T) {
	o := newTestOrchestrator(t)
	conn, err := o.Open("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if got := conn.Status(); got != StatusIdle {
		t.Errorf("status = %s, want idle", got)
	}
	p, rows := conn.Listing()
	if p != "/" || rows != nil {
		t.Errorf("fresh connection listing = %q %v", p, rows)
	}
}
