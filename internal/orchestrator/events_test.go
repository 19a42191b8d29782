package orchestrator

import (
	"reflect"
	"testing"
	"time"

	"github.com/termhub/workbench/internal/remote"
)

func TestFormatRows(t *testing.T) {
	mtime := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	entries := []remote.Entry{
		{Name: "a.txt", Size: 120, ModTime: mtime},
		{Name: "docs", IsDir: true},
	}

	got := formatRows(entries, "/home/u")
	want := []Row{
		{Name: "..", IsDir: true, Size: "-", Modified: "-"},
		{Name: "docs", IsDir: true, Size: "-", Modified: "-"},
		{Name: "a.txt", Size: "120", Modified: "2024-01-01 10:00"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %+v, want %+v", got, want)
	}
}

func TestFormatRowsRootHasNoParentEntry(t *testing.T) {
	got := formatRows([]remote.Entry{{Name: "etc", IsDir: true}}, "/")
	if len(got) != 1 || got[0].Name != "etc" {
		t.Errorf("rows = %+v", got)
	}
}

func TestFormatRowsGroupsAndSorts(t *testing.T) {
	entries := []remote.Entry{
		{Name: "z.txt", Size: 1},
		{Name: "beta", IsDir: true},
		{Name: "a.txt", Size: 2},
		{Name: "alpha", IsDir: true},
	}
	got := formatRows(entries, "/data")
	order := make([]string, len(got))
	for i, r := range got {
		order[i] = r.Name
	}
	want := []string{"..", "alpha", "beta", "a.txt", "z.txt"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}
