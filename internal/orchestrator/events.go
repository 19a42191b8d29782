package orchestrator

import (
	"sort"
	"strconv"

	"github.com/termhub/workbench/internal/remote"
)

// Status names a Connection's lifecycle phase.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
)

// Event is a status update published to the presentation layer. Error is
// empty for plain transitions; a shell exit arrives as a transition to
// StatusIdle, not as an error.
type Event struct {
	Session string `json:"session"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Row is one formatted listing line. Directories carry "-" for size and
// modification time.
type Row struct {
	Name     string `json:"name"`
	IsDir    bool   `json:"isDir"`
	Size     string `json:"size"`
	Modified string `json:"modified"`
}

const modifiedLayout = "2006-01-02 15:04"

// formatRows orders a listing for display: a synthetic ".." first whenever
// the path is not the root, then directories, then files, each group sorted
// by name.
func formatRows(entries []remote.Entry, currentPath string) []Row {
	dirs := make([]Row, 0, len(entries))
	files := make([]Row, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, Row{Name: e.Name, IsDir: true, Size: "-", Modified: "-"})
			continue
		}
		files = append(files, Row{
			Name:     e.Name,
			Size:     strconv.FormatInt(e.Size, 10),
			Modified: e.ModTime.Format(modifiedLayout),
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	rows := make([]Row, 0, len(entries)+1)
	if currentPath != "/" {
		rows = append(rows, Row{Name: "..", IsDir: true, Size: "-", Modified: "-"})
	}
	rows = append(rows, dirs...)
	rows = append(rows, files...)
	return rows
}
