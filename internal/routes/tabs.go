package routes

import (
	"context"
	"fmt"
	"net/http"

	"github.com/termhub/workbench/internal/transfer"
	"github.com/termhub/workbench/internal/worker"
)

// Tab operations are asynchronous: the handler posts the task onto the
// orchestrator loop and answers 202; outcomes arrive on the events socket.
// Operations deliberately run on context.Background(), not the request
// context, because they outlive the HTTP exchange.

func accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *handler) connect(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	conn.Connect(context.Background(), h.surface(connName(r)))
	accepted(w)
}

func (h *handler) disconnect(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	conn.Disconnect()
	accepted(w)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	conn.RefreshFiles(context.Background())
	accepted(w)
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	conn.Sync(context.Background())
	accepted(w)
}

func (h *handler) listing(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	path, rows := conn.Listing()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": conn.Status(),
		"path":   path,
		"rows":   rows,
	})
}

func (h *handler) chdir(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	conn.ChangeDir(context.Background(), body.Name)
	accepted(w)
}

func (h *handler) open(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	conn.OpenEntry(context.Background(), body.Name)
	accepted(w)
}

func (h *handler) rename(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.From == "" || body.To == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routes: from and to are required"))
		return
	}
	conn.RenameSelected(context.Background(), body.From, body.To)
	accepted(w)
}

func (h *handler) mkdir(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) || body.Name == "" {
		return
	}
	conn.MkdirSelected(context.Background(), body.Name)
	accepted(w)
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) || body.Name == "" {
		return
	}
	conn.RemoveSelected(context.Background(), body.Name)
	accepted(w)
}

func (h *handler) compress(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name   string `json:"name"`
		Format string `json:"format"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	format := transfer.Format(body.Format)
	if format != transfer.FormatZip && format != transfer.FormatTarGz {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routes: unknown format %q", body.Format))
		return
	}
	conn.CompressSelected(context.Background(), body.Name, format)
	accepted(w)
}

func (h *handler) extract(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) || body.Name == "" {
		return
	}
	conn.ExtractSelected(context.Background(), body.Name)
	accepted(w)
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name      string `json:"name"`
		LocalDest string `json:"localDest"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" || body.LocalDest == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routes: name and localDest are required"))
		return
	}
	conn.DownloadSelected(context.Background(), body.Name, body.LocalDest)
	accepted(w)
}

// uploadFolder pushes a local directory tree into the session's current
// remote path. With a background worker configured the transfer runs as an
// Asynq task against the saved record's own channels.
func (h *handler) uploadFolder(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		LocalPath  string `json:"localPath"`
		RemotePath string `json:"remotePath"`
	}
	if !decodeBody(w, r, &body) || body.LocalPath == "" {
		return
	}

	if h.bg != nil {
		remotePath := body.RemotePath
		if remotePath == "" {
			remotePath, _ = conn.Listing()
		}
		err := h.bg.EnqueueUpload(r.Context(), worker.FolderTransferPayload{
			Session:    connName(r),
			LocalPath:  body.LocalPath,
			RemotePath: remotePath,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		accepted(w)
		return
	}

	conn.UploadFolder(context.Background(), body.LocalPath, body.RemotePath)
	accepted(w)
}

func (h *handler) downloadFolder(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	var body struct {
		Name      string `json:"name"`
		LocalDest string `json:"localDest"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" || body.LocalDest == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routes: name and localDest are required"))
		return
	}

	if h.bg != nil {
		dir, _ := conn.Listing()
		err := h.bg.EnqueueDownload(r.Context(), worker.FolderTransferPayload{
			Session:    connName(r),
			LocalPath:  body.LocalDest,
			RemotePath: joinRemote(dir, body.Name),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		accepted(w)
		return
	}

	conn.DownloadFolder(context.Background(), body.Name, body.LocalDest)
	accepted(w)
}
