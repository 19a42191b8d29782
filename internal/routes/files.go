package routes

import (
	"fmt"
	"io"
	"net/http"
)

// maxFileBody caps single-file writes at the same 2 MB as reads.
const maxFileBody = 2 << 20

// readFile returns one file of the session's current directory as plain
// bytes for the text viewer.
func (h *handler) readFile(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routes: name query parameter is required"))
		return
	}
	data, err := conn.ReadFile(name)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeFile stores the request body as one file of the current directory.
func (h *handler) writeFile(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routes: name query parameter is required"))
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFileBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err := conn.WriteFile(r.Context(), name, data); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
