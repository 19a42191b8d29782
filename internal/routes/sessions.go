package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/termhub/workbench/internal/session"
)

// sessionView is the read shape of a saved session. Secrets never leave the
// store; the flags tell the client which credentials exist.
type sessionView struct {
	Name           string `json:"name"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	PrivateKeyPath string `json:"privateKeyPath,omitempty"`
	RemotePath     string `json:"remotePath"`
	HasPassword    bool   `json:"hasPassword"`
	HasPassphrase  bool   `json:"hasPassphrase"`
}

func viewOf(rec session.Record) sessionView {
	return sessionView{
		Name:           rec.Name,
		Host:           rec.Host,
		Port:           rec.Port,
		Username:       rec.Username,
		PrivateKeyPath: rec.PrivateKeyPath,
		RemotePath:     rec.RemotePath,
		HasPassword:    rec.Password != "",
		HasPassphrase:  rec.PrivateKeyPassphrase != "",
	}
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]sessionView, len(records))
	for i, rec := range records {
		views[i] = viewOf(rec)
	}
	writeJSON(w, http.StatusOK, views)
}

// saveSession creates or replaces a record. On PUT the path name wins over
// the body; an empty secret in the body keeps the stored one.
func (h *handler) saveSession(w http.ResponseWriter, r *http.Request) {
	var rec session.Record
	if !decodeBody(w, r, &rec) {
		return
	}
	if name := chi.URLParam(r, "name"); name != "" {
		rec.Name = name
	}
	if rec.Name == "" || rec.Host == "" || rec.Username == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routes: name, host and username are required"))
		return
	}
	rec = rec.Normalize()

	records, err := h.store.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	replaced := false
	for i, existing := range records {
		if existing.Name != rec.Name {
			continue
		}
		if rec.Password == "" {
			rec.Password = existing.Password
		}
		if rec.PrivateKeyPassphrase == "" {
			rec.PrivateKeyPassphrase = existing.PrivateKeyPassphrase
		}
		records[i] = rec
		replaced = true
		break
	}
	if !replaced {
		records = append(records, rec)
	}

	if err := h.store.Save(records); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	records, err := h.store.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.Name != name {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		writeError(w, http.StatusNotFound, fmt.Errorf("routes: unknown session %q", name))
		return
	}
	if err := h.store.Save(kept); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
