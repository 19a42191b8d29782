// Package routes wires the HTTP and WebSocket API: session management over
// the store, tab operations against the orchestrator, and the terminal
// WebSocket that realizes the shell's display surface.
package routes

import (
	"encoding/json"
	"net/http"
	"path"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/termhub/workbench/internal/orchestrator"
	"github.com/termhub/workbench/internal/session"
	"github.com/termhub/workbench/internal/worker"
)

// Deps carries everything the routes operate on. Worker may be nil when
// Redis is not configured; folder transfers then run in-process.
type Deps struct {
	Store        *session.Store
	Orchestrator *orchestrator.Orchestrator
	Worker       *worker.Worker
}

type handler struct {
	store *session.Store
	orch  *orchestrator.Orchestrator
	bg    *worker.Worker

	mu       sync.Mutex
	surfaces map[string]*wsSurface
}

func Register(r chi.Router, deps Deps) {
	h := &handler{
		store:    deps.Store,
		orch:     deps.Orchestrator,
		bg:       deps.Worker,
		surfaces: make(map[string]*wsSurface),
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/events", h.eventsSocket)
		api.Route("/sessions", func(sr chi.Router) {
			sr.Get("/", h.listSessions)
			sr.Post("/", h.saveSession)
			sr.Route("/{name}", func(tr chi.Router) {
				tr.Put("/", h.saveSession)
				tr.Delete("/", h.deleteSession)
				tr.Get("/shell", h.shellSocket)

				tr.Post("/connect", h.connect)
				tr.Post("/disconnect", h.disconnect)
				tr.Post("/refresh", h.refresh)
				tr.Post("/sync", h.sync)
				tr.Get("/listing", h.listing)
				tr.Post("/chdir", h.chdir)
				tr.Post("/open", h.open)
				tr.Post("/rename", h.rename)
				tr.Post("/mkdir", h.mkdir)
				tr.Post("/remove", h.remove)
				tr.Post("/compress", h.compress)
				tr.Post("/extract", h.extract)
				tr.Post("/download", h.download)
				tr.Post("/folders/upload", h.uploadFolder)
				tr.Post("/folders/download", h.downloadFolder)
				tr.Get("/file", h.readFile)
				tr.Put("/file", h.writeFile)
			})
		})
	})
}

// surface returns the session's display surface handle, creating it on
// first use. The handle outlives individual WebSocket attachments.
func (h *handler) surface(name string) *wsSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[name]
	if !ok {
		s = newWSSurface(name)
		h.surfaces[name] = s
	}
	return s
}

func (h *handler) connection(w http.ResponseWriter, r *http.Request) (*orchestrator.Connection, bool) {
	name := chi.URLParam(r, "name")
	conn, err := h.orch.Open(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return conn, true
}

func connName(r *http.Request) string {
	return chi.URLParam(r, "name")
}

func joinRemote(dir, name string) string {
	return path.Join(dir, name)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}
