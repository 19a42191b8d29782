package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var wsUpgrader = websocket.Upgrader{
	// All origins pass the upgrade check; the CORS policy on the router
	// governs browser access for this single-server deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSurface is the display surface a session's shell attaches to. It exists
// from the moment a connect is requested and becomes ready once a terminal
// WebSocket attaches. PTY output written while no socket is attached is
// dropped, which mirrors a terminal window that is not yet open.
type wsSurface struct {
	id string

	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSurface(id string) *wsSurface {
	return &wsSurface{id: id}
}

func (s *wsSurface) ID() string { return s.id }

func (s *wsSurface) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *wsSurface) Output() io.Writer { return s }

func (s *wsSurface) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return len(p), nil
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsSurface) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return false
	}
	s.conn = conn
	return true
}

func (s *wsSurface) detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

// shellSocket is the terminal WebSocket: binary frames carry raw PTY bytes
// in both directions; frames prefixed with 0x00 (or text frames) carry JSON
// control messages, currently resize.
func (h *handler) shellSocket(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	surface := h.surface(connName(r))

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	if !surface.attach(ws) {
		_ = writeWSControl(ws, "error", "a terminal is already attached to this session")
		return
	}
	defer surface.detach(ws)

	for {
		mt, msg, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if mt == websocket.TextMessage || (len(msg) > 0 && msg[0] == 0x00) {
			h.handleControlFrame(conn, msg)
			continue
		}
		if _, err := conn.WriteShell(msg); err != nil {
			log.Debug().Err(err).Str("session", connName(r)).Msg("routes: shell write")
		}
	}
}

func (h *handler) handleControlFrame(conn shellSink, raw []byte) {
	if len(raw) > 0 && raw[0] == 0x00 {
		raw = raw[1:]
	}
	var ctrl struct {
		Type string `json:"type"`
		Rows uint16 `json:"rows"`
		Cols uint16 `json:"cols"`
	}
	if err := json.Unmarshal(raw, &ctrl); err != nil {
		return
	}
	if ctrl.Type == "resize" && ctrl.Rows > 0 && ctrl.Cols > 0 {
		if err := conn.ResizeShell(ctrl.Rows, ctrl.Cols); err != nil {
			log.Debug().Err(err).Msg("routes: resize")
		}
	}
}

// shellSink is the slice of the connection the control-frame handler needs.
type shellSink interface {
	ResizeShell(rows, cols uint16) error
}

func writeWSControl(conn *websocket.Conn, msgType, message string) error {
	data, _ := json.Marshal(map[string]string{"type": msgType, "message": message})
	return conn.WriteMessage(websocket.BinaryMessage, append([]byte{0x00}, data...))
}

// eventsSocket streams orchestrator status updates as JSON text frames.
// One consumer at a time reads the event stream.
func (h *handler) eventsSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	// Drain client frames so pings and closes are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-h.orch.Events():
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
