// Package orchestrator owns per-session tab state: the connection state
// machine, the listing bound to a current remote path, and the transfer
// operations that borrow the session's channels.
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/termhub/workbench/internal/session"
)

// Orchestrator holds one Connection per session name. Connections are
// created lazily on first use and reused across connect/disconnect cycles,
// fully independent of each other.
type Orchestrator struct {
	loop       *Loop
	store      *session.Store
	scratchDir string
	events     chan Event

	mu    sync.Mutex
	conns map[string]*Connection
}

func New(store *session.Store, scratchDir string) *Orchestrator {
	return &Orchestrator{
		loop:       NewLoop(),
		store:      store,
		scratchDir: scratchDir,
		events:     make(chan Event, 128),
		conns:      make(map[string]*Connection),
	}
}

// Events is the stream of status updates for the presentation layer.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Open returns the Connection for a saved session, creating it on first
// use. The session list is only read here, never mutated.
func (o *Orchestrator) Open(name string) (*Connection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conn, ok := o.conns[name]; ok {
		return conn, nil
	}

	records, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	rec, ok := session.Find(records, name)
	if !ok {
		return nil, fmt.Errorf("orchestrator: unknown session %q", name)
	}

	conn := newConnection(name, rec, o.loop, o.scratchDir, o.publish)
	o.conns[name] = conn
	return conn, nil
}

// publish never blocks the control loop; if the consumer lags, updates are
// dropped rather than stalling session operations.
func (o *Orchestrator) publish(ev Event) {
	select {
	case o.events <- ev:
	default:
		log.Debug().Str("session", ev.Session).Str("status", string(ev.Status)).Msg("orchestrator: event dropped")
	}
}

// Shutdown disconnects every session and stops the control loop.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	conns := make([]*Connection, 0, len(o.conns))
	for _, conn := range o.conns {
		conns = append(conns, conn)
	}
	o.mu.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
	// Barrier: the disconnect tasks are queued ahead of this call, so they
	// have all started their teardown before the loop stops.
	o.loop.Call(func() {})
	o.loop.Stop()
}
