// Package shellhost attaches an interactive login shell to a display
// surface and reports when the shell process terminates.
package shellhost

import (
	"io"
	"time"
)

// SurfaceProvider is the embedding target the shell's output attaches to.
// The surface is owned by the presentation layer and may not exist yet when
// a shell host is asked to start; Ready flips true once it has been realized.
type SurfaceProvider interface {
	// Ready reports whether the surface can accept output.
	Ready() bool
	// ID is a stable identifier for the surface, usable by the spawned
	// shell process and in logs.
	ID() string
	// Output receives the shell's PTY byte stream once attached.
	Output() io.Writer
}

// Scheduler defers work onto the orchestrator's control loop. The host uses
// it for attachment retries and for delivering the exit notification, so all
// downstream state mutation stays single-threaded.
type Scheduler interface {
	Post(fn func())
	PostAfter(d time.Duration, fn func())
}
