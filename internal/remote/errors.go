package remote

import (
	"errors"
	"fmt"
)

// ErrAuthConfig reports a session record with neither a password nor a
// private key. It is a configuration error: the attempt fails before any
// network I/O and is never retried.
var ErrAuthConfig = errors.New("remote: no usable credential configured")

// ConnectError wraps a network or handshake failure while opening a channel.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("remote: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ListError wraps a directory listing failure. Callers surface the message
// and keep the previous listing on screen.
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("remote: list %q: %v", e.Path, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// AttributeError wraps a failed attribute query on a missing or forbidden
// path. Callers probing unknown targets treat it as skip, not fatal.
type AttributeError struct {
	Path string
	Err  error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("remote: stat %q: %v", e.Path, e.Err)
}

func (e *AttributeError) Unwrap() error { return e.Err }

// TransferError wraps an upload, download, rename or remove failure.
// Transfers are whole-operation: there is no partial-progress contract.
type TransferError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("remote: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
