package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	cryptossh "golang.org/x/crypto/ssh"

	"github.com/termhub/workbench/internal/session"
)

// ControlChannel executes one-shot commands on the session's host. One
// underlying connection may serve many Run calls between Connect and
// Disconnect, but each Run gets a fresh SSH session, so command state never
// bleeds between invocations.
//
// Callers are responsible for shell-quoting every interpolated path
// argument; see transfer.Quote.
type ControlChannel struct {
	rec session.Record

	mu     sync.Mutex
	client *cryptossh.Client
}

func NewControlChannel(rec session.Record) *ControlChannel {
	return &ControlChannel{rec: rec}
}

// Connect opens the underlying SSH connection. ErrAuthConfig when the record
// has no usable credential; a ConnectError on dial or handshake failure.
func (c *ControlChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}
	client, err := dial(ctx, c.rec)
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// Run executes command in a fresh SSH session and returns captured combined
// output plus the remote exit status. A non-zero exit is not an error — the
// status conveys it; err reports transport-level failures only.
func (c *ControlChannel) Run(ctx context.Context, command string) (string, int, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return "", 0, fmt.Errorf("remote: control channel not connected")
	}

	sess, err := client.NewSession()
	if err != nil {
		return "", 0, fmt.Errorf("remote: new session: %w", err)
	}
	defer sess.Close()

	type result struct {
		output []byte
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		out, runErr := sess.CombinedOutput(command)
		ch <- result{out, runErr}
	}()

	select {
	case <-ctx.Done():
		_ = sess.Close()
		return "", 0, ctx.Err()
	case r := <-ch:
		output := strings.TrimSpace(string(r.output))
		if r.err != nil {
			var exitErr *cryptossh.ExitError
			if errors.As(r.err, &exitErr) {
				return output, exitErr.ExitStatus(), nil
			}
			return output, 0, fmt.Errorf("remote: run %q: %w", command, r.err)
		}
		return output, 0, nil
	}
}

// Disconnect closes the underlying connection. Idempotent and safe to call
// on a never-opened channel.
func (c *ControlChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
