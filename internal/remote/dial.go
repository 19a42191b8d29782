// Package remote implements the two authenticated channels a session keeps
// open to its host: a control channel for one-shot commands and a file
// channel for listing and transfer.
package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	cryptossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/termhub/workbench/internal/session"
)

const dialTimeout = 10 * time.Second

// readFileFn is swappable in tests so key-based auth can be exercised
// without touching the real filesystem.
var readFileFn = os.ReadFile

// authMethods builds the SSH auth methods for a record. The key is tried
// before the password when both are configured.
func authMethods(rec session.Record) ([]cryptossh.AuthMethod, error) {
	if !rec.HasCredential() {
		return nil, ErrAuthConfig
	}

	var methods []cryptossh.AuthMethod
	if rec.PrivateKeyPath != "" {
		pem, err := readFileFn(rec.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("remote: read private key %q: %w", rec.PrivateKeyPath, err)
		}
		var signer cryptossh.Signer
		if rec.PrivateKeyPassphrase != "" {
			signer, err = cryptossh.ParsePrivateKeyWithPassphrase(pem, []byte(rec.PrivateKeyPassphrase))
		} else {
			signer, err = cryptossh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("remote: parse private key %q: %w", rec.PrivateKeyPath, err)
		}
		methods = append(methods, cryptossh.PublicKeys(signer))
	}
	if rec.Password != "" {
		methods = append(methods, cryptossh.Password(rec.Password))
	}
	return methods, nil
}

// dial opens an SSH client connection for the record, honoring ctx
// cancellation during the dial.
func dial(ctx context.Context, rec session.Record) (*cryptossh.Client, error) {
	methods, err := authMethods(rec)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback()
	if err != nil {
		return nil, err
	}

	host, port := rec.Addr()
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	clientCfg := &cryptossh.ClientConfig{
		User:            rec.Username,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, dialErr := cryptossh.Dial("tcp", addr, clientCfg)
		ch <- dialResult{cl, dialErr}
	}()

	select {
	case <-ctx.Done():
		return nil, &ConnectError{Addr: addr, Err: ctx.Err()}
	case r := <-ch:
		if r.err != nil {
			return nil, &ConnectError{Addr: addr, Err: r.err}
		}
		return r.client, nil
	}
}

// hostKeyCallback returns a host key callback.
//
// Resolution order:
//  1. If WORKBENCH_SSH_KNOWN_HOSTS or standard known_hosts files exist → use them.
//  2. Otherwise default to InsecureIgnoreHostKey.
//  3. If WORKBENCH_REQUIRE_SSH_HOST_KEY=1 is set, refuse to connect without
//     a known_hosts file.
func hostKeyCallback() (cryptossh.HostKeyCallback, error) {
	knownHostsPath := strings.TrimSpace(os.Getenv("WORKBENCH_SSH_KNOWN_HOSTS"))
	candidates := make([]string, 0, 3)
	if knownHostsPath != "" {
		candidates = append(candidates, knownHostsPath)
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".ssh", "known_hosts"))
	}
	candidates = append(candidates, "/etc/ssh/ssh_known_hosts")

	existing := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			existing = append(existing, candidate)
		}
	}

	if len(existing) > 0 {
		callback, err := knownhosts.New(existing...)
		if err != nil {
			return nil, fmt.Errorf("remote: load known_hosts: %w", err)
		}
		return callback, nil
	}

	requireStrict := strings.ToLower(strings.TrimSpace(os.Getenv("WORKBENCH_REQUIRE_SSH_HOST_KEY")))
	if requireStrict == "1" || requireStrict == "true" || requireStrict == "yes" {
		return nil, fmt.Errorf("remote: ssh host key verification required: no known_hosts file found")
	}

	return cryptossh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in strict mode above
}
