// Package session defines saved host profiles and their on-disk store.
package session

import "strings"

// Record is one saved host profile. Name is the unique key used for lookup;
// RemotePath remembers the last directory the user worked in.
//
// Records are created and edited by the session editor; the orchestrator only
// reads them.
type Record struct {
	Name                 string `json:"name"`
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	Username             string `json:"username"`
	Password             string `json:"password,omitempty"`
	PrivateKeyPath       string `json:"private_key_path,omitempty"`
	PrivateKeyPassphrase string `json:"private_key_passphrase,omitempty"`
	RemotePath           string `json:"remote_path"`
}

// HasCredential reports whether the record carries at least one usable
// credential. A record with neither a password nor a private key can never
// authenticate; connect attempts on it fail fast without dialing.
func (r Record) HasCredential() bool {
	return r.Password != "" || r.PrivateKeyPath != ""
}

// Addr returns the host with its port, defaulting to 22.
func (r Record) Addr() (host string, port int) {
	port = r.Port
	if port == 0 {
		port = 22
	}
	return r.Host, port
}

// Normalize fills defaults and trims whitespace-only fields.
func (r Record) Normalize() Record {
	r.Name = strings.TrimSpace(r.Name)
	r.Host = strings.TrimSpace(r.Host)
	r.Username = strings.TrimSpace(r.Username)
	if r.Port == 0 {
		r.Port = 22
	}
	if r.RemotePath == "" {
		r.RemotePath = "/"
	}
	return r
}
