package session

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/termhub/workbench/internal/crypto"
	"github.com/termhub/workbench/internal/fileutil"
)

// Store persists the ordered session list as a single JSON file.
// Secrets (password, key passphrase) are encrypted at rest; plaintext never
// touches the disk. Save replaces the whole file atomically.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the session list. When no store file exists yet, a default
// single-entry list is created, persisted, and returned.
func (s *Store) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		defaults := []Record{defaultRecord()}
		if saveErr := s.save(defaults); saveErr != nil {
			return nil, fmt.Errorf("session: seed default store: %w", saveErr)
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read store %q: %w", s.path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("session: decode store %q: %w", s.path, err)
	}

	for i := range records {
		records[i] = records[i].Normalize()
		if records[i].Password != "" {
			plain, err := crypto.Decrypt(records[i].Password)
			if err != nil {
				return nil, fmt.Errorf("session: decrypt password for %q: %w", records[i].Name, err)
			}
			records[i].Password = plain
		}
		if records[i].PrivateKeyPassphrase != "" {
			plain, err := crypto.Decrypt(records[i].PrivateKeyPassphrase)
			if err != nil {
				return nil, fmt.Errorf("session: decrypt passphrase for %q: %w", records[i].Name, err)
			}
			records[i].PrivateKeyPassphrase = plain
		}
	}
	return records, nil
}

// Save overwrites the store with the given list. The write goes through a
// temp file + rename so a crash never leaves a half-written store.
func (s *Store) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(records)
}

func (s *Store) save(records []Record) error {
	out := make([]Record, len(records))
	for i, rec := range records {
		rec = rec.Normalize()
		if rec.Password != "" {
			enc, err := crypto.Encrypt(rec.Password)
			if err != nil {
				return fmt.Errorf("session: encrypt password for %q: %w", rec.Name, err)
			}
			rec.Password = enc
		}
		if rec.PrivateKeyPassphrase != "" {
			enc, err := crypto.Encrypt(rec.PrivateKeyPassphrase)
			if err != nil {
				return fmt.Errorf("session: encrypt passphrase for %q: %w", rec.Name, err)
			}
			rec.PrivateKeyPassphrase = enc
		}
		out[i] = rec
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode store: %w", err)
	}
	if err := fileutil.WriteAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("session: write store %q: %w", s.path, err)
	}
	return nil
}

// Find returns the record with the given name.
func Find(records []Record, name string) (Record, bool) {
	for _, rec := range records {
		if rec.Name == name {
			return rec, true
		}
	}
	return Record{}, false
}

func defaultRecord() Record {
	username := "root"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	} else {
		log.Debug().Msg("session: could not resolve current user for default record")
	}
	return Record{
		Name:       "localhost",
		Host:       "127.0.0.1",
		Port:       22,
		Username:   username,
		RemotePath: "/",
	}
}
