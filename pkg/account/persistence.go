package account

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the atomic JSON persistence layer for the account pool. A zero
// Store with path == "" is a no-op, matching no_filesystem_mode.
type Store struct {
	path string
	log  *zap.Logger
}

// NewStore returns a Store writing to path. An empty path disables all I/O.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

// Save writes accounts as a JSON object keyed by organization UUID, atomically
// via temp-file-then-rename. A no-op when the store has no path.
func (s *Store) Save(accounts map[string]*Account) error {
	if s == nil || s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("account store: mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("account store: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "accounts-*.tmp")
	if err != nil {
		return fmt.Errorf("account store: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("account store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("account store: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("account store: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("account store: rename: %w", err)
	}
	return nil
}

// Load reads the persisted account map. A missing file is not an error; a
// parse failure is logged and an empty pool is returned.
func (s *Store) Load() map[string]*Account {
	if s == nil || s.path == "" {
		return map[string]*Account{}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("account store: read failed", zap.Error(err))
		}
		return map[string]*Account{}
	}

	var accounts map[string]*Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		s.log.Warn("account store: parse failed, starting with empty pool", zap.Error(err))
		return map[string]*Account{}
	}
	return accounts
}

// persistLocked0 saves the pool's current state. Callers must hold p.mu.
func (p *Pool) persistLocked0() error {
	if p.store == nil {
		return nil
	}
	return p.store.Save(p.accounts)
}

// Load populates the pool from the store and rebuilds the cookie index.
// Intended to be called once at startup, before Start.
func (p *Pool) Load() {
	if p.store == nil {
		return
	}
	accounts := p.store.Load()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = accounts
	p.cookieToUUID = make(map[string]string, len(accounts))
	for uuid, acc := range accounts {
		acc.OrganizationUUID = uuid
		if acc.CookieValue != "" {
			p.cookieToUUID[acc.CookieValue] = uuid
		}
	}
}

func newUUID() string {
	return uuid.NewString()
}
