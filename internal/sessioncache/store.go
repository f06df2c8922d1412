// Package sessioncache provides SQLite-based persistence for the wallet
// session cache. The database is opened lazily and created on first use.
// If opening the DB or executing queries fails, the store falls back to
// in-memory storage.
package sessioncache

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/waveportal-go/internal/logger"
)

// Store is a small key/value table surviving restarts.
type Store struct {
	path string

	mu      sync.Mutex
	values  map[string]string   // in-memory fallback
	deleted map[string]struct{} // deletes the database refused

	dbOnce  sync.Once
	db      *sql.DB
	initErr error
}

// New returns a store backed by the SQLite file at path.
func New(path string) *Store {
	return &Store{path: path, values: make(map[string]string), deleted: make(map[string]struct{})}
}

// initDB lazily opens the SQLite database and creates the cache table if it doesn't exist.
func (s *Store) initDB() {
	var err error
	s.db, err = sql.Open("sqlite", "file:"+s.path+"?_busy_timeout=10000")
	if err != nil {
		s.initErr = err
		logger.L.Warn("sqlite open failed; using in-memory session cache", "error", err)
		return
	}
	if _, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS session_cache (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`); err != nil {
		s.initErr = err
		logger.L.Warn("sqlite table creation failed; using in-memory session cache", "error", err)
		return
	}
	logger.L.Debug("sqlite session cache initialized", "path", s.path)
}

func (s *Store) usable() bool {
	s.dbOnce.Do(s.initDB)
	return s.initErr == nil && s.db != nil
}

// Get returns the cached value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	_, gone := s.deleted[key]
	s.mu.Unlock()
	if gone {
		return "", false
	}

	if s.usable() {
		var v string
		err := s.db.QueryRow(`SELECT value FROM session_cache WHERE key = ?;`, key).Scan(&v)
		switch {
		case err == nil:
			return v, true
		case err == sql.ErrNoRows:
			return "", false
		default:
			logger.L.Error("failed to read session cache; using memory", "key", key, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set persists value under key when the database is available and always
// keeps an in-memory copy as fallback.
func (s *Store) Set(key, value string) {
	if s.usable() {
		_, err := s.db.Exec(`INSERT INTO session_cache (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`, key, value)
		if err != nil {
			logger.L.Error("failed to store session cache entry; falling back to memory", "key", key, "error", err)
		}
	}

	s.mu.Lock()
	s.values[key] = value
	delete(s.deleted, key)
	s.mu.Unlock()
}

// Delete removes key. It returns once the row is gone. When the database
// refuses the delete, key still reads as absent from this store and the
// error is returned.
func (s *Store) Delete(key string) error {
	var err error
	if s.usable() {
		if _, err = s.db.Exec(`DELETE FROM session_cache WHERE key = ?;`, key); err != nil {
			logger.L.Error("failed to delete session cache entry", "key", key, "error", err)
		}
	}

	s.mu.Lock()
	delete(s.values, key)
	if err != nil {
		s.deleted[key] = struct{}{}
	}
	s.mu.Unlock()
	return err
}

// Close releases the database handle, if one was opened.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
