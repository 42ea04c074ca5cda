package chatdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"sync"

	_ "modernc.org/sqlite"
)

// Store provides read-only access to a chat.db file.
type Store struct {
	db   *sql.DB
	path string
}

// Open verifies the database file exists and opens it read-only.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if runtime.GOOS == "darwin" {
			return nil, fmt.Errorf("%w at %s (grant Full Disk Access to the host application if the Messages app is in use)", ErrDatabaseNotFound, path)
		}
		return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, path)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path this store was opened with.
func (s *Store) Path() string {
	return s.path
}

// ListChats returns every chat in the store, ordered by row ID.
func (s *Store) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ROWID, guid, COALESCE(chat_identifier, ''), COALESCE(display_name, ''), style
		FROM chat
		ORDER BY ROWID ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.GUID, &c.Identifier, &c.DisplayName, &c.Style); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Manager owns the process-wide read-only handle. The database is opened
// lazily on first acquisition and reused afterwards; a mutex guards the
// open so concurrent dispatch from the host stays safe.
type Manager struct {
	mu    sync.Mutex
	path  string
	store *Store
}

// NewManager creates a manager for the database at path. Nothing is opened
// until the first Acquire.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Acquire returns the shared store, opening it on first use.
func (m *Manager) Acquire() (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		store, err := Open(m.path)
		if err != nil {
			return nil, err
		}
		m.store = store
	}
	return m.store, nil
}

// With runs fn against the shared store, acquiring it first. The handle
// itself outlives the call; fn must not retain the store.
func (m *Manager) With(fn func(*Store) error) error {
	store, err := m.Acquire()
	if err != nil {
		return err
	}
	return fn(store)
}

// Close releases the shared handle if it was opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	return err
}

// AccessReport describes whether the database can be used.
type AccessReport struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Readable bool   `json:"readable"`
	Hint     string `json:"hint,omitempty"`
}

// CheckAccess reports on database accessibility without opening a
// connection. Used by the doctor command and the check_db_access tool.
func CheckAccess(path string) AccessReport {
	report := AccessReport{Path: path}

	if _, err := os.Stat(path); err != nil {
		if runtime.GOOS == "darwin" {
			report.Hint = "Messages database not found. Make sure the Messages app has been used and iMessage is enabled, or set " +
				"SQLITE_DB_PATH to the database location."
		} else {
			report.Hint = "Database file not found. Set SQLITE_DB_PATH to the database location."
		}
		return report
	}
	report.Exists = true

	f, err := os.Open(path)
	if err != nil {
		if runtime.GOOS == "darwin" {
			report.Hint = "Database exists but cannot be read. Grant Full Disk Access to the host application in " +
				"System Settings > Privacy & Security > Full Disk Access, then restart it."
		} else {
			report.Hint = fmt.Sprintf("Database exists but cannot be read: %v", err)
		}
		return report
	}
	f.Close()
	report.Readable = true

	return report
}
