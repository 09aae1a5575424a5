package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".taskrank"
	dbFile       = "taskrank.db"
)

// Config locates the task store. An empty Workspace means the current directory.
type Config struct {
	Workspace string
	// BusyTimeoutMS bounds how long a writer waits for a competing lock; 0 means 5000.
	BusyTimeoutMS int
}

func (c Config) dir() string {
	ws := c.Workspace
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, workspaceDir)
}

// EnsureWorkspace creates the .taskrank directory if missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := Config{Workspace: workspace}.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Path returns the database file of the workspace.
func Path(workspace string) string {
	return filepath.Join(Config{Workspace: workspace}.dir(), dbFile)
}

func dsn(cfg Config) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + Path(cfg.Workspace) + "?" + q.Encode()
}

// Open opens the SQLite task store, creating the workspace on first use, and
// checks that the file is usable.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open task store %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
