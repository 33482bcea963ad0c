package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the SQLite log of model load attempts.
type DB struct {
	conn *sql.DB
}

// ModelLoad is one attempt to load the model artifact at startup.
type ModelLoad struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256,omitempty"`
	Size      int64     `json:"size"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
	CreatedAt time.Time `json:"created_at"`
}

// InitDB opens (creating if needed) the SQLite database at path.
func InitDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS model_loads (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        kind TEXT NOT NULL,
        path TEXT NOT NULL,
        sha256 TEXT,
        size INTEGER DEFAULT 0,
        success INTEGER NOT NULL,
        error TEXT,
        loaded_at DATETIME NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_model_loads_loaded_at ON model_loads(loaded_at);
    `
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// RecordModelLoad appends one load attempt and returns its ID.
func (d *DB) RecordModelLoad(load ModelLoad) (int64, error) {
	if d == nil || d.conn == nil {
		return 0, errors.New("database not initialized")
	}
	if load.LoadedAt.IsZero() {
		load.LoadedAt = time.Now().UTC()
	}
	res, err := d.conn.Exec(`
        INSERT INTO model_loads (kind, path, sha256, size, success, error, loaded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		load.Kind, load.Path, load.SHA256, load.Size, load.Success, load.Error, load.LoadedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentModelLoads returns up to limit attempts, newest first.
func (d *DB) RecentModelLoads(limit int) ([]ModelLoad, error) {
	if d == nil || d.conn == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
        SELECT id, kind, path, sha256, size, success, error, loaded_at, created_at
        FROM model_loads
        ORDER BY loaded_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loads := make([]ModelLoad, 0)
	for rows.Next() {
		var l ModelLoad
		var sha, loadErr sql.NullString
		if err := rows.Scan(&l.ID, &l.Kind, &l.Path, &sha, &l.Size, &l.Success, &loadErr, &l.LoadedAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.SHA256 = sha.String
		l.Error = loadErr.String
		loads = append(loads, l)
	}
	return loads, rows.Err()
}
