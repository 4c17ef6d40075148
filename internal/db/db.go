package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no geometry row matches.
var ErrNotFound = errors.New("db: not found")

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS pane_geometry (
			scope      TEXT NOT NULL,
			pane_id    TEXT NOT NULL,
			left_px    REAL NOT NULL DEFAULT 0,
			top_px     REAL NOT NULL DEFAULT 0,
			width_px   REAL NOT NULL DEFAULT 0,
			height_px  REAL NOT NULL DEFAULT 0,
			maximized  INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (scope, pane_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("create pane_geometry: %w", err)
	}

	// Add kind column to existing DBs; ignore "duplicate column" errors.
	if _, alterErr := d.sql.Exec(`ALTER TABLE pane_geometry ADD COLUMN kind TEXT NOT NULL DEFAULT ''`); alterErr != nil {
		if !isDuplicateColumnError(alterErr) {
			return fmt.Errorf("alter pane_geometry add kind: %w", alterErr)
		}
	}

	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_pane_geometry_updated ON pane_geometry(scope, updated_at DESC)`); err != nil {
		return fmt.Errorf("index pane_geometry: %w", err)
	}
	return nil
}

func (d *DB) SaveGeometry(g *PaneGeometry) error {
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	_, err := d.sql.Exec(`
		INSERT OR REPLACE INTO pane_geometry (
			scope, pane_id, left_px, top_px, width_px, height_px,
			maximized, updated_at, kind
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		g.Scope, g.PaneID, g.Left, g.Top, g.Width, g.Height,
		boolToInt(g.Maximized), g.UpdatedAt.UnixMilli(), g.Kind,
	)
	if err != nil {
		return err
	}
	return d.Touch()
}

func (d *DB) GetGeometry(scope, paneID string) (*PaneGeometry, error) {
	row := d.sql.QueryRow(`
		SELECT scope, pane_id, left_px, top_px, width_px, height_px,
			maximized, updated_at, kind
		FROM pane_geometry WHERE scope = ? AND pane_id = ?`, scope, paneID)
	g, err := scanGeometry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// ListGeometry returns every row in scope, most recently updated first.
func (d *DB) ListGeometry(scope string) ([]*PaneGeometry, error) {
	rows, err := d.sql.Query(`
		SELECT scope, pane_id, left_px, top_px, width_px, height_px,
			maximized, updated_at, kind
		FROM pane_geometry WHERE scope = ? ORDER BY updated_at DESC, pane_id`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PaneGeometry
	for rows.Next() {
		g, err := scanGeometry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (d *DB) DeleteGeometry(scope, paneID string) error {
	if _, err := d.sql.Exec("DELETE FROM pane_geometry WHERE scope = ? AND pane_id = ?", scope, paneID); err != nil {
		return err
	}
	return d.Touch()
}

// rowScanner is implemented by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeometry(row rowScanner) (*PaneGeometry, error) {
	var g PaneGeometry
	var maximized int
	var updatedAt int64
	err := row.Scan(
		&g.Scope, &g.PaneID, &g.Left, &g.Top, &g.Width, &g.Height,
		&maximized, &updatedAt, &g.Kind,
	)
	if err != nil {
		return nil, err
	}
	g.Maximized = maximized == 1
	g.UpdatedAt = time.UnixMilli(updatedAt)
	return &g, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func (d *DB) SetMeta(key, value string) error {
	_, err := d.sql.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?,?)", key, value)
	return err
}

func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.sql.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (d *DB) Touch() error {
	return d.SetMeta("last_modified", fmt.Sprintf("%d", time.Now().UnixMilli()))
}

func (d *DB) LastModified() int64 {
	v, _ := d.GetMeta("last_modified")
	if v == "" {
		return 0
	}
	var ts int64
	fmt.Sscanf(v, "%d", &ts)
	return ts
}
