package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// InstalledTool is one row of the cache inventory.
type InstalledTool struct {
	Tool        string
	Version     string
	Path        string
	InstalledAt time.Time
}

// Manifest records which tool versions the cache holds. It describes only
// the cache directory; deleting it loses nothing that a re-stat of the
// binary tree cannot rebuild, but doctor and cache listings read it instead
// of walking the tree.
type Manifest struct {
	db *sql.DB
}

const manifestSchema = `
CREATE TABLE IF NOT EXISTS installed_tools (
	tool         TEXT NOT NULL,
	version      TEXT NOT NULL,
	path         TEXT NOT NULL,
	installed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (tool, version)
);
`

// OpenManifest opens (creating if needed) the inventory database.
func OpenManifest(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping manifest: %w", err)
	}
	if _, err := db.Exec(manifestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize manifest schema: %w", err)
	}
	return &Manifest{db: db}, nil
}

// Record upserts an installed tool.
func (m *Manifest) Record(ctx context.Context, tool, version, path string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO installed_tools (tool, version, path, installed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(tool, version) DO UPDATE SET path = excluded.path, installed_at = excluded.installed_at`,
		tool, version, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record installed tool %s@%s: %w", tool, version, err)
	}
	return nil
}

// List returns every installed tool ordered by (tool, version).
func (m *Manifest) List(ctx context.Context) ([]InstalledTool, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT tool, version, path, installed_at FROM installed_tools ORDER BY tool, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed tools: %w", err)
	}
	defer rows.Close()

	var out []InstalledTool
	for rows.Next() {
		var t InstalledTool
		if err := rows.Scan(&t.Tool, &t.Version, &t.Path, &t.InstalledAt); err != nil {
			return nil, fmt.Errorf("failed to scan installed tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (m *Manifest) Close() error {
	return m.db.Close()
}
