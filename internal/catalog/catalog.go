// Package catalog records index builds and the documents that went into
// them in a SQLite database.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoBuilds is returned when no successful build has been recorded.
var ErrNoBuilds = errors.New("no successful build recorded")

// Status is the outcome of a build.
type Status string

// Build statuses.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Build is one row of the builds table.
type Build struct {
	ID           int64      `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       Status     `json:"status"`
	Model        string     `json:"model"`
	ChunkSize    int        `json:"chunk_size"`
	ChunkOverlap int        `json:"chunk_overlap"`
	Documents    int        `json:"documents"`
	Pages        int        `json:"pages"`
	OCRPages     int        `json:"ocr_pages"`
	Chunks       int        `json:"chunks"`
	IndexBytes   int64      `json:"index_bytes"`
	Error        string     `json:"error,omitempty"`
}

// BuildParams are the settings recorded when a build starts.
type BuildParams struct {
	Model        string
	ChunkSize    int
	ChunkOverlap int
}

// BuildTotals are the counts recorded when a build succeeds.
type BuildTotals struct {
	Documents  int
	Pages      int
	OCRPages   int
	Chunks     int
	IndexBytes int64
}

// DocumentRecord is one input file of a build.
type DocumentRecord struct {
	Name         string `json:"name"`
	Fingerprint  string `json:"fingerprint"`
	Pages        int    `json:"pages"`
	OCRPages     int    `json:"ocr_pages"`
	DroppedPages int    `json:"dropped_pages"`
	Error        string `json:"error,omitempty"`
}

// Catalog wraps a SQLite database connection.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

const selectBuildFields = `id, started_at, finished_at, status, model,
	chunk_size, chunk_overlap, documents, pages, ocr_pages, chunks,
	index_bytes, error`

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Catalog{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS builds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			status TEXT NOT NULL,
			model TEXT NOT NULL,
			chunk_size INTEGER NOT NULL,
			chunk_overlap INTEGER NOT NULL,
			documents INTEGER NOT NULL DEFAULT 0,
			pages INTEGER NOT NULL DEFAULT 0,
			ocr_pages INTEGER NOT NULL DEFAULT 0,
			chunks INTEGER NOT NULL DEFAULT 0,
			index_bytes INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS build_documents (
			build_id INTEGER NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			pages INTEGER NOT NULL,
			ocr_pages INTEGER NOT NULL,
			dropped_pages INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (build_id, name)
		);

		CREATE INDEX IF NOT EXISTS idx_builds_status ON builds(status, id);
	`
	_, err := db.Exec(schema)
	return err
}

// BeginBuild inserts a running build and returns its ID.
func (c *Catalog) BeginBuild(p BuildParams) (int64, error) {
	res, err := c.db.Exec(
		`INSERT INTO builds (started_at, status, model, chunk_size, chunk_overlap) VALUES (?, ?, ?, ?, ?)`,
		c.now().UnixNano(), StatusRunning, p.Model, p.ChunkSize, p.ChunkOverlap,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting build: %w", err)
	}
	return res.LastInsertId()
}

// RecordDocuments stores the per-file records of a build.
func (c *Catalog) RecordDocuments(buildID int64, docs []DocumentRecord) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO build_documents (build_id, name, fingerprint, pages, ocr_pages, dropped_pages, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing document insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.Exec(buildID, d.Name, d.Fingerprint, d.Pages, d.OCRPages, d.DroppedPages, d.Error); err != nil {
			return fmt.Errorf("inserting document %s: %w", d.Name, err)
		}
	}
	return tx.Commit()
}

// FinishBuild marks a build as succeeded with its totals.
func (c *Catalog) FinishBuild(buildID int64, t BuildTotals) error {
	return c.finish(buildID, `UPDATE builds SET finished_at = ?, status = ?,
		documents = ?, pages = ?, ocr_pages = ?, chunks = ?, index_bytes = ? WHERE id = ?`,
		c.now().UnixNano(), StatusSucceeded, t.Documents, t.Pages, t.OCRPages, t.Chunks, t.IndexBytes, buildID)
}

// FailBuild marks a build as failed with the given error message.
func (c *Catalog) FailBuild(buildID int64, msg string) error {
	return c.finish(buildID, `UPDATE builds SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		c.now().UnixNano(), StatusFailed, msg, buildID)
}

func (c *Catalog) finish(buildID int64, query string, args ...any) error {
	res, err := c.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("updating build %d: %w", buildID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating build %d: %w", buildID, err)
	}
	if n == 0 {
		return fmt.Errorf("build %d not found", buildID)
	}
	return nil
}

// LastSuccessfulBuild returns the most recent succeeded build, or
// ErrNoBuilds.
func (c *Catalog) LastSuccessfulBuild() (*Build, error) {
	row := c.db.QueryRow(`SELECT `+selectBuildFields+` FROM builds
		WHERE status = ? ORDER BY id DESC LIMIT 1`, StatusSucceeded)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBuilds
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBuilds returns up to limit builds, newest first. A non-positive
// limit returns all of them.
func (c *Catalog) ListBuilds(limit int) ([]Build, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.Query(`SELECT `+selectBuildFields+` FROM builds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}

// DocumentsForBuild returns the documents of a build sorted by name.
func (c *Catalog) DocumentsForBuild(buildID int64) ([]DocumentRecord, error) {
	rows, err := c.db.Query(`SELECT name, fingerprint, pages, ocr_pages, dropped_pages, error
		FROM build_documents WHERE build_id = ? ORDER BY name`, buildID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.Name, &d.Fingerprint, &d.Pages, &d.OCRPages, &d.DroppedPages, &d.Error); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (*Build, error) {
	var (
		b          Build
		started    int64
		finished   sql.NullInt64
		status     string
		indexBytes int64
	)
	err := s.Scan(&b.ID, &started, &finished, &status, &b.Model,
		&b.ChunkSize, &b.ChunkOverlap, &b.Documents, &b.Pages, &b.OCRPages, &b.Chunks,
		&indexBytes, &b.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning build: %w", err)
	}
	b.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		b.FinishedAt = &t
	}
	b.Status = Status(status)
	b.IndexBytes = indexBytes
	return &b, nil
}
