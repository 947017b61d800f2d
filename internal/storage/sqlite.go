package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wmref/internal/extractor"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotIndexed is returned by GetMapping for unknown paths.
var ErrNotIndexed = errors.New("mapping file not indexed")

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mappings (
			path TEXT PRIMARY KEY,
			root TEXT NOT NULL,
			content_hash TEXT,
			indexed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS refs (
			mapping_path TEXT NOT NULL REFERENCES mappings(path) ON DELETE CASCADE,
			root TEXT NOT NULL,
			body_name TEXT NOT NULL,
			normalized TEXT NOT NULL,
			line INTEGER,
			col INTEGER,
			start_byte INTEGER,
			end_byte INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(root, normalized);`,
		`CREATE INDEX IF NOT EXISTS idx_refs_mapping ON refs(mapping_path);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) SaveMapping(ctx context.Context, rec MappingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveMapping(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func saveMapping(ctx context.Context, ex execer, rec MappingRecord) error {
	indexedAt := rec.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO mappings (path, root, content_hash, indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			root=excluded.root,
			content_hash=excluded.content_hash,
			indexed_at=excluded.indexed_at
	`, rec.Path, rec.Root, rec.ContentHash, indexedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save mapping %s: %w", rec.Path, err)
	}

	if _, err := ex.ExecContext(ctx, `DELETE FROM refs WHERE mapping_path = ?`, rec.Path); err != nil {
		return fmt.Errorf("failed to clear refs of %s: %w", rec.Path, err)
	}
	for _, r := range rec.Refs {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO refs (mapping_path, root, body_name, normalized, line, col, start_byte, end_byte)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Path, rec.Root, r.Value, r.Normalized, r.Line, r.Column, r.StartByte, r.EndByte)
		if err != nil {
			return fmt.Errorf("failed to save ref of %s: %w", rec.Path, err)
		}
	}
	return nil
}

func (s *SQLiteStore) DeleteMapping(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM refs WHERE mapping_path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete refs of %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mappings WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete mapping %s: %w", path, err)
	}
	return tx.Commit()
}

// ReplaceAll clears both tables and writes the snapshot in one transaction.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, recs []MappingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM refs`); err != nil {
		return fmt.Errorf("failed to clear refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mappings`); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}
	for _, rec := range recs {
		if err := saveMapping(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetMapping(ctx context.Context, path string) (*MappingRecord, error) {
	rec := &MappingRecord{Path: path}
	var indexedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT root, content_hash, indexed_at FROM mappings WHERE path = ?`, path,
	).Scan(&rec.Root, &rec.ContentHash, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotIndexed)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	rec.IndexedAt = time.Unix(0, indexedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT body_name, normalized, line, col, start_byte, end_byte
		FROM refs WHERE mapping_path = ? ORDER BY start_byte`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := &extractor.BodyRef{Filepath: path}
		if err := rows.Scan(&r.Value, &r.Normalized, &r.Line, &r.Column, &r.StartByte, &r.EndByte); err != nil {
			return nil, fmt.Errorf("failed to scan ref: %w", err)
		}
		rec.Refs = append(rec.Refs, r)
	}
	return rec, rows.Err()
}

func (s *SQLiteStore) FindReferencing(ctx context.Context, root, rel string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT mapping_path FROM refs
		WHERE root = ? AND normalized = ?
		ORDER BY mapping_path`, root, rel)
	if err != nil {
		return nil, fmt.Errorf("failed to query refs: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan ref: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings`).Scan(&st.Mappings); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM refs`).Scan(&st.References); err != nil {
		return st, err
	}
	return st, nil
}

var _ ReferenceStore = (*SQLiteStore)(nil)
