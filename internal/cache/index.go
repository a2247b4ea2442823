// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/proof-engine/pkg/types"
)

// Store manages the record directory and its SQLite index.
type Store struct {
	db         *sql.DB
	cacheDir   string
	maxResults int
}

// NewStore opens or creates the index database at
// cacheDir/index/proofs.db, creating the schema if it does not exist.
func NewStore(cfg types.CacheConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.CacheDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:         db,
		cacheDir:   cfg.CacheDir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started TEXT NOT NULL,
			coq_version TEXT,
			documents INTEGER NOT NULL,
			commands INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			file TEXT PRIMARY KEY,
			project TEXT,
			modpath TEXT,
			coq_version TEXT,
			extracted_at TEXT,
			commands INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS commands (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			file TEXT NOT NULL REFERENCES documents(file),
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			identifiers TEXT,
			text TEXT NOT NULL,
			proofs INTEGER NOT NULL,
			sentences INTEGER NOT NULL,
			failed INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_file ON commands(file)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_type ON commands(type)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			record TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='commands_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE commands_fts USING fts5(text, content=commands, content_rowid=rowid)`,
			`CREATE TRIGGER commands_ai AFTER INSERT ON commands BEGIN
				INSERT INTO commands_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
			`CREATE TRIGGER commands_ad AFTER DELETE ON commands BEGIN
				INSERT INTO commands_fts(commands_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			END`,
			`CREATE TRIGGER commands_au AFTER UPDATE ON commands BEGIN
				INSERT INTO commands_fts(commands_fts, rowid, text) VALUES('delete', old.rowid, old.text);
				INSERT INTO commands_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IndexSummary holds counts from one indexing run.
type IndexSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of records processed.
func (s IndexSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Reindex reads record files from cacheDir/extracted/ and populates the
// index. Records whose modification time is unchanged since the last run
// are skipped. Each run that changes the index leaves a row in runs.
func (s *Store) Reindex(ctx context.Context, w io.Writer) (IndexSummary, error) {
	recDir := filepath.Join(s.cacheDir, recordsDir)

	entries, err := os.ReadDir(recDir)
	if err != nil {
		return IndexSummary{}, fmt.Errorf("reading records directory %s: %w", recDir, err)
	}

	var (
		summary     IndexSummary
		numCommands int
		coqVersion  string
	)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		name := entry.Name()

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		// Check whether the record has changed since last indexing.
		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE record = ?`, name,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", name)
			summary.Skipped++
			continue
		}

		isUpdate := err == nil

		rec, err := ReadRecord(filepath.Join(recDir, name))
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}

		if err := s.indexRecord(ctx, name, rec, modTime, isUpdate); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}

		numCommands += len(rec.Commands)
		coqVersion = rec.CoqVersion
		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d commands)\n", name, len(rec.Commands))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d commands)\n", name, len(rec.Commands))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, started, coq_version, documents, commands)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(),
			time.Now().UTC().Format(time.RFC3339Nano),
			coqVersion,
			summary.Indexed+summary.Updated,
			numCommands,
		)
		if err != nil {
			fmt.Fprintf(w, "warning: recording run failed: %v\n", err)
		}
	}

	return summary, nil
}

func (s *Store) indexRecord(ctx context.Context, name string, rec *Record, modTime string, isUpdate bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Remove old command rows if updating.
	if isUpdate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM commands WHERE file = ?`, rec.File); err != nil {
			return fmt.Errorf("deleting old commands: %w", err)
		}
	}

	extractedAt := ""
	if !rec.ExtractedAt.IsZero() {
		extractedAt = rec.ExtractedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (file, project, modpath, coq_version, extracted_at, commands)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(file) DO UPDATE SET
			project=excluded.project, modpath=excluded.modpath,
			coq_version=excluded.coq_version, extracted_at=excluded.extracted_at,
			commands=excluded.commands`,
		rec.File, rec.Project, rec.Modpath, rec.CoqVersion, extractedAt, len(rec.Commands),
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO commands (file, seq, type, identifiers, text, proofs, sentences, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range rec.Commands {
		cmd := &rec.Commands[i]
		identsJSON, _ := json.Marshal(cmd.Identifiers)
		failed := 0
		if cmd.Error != nil {
			failed = 1
		}
		_, err := stmt.ExecContext(ctx,
			rec.File, i, cmd.Command.CommandType, string(identsJSON),
			cmd.AllText(), len(cmd.Proofs), len(cmd.SortedSentences()), failed,
		)
		if err != nil {
			return fmt.Errorf("inserting command %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (record, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(record) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		name, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}

	return tx.Commit()
}
