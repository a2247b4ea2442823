// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists extraction records and builds a search index
// over them. Records are YAML files under <cache>/extracted/, one per
// document, with proof states stored as diffs; the SQLite index under
// <cache>/index/ makes commands searchable without parsing records.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/proof-engine/pkg/types"
)

const (
	recordsDir = "extracted"
	indexDir   = "index"
	dbFile     = "proofs.db"
)

// Record is the extraction output of one document.
type Record struct {
	// Project names the manifest the document came from, if any.
	Project string `yaml:"project,omitempty"`

	// File is the document path as given to the extractor.
	File string `yaml:"file"`

	// Modpath is the logical module path the document is imported under.
	Modpath string `yaml:"modpath,omitempty"`

	// CoqVersion is the prover version the document was extracted with.
	CoqVersion string `yaml:"coq_version"`

	// ExtractedAt is when the extraction finished.
	ExtractedAt time.Time `yaml:"extracted_at"`

	// Commands is the document's extraction record.
	Commands types.VernacCommandDataList `yaml:"commands"`
}

// RecordPath is where the record for the given document lives under the
// store's cache directory.
func (s *Store) RecordPath(file string) string {
	return filepath.Join(s.cacheDir, recordsDir, recordName(file))
}

// recordName flattens a document path into a single file name.
func recordName(file string) string {
	name := strings.TrimSuffix(filepath.ToSlash(file), ".v")
	name = strings.ReplaceAll(strings.Trim(name, "/."), "/", "-")
	return name + ".yaml"
}

// SaveRecord writes the record as YAML under extracted/, proof states
// rewritten to diffs. The caller's commands are not modified. It returns
// the path written.
func (s *Store) SaveRecord(rec *Record) (string, error) {
	dir := filepath.Join(s.cacheDir, recordsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating records directory: %w", err)
	}

	onDisk := *rec
	onDisk.Commands = rec.Commands.ShallowCopy()
	onDisk.Commands.DiffGoals()

	data, err := yaml.Marshal(&onDisk)
	if err != nil {
		return "", fmt.Errorf("marshaling record for %s: %w", rec.File, err)
	}
	path := s.RecordPath(rec.File)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing record: %w", err)
	}
	return path, nil
}

// ReadRecord loads a record file and restores full proof states from the
// stored diffs.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", path, err)
	}
	if err := rec.Commands.PatchGoals(); err != nil {
		return nil, fmt.Errorf("restoring proof states in %s: %w", path, err)
	}
	return &rec, nil
}
