// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package project reads YAML manifests describing a Coq source tree: the
// load paths the prover needs and the files to extract. A manifest saved
// next to the sources lets an extraction run be repeated without
// reconstructing flags by hand.
package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/proof-engine/internal/serapi"
)

// Manifest is the on-disk representation of a project.
type Manifest struct {
	// Name identifies the project in records and logs.
	Name string `yaml:"name"`

	// Root is the directory file entries are relative to. Empty means the
	// directory containing the manifest.
	Root string `yaml:"root,omitempty"`

	// SerAPIOptions holds the project's prover flags in coqc form,
	// e.g. "-R .,Lib -I plugins -w -deprecated".
	SerAPIOptions string `yaml:"serapi_options,omitempty"`

	// Files lists the documents to extract, relative to Root. An empty
	// list means every .v file under Root.
	Files []FileEntry `yaml:"files,omitempty"`
}

// FileEntry is one document, optionally with its own prover flags.
// In YAML an entry may be a bare path string or a mapping.
type FileEntry struct {
	Path          string `yaml:"path"`
	SerAPIOptions string `yaml:"serapi_options,omitempty"`
}

// UnmarshalYAML accepts both the bare-string and the mapping form.
func (e *FileEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&e.Path)
	}
	type plain FileEntry
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = FileEntry(p)
	return nil
}

// Target is a resolved document: where it lives, the prover options its
// session needs, and the logical module path it is imported under.
type Target struct {
	Path    string
	Options serapi.Options
	Modpath string
}

// Read loads a manifest. A relative Root is resolved against the
// manifest's own directory.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing project manifest: %w", err)
	}
	if !filepath.IsAbs(m.Root) {
		m.Root = filepath.Join(filepath.Dir(path), m.Root)
	}
	return &m, nil
}

// Write saves a manifest to a YAML file.
func Write(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling project manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Options parses the project-level prover flags.
func (m *Manifest) Options() (serapi.Options, error) {
	return serapi.ParseOptions(m.SerAPIOptions)
}

// Targets resolves the manifest's documents. Per-file flags replace the
// project-level ones for that file.
func (m *Manifest) Targets() ([]Target, error) {
	entries := m.Files
	if len(entries) == 0 {
		found, err := discover(m.Root)
		if err != nil {
			return nil, err
		}
		entries = found
	}
	targets := make([]Target, 0, len(entries))
	for _, e := range entries {
		flags := m.SerAPIOptions
		if e.SerAPIOptions != "" {
			flags = e.SerAPIOptions
		}
		opts, err := serapi.ParseOptions(flags)
		if err != nil {
			return nil, fmt.Errorf("prover flags for %q: %w", e.Path, err)
		}
		targets = append(targets, Target{
			Path:    filepath.Join(m.Root, e.Path),
			Options: opts,
			Modpath: opts.IQR.LocalModpath(e.Path),
		})
	}
	return targets, nil
}

// discover walks root for .v files, returning entries relative to root in
// sorted order.
func discover(root string) ([]FileEntry, error) {
	var entries []FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".v") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{Path: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing project files: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
