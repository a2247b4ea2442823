// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

const exportLimit = 100000

// ExportYAML writes the indexed commands to cacheDir/index/export.yaml.
// It supports the same filters as Query.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	results, err := s.exportResults(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.cacheDir, indexDir, "export.yaml")
	data, err := yaml.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the indexed commands to cacheDir/index/export.json.
// It supports the same filters as Query.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	results, err := s.exportResults(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.cacheDir, indexDir, "export.json")
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportResults(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	opts.MaxResults = exportLimit
	results, err := s.Query(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	return results, nil
}
