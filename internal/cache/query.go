// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryOptions holds parameters for index queries.
type QueryOptions struct {
	// Terms is the FTS5 full-text search string over command text.
	Terms string

	// Type filters by command type, e.g. "VernacStartTheoremProof".
	Type string

	// Identifier filters to commands introducing the given name.
	Identifier string

	// File filters by document.
	File string

	// ProofsOnly restricts results to commands with at least one proof.
	ProofsOnly bool

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Terms == "" && q.Type == "" && q.Identifier == "" &&
		q.File == "" && !q.ProofsOnly
}

// QueryResult is one indexed command.
type QueryResult struct {
	File        string   `json:"file" yaml:"file"`
	Seq         int      `json:"seq" yaml:"seq"`
	Type        string   `json:"type" yaml:"type"`
	Identifiers []string `json:"identifiers" yaml:"identifiers"`
	Text        string   `json:"text" yaml:"text"`
	Proofs      int      `json:"proofs" yaml:"proofs"`
	Failed      bool     `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Query searches the index with optional full-text terms and structured
// filters. Full-text queries rank by relevance; structured-only queries
// sort by file and document position.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Terms != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT c.file, c.seq, c.type, c.identifiers, c.text, c.proofs, c.failed
			FROM commands_fts
			JOIN commands c ON c.rowid = commands_fts.rowid
			WHERE commands_fts MATCH ?`)
		args = append(args, opts.Terms)
	} else {
		qb.WriteString(
			`SELECT c.file, c.seq, c.type, c.identifiers, c.text, c.proofs, c.failed
			FROM commands c
			WHERE 1=1`)
	}

	if opts.Type != "" {
		qb.WriteString(` AND c.type = ?`)
		args = append(args, opts.Type)
	}

	if opts.File != "" {
		qb.WriteString(` AND c.file = ?`)
		args = append(args, opts.File)
	}

	if opts.Identifier != "" {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(c.identifiers) WHERE value = ?)`)
		args = append(args, opts.Identifier)
	}

	if opts.ProofsOnly {
		qb.WriteString(` AND c.proofs > 0`)
	}

	if useFTS {
		qb.WriteString(` ORDER BY commands_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY c.file, c.seq`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr         QueryResult
			identsJSON sql.NullString
			failed     int
		)
		if err := rows.Scan(
			&qr.File, &qr.Seq, &qr.Type, &identsJSON, &qr.Text, &qr.Proofs, &failed,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if identsJSON.Valid {
			json.Unmarshal([]byte(identsJSON.String), &qr.Identifiers)
		}
		qr.Failed = failed != 0
		results = append(results, qr)
	}

	return results, rows.Err()
}
