// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/proof-engine/internal/cache"
	"github.com/pdiddy/proof-engine/pkg/types"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the extraction record index (index, query, export)",
	Long: `Store manages the SQLite index built from per-document extraction
records. Use subcommands to rebuild the index, query it, or export it.`,
}

// --- index subcommand ---

var storeIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Ingest extraction records into the SQLite index",
	Long: `Index scans the cache's extracted/ directory, ingests each record into
a SQLite database with FTS5 indexing, and records the run. Unchanged
records are skipped on subsequent runs.`,
	RunE: runStoreIndex,
}

func runStoreIndex(cmd *cobra.Command, args []string) error {
	store, err := cache.NewStore(cacheConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Reindex(context.Background(), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- query subcommand ---

var storeQueryCmd = &cobra.Command{
	Use:   "query [terms...]",
	Short: "Query indexed commands with full-text search and filters",
	Long: `Query searches the index using FTS5 full-text search over command text,
structured filters (--type, --id, --doc), or a combination of both.
Full-text matches rank by relevance; filter-only queries come back in
document order.`,
	RunE: runStoreQuery,
}

func runStoreQuery(cmd *cobra.Command, args []string) error {
	store, err := cache.NewStore(cacheConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide search terms, --type, --id, or --doc")
	}

	results, err := store.Query(context.Background(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatQueryOutput(results, jsonOutput)
}

func formatQueryOutput(results []cache.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-24s  %-20s  %-40s  %-20s  %s\n",
		"Rank", "Type", "Identifiers", "Text", "File", "Seq")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 118))

	for i, r := range results {
		text := strings.ReplaceAll(r.Text, "\n", " ")
		if len(text) > 40 {
			text = text[:37] + "..."
		}
		idents := strings.Join(r.Identifiers, ",")
		if len(idents) > 20 {
			idents = idents[:17] + "..."
		}
		file := r.File
		if len(file) > 20 {
			file = file[:17] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-24s  %-20s  %-40s  %-20s  %d\n",
			i+1, r.Type, idents, text, file, r.Seq)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var storeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export indexed commands to YAML or JSON",
	Long: `Export writes the full index (or a filtered subset) to
<cache-dir>/index/export.yaml or export.json. Supports the same filter
flags as query for partial exports.`,
	RunE: runStoreExport,
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg := cacheConfig(cmd)
	store, err := cache.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(cfg.CacheDir, "index", "export.yaml"))
	case "json":
		if err := store.ExportJSON(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(cfg.CacheDir, "index", "export.json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- shared helpers ---

func cacheConfig(cmd *cobra.Command) types.CacheConfig {
	dir, _ := cmd.Flags().GetString("cache-dir")
	if dir == "" {
		dir = viper.GetString("cache.cache_dir")
	}
	if dir == "" {
		dir = "cache"
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")
	if maxResults == 0 {
		maxResults = viper.GetInt("cache.max_results")
	}
	return types.CacheConfig{CacheDir: dir, MaxResults: maxResults}
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) cache.QueryOptions {
	terms, _ := cmd.Flags().GetString("terms")
	if terms == "" && len(args) > 0 {
		terms = strings.Join(args, " ")
	}

	cmdType, _ := cmd.Flags().GetString("type")
	id, _ := cmd.Flags().GetString("id")
	doc, _ := cmd.Flags().GetString("doc")
	proofsOnly, _ := cmd.Flags().GetBool("proofs-only")
	limit, _ := cmd.Flags().GetInt("limit")

	return cache.QueryOptions{
		Terms:      terms,
		Type:       cmdType,
		Identifier: id,
		File:       doc,
		ProofsOnly: proofsOnly,
		MaxResults: limit,
	}
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	storeCmd.PersistentFlags().String("cache-dir", "", "base directory for records (contains extracted/, index/)")
	storeCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	// Query flags.
	storeQueryCmd.Flags().String("terms", "", "full-text search over command text")
	storeQueryCmd.Flags().String("type", "", "filter by command type, e.g. VernacStartTheoremProof")
	storeQueryCmd.Flags().String("id", "", "filter by introduced identifier")
	storeQueryCmd.Flags().String("doc", "", "filter by document")
	storeQueryCmd.Flags().Bool("proofs-only", false, "only commands carrying proofs")
	storeQueryCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	storeQueryCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	storeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	storeExportCmd.Flags().String("terms", "", "full-text filter for partial export")
	storeExportCmd.Flags().String("type", "", "filter by command type for partial export")
	storeExportCmd.Flags().String("id", "", "filter by introduced identifier for partial export")
	storeExportCmd.Flags().String("doc", "", "filter by document for partial export")
	storeExportCmd.Flags().Bool("proofs-only", false, "only commands carrying proofs")
	storeExportCmd.Flags().Int("limit", 0, "maximum commands to export (0 = all)")

	// Wire subcommands.
	storeCmd.AddCommand(storeIndexCmd)
	storeCmd.AddCommand(storeQueryCmd)
	storeCmd.AddCommand(storeExportCmd)

	rootCmd.AddCommand(storeCmd)
}
