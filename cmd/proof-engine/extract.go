package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/proof-engine/internal/cache"
	"github.com/pdiddy/proof-engine/internal/document"
	"github.com/pdiddy/proof-engine/internal/extract"
	"github.com/pdiddy/proof-engine/internal/opamenv"
	"github.com/pdiddy/proof-engine/internal/project"
	"github.com/pdiddy/proof-engine/internal/serapi"
	"github.com/pdiddy/proof-engine/internal/toolchain"
)

var extractCmd = &cobra.Command{
	Use:   "extract [files...]",
	Short: "Execute documents in prover sessions and record commands and proofs",
	Long: `Extract splits each document into sentences, executes them in a fresh
prover session, and records every command together with its AST, the
identifiers it introduces, and the proof states of its proofs. Records
are written to the cache as per-document YAML and indexed for querying.

Documents come from the command line (with --serapi-options supplying
prover flags) or from a project manifest (--project). Each document gets
its own session; --workers bounds how many run at once.`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	targets, projectName, rootDir, err := resolveTargets(cmd, args)
	if err != nil {
		return err
	}

	prover, err := resolveProver(cmd)
	if err != nil {
		return err
	}

	store, err := cache.NewStore(cacheConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = viper.GetDuration("session.timeout")
	}

	opts := extract.Options{}
	opts.Goals, _ = cmd.Flags().GetBool("goals")
	opts.QualifiedIdents, _ = cmd.Flags().GetBool("qualify-idents")
	opts.GoalsDiff, _ = cmd.Flags().GetBool("goals-diff")

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = viper.GetInt("extraction.workers")
	}
	if workers <= 0 {
		workers = 1
	}

	eg, ctx := errgroup.WithContext(context.Background())
	eg.SetLimit(workers)

	var mu sync.Mutex
	failed := 0
	for _, t := range targets {
		eg.Go(func() error {
			n, err := extractOne(ctx, prover, store, t, projectName, rootDir, timeout, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				fmt.Fprintf(os.Stdout, "failed  %s: %v\n", t.Path, err)
				return nil
			}
			fmt.Fprintf(os.Stdout, "extracted %s (%d commands)\n", t.Path, n)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if _, err := store.Reindex(context.Background(), os.Stdout); err != nil {
		return fmt.Errorf("indexing records: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d document(s) failed extraction", failed)
	}
	return nil
}

// extractOne runs one document through its own session and saves the record.
func extractOne(ctx context.Context, prover *toolchain.Prover, store *cache.Store, t project.Target, projectName, dir string, timeout time.Duration, opts extract.Options) (int, error) {
	sentences, err := document.ReadFile(t.Path)
	if err != nil {
		return 0, err
	}

	sopts := t.Options
	sopts.Prover = *prover
	sopts.Dir = dir
	sopts.Timeout = timeout
	sopts.Logger = logger.With(zap.String("doc", t.Path))
	session, err := serapi.Start(ctx, sopts)
	if err != nil {
		return 0, err
	}
	defer session.Shutdown()

	opts.Logger = logger.With(zap.String("doc", t.Path))
	ex := extract.New(session, t.Path, t.Modpath, opts)
	commands, err := ex.ExtractVernacCommands(ctx, sentences)
	if err != nil {
		return 0, err
	}

	rec := &cache.Record{
		Project:     projectName,
		File:        t.Path,
		Modpath:     t.Modpath,
		CoqVersion:  string(prover.Version),
		ExtractedAt: time.Now().UTC(),
		Commands:    commands,
	}
	if _, err := store.SaveRecord(rec); err != nil {
		return 0, err
	}
	return len(commands), nil
}

// resolveTargets turns the command line into extraction targets: either the
// files named as arguments or everything a project manifest lists.
func resolveTargets(cmd *cobra.Command, args []string) ([]project.Target, string, string, error) {
	manifestPath, _ := cmd.Flags().GetString("project")
	if manifestPath != "" {
		if len(args) > 0 {
			return nil, "", "", fmt.Errorf("give files or --project, not both")
		}
		m, err := project.Read(manifestPath)
		if err != nil {
			return nil, "", "", err
		}
		targets, err := m.Targets()
		if err != nil {
			return nil, "", "", err
		}
		return targets, m.Name, m.Root, nil
	}

	if len(args) == 0 {
		return nil, "", "", fmt.Errorf("nothing to extract: give .v files or --project")
	}
	flags, _ := cmd.Flags().GetString("serapi-options")
	opts, err := serapi.ParseOptions(flags)
	if err != nil {
		return nil, "", "", err
	}
	targets := make([]project.Target, 0, len(args))
	for _, f := range args {
		targets = append(targets, project.Target{Path: f, Options: opts, Modpath: opts.IQR.LocalModpath(f)})
	}
	return targets, "", "", nil
}

func resolveProver(cmd *cobra.Command) (*toolchain.Prover, error) {
	bin, _ := cmd.Flags().GetString("sertop")
	if bin == "" {
		bin = viper.GetString("session.sertop_path")
	}
	ver, _ := cmd.Flags().GetString("coq-version")
	return toolchain.Resolve(toolchain.Config{
		Binary:  bin,
		Version: ver,
		Env:     opamenv.Environ(os.Environ(), opamOverlay),
	})
}

func init() {
	extractCmd.Flags().String("project", "", "project manifest describing load paths and files")
	extractCmd.Flags().String("serapi-options", "", `prover flags for bare files, e.g. "-R .,Lib -w -deprecated"`)
	extractCmd.Flags().String("sertop", "", "sertop binary name or path (default: resolve from PATH, then opam)")
	extractCmd.Flags().String("coq-version", "", "skip version probing and assume this coq-serapi version")
	extractCmd.Flags().Duration("timeout", 0, "per-command prover timeout (default 30s)")
	extractCmd.Flags().Int("workers", 0, "documents extracted concurrently, one session each (default 1)")
	extractCmd.Flags().String("cache-dir", "", "base directory for records (default: cache)")
	extractCmd.Flags().Bool("goals", true, "record the proof state before each sentence")
	extractCmd.Flags().Bool("qualify-idents", true, "fully qualify identifiers against the session")
	extractCmd.Flags().Bool("goals-diff", true, "store proof states as diffs between sentences")

	rootCmd.AddCommand(extractCmd)
}
