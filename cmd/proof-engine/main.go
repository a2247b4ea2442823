// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the proof-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/proof-engine/internal/opamenv"
)

// version is set at build time via ldflags.
var version = "dev"

// opamOverlay holds the opam switch environment loaded at startup. The
// prover subprocess runs under the process environment with these applied.
var opamOverlay map[string]string

// logger is the diagnostic logger shared by all subcommands. Nop unless
// --verbose is given.
var logger = zap.NewNop()

// rootCmd is the base command for the proof-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "proof-engine",
	Short: "Interactive extraction of Coq proof data through SerAPI",
	Long: `proof-engine drives the Coq prover through sertop, SerAPI's s-expression
protocol toplevel. It executes documents sentence by sentence, records each
command with its AST, identifiers, and proof states, and stores the records
in a queryable cache.

Each stage is a subcommand: extract runs prover sessions over documents and
writes per-document records; store indexes the records and answers full-text
and structured queries over them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = l
		}

		dir, _ := cmd.Flags().GetString("opam-env")
		if dir == "" {
			dir = viper.GetString("session.opam_env_dir")
		}
		if dir == "" {
			opamOverlay = map[string]string{}
			return nil
		}
		vars, err := opamenv.Load(dir)
		if err != nil {
			return err
		}
		opamOverlay = vars
		if len(vars) > 0 {
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded opam environment: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./proof-engine.yaml or ~/.config/proof-engine/config.yaml)")
	rootCmd.PersistentFlags().String("opam-env", "", "directory of opam environment overlay files for the prover")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("proof-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "proof-engine"))
		}
	}

	viper.SetEnvPrefix("PROOF_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
