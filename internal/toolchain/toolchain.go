// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package toolchain locates the sertop binary and determines the installed
// prover version. Resolution prefers an explicit path, then the process
// PATH, then the active opam switch.
package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// DefaultBinary is the prover toplevel spawned when no override is given.
const DefaultBinary = "sertop"

// serapiPackage is the opam package whose installed version carries both
// the Coq and serapi versions, e.g. "8.15.2+0.15.4".
const serapiPackage = "coq-serapi"

var versionRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)+[0-9A-Za-z.+~_-]*`)

// Config selects the prover installation to resolve.
type Config struct {
	// Binary is the sertop executable name or path. Empty means
	// DefaultBinary looked up on PATH.
	Binary string

	// Version overrides version probing when non-empty.
	Version string

	// Env is the process environment for toolchain commands and for the
	// prover itself. Nil means the current process environment.
	Env []string
}

// Prover is a resolved sertop installation.
type Prover struct {
	// Path is the path to the sertop executable.
	Path string

	// Version is the installed coq-serapi version.
	Version Version

	// Env is the environment the prover runs under.
	Env []string
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunOutput(env []string, name string, args ...string) (string, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) RunOutput(env []string, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = env
	out, err := cmd.Output()
	return string(out), err
}

var defaultExec executor = osExecutor{}

// Resolve locates the prover selected by cfg and probes its version.
func Resolve(cfg Config) (*Prover, error) {
	return resolve(defaultExec, cfg)
}

func resolve(x executor, cfg Config) (*Prover, error) {
	bin := cfg.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	env := cfg.Env
	if env == nil {
		env = os.Environ()
	}

	var path string
	switch {
	case strings.ContainsRune(bin, os.PathSeparator):
		path = bin
	default:
		p, err := x.LookPath(bin)
		if err == nil {
			path = p
			break
		}
		out, opamErr := x.RunOutput(env, "opam", "exec", "--", "which", bin)
		if opamErr != nil {
			return nil, fmt.Errorf(
				"%s not found on PATH or in the active opam switch; "+
					"install %s and run `eval $(opam env)`: %w",
				bin, serapiPackage, err)
		}
		path = strings.TrimSpace(out)
	}

	version := Version(cfg.Version)
	if version == "" {
		v, err := probeVersion(x, env, path)
		if err != nil {
			return nil, err
		}
		version = v
	}
	return &Prover{Path: path, Version: version, Env: env}, nil
}

// probeVersion asks opam for the installed coq-serapi version, falling back
// to the binary's own --version output.
func probeVersion(x executor, env []string, path string) (Version, error) {
	if out, err := x.RunOutput(env, "opam", "show", "-f", "installed-version", serapiPackage); err == nil {
		if v := versionRe.FindString(out); v != "" {
			return Version(v), nil
		}
	}
	out, err := x.RunOutput(env, path, "--version")
	if err != nil {
		return "", fmt.Errorf("probing %s version: %w", path, err)
	}
	if v := versionRe.FindString(out); v != "" {
		return Version(v), nil
	}
	return "", fmt.Errorf("no version found in %q", strings.TrimSpace(out))
}
