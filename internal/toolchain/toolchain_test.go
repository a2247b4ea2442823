// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolchain

import (
	"errors"
	"strings"
	"testing"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	paths   map[string]string // binary -> LookPath result
	outputs map[string]string // "name arg1 arg2" -> stdout
	calls   []string
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if p, ok := m.paths[file]; ok {
		return p, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunOutput(_ []string, name string, args ...string) (string, error) {
	key := name + " " + strings.Join(args, " ")
	m.calls = append(m.calls, key)
	if out, ok := m.outputs[key]; ok {
		return out, nil
	}
	return "", errors.New("command failed: " + key)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		exec        *mockExecutor
		wantPath    string
		wantVersion Version
		wantErr     string
	}{
		{
			name: "explicit path skips lookup",
			cfg:  Config{Binary: "/opt/coq/bin/sertop", Version: "8.15.2+0.15.4", Env: []string{}},
			exec: &mockExecutor{},
			wantPath:    "/opt/coq/bin/sertop",
			wantVersion: "8.15.2+0.15.4",
		},
		{
			name: "found on PATH, version from opam",
			cfg:  Config{Env: []string{}},
			exec: &mockExecutor{
				paths: map[string]string{"sertop": "/usr/bin/sertop"},
				outputs: map[string]string{
					"opam show -f installed-version coq-serapi": "8.15.2+0.15.4\n",
				},
			},
			wantPath:    "/usr/bin/sertop",
			wantVersion: "8.15.2+0.15.4",
		},
		{
			name: "opam switch fallback and binary version probe",
			cfg:  Config{Env: []string{}},
			exec: &mockExecutor{
				outputs: map[string]string{
					"opam exec -- which sertop":            "/root/.opam/default/bin/sertop\n",
					"/root/.opam/default/bin/sertop --version": "sertop 8.13.2+0.13.1\n",
				},
			},
			wantPath:    "/root/.opam/default/bin/sertop",
			wantVersion: "8.13.2+0.13.1",
		},
		{
			name:    "not found anywhere",
			cfg:     Config{Env: []string{}},
			exec:    &mockExecutor{},
			wantErr: "eval $(opam env)",
		},
		{
			name: "no version in probe output",
			cfg:  Config{Env: []string{}},
			exec: &mockExecutor{
				paths: map[string]string{"sertop": "/usr/bin/sertop"},
				outputs: map[string]string{
					"/usr/bin/sertop --version": "sertop, no version here\n",
				},
			},
			wantErr: "no version",
		},
		{
			name: "custom binary name",
			cfg:  Config{Binary: "sertop-8.15", Version: "8.15.0", Env: []string{}},
			exec: &mockExecutor{
				paths: map[string]string{"sertop-8.15": "/usr/local/bin/sertop-8.15"},
			},
			wantPath:    "/usr/local/bin/sertop-8.15",
			wantVersion: "8.15.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prover, err := resolve(tt.exec, tt.cfg)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %v should contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if prover.Path != tt.wantPath {
				t.Errorf("got path %q, want %q", prover.Path, tt.wantPath)
			}
			if prover.Version != tt.wantVersion {
				t.Errorf("got version %q, want %q", prover.Version, tt.wantVersion)
			}
		})
	}
}

func TestResolveVersionOverrideSkipsProbe(t *testing.T) {
	exec := &mockExecutor{paths: map[string]string{"sertop": "/usr/bin/sertop"}}
	prover, err := resolve(exec, Config{Version: "8.10.2+0.7.1", Env: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prover.Version != "8.10.2+0.7.1" {
		t.Errorf("got version %q, want override", prover.Version)
	}
	if len(exec.calls) != 0 {
		t.Errorf("version override ran commands: %v", exec.calls)
	}
}
