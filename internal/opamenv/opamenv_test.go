// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package opamenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) string
		want   map[string]string
		errMsg string
	}{
		{
			name: "reads variable files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "OPAMROOT", "  /root/.opam  \n")
				writeFile(t, dir, "OPAMSWITCH", "coq-8.15")
				writeFile(t, dir, "COQPATH", "/opt/coq/user-contrib\n")
				return dir
			},
			want: map[string]string{
				"OPAMROOT":   "/root/.opam",
				"OPAMSWITCH": "coq-8.15",
				"COQPATH":    "/opt/coq/user-contrib",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "OPAMSWITCH", "default")
				writeFile(t, dir, "EMPTY", "")
				writeFile(t, dir, "BLANK", "   \n\t  ")
				return dir
			},
			want: map[string]string{
				"OPAMSWITCH": "default",
			},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".OPAMROOT", "/hidden")
				writeFile(t, dir, "OPAMROOT", "/root/.opam")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				"OPAMROOT": "/root/.opam",
			},
		},
		{
			name: "returns empty map for empty directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "OPAMROOT", "/root/.opam")

	badPath := filepath.Join(dir, "OPAMSWITCH")
	require.NoError(t, os.WriteFile(badPath, []byte("default"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/root/.opam", got["OPAMROOT"])
	_, hasBad := got["OPAMSWITCH"]
	assert.False(t, hasBad, "unreadable file should not appear in result")
}

func TestParseScript(t *testing.T) {
	script := `OPAM_SWITCH_PREFIX='/root/.opam/default'; export OPAM_SWITCH_PREFIX;
CAML_LD_LIBRARY_PATH='/root/.opam/default/lib/stublibs'; export CAML_LD_LIBRARY_PATH;
PATH='/root/.opam/default/bin:/usr/local/bin:/usr/bin'; export PATH;
QUOTED='it'\''s here'; export QUOTED;
DOUBLE="a \"b\" c"; export DOUBLE;
# a comment line
not an assignment
`
	got := ParseScript(script)
	want := map[string]string{
		"OPAM_SWITCH_PREFIX":   "/root/.opam/default",
		"CAML_LD_LIBRARY_PATH": "/root/.opam/default/lib/stublibs",
		"PATH":                 "/root/.opam/default/bin:/usr/local/bin:/usr/bin",
		"QUOTED":               "it's here",
		"DOUBLE":               `a "b" c`,
	}
	assert.Equal(t, want, got)
}

func TestEnviron(t *testing.T) {
	base := []string{"HOME=/root", "PATH=/usr/bin", "TERM=xterm"}
	got := Environ(base, map[string]string{
		"PATH":     "/root/.opam/default/bin:/usr/bin",
		"OPAMROOT": "/root/.opam",
		"COQPATH":  "/opt/coq",
	})
	want := []string{
		"HOME=/root",
		"PATH=/root/.opam/default/bin:/usr/bin",
		"TERM=xterm",
		"COQPATH=/opt/coq",
		"OPAMROOT=/root/.opam",
	}
	assert.Equal(t, want, got)

	assert.Equal(t, base, Environ(base, nil), "no overrides leaves base untouched")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
