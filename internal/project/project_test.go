// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/proof-engine/internal/serapi"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "project.yaml", `
name: comp-cert
serapi_options: "-R theories,Lib -I plugins"
files:
  - theories/List.v
  - path: theories/Special.v
    serapi_options: "-R theories,Special"
`)

	m, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "comp-cert", m.Name)
	assert.Equal(t, dir, m.Root)
	require.Len(t, m.Files, 2)
	assert.Equal(t, FileEntry{Path: "theories/List.v"}, m.Files[0])
	assert.Equal(t, FileEntry{
		Path:          "theories/Special.v",
		SerAPIOptions: "-R theories,Special",
	}, m.Files[1])

	opts, err := m.Options()
	require.NoError(t, err)
	assert.Equal(t, []serapi.Binding{{Dir: "theories", Logical: "Lib"}}, opts.IQR.R)
	assert.Equal(t, []string{"plugins"}, opts.IQR.ML)
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading project manifest")

	path := writeFile(t, dir, "bad.yaml", "name: [unclosed")
	_, err = Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing project manifest")
}

func TestReadResolvesRoot(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "project.yaml", "name: p\nroot: src\n")

	m, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src"), m.Root)
}

func TestTargets(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Name:          "p",
		Root:          dir,
		SerAPIOptions: "-R theories,Lib -w -deprecated",
		Files: []FileEntry{
			{Path: "theories/List.v"},
			{Path: "theories/Special.v", SerAPIOptions: "-R theories,Special"},
		},
	}

	targets, err := m.Targets()
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, filepath.Join(dir, "theories/List.v"), targets[0].Path)
	assert.Equal(t, []serapi.Binding{{Dir: "theories", Logical: "Lib"}}, targets[0].Options.IQR.R)
	assert.Equal(t, []serapi.Warning{{State: serapi.WarningDisabled, Name: "deprecated"}}, targets[0].Options.Warnings)
	assert.Equal(t, "Lib.List", targets[0].Modpath)

	// the per-file flags replace the project ones
	assert.Equal(t, []serapi.Binding{{Dir: "theories", Logical: "Special"}}, targets[1].Options.IQR.R)
	assert.Equal(t, "Special.Special", targets[1].Modpath)
}

func TestTargetsDiscoversFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "theories/List.v", "")
	writeFile(t, dir, "theories/Arith.v", "")
	writeFile(t, dir, "README.md", "")
	m := &Manifest{Name: "p", Root: dir, SerAPIOptions: "-R theories,Lib"}

	targets, err := m.Targets()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, filepath.Join(dir, "theories/Arith.v"), targets[0].Path)
	assert.Equal(t, "Lib.Arith", targets[0].Modpath)
	assert.Equal(t, filepath.Join(dir, "theories/List.v"), targets[1].Path)
	assert.Equal(t, "Lib.List", targets[1].Modpath)
}

func TestTargetsBadFlags(t *testing.T) {
	m := &Manifest{
		Name:  "p",
		Root:  t.TempDir(),
		Files: []FileEntry{{Path: "a.v", SerAPIOptions: "-X nope"}},
	}
	_, err := m.Targets()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a.v"`)
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	m := &Manifest{
		Name:          "p",
		Root:          dir,
		SerAPIOptions: "-Q src,Src",
		Files:         []FileEntry{{Path: "src/Main.v"}},
	}
	require.NoError(t, Write(path, m))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
