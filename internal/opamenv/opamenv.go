// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package opamenv assembles the environment the prover toolchain runs
// under. Overrides load from a directory of plain-text files: the filename
// is the variable name and the file contents (trimmed) are the value.
// Output of `opam env` can be ingested directly with ParseScript.
package opamenv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory or missing files are not errors; Load
// returns an empty map. Unreadable files produce a warning on stderr but
// do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading environment directory %s: %w", dir, err)
	}

	vars := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read environment file %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			vars[name] = value
		}
	}

	return vars, nil
}

var scriptLineRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// ParseScript extracts variable assignments from sh-format `opam env`
// output, lines of the form
//
//	OPAM_SWITCH_PREFIX='/root/.opam/default'; export OPAM_SWITCH_PREFIX;
//
// Lines that are not assignments are skipped.
func ParseScript(script string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(script, "\n") {
		m := scriptLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		value := m[2]
		if idx := strings.LastIndex(value, "; export "); idx >= 0 {
			value = value[:idx]
		}
		vars[m[1]] = unquoteShell(value)
	}
	return vars
}

// unquoteShell undoes single or double shell quoting on a value.
func unquoteShell(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], `'\''`, `'`)
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		r := strings.NewReplacer(`\"`, `"`, `\\`, `\`, `\$`, `$`)
		return r.Replace(s)
	}
	return s
}

// Environ applies overrides to a process environment in KEY=VALUE form.
// Existing variables are replaced in place; new ones are appended in
// sorted order.
func Environ(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	pending := make(map[string]string, len(overrides))
	for k, v := range overrides {
		pending[k] = v
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			out = append(out, kv)
			continue
		}
		if v, hit := pending[key]; hit {
			out = append(out, key+"="+v)
			delete(pending, key)
			continue
		}
		out = append(out, kv)
	}

	rest := make([]string, 0, len(pending))
	for k := range pending {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, k+"="+pending[k])
	}
	return out
}
