// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ident

import (
	"context"
	"strings"

	"github.com/pdiddy/proof-engine/pkg/types"
)

// Resolver resolves a short identifier against the global environment of a
// live prover session. A successful lookup that finds no binding returns
// the empty string.
type Resolver interface {
	QueryFullQualid(ctx context.Context, id string) (string, error)
}

// Qualify resolves one identifier occurrence to its fully qualified form.
//
// Located binders (lident, lname) introduce their name: the name joins
// localIDs and any stale globalIDs entry for it is dropped, so the local
// definition shadows earlier resolutions. Names resolved through r are
// memoized in globalIDs under the name exactly as written. modpath stands
// in for the session's own "SerTop" module on locally defined names.
//
// A CPatAtom occurrence never resolves through localIDs: an atomic pattern
// either references a global constructor or binds a fresh variable, and
// only the resolver can tell the two apart. Both maps must be non-nil.
func Qualify(ctx context.Context, r Resolver, globalIDs map[string]string,
	localIDs map[string]struct{}, id types.Identifier, modpath string) (types.Identifier, error) {
	name := id.Name
	if id.Kind == types.KindLident || id.Kind == types.KindLname {
		localIDs[name] = struct{}{}
		delete(globalIDs, name)
	}
	if _, local := localIDs[name]; local && id.Kind != types.KindCPatAtom {
		id.Name = modpath + "." + name
		return id, nil
	}
	if fq, ok := globalIDs[name]; ok {
		id.Name = fq
		return id, nil
	}
	fq, err := r.QueryFullQualid(ctx, name)
	if err != nil {
		return types.Identifier{}, err
	}
	if fq == "" {
		fq = name
	}
	if id.Kind == types.KindCPatAtom && !strings.Contains(fq, ".") {
		// Unbound atomic pattern: binds a fresh variable in this command.
		localIDs[fq] = struct{}{}
		delete(globalIDs, fq)
		id.Name = modpath + "." + fq
		return id, nil
	}
	if strings.HasPrefix(fq, "SerTop.") {
		fq = modpath + strings.TrimPrefix(fq, "SerTop")
	}
	globalIDs[name] = fq
	id.Name = fq
	return id, nil
}

// ExtractQualified extracts every identifier in the AST in order and fully
// qualifies each one. globalIDs carries resolutions across sentences of a
// session; pass the same map for every sentence executed in it, or nil for
// a throwaway cache. Shadowing state is scoped to the single AST.
func ExtractQualified(ctx context.Context, r Resolver, modpath, ast string,
	globalIDs map[string]string) ([]types.Identifier, error) {
	if globalIDs == nil {
		globalIDs = make(map[string]string)
	}
	localIDs := make(map[string]struct{})
	matches := identRe.FindAllStringSubmatchIndex(ast, -1)
	ids := make([]types.Identifier, 0, len(matches))
	for _, m := range matches {
		id, err := Qualify(ctx, r, globalIDs, localIDs, identOfMatch(ast, m), modpath)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ExpandIdents rewrites the AST with every identifier replaced by its
// fully qualified serialized form.
func ExpandIdents(ctx context.Context, r Resolver, globalIDs map[string]string,
	ast, modpath string) (string, error) {
	ids, err := ExtractQualified(ctx, r, modpath, ast, globalIDs)
	if err != nil {
		return "", err
	}
	replacements := make([]string, len(ids))
	for i, id := range ids {
		replacements[i] = SexpOfIdent(id)
	}
	return ReplaceIdents(ast, replacements)
}
