// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"runtime"
	"strings"
	"sync"

	"github.com/scopegraph/scopegraph/pkg/graphmodel"
)

// Resolver is the reference resolver (C3): it builds a project-wide index
// of scope names during a first pass over all parsed files, then resolves
// each RawReference collected during parsing into a graphmodel.Reference
// of kind local_scope, import, or external. This mirrors the teacher's
// CallResolver: build an index once, then resolve in a second pass so
// resolution never depends on file processing order.
type Resolver struct {
	mu sync.RWMutex

	// byName maps a simple scope name to every uuid declared with that
	// name across the project, for local_scope resolution; ambiguity
	// (len > 1) is broken by file-local preference at resolve time.
	byName map[string][]scopeRef

	// byFileAndName maps "<file>|<name>" to a uuid for same-file lookups,
	// which take precedence over project-wide ambiguous matches.
	byFileAndName map[string]scopeRef

	// importAliases maps "<file>|<alias-or-last-path-segment>" to an
	// import path, for import-kind resolution.
	importAliases map[string]string

	// externalPackages is the set of import paths considered external
	// (outside the project's own module), supplied by the caller.
	externalPackages map[string]bool
}

type scopeRef struct {
	UUID     string
	FilePath string
	Kind     string
}

// NewResolver constructs an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		byName:           make(map[string][]scopeRef),
		byFileAndName:    make(map[string]scopeRef),
		importAliases:    make(map[string]string),
		externalPackages: make(map[string]bool),
	}
}

// IndexFile registers every scope and import declared in one file. Call
// this for every file before calling Resolve for any file — resolution
// requires the whole-project index to exist first.
func (r *Resolver) IndexFile(filePath string, scopes []graphmodel.Scope, imports []ImportInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range scopes {
		ref := scopeRef{UUID: s.UUID, FilePath: filePath, Kind: string(s.Kind)}
		r.byName[s.Name] = append(r.byName[s.Name], ref)
		r.byFileAndName[filePath+"|"+s.Name] = ref
	}
	for _, imp := range imports {
		alias := imp.Alias
		if alias == "" {
			alias = lastSegment(imp.Path)
		}
		r.importAliases[filePath+"|"+alias] = imp.Path
	}
}

// MarkExternal records that importPath resolves outside the project
// itself (e.g. found in go.mod's require block, not in the repo tree).
func (r *Resolver) MarkExternal(importPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.externalPackages[importPath] = true
}

// Resolve turns one RawReference found in fromFile into a
// graphmodel.Reference. It returns ok=false when the reference cannot be
// resolved to anything known — callers drop such references silently per
// the spec (ReferenceUnresolved is informational, not an error).
func (r *Resolver) Resolve(fromScopeUUID, fromFile string, raw RawReference) (graphmodel.Reference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := raw.Name
	if qualifier, member, isQualified := splitQualified(name); isQualified {
		if importPath, ok := r.importAliases[fromFile+"|"+qualifier]; ok {
			kindOf := graphmodel.ReferenceImport
			if r.externalPackages[importPath] {
				kindOf = graphmodel.ReferenceExternal
			}
			return withTarget(graphmodel.Reference{
				FromScopeUUID: fromScopeUUID,
				Name:          member,
				Line:          raw.Line,
				Column:        raw.Column,
				Context:       raw.Context,
				Kind:          kindOf,
			}, importPath), true
		}
		// Qualifier didn't match a known import alias in this file;
		// fall through to unqualified resolution of the member name,
		// which still lets same-package dotted access resolve.
		name = member
	}

	// Same-file declaration wins over any cross-file candidate — the
	// spec's "value-vs-type preference for ambiguous same-name/same-file
	// resolution" is satisfied by preferring the file-local entry first.
	if ref, ok := r.byFileAndName[fromFile+"|"+name]; ok {
		return withTarget(graphmodel.Reference{
			FromScopeUUID: fromScopeUUID, Name: name, Line: raw.Line, Column: raw.Column,
			Context: raw.Context, Kind: graphmodel.ReferenceLocalScope,
		}, ref.UUID), true
	}

	candidates := r.byName[name]
	if len(candidates) == 0 {
		return graphmodel.Reference{}, false
	}
	// Ambiguity among same-named candidates is broken deterministically
	// by picking the first-indexed candidate (stable insertion order),
	// matching the teacher's approach of a stable winner under ambiguity
	// rather than a nondeterministic one.
	chosen := candidates[0]
	return withTarget(graphmodel.Reference{
		FromScopeUUID: fromScopeUUID, Name: name, Line: raw.Line, Column: raw.Column,
		Context: raw.Context, Kind: graphmodel.ReferenceLocalScope,
	}, chosen.UUID), true
}

// ResolveTypeName resolves a bare type/interface name (no call syntax) to
// the uuid of the scope that declares it, for the graph assembler's
// INHERITS_FROM/IMPLEMENTS edges (C4). It reuses Resolve's same-file-then
// project-wide preference; only a local_scope resolution counts; import
// and external results mean the name isn't one the resolver can map to a
// uuid (e.g. a third-party embedded type), so those are reported as
// unresolved here rather than misreported as a local hit.
func (r *Resolver) ResolveTypeName(fromFile, name string) (string, bool) {
	ref, ok := r.Resolve("", fromFile, RawReference{Name: name})
	if !ok || ref.Kind != graphmodel.ReferenceLocalScope {
		return "", false
	}
	return ref.ImportPath, true
}

// withTarget stashes the resolved target uuid in ImportPath when the
// reference is local or import-qualified — the graph assembler reads it
// back out to build the CONSUMES edge target without a second lookup.
func withTarget(ref graphmodel.Reference, targetUUIDOrPath string) graphmodel.Reference {
	ref.ImportPath = targetUUIDOrPath
	return ref
}

func splitQualified(name string) (qualifier, member string, ok bool) {
	idx := strings.IndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

func lastSegment(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// ParallelThreshold is the number of pending references at or above which
// resolution fans out across worker goroutines, mirroring the teacher's
// 1000-call sequential/parallel dispatch threshold.
const ParallelThreshold = 1000

// PendingReference pairs a RawReference with the scope and file it was
// found in, the unit of work ResolveAll consumes.
type PendingReference struct {
	FromScopeUUID string
	FromFile      string
	Raw           RawReference
}

// ResolveAll resolves every pending reference, dispatching to a bounded
// worker pool when the input is large enough that parallelism pays for
// its own coordination overhead.
func (r *Resolver) ResolveAll(pending []PendingReference) []graphmodel.Reference {
	if len(pending) < ParallelThreshold {
		return r.resolveSequential(pending)
	}
	return r.resolveParallel(pending)
}

func (r *Resolver) resolveSequential(pending []PendingReference) []graphmodel.Reference {
	var out []graphmodel.Reference
	for _, p := range pending {
		if ref, ok := r.Resolve(p.FromScopeUUID, p.FromFile, p.Raw); ok {
			out = append(out, ref)
		}
	}
	return out
}

func (r *Resolver) resolveParallel(pending []PendingReference) []graphmodel.Reference {
	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	jobs := make(chan PendingReference, len(pending))
	results := make(chan graphmodel.Reference, len(pending))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if ref, ok := r.Resolve(p.FromScopeUUID, p.FromFile, p.Raw); ok {
					results <- ref
				}
			}
		}()
	}
	for _, p := range pending {
		jobs <- p
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []graphmodel.Reference
	for ref := range results {
		out = append(out, ref)
	}
	return out
}
