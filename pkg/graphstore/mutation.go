// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

package graphstore

import (
	"encoding/json"

	"github.com/scopegraph/scopegraph/pkg/graphmodel"
)

// NodeUpsert is one node's worth of MERGE parameters, keyed by the
// node's identity property (uuid for Scope, key for everything else).
type NodeUpsert struct {
	Label NodeLabel
	Key   string
	Props map[string]any
}

// NodeLabel mirrors graphmodel.NodeLabel; kept local so this file only
// depends on graphmodel for the conversion helpers below, not for the
// label constants themselves re-exported under a different name.
type NodeLabel = graphmodel.NodeLabel

// EdgeUpsert is one relationship's worth of MERGE parameters between two
// already-identified nodes.
type EdgeUpsert struct {
	Type      graphmodel.RelType
	FromLabel NodeLabel
	FromKey   string
	ToLabel   NodeLabel
	ToKey     string
	Props     map[string]any
}

// Batch accumulates node and edge upserts for one two-phase write: every
// node MERGEd before any edge MATCHes it, so batches never see a dangling
// relationship endpoint regardless of ordering within the batch.
type Batch struct {
	Nodes []NodeUpsert
	Edges []EdgeUpsert
}

// AddScope stages a Scope node upsert plus its HAS_PARENT/DEFINED_IN
// edges when known.
func (b *Batch) AddScope(s graphmodel.Scope) {
	b.Nodes = append(b.Nodes, NodeUpsert{
		Label: graphmodel.LabelScope,
		Key:   s.UUID,
		Props: map[string]any{
			"uuid":          s.UUID,
			"name":          s.Name,
			"kind":          string(s.Kind),
			"signature":     s.Signature,
			"file_path":     s.FilePath,
			"start_line":    int64(s.StartLine),
			"end_line":      int64(s.EndLine),
			"start_col":     int64(s.StartCol),
			"end_col":       int64(s.EndCol),
			"content_hash":  s.ContentHash,
			"exported":      s.Exported,
			"project_name":  s.ProjectName,
		},
	})
	b.Edges = append(b.Edges, EdgeUpsert{
		Type:      graphmodel.RelDefinedIn,
		FromLabel: graphmodel.LabelScope,
		FromKey:   s.UUID,
		ToLabel:   graphmodel.LabelFile,
		ToKey:     graphmodel.FileKey(s.FilePath),
	})
	if s.ParentUUID != "" {
		b.Edges = append(b.Edges, EdgeUpsert{
			Type:      graphmodel.RelHasParent,
			FromLabel: graphmodel.LabelScope,
			FromKey:   s.UUID,
			ToLabel:   graphmodel.LabelScope,
			ToKey:     s.ParentUUID,
		})
		b.Edges = append(b.Edges, EdgeUpsert{
			Type:      graphmodel.RelParentOf,
			FromLabel: graphmodel.LabelScope,
			FromKey:   s.ParentUUID,
			ToLabel:   graphmodel.LabelScope,
			ToKey:     s.UUID,
		})
	}
}

// AddFile stages a File node upsert plus its IN_DIRECTORY and BELONGS_TO
// edges.
func (b *Batch) AddFile(f graphmodel.File) {
	b.Nodes = append(b.Nodes, NodeUpsert{
		Label: graphmodel.LabelFile,
		Key:   f.Key,
		Props: map[string]any{
			"key":          f.Key,
			"path":         f.Path,
			"language":     f.Language,
			"size":         f.Size,
			"content_hash": f.ContentHash,
			"project_name": f.ProjectName,
		},
	})
	dirKey := graphmodel.DirectoryKey(parentDir(f.Path))
	b.Edges = append(b.Edges, EdgeUpsert{
		Type:      graphmodel.RelInDirectory,
		FromLabel: graphmodel.LabelFile,
		FromKey:   f.Key,
		ToLabel:   graphmodel.LabelDirectory,
		ToKey:     dirKey,
	})
	b.Edges = append(b.Edges, EdgeUpsert{
		Type:      graphmodel.RelBelongsTo,
		FromLabel: graphmodel.LabelFile,
		FromKey:   f.Key,
		ToLabel:   graphmodel.LabelProject,
		ToKey:     graphmodel.ProjectKey(f.ProjectName),
	})
}

// AddDirectory stages a Directory node upsert plus the PARENT_OF edge
// from its direct parent directory, when it has one. Ancestors further up
// are not staged here.
func (b *Batch) AddDirectory(d graphmodel.Directory) {
	b.Nodes = append(b.Nodes, NodeUpsert{
		Label: graphmodel.LabelDirectory,
		Key:   d.Key,
		Props: map[string]any{
			"key":          d.Key,
			"path":         d.Path,
			"project_name": d.ProjectName,
		},
	})
	if d.ParentKey != "" {
		b.Edges = append(b.Edges, EdgeUpsert{
			Type:      graphmodel.RelParentOf,
			FromLabel: graphmodel.LabelDirectory,
			FromKey:   d.ParentKey,
			ToLabel:   graphmodel.LabelDirectory,
			ToKey:     d.Key,
		})
	}
}

// AddExternalLibrary stages an ExternalLibrary node upsert.
func (b *Batch) AddExternalLibrary(l graphmodel.ExternalLibrary) {
	b.Nodes = append(b.Nodes, NodeUpsert{
		Label: graphmodel.LabelExternalLibrary,
		Key:   l.Key,
		Props: map[string]any{"key": l.Key, "name": l.Name, "version": l.Version},
	})
}

// AddProject stages a Project node upsert. LastIndexedSHA is omitted
// from the upsert's properties when empty, since the write merges
// properties onto the existing node (SET n += row) and an empty string
// would otherwise clobber a SHA a prior run recorded.
func (b *Batch) AddProject(p graphmodel.Project) {
	props := map[string]any{"key": p.Key, "name": p.Name, "root": p.Root}
	if p.LastIndexedSHA != "" {
		props["last_indexed_sha"] = p.LastIndexedSHA
	}
	b.Nodes = append(b.Nodes, NodeUpsert{
		Label: graphmodel.LabelProject,
		Key:   p.Key,
		Props: props,
	})
}

// AddConsumes stages a CONSUMES edge from a scope to whatever it
// references (another scope, an external library), carrying the call
// sites as a JSON-encoded property per the spec's line-column open
// question decision.
func (b *Batch) AddConsumes(fromUUID string, toLabel NodeLabel, toKey string, sites []graphmodel.ConsumeSite) {
	encoded, _ := json.Marshal(sites)
	b.Edges = append(b.Edges, EdgeUpsert{
		Type:      graphmodel.RelConsumes,
		FromLabel: graphmodel.LabelScope,
		FromKey:   fromUUID,
		ToLabel:   toLabel,
		ToKey:     toKey,
		Props:     map[string]any{"sites": string(encoded)},
	})
}

// AddInheritsFrom stages an INHERITS_FROM edge between two Scope type/interface nodes.
func (b *Batch) AddInheritsFrom(fromUUID, toUUID string) {
	b.Edges = append(b.Edges, EdgeUpsert{
		Type: graphmodel.RelInheritsFrom, FromLabel: graphmodel.LabelScope, FromKey: fromUUID,
		ToLabel: graphmodel.LabelScope, ToKey: toUUID,
	})
}

// AddImplements stages an IMPLEMENTS edge from a type Scope to an
// interface Scope.
func (b *Batch) AddImplements(fromUUID, toUUID string) {
	b.Edges = append(b.Edges, EdgeUpsert{
		Type: graphmodel.RelImplements, FromLabel: graphmodel.LabelScope, FromKey: fromUUID,
		ToLabel: graphmodel.LabelScope, ToKey: toUUID,
	})
}

// AddUsesLibrary stages a USES_LIBRARY edge from a file or scope to an
// external library.
func (b *Batch) AddUsesLibrary(fromLabel NodeLabel, fromKey, libKey string) {
	b.Edges = append(b.Edges, EdgeUpsert{
		Type: graphmodel.RelUsesLibrary, FromLabel: fromLabel, FromKey: fromKey,
		ToLabel: graphmodel.LabelExternalLibrary, ToKey: libKey,
	})
}

func parentDir(path string) string {
	norm := graphmodel.NormalizePath(path)
	for i := len(norm) - 1; i >= 0; i-- {
		if norm[i] == '/' {
			return norm[:i]
		}
	}
	return ""
}
