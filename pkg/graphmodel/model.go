// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

package graphmodel

// NodeLabel is the property-graph label of a node kind.
type NodeLabel string

const (
	LabelScope           NodeLabel = "Scope"
	LabelFile            NodeLabel = "File"
	LabelDirectory       NodeLabel = "Directory"
	LabelExternalLibrary NodeLabel = "ExternalLibrary"
	LabelProject         NodeLabel = "Project"
)

// RelType is the property-graph relationship type between two nodes.
type RelType string

const (
	RelDefinedIn     RelType = "DEFINED_IN"
	RelInDirectory   RelType = "IN_DIRECTORY"
	RelParentOf      RelType = "PARENT_OF"
	RelConsumes      RelType = "CONSUMES"
	RelInheritsFrom  RelType = "INHERITS_FROM"
	RelImplements    RelType = "IMPLEMENTS"
	RelHasParent     RelType = "HAS_PARENT"
	RelUsesLibrary   RelType = "USES_LIBRARY"
	RelBelongsTo     RelType = "BELONGS_TO"
)

// ScopeKind enumerates the kinds of lexical scope a parser adapter may report.
type ScopeKind string

const (
	ScopeFunction  ScopeKind = "function"
	ScopeMethod    ScopeKind = "method"
	ScopeType      ScopeKind = "type"
	ScopeInterface ScopeKind = "interface"
	ScopeClosure   ScopeKind = "closure"
	ScopeModule    ScopeKind = "module"
	ScopeVariable  ScopeKind = "variable"
	ScopeConstant  ScopeKind = "constant"
)

// Scope is the primary unit of code this graph tracks: a function, method,
// type, interface, or closure with a unique lexical extent in one file.
type Scope struct {
	UUID        string
	Name        string
	Kind        ScopeKind
	Signature   string
	FilePath    string
	StartLine   int
	EndLine     int
	StartCol    int
	EndCol      int
	ContentHash string
	Exported    bool
	ParentUUID  string // enclosing scope, if any (HAS_PARENT)
	ProjectName string
}

// File is a source file node.
type File struct {
	Key         string // FileKey(Path)
	Path        string
	Language    string
	Size        int64
	ContentHash string
	ProjectName string
}

// Directory is a filesystem directory node, used to model the PARENT_OF
// directory tree and File.IN_DIRECTORY membership.
type Directory struct {
	Key         string // DirectoryKey(Path)
	Path        string
	ParentKey   string // parent Directory's Key, or "" at project root
	ProjectName string
}

// ExternalLibrary is a third-party dependency node, targeted by
// USES_LIBRARY edges from scopes or files that import it.
type ExternalLibrary struct {
	Key     string // ExternalLibraryKey(Name)
	Name    string
	Version string
}

// Project is the root node for one ingested codebase.
type Project struct {
	Key  string // ProjectKey(Name)
	Name string
	Root string
	// LastIndexedSHA is the git commit the most recent successful
	// ingestion run completed against, read back on the next run to
	// narrow file discovery to a git delta (§C supplemented feature).
	// Empty when the project isn't a git worktree or no run has
	// completed yet.
	LastIndexedSHA string
}

// ConsumeSite records one location within a consuming scope where a
// CONSUMES relationship's target is referenced; scopegraph serializes a
// slice of these to the edge's "sites" JSON property (§9 open question:
// line-column on CONSUMES modelled as an edge property, not a node).
type ConsumeSite struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Context string `json:"context,omitempty"`
}

// ReferenceKind classifies how a reference was resolved.
type ReferenceKind string

const (
	ReferenceLocalScope ReferenceKind = "local_scope"
	ReferenceImport     ReferenceKind = "import"
	ReferenceExternal   ReferenceKind = "external"
)

// Reference is an unresolved-or-resolved use of a name from within a
// Scope, as produced by a parser adapter and consumed by the reference
// resolver (C3).
type Reference struct {
	FromScopeUUID string
	Name          string
	Line          int
	Column        int
	Context       string
	Kind          ReferenceKind
	// ImportPath is set when the reference crosses a module/package
	// boundary (Kind == ReferenceImport or ReferenceExternal).
	ImportPath string
}
