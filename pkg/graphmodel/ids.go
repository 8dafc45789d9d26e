// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package graphmodel defines the property-graph node and relationship
// shapes scopegraph ingests into the graph store, and the deterministic
// identifier scheme that keeps repeated ingestion runs idempotent.
//
// The identifier scheme here intentionally departs from the longer,
// collision-resistant hashes used elsewhere in scopegraph's lineage
// (full 32-byte file/function hashes): this spec fixes identifiers at
// 8 hex characters, not RFC-4122 UUIDs, traded for a bounded but
// acceptable collision budget at the scale a single project's scope
// graph runs at.
package graphmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
)

// NormalizePath cleans a file path to forward-slash, relative form so
// identifiers are stable across platforms and invocation directories.
func NormalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	path = filepath.ToSlash(path)
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}

// ScopeUUID computes the deterministic 8-hex-char identifier for a Scope
// node: SHA256("<parent>.<signature|name:type:content>[:line<L>]")[:8],
// lowercased. parent is the owning scope's uuid, or the empty string for
// a file-level (top) scope. When signature is non-empty it is used as the
// discriminant; otherwise "name:type:content" is used, where content is a
// hash of the scope's body text so structurally different same-named
// scopes at different lines still collide predictably rather than
// silently merging. line is the scope's 1-based start line; per §3 it is
// appended only when scopeType is "variable" or "constant", to
// disambiguate shadowed declarations that otherwise share every other
// field — every other scope kind's identity is line-independent, so a
// comment added above a function (shifting its start line, leaving
// signature and parent unchanged) does not mint a new UUID.
func ScopeUUID(parent, signature, name, scopeType, contentHash string, line int) string {
	discriminant := signature
	if discriminant == "" {
		discriminant = fmt.Sprintf("%s:%s:%s", name, scopeType, contentHash)
	}
	key := parent + "." + discriminant
	if line != 0 && (scopeType == string(ScopeVariable) || scopeType == string(ScopeConstant)) {
		key += ":line" + strconv.Itoa(line)
	}
	return shortHash(key)
}

// FileKey is the identity key for a File node: "file:<normalized path>".
func FileKey(path string) string {
	return "file:" + NormalizePath(path)
}

// DirectoryKey is the identity key for a Directory node: "dir:<normalized path>".
func DirectoryKey(path string) string {
	return "dir:" + NormalizePath(path)
}

// ExternalLibraryKey is the identity key for an ExternalLibrary node.
func ExternalLibraryKey(name string) string {
	return "lib:" + name
}

// ProjectKey is the identity key for a Project node.
func ProjectKey(name string) string {
	return "project:" + name
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
