// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"os"
	"testing"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
)

// SetupTestBackend connects to a Neo4j instance for integration tests and
// ensures scopegraph's schema exists against it. Unlike the teacher's
// embedded-CozoDB helper, there's no in-process Neo4j to spin up here —
// tests that need a real graph store set SCOPEGRAPH_TEST_NEO4J_URI and are
// skipped otherwise, following Go's usual pattern for externally-backed
// integration tests.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    backend := testing.SetupTestBackend(t)
//	    testing.InsertTestScope(t, backend, graphmodel.Scope{...})
//	    // Run your tests...
//	}
func SetupTestBackend(t *testing.T) *graphstore.Neo4jBackend {
	t.Helper()

	uri := os.Getenv("SCOPEGRAPH_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("SCOPEGRAPH_TEST_NEO4J_URI not set, skipping Neo4j-backed test")
	}

	cfg := config.GraphStoreConfig{
		URI:      uri,
		Username: os.Getenv("SCOPEGRAPH_TEST_NEO4J_USERNAME"),
		Password: os.Getenv("SCOPEGRAPH_TEST_NEO4J_PASSWORD"),
		Database: os.Getenv("SCOPEGRAPH_TEST_NEO4J_DATABASE"),
	}
	if cfg.Username == "" {
		cfg.Username = "neo4j"
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}

	ctx := context.Background()
	backend, err := graphstore.NewNeo4jBackend(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect test backend: %v", err)
	}

	if err := graphstore.Bootstrap(ctx, backend, 8); err != nil {
		t.Fatalf("failed to bootstrap schema: %v", err)
	}

	t.Cleanup(func() { _ = backend.Close(context.Background()) })

	return backend
}

// InsertTestScope writes a single Scope node via the same Batch/Writer
// path production ingestion uses, for tests that seed a known scope and
// assert on query results.
//
// Example:
//
//	backend := testing.SetupTestBackend(t)
//	testing.InsertTestScope(t, backend, graphmodel.Scope{
//	    UUID: "abc12345", Name: "HandleAuth", Kind: graphmodel.ScopeFunction,
//	    FilePath: "auth.go", StartLine: 10, EndLine: 25, ProjectName: "demo",
//	})
func InsertTestScope(t *testing.T, backend *graphstore.Neo4jBackend, scope graphmodel.Scope) {
	t.Helper()

	var batch graphstore.Batch
	batch.AddScope(scope)

	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	if _, err := writer.Apply(context.Background(), batch); err != nil {
		t.Fatalf("failed to insert test scope: %v", err)
	}
}

// InsertTestFile writes a single File node.
//
// Example:
//
//	testing.InsertTestFile(t, backend, graphmodel.File{
//	    Key: graphmodel.FileKey("auth.go"), Path: "auth.go", Language: "go",
//	})
func InsertTestFile(t *testing.T, backend *graphstore.Neo4jBackend, file graphmodel.File) {
	t.Helper()

	var batch graphstore.Batch
	batch.AddFile(file)

	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	if _, err := writer.Apply(context.Background(), batch); err != nil {
		t.Fatalf("failed to insert test file: %v", err)
	}
}

// InsertTestConsumes wires a CONSUMES edge from a scope to a target scope,
// the relationship reference resolution (C3) produces.
func InsertTestConsumes(t *testing.T, backend *graphstore.Neo4jBackend, fromUUID, toUUID string, sites []graphmodel.ConsumeSite) {
	t.Helper()

	var batch graphstore.Batch
	batch.AddConsumes(fromUUID, graphmodel.LabelScope, toUUID, sites)

	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	if _, err := writer.Apply(context.Background(), batch); err != nil {
		t.Fatalf("failed to insert test CONSUMES edge: %v", err)
	}
}

// QueryScopesByName queries scopes by name, returning [uuid, name] rows.
//
// Example:
//
//	result := testing.QueryScopesByName(t, backend, "HandleAuth")
//	require.Len(t, result.Rows, 1)
func QueryScopesByName(t *testing.T, backend *graphstore.Neo4jBackend, name string) *graphstore.QueryResult {
	t.Helper()

	result, err := backend.Query(context.Background(),
		"MATCH (s:Scope {name: $name}) RETURN s.uuid AS uuid, s.name AS name",
		map[string]any{"name": name},
	)
	if err != nil {
		t.Fatalf("failed to query scopes: %v", err)
	}
	return result
}

// QueryFilesByPath queries files by path, returning [key, path] rows.
func QueryFilesByPath(t *testing.T, backend *graphstore.Neo4jBackend, path string) *graphstore.QueryResult {
	t.Helper()

	result, err := backend.Query(context.Background(),
		"MATCH (f:File {path: $path}) RETURN f.key AS key, f.path AS path",
		map[string]any{"path": path},
	)
	if err != nil {
		t.Fatalf("failed to query files: %v", err)
	}
	return result
}
