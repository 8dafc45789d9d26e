// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

package graphstore

import "context"

// schemaStatements are the constraint/index DDL scopegraph applies once
// per database before the first ingestion run. Each is idempotent
// (IF NOT EXISTS) so bootstrap can run on every startup.
var schemaStatements = []string{
	`CREATE CONSTRAINT scope_uuid IF NOT EXISTS FOR (s:Scope) REQUIRE s.uuid IS UNIQUE`,
	`CREATE CONSTRAINT file_key IF NOT EXISTS FOR (f:File) REQUIRE f.key IS UNIQUE`,
	`CREATE CONSTRAINT directory_key IF NOT EXISTS FOR (d:Directory) REQUIRE d.key IS UNIQUE`,
	`CREATE CONSTRAINT external_library_key IF NOT EXISTS FOR (l:ExternalLibrary) REQUIRE l.key IS UNIQUE`,
	`CREATE CONSTRAINT project_key IF NOT EXISTS FOR (p:Project) REQUIRE p.key IS UNIQUE`,
	`CREATE INDEX scope_file_path IF NOT EXISTS FOR (s:Scope) ON (s.file_path)`,
	`CREATE INDEX scope_name IF NOT EXISTS FOR (s:Scope) ON (s.name)`,
	`CREATE INDEX scope_project IF NOT EXISTS FOR (s:Scope) ON (s.project_name)`,
}

// VectorIndexSpec describes one of the two embedding indexes the spec
// requires: one over scope signatures, one over scope source text. Both
// live on the same Scope label but target different embedding
// properties, letting the vector search adapter (C9) choose which
// discriminates a query better.
type VectorIndexSpec struct {
	Name       string
	Property   string
	Dimensions int
}

// DefaultVectorIndexes returns the signature and source vector index
// specs scopegraph bootstraps by default.
func DefaultVectorIndexes(dimensions int) []VectorIndexSpec {
	return []VectorIndexSpec{
		{Name: "scope_signature_embedding", Property: "signature_embedding", Dimensions: dimensions},
		{Name: "scope_source_embedding", Property: "source_embedding", Dimensions: dimensions},
	}
}

// Bootstrap applies the constraint/index schema and the two vector
// indexes to the database. It is safe to call on every process start.
func Bootstrap(ctx context.Context, b Backend, dimensions int) error {
	for _, stmt := range schemaStatements {
		if _, err := b.Execute(ctx, stmt, nil); err != nil {
			return err
		}
	}
	for _, spec := range DefaultVectorIndexes(dimensions) {
		stmt := `CALL db.index.vector.createNodeIndex($name, 'Scope', $property, $dimensions, 'cosine')`
		params := map[string]any{
			"name":       spec.Name,
			"property":   spec.Property,
			"dimensions": int64(spec.Dimensions),
		}
		if _, err := b.Execute(ctx, stmt, params); err != nil {
			// Index already existing under a different signature is not
			// fatal to a repeated bootstrap call; the vector search
			// adapter will surface a clearer error if the index is
			// genuinely missing when a query needs it.
			continue
		}
	}
	return nil
}
