// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package testing provides test helpers for scopegraph integration tests
// that need a real Neo4j graph store.
//
// # Quick Start
//
// Use SetupTestBackend to connect to a Neo4j instance (skipped when
// SCOPEGRAPH_TEST_NEO4J_URI isn't set) with schema already bootstrapped:
//
//	func TestMyFeature(t *testing.T) {
//	    backend := testing.SetupTestBackend(t)
//
//	    testing.InsertTestScope(t, backend, graphmodel.Scope{
//	        UUID: "abc12345", Name: "HandleAuth", FilePath: "test.go",
//	    })
//
//	    result := testing.QueryScopesByName(t, backend, "HandleAuth")
//	    require.Len(t, result.Rows, 1)
//	}
//
// # Seeding Test Data
//
//   - InsertTestScope: add a Scope node via the production Batch/Writer path
//   - InsertTestFile: add a File node
//   - InsertTestConsumes: add a CONSUMES edge between two scopes
//
// # Querying Test Data
//
//   - QueryScopesByName: find scopes by name
//   - QueryFilesByPath: find files by path
package testing
