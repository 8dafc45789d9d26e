// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap handles scopegraph project initialization against a
// Neo4j graph store.
//
// Unlike the teacher's embedded-CozoDB bootstrap, scopegraph's store is a
// remote Neo4j instance (§6 of the spec): there's no per-project data
// directory to create, only schema — uniqueness constraints, lookup
// indexes, and the two vector indexes — to ensure exists against whatever
// database the caller points at.
//
// # Initialization Workflow
//
//	info, err := bootstrap.InitProject(ctx, bootstrap.ProjectConfig{
//	    ProjectName: "myproject",
//	    GraphStore:  config.GraphStoreConfig{URI: "neo4j://localhost:7687"},
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Later, open the project for queries without re-bootstrapping schema.
//	backend, err := bootstrap.OpenProject(ctx, bootstrap.ProjectConfig{
//	    ProjectName: "myproject",
//	    GraphStore:  config.GraphStoreConfig{URI: "neo4j://localhost:7687"},
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close(ctx)
//
// # Idempotency
//
// InitProject is idempotent: constraint and index creation use
// IF NOT EXISTS, so calling it on every run is safe and cheap.
//
// # Configuration
//
//   - ProjectName: required. Identifies the project within the shared graph.
//   - GraphStore: required. Neo4j connection details (URI/username/password/database).
//   - EmbeddingDimensions: optional, defaults to 768 (nomic-embed-text); use 1536 for OpenAI.
package bootstrap
