// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
)

// ProjectConfig holds configuration for connecting a project to its graph
// store. Unlike the teacher's embedded-CozoDB bootstrap, scopegraph's store
// is a remote Neo4j instance (§6): there is no on-disk data directory to
// create, only a schema to ensure exists against whatever database the
// caller points at.
type ProjectConfig struct {
	// ProjectName identifies the project within the shared graph (every
	// node this project owns carries this value, see graphmodel.ProjectKey).
	ProjectName string

	// GraphStore is the Neo4j connection the project's nodes live in.
	GraphStore config.GraphStoreConfig

	// EmbeddingDimensions sizes the two vector indexes (signature and
	// source). Defaults to 768 (nomic-embed-text); use 1536 for OpenAI.
	EmbeddingDimensions int
}

// ProjectInfo holds information about an initialized project.
type ProjectInfo struct {
	ProjectName string
	URI         string
	Database    string
}

// InitProject connects to the configured Neo4j instance and ensures the
// project's schema — uniqueness constraints, lookup indexes, and the two
// vector indexes — exists. Idempotent: constraint/index creation uses
// IF NOT EXISTS, so calling this on every run is safe and cheap.
func InitProject(ctx context.Context, cfg ProjectConfig, logger *slog.Logger) (*ProjectInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProjectName == "" {
		return nil, fmt.Errorf("project_name is required")
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions == 0 {
		dimensions = 768
	}

	logger.Info("bootstrap.project.init.start", "project_name", cfg.ProjectName, "uri", cfg.GraphStore.URI)

	backend, err := graphstore.NewNeo4jBackend(ctx, cfg.GraphStore)
	if err != nil {
		return nil, fmt.Errorf("connect to graph store: %w", err)
	}
	defer func() { _ = backend.Close(ctx) }()

	if err := graphstore.Bootstrap(ctx, backend, dimensions); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	logger.Info("bootstrap.project.init.success", "project_name", cfg.ProjectName)
	return &ProjectInfo{
		ProjectName: cfg.ProjectName,
		URI:         cfg.GraphStore.URI,
		Database:    cfg.GraphStore.Database,
	}, nil
}

// OpenProject connects to an existing project's graph store without
// re-running schema bootstrap — the caller is expected to have run
// InitProject at least once against this database already.
func OpenProject(ctx context.Context, cfg ProjectConfig, logger *slog.Logger) (*graphstore.Neo4jBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProjectName == "" {
		return nil, fmt.Errorf("project_name is required")
	}

	logger.Debug("bootstrap.project.open", "project_name", cfg.ProjectName, "uri", cfg.GraphStore.URI)

	backend, err := graphstore.NewNeo4jBackend(ctx, cfg.GraphStore)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return backend, nil
}
