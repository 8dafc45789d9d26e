// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package graphstore implements scopegraph's graph-store backend (C5
// ingestion executor, C12 mutation builder) over Neo4j, per the wire
// contract fixed by the spec: Cypher as the query language, NEO4J_URI /
// NEO4J_USERNAME / NEO4J_PASSWORD / NEO4J_DATABASE as the connection
// surface. The Backend interface below keeps the same shape scopegraph's
// lineage has always used for its storage layer (Query/Execute/Close
// against a property-graph value shape) so callers — the change tracker,
// the query pipeline, the mutation builder — depend on an interface, not
// a driver.
package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/kind"
)

// QueryResult is the tabular shape a Cypher query returns: one header per
// RETURN column, one row per record, values already unwrapped from the
// driver's neo4j.Record into plain Go values (string, int64, float64,
// bool, []any, map[string]any, nil).
type QueryResult struct {
	Headers []string
	Rows    [][]any
}

// Backend is the interface every component in scopegraph talks to the
// graph store through.
type Backend interface {
	// Query runs a read query and returns its result set.
	Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error)

	// Execute runs a write query (a mutation) and discards its result
	// set, returning only the summary counters callers care about.
	Execute(ctx context.Context, cypher string, params map[string]any) (ExecuteSummary, error)

	// Close releases the underlying driver connection pool.
	Close(ctx context.Context) error
}

// ExecuteSummary reports the effect of a write query.
type ExecuteSummary struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
}

// Neo4jBackend is the Backend implementation talking to a live Neo4j
// instance over bolt.
type Neo4jBackend struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jBackend dials the configured Neo4j instance. It verifies
// connectivity before returning so callers fail fast on a bad URI or bad
// credentials rather than on the first query.
func NewNeo4jBackend(ctx context.Context, cfg config.GraphStoreConfig) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, kind.Wrap(kind.GraphStoreUnavailable, "cannot construct neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, kind.Wrap(kind.GraphStoreUnavailable, "cannot connect to neo4j at "+cfg.URI, err)
	}
	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jBackend{driver: driver, database: database}, nil
}

func (b *Neo4jBackend) Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: b.database,
	})
	defer session.Close(ctx)

	result, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (*QueryResult, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		qr := &QueryResult{Headers: res.Keys()}
		for res.Next(ctx) {
			rec := res.Record()
			qr.Rows = append(qr.Rows, append([]any(nil), rec.Values...))
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return qr, nil
	})
	if err != nil {
		return nil, classifyNeo4jError(err)
	}
	return result, nil
}

func (b *Neo4jBackend) Execute(ctx context.Context, cypher string, params map[string]any) (ExecuteSummary, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: b.database,
	})
	defer session.Close(ctx)

	summary, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (neo4j.ResultSummary, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return ExecuteSummary{}, classifyNeo4jError(err)
	}
	counters := summary.Counters()
	return ExecuteSummary{
		NodesCreated:         counters.NodesCreated(),
		NodesDeleted:         counters.NodesDeleted(),
		RelationshipsCreated: counters.RelationshipsCreated(),
		RelationshipsDeleted: counters.RelationshipsDeleted(),
		PropertiesSet:        counters.PropertiesSet(),
	}, nil
}

func (b *Neo4jBackend) Close(ctx context.Context) error {
	return b.driver.Close(ctx)
}

// classifyNeo4jError maps a driver error onto scopegraph's error
// taxonomy: connectivity failures are GraphStoreUnavailable, schema and
// request client errors (constraint violations among them) are
// SchemaViolation, and every other error — retryable or not, including
// authentication failures — is TransientGraphError.
func classifyNeo4jError(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return kind.Wrap(kind.GraphStoreUnavailable, "neo4j connectivity error", err)
	}
	var neo4jErr *neo4j.Neo4jError
	if neo4j.As(err, &neo4jErr) {
		switch {
		case neo4jErr.Classification() == "ClientError" && (neo4jErr.Category() == "Schema" || neo4jErr.Category() == "Request"):
			return kind.Wrap(kind.SchemaViolation, "neo4j rejected the write", err)
		case neo4j.IsRetryable(err):
			return kind.Wrap(kind.TransientGraphError, "neo4j transient error", err)
		}
	}
	if neo4j.IsRetryable(err) {
		return kind.Wrap(kind.TransientGraphError, "neo4j transient error", err)
	}
	return kind.Wrap(kind.TransientGraphError, "neo4j error", err)
}
