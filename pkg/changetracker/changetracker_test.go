// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package changetracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
)

// fakeBackend is a scriptable in-memory graphstore.Backend: queryResults
// is consumed in FIFO order by successive Query calls, letting a test
// control exactly what "the store" reports back without a live Neo4j.
type fakeBackend struct {
	queryResults []*graphstore.QueryResult
	queryCalls   []string
	execCalls    []string
}

func (f *fakeBackend) Query(ctx context.Context, cypher string, params map[string]any) (*graphstore.QueryResult, error) {
	f.queryCalls = append(f.queryCalls, cypher)
	if len(f.queryResults) == 0 {
		return &graphstore.QueryResult{}, nil
	}
	next := f.queryResults[0]
	f.queryResults = f.queryResults[1:]
	return next, nil
}

func (f *fakeBackend) Execute(ctx context.Context, cypher string, params map[string]any) (graphstore.ExecuteSummary, error) {
	f.execCalls = append(f.execCalls, cypher)
	return graphstore.ExecuteSummary{}, nil
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func scope(uuid, hash, file string) graphmodel.Scope {
	return graphmodel.Scope{UUID: uuid, FilePath: file, ContentHash: hash, ProjectName: "proj"}
}

func TestClassify_CreatedWhenUUIDUnknown(t *testing.T) {
	backend := &fakeBackend{}
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	tracker := NewTracker(backend, writer, config.IngestionConfig{}, nil, nil)

	res, err := tracker.Classify(context.Background(), "proj", []string{"a.go"}, []graphmodel.Scope{scope("u1", "h1", "a.go")})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counters[ClassCreated])
	assert.Equal(t, 0, res.Counters[ClassUpdated])
	require.Len(t, res.ToUpsert, 1)
	assert.Equal(t, "u1", res.ToUpsert[0].UUID)
}

func TestClassify_UpdatedWhenHashDiffers(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"uuid", "hash"}, Rows: [][]any{{"u1", "old-hash"}}},
	}}
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	tracker := NewTracker(backend, writer, config.IngestionConfig{}, nil, nil)

	res, err := tracker.Classify(context.Background(), "proj", []string{"a.go"}, []graphmodel.Scope{scope("u1", "new-hash", "a.go")})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counters[ClassUpdated])
	require.Len(t, res.Changes, 1)
	assert.Equal(t, ClassUpdated, res.Changes[0].Class)
}

func TestClassify_UnchangedWhenHashMatches(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"uuid", "hash"}, Rows: [][]any{{"u1", "same-hash"}}},
	}}
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	tracker := NewTracker(backend, writer, config.IngestionConfig{}, nil, nil)

	res, err := tracker.Classify(context.Background(), "proj", []string{"a.go"}, []graphmodel.Scope{scope("u1", "same-hash", "a.go")})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counters[ClassUnchanged])
	assert.Empty(t, res.ToUpsert)
}

func TestClassify_DeletedScopedToCurrentFiles(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"uuid", "hash"}}, // existingHashes: nothing known
		{Headers: []string{"uuid"}, Rows: [][]any{{"gone"}}}, // deletedUUIDs
	}}
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	tracker := NewTracker(backend, writer, config.IngestionConfig{}, nil, nil)

	res, err := tracker.Classify(context.Background(), "proj", []string{"a.go"}, []graphmodel.Scope{scope("u1", "h1", "a.go")})
	require.NoError(t, err)

	assert.Equal(t, []string{"gone"}, res.ToDelete)
	assert.Equal(t, 1, res.Counters[ClassDeleted])
	assert.Contains(t, backend.execCalls[0], "DETACH DELETE")
}

func TestClassify_DryRunSkipsWrites(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"uuid", "hash"}},
		{Headers: []string{"uuid"}, Rows: [][]any{{"gone"}}},
	}}
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	tracker := NewTracker(backend, writer, config.IngestionConfig{DryRun: true}, []string{"doc"}, nil)

	res, err := tracker.Classify(context.Background(), "proj", []string{"a.go"}, []graphmodel.Scope{scope("u1", "h1", "a.go")})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counters[ClassCreated])
	assert.Equal(t, 1, res.Counters[ClassDeleted])
	assert.Empty(t, backend.execCalls, "dry run must not issue any write")
}

func TestClassify_InvalidatesSummaryHashForChangedScopes(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"uuid", "hash"}, Rows: [][]any{{"u1", "old-hash"}}},
	}}
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	tracker := NewTracker(backend, writer, config.IngestionConfig{}, []string{"doc"}, nil)

	_, err := tracker.Classify(context.Background(), "proj", []string{"a.go"}, []graphmodel.Scope{scope("u1", "new-hash", "a.go")})
	require.NoError(t, err)

	require.Len(t, backend.execCalls, 1)
	assert.Contains(t, backend.execCalls[0], "doc_summary_hash = null")
}

func TestClassify_CascadeInvalidatesCallers(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"uuid", "hash"}, Rows: [][]any{{"u1", "old-hash"}}}, // existingHashes
		{Headers: []string{"uuid"}}, // deletedUUIDs: none
		{Headers: []string{"uuid"}, Rows: [][]any{{"caller1"}}}, // cascadeTargets
	}}
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	tracker := NewTracker(backend, writer, config.IngestionConfig{CascadeInvalidateSummaries: true}, []string{"doc"}, nil)

	res, err := tracker.Classify(context.Background(), "proj", []string{"a.go"}, []graphmodel.Scope{scope("u1", "new-hash", "a.go")})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"u1", "caller1"}, res.Invalidated)
}
