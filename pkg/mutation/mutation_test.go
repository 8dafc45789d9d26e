// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package mutation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/kind"
)

type fakeBackend struct {
	queryResults []*graphstore.QueryResult
	queryErr     error
	execSummary  graphstore.ExecuteSummary
	execErr      error

	queries  []string
	executes []string
}

func (f *fakeBackend) Query(ctx context.Context, cypher string, params map[string]any) (*graphstore.QueryResult, error) {
	f.queries = append(f.queries, cypher)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryResults) == 0 {
		return &graphstore.QueryResult{}, nil
	}
	next := f.queryResults[0]
	f.queryResults = f.queryResults[1:]
	return next, nil
}

func (f *fakeBackend) Execute(ctx context.Context, cypher string, params map[string]any) (graphstore.ExecuteSummary, error) {
	f.executes = append(f.executes, cypher)
	return f.execSummary, f.execErr
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func newBuilder(backend *fakeBackend) *Builder {
	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	return NewBuilder(backend, writer, graphmodel.LabelScope, "uuid")
}

func TestCreate_MergesAndReturnsEntity(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{{map[string]any{"uuid": "u1", "name": "foo"}}}},
	}}
	b := newBuilder(backend)

	entity, err := b.Create(context.Background(), map[string]any{"uuid": "u1", "name": "foo"})
	require.NoError(t, err)
	assert.Equal(t, "foo", entity["name"])
	require.Len(t, backend.executes, 1)
}

func TestCreate_MissingUniqueFieldErrors(t *testing.T) {
	b := newBuilder(&fakeBackend{})
	_, err := b.Create(context.Background(), map[string]any{"name": "foo"})
	require.Error(t, err)
	k, ok := kind.Of(err)
	require.True(t, ok)
	assert.Equal(t, kind.ConfigInvalid, k)
}

func TestCreateBatch_ReturnsEntitiesInInputOrder(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{
			{map[string]any{"uuid": "u2", "name": "b"}},
			{map[string]any{"uuid": "u1", "name": "a"}},
		}},
	}}
	b := newBuilder(backend)

	entities, err := b.CreateBatch(context.Background(), []map[string]any{
		{"uuid": "u1", "name": "a"},
		{"uuid": "u2", "name": "b"},
	})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "a", entities[0]["name"])
	assert.Equal(t, "b", entities[1]["name"])
}

func TestUpdate_AppliesPatchAndReturnsEntity(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{{map[string]any{"uuid": "u1", "name": "old"}}}},
		{Headers: []string{"entity"}, Rows: [][]any{{map[string]any{"uuid": "u1", "name": "new"}}}},
	}}
	b := newBuilder(backend)

	entity, err := b.Update(context.Background(), "u1", map[string]any{"name": "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", entity["name"])
	require.Len(t, backend.executes, 1)
}

func TestUpdate_MissingIDFailsWithNotFound(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: nil},
	}}
	b := newBuilder(backend)

	_, err := b.Update(context.Background(), "missing", map[string]any{"name": "new"})
	require.Error(t, err)
	k, ok := kind.Of(err)
	require.True(t, ok)
	assert.Equal(t, kind.NotFound, k)
	assert.Empty(t, backend.executes, "update must not write when the target does not exist")
}

func TestDelete_IssuesDetachDelete(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuilder(backend)

	err := b.Delete(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, backend.executes, 1)
	assert.Contains(t, backend.executes[0], "DETACH DELETE")
}

func TestAddRelationship_ValidatesBothEndpointsThenMerges(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"c"}, Rows: [][]any{{int64(1)}}},
		{Headers: []string{"c"}, Rows: [][]any{{int64(1)}}},
	}}
	b := newBuilder(backend)

	err := b.AddRelationship(context.Background(), "u1", RelationshipSpec{
		Type:        graphmodel.RelConsumes,
		TargetLabel: graphmodel.LabelScope,
		TargetID:    "u2",
	})
	require.NoError(t, err)
	require.Len(t, backend.executes, 1)
	assert.Contains(t, backend.executes[0], "MERGE (a)-[r:CONSUMES]->(b)")
}

func TestAddRelationship_MissingTargetFailsWithNotFound(t *testing.T) {
	backend := &fakeBackend{queryResults: []*graphstore.QueryResult{
		{Headers: []string{"c"}, Rows: [][]any{{int64(1)}}},
		{Headers: []string{"c"}, Rows: [][]any{{int64(0)}}},
	}}
	b := newBuilder(backend)

	err := b.AddRelationship(context.Background(), "u1", RelationshipSpec{
		Type:        graphmodel.RelConsumes,
		TargetLabel: graphmodel.LabelScope,
		TargetID:    "ghost",
	})
	require.Error(t, err)
	k, ok := kind.Of(err)
	require.True(t, ok)
	assert.Equal(t, kind.NotFound, k)
	assert.Empty(t, backend.executes)
}

func TestRemoveRelationship_IsIdempotentNoOp(t *testing.T) {
	backend := &fakeBackend{}
	b := newBuilder(backend)

	err := b.RemoveRelationship(context.Background(), "u1", RelationshipSpec{
		Type:        graphmodel.RelConsumes,
		TargetLabel: graphmodel.LabelScope,
		TargetID:    "u2",
	})
	require.NoError(t, err)
	require.Len(t, backend.executes, 1)
}

func TestNormalizeProps_TimeBecomesISO8601(t *testing.T) {
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.FixedZone("UTC-5", -5*3600))
	out, err := normalizeProps(map[string]any{"when": ts})
	require.NoError(t, err)
	assert.Equal(t, ts.Format(time.RFC3339), out["when"])
}

func TestNormalizeProps_NestedMapBecomesJSONString(t *testing.T) {
	out, err := normalizeProps(map[string]any{"meta": map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, out["meta"])
}

func TestNormalizeProps_ScalarArrayPassesThrough(t *testing.T) {
	out, err := normalizeProps(map[string]any{"tags": []any{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, out["tags"])
}

func TestNormalizeProps_NonScalarArrayFallsBackToJSON(t *testing.T) {
	out, err := normalizeProps(map[string]any{"items": []any{map[string]any{"a": 1}}})
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1}]`, out["items"])
}
