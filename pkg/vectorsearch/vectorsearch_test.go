// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package vectorsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/kind"
)

type fakeBackend struct {
	result     *graphstore.QueryResult
	lastCypher string
	lastParams map[string]any
}

func (f *fakeBackend) Query(ctx context.Context, cypher string, params map[string]any) (*graphstore.QueryResult, error) {
	f.lastCypher = cypher
	f.lastParams = params
	return f.result, nil
}

func (f *fakeBackend) Execute(ctx context.Context, cypher string, params map[string]any) (graphstore.ExecuteSummary, error) {
	return graphstore.ExecuteSummary{}, nil
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

type fakeEmbedder struct{ vector []float32 }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

func TestCoerceTopK_AcceptsIntAndWholeFloat(t *testing.T) {
	n, err := CoerceTopK(10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	n, err = CoerceTopK(float64(25))
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)
}

func TestCoerceTopK_RejectsFractionalFloat(t *testing.T) {
	_, err := CoerceTopK(10.5)
	require.Error(t, err)
	k, ok := kind.Of(err)
	require.True(t, ok)
	assert.Equal(t, kind.ConfigInvalid, k)
}

func TestCoerceTopK_RejectsNonPositive(t *testing.T) {
	_, err := CoerceTopK(0)
	require.Error(t, err)
}

func TestCoerceTopK_RejectsUnsupportedType(t *testing.T) {
	_, err := CoerceTopK("10")
	require.Error(t, err)
}

func TestSearch_ReturnsOrderedMatches(t *testing.T) {
	backend := &fakeBackend{result: &graphstore.QueryResult{
		Headers: []string{"uuid", "score"},
		Rows: [][]any{
			{"u1", 0.95},
			{"u2", 0.80},
		},
	}}
	searcher := NewSearcher(backend, &fakeEmbedder{vector: []float32{0.1, 0.2}})

	matches, err := searcher.Search(context.Background(), Request{
		IndexName: "scope_signature_idx",
		QueryText: "parse a file",
		TopK:      5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "u1", matches[0].UUID)
	assert.Equal(t, int64(5), backend.lastParams["topK"])
	assert.Equal(t, int64(5), backend.lastParams["fetchK"])
	assert.NotContains(t, backend.lastCypher, "filterUuids")
}

func TestSearch_FilterUUIDsInflatesTopKAndFilters(t *testing.T) {
	backend := &fakeBackend{result: &graphstore.QueryResult{
		Headers: []string{"uuid", "score"},
		Rows:    [][]any{{"u1", 0.9}},
	}}
	searcher := NewSearcher(backend, &fakeEmbedder{vector: []float32{0.1}})

	_, err := searcher.Search(context.Background(), Request{
		IndexName:   "scope_source_idx",
		QueryText:   "parse a file",
		TopK:        3,
		FilterUUIDs: []string{"u1", "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30), backend.lastParams["fetchK"])
	assert.Equal(t, int64(3), backend.lastParams["topK"])
	assert.Contains(t, backend.lastCypher, "WHERE node.uuid IN $filterUuids")
}

func TestSearch_MinScoreAddsClause(t *testing.T) {
	backend := &fakeBackend{result: &graphstore.QueryResult{Headers: []string{"uuid", "score"}}}
	searcher := NewSearcher(backend, &fakeEmbedder{vector: []float32{0.1}})

	_, err := searcher.Search(context.Background(), Request{
		IndexName:   "scope_signature_idx",
		QueryText:   "x",
		TopK:        5,
		MinScore:    0.5,
		HasMinScore: true,
	})
	require.NoError(t, err)
	assert.Contains(t, backend.lastCypher, "WHERE score >= $minScore")
	assert.Equal(t, 0.5, backend.lastParams["minScore"])
}

func TestSearch_MinScoreAndFilterCombineWithAnd(t *testing.T) {
	backend := &fakeBackend{result: &graphstore.QueryResult{Headers: []string{"uuid", "score"}}}
	searcher := NewSearcher(backend, &fakeEmbedder{vector: []float32{0.1}})

	_, err := searcher.Search(context.Background(), Request{
		IndexName:   "scope_signature_idx",
		QueryText:   "x",
		TopK:        5,
		FilterUUIDs: []string{"u1"},
		MinScore:    0.5,
		HasMinScore: true,
	})
	require.NoError(t, err)
	assert.Contains(t, backend.lastCypher, "AND score >= $minScore")
}

func TestSearch_RejectsEmptyIndexName(t *testing.T) {
	searcher := NewSearcher(&fakeBackend{}, &fakeEmbedder{})
	_, err := searcher.Search(context.Background(), Request{QueryText: "x", TopK: 5})
	require.Error(t, err)
}

func TestSearch_MissingResultColumnsErrors(t *testing.T) {
	backend := &fakeBackend{result: &graphstore.QueryResult{Headers: []string{"node"}}}
	searcher := NewSearcher(backend, &fakeEmbedder{vector: []float32{0.1}})

	_, err := searcher.Search(context.Background(), Request{IndexName: "idx", QueryText: "x", TopK: 5})
	require.Error(t, err)
}
