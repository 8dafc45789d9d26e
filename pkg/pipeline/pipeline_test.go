// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/llm"
	"github.com/scopegraph/scopegraph/pkg/rerank"
	"github.com/scopegraph/scopegraph/pkg/vectorsearch"
)

type fakeEmbedder struct{ vector []float32 }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

type fakeBackend struct {
	results    []*graphstore.QueryResult
	lastCypher string
	lastParams map[string]any
	calls      []string
}

func (f *fakeBackend) Query(ctx context.Context, cypher string, params map[string]any) (*graphstore.QueryResult, error) {
	f.lastCypher = cypher
	f.lastParams = params
	f.calls = append(f.calls, cypher)
	if len(f.results) == 0 {
		return &graphstore.QueryResult{}, nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next, nil
}

func (f *fakeBackend) Execute(ctx context.Context, cypher string, params map[string]any) (graphstore.ExecuteSummary, error) {
	return graphstore.ExecuteSummary{}, nil
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func TestFetch_BuildsWhereClauseAndReturnsEntities(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{
			{map[string]any{"uuid": "u1", "name": "foo"}},
		}},
	}}
	p := New(backend, nil, nil)
	p.Fetch(graphmodel.LabelScope, []Predicate{{Field: "name", Op: OpEq, Value: "foo"}}, nil)

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].uuid())
	assert.Contains(t, backend.lastCypher, "MATCH (n:Scope)")
	assert.Contains(t, backend.lastCypher, "n.name = $p0")
}

func TestFetch_WithEnrichmentUsesWithChain(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity", "consumes"}, Rows: [][]any{
			{map[string]any{"uuid": "u1"}, []any{"a", "b"}},
		}},
	}}
	p := New(backend, nil, nil)
	p.Fetch(graphmodel.LabelScope, nil, []EnrichSpec{
		{RelType: graphmodel.RelConsumes, Direction: DirOut, TargetLabel: graphmodel.LabelScope, TargetField: "name", As: "consumes"},
	})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, backend.lastCypher, "OPTIONAL MATCH (n)-[:CONSUMES*1..1]->(t0:Scope)")
	assert.Contains(t, backend.lastCypher, "collect(DISTINCT t0.name) AS collected0")
	assert.Equal(t, []string{"a", "b"}, results[0].Context["consumes"])
}

func TestFilter_NarrowsInMemory(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{
			{map[string]any{"uuid": "u1", "kind": "function"}},
			{map[string]any{"uuid": "u2", "kind": "class"}},
		}},
	}}
	p := New(backend, nil, nil)
	p.Fetch(graphmodel.LabelScope, nil, nil).
		Filter(Predicate{Field: "kind", Op: OpEq, Value: "function"})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].uuid())
}

func TestExpand_DirectionArrows(t *testing.T) {
	cases := []struct {
		dir  Direction
		want string
	}{
		{DirOut, "(n)-[:CONSUMES*1..2]->(related:Scope)"},
		{DirIn, "(n)<-[:CONSUMES*1..2]-(related:Scope)"},
		{DirBoth, "(n)-[:CONSUMES*1..2]-(related:Scope)"},
	}
	for _, tc := range cases {
		got := relationshipPattern("n", graphmodel.RelConsumes, tc.dir, 2, "related", graphmodel.LabelScope)
		assert.Equal(t, tc.want, got)
	}
}

func TestExpand_CarriesSourceScoreAndNarrows(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{
			{map[string]any{"uuid": "u1"}},
		}},
		{Headers: []string{"sourceUuid", "entity"}, Rows: [][]any{
			{"u1", map[string]any{"uuid": "u2"}},
		}},
	}}
	p := New(backend, nil, nil)
	p.Fetch(graphmodel.LabelScope, nil, nil).
		Expand(ExpandSpec{RelType: graphmodel.RelConsumes, Direction: DirOut, Depth: 1, TargetLabel: graphmodel.LabelScope})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u2", results[0].uuid())
	assert.Contains(t, backend.lastCypher, "WHERE n.uuid IN $sourceUuids")
}

func TestExpand_WithoutPriorLabelOrWorkingSetErrors(t *testing.T) {
	backend := &fakeBackend{}
	p := New(backend, nil, nil)
	p.Expand(ExpandSpec{RelType: graphmodel.RelConsumes, Direction: DirOut, Depth: 1, TargetLabel: graphmodel.LabelScope})

	_, err := p.Execute(context.Background())
	require.Error(t, err)
}

func TestChain_ReshapesWorkingSet(t *testing.T) {
	p := New(&fakeBackend{}, nil, nil)
	p.Chain(func(ctx context.Context, results []SearchResult) ([]SearchResult, error) {
		return []SearchResult{{Entity: map[string]any{"uuid": "synthetic"}, Score: 0.5}}, nil
	})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "synthetic", results[0].uuid())
}

func TestTraverse_MutatesEachEntry(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{
			{map[string]any{"uuid": "u1"}},
			{map[string]any{"uuid": "u2"}},
		}},
	}}
	p := New(backend, nil, nil)
	p.Fetch(graphmodel.LabelScope, nil, nil).
		Traverse(func(ctx context.Context, r *SearchResult) error {
			r.Context = map[string]any{"visited": true}
			return nil
		})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, true, r.Context["visited"])
	}
}

func TestExecute_CancelledContextReturnsNoPartialResult(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{{map[string]any{"uuid": "u1"}}}},
	}}
	p := New(backend, nil, nil)
	p.Fetch(graphmodel.LabelScope, nil, nil).
		Chain(func(ctx context.Context, results []SearchResult) ([]SearchResult, error) { return results, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := p.Execute(ctx)
	require.Error(t, err)
	assert.Nil(t, results)
}

func TestExecuteFlat_ReturnsBareEntities(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{{map[string]any{"uuid": "u1", "name": "foo"}}}},
	}}
	p := New(backend, nil, nil)
	p.Fetch(graphmodel.LabelScope, nil, nil)

	flat, err := p.ExecuteFlat(context.Background())
	require.NoError(t, err)
	require.Len(t, flat, 1)
	assert.Equal(t, "foo", flat[0]["name"])
}

type decodedScope struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func TestDecodeEntities_MarshalsIntoTargetType(t *testing.T) {
	results := []SearchResult{{Entity: map[string]any{"uuid": "u1", "name": "foo"}}}
	decoded, err := DecodeEntities[decodedScope](results)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "u1", decoded[0].UUID)
	assert.Equal(t, "foo", decoded[0].Name)
}

func TestPredicate_RangeMatchesInMemory(t *testing.T) {
	p := Predicate{Field: "score", Op: OpRange, Min: 0.5, Max: 1.0}
	assert.True(t, p.matches(map[string]any{"score": 0.7}))
	assert.False(t, p.matches(map[string]any{"score": 0.2}))
}

func TestPredicate_ContainsAndStartsWith(t *testing.T) {
	contains := Predicate{Field: "name", Op: OpContains, Value: "oo"}
	startsWith := Predicate{Field: "name", Op: OpStartsWith, Value: "fo"}
	entity := map[string]any{"name": "foobar"}
	assert.True(t, contains.matches(entity))
	assert.True(t, startsWith.matches(entity))
	assert.False(t, startsWith.matches(map[string]any{"name": "barfoo"}))
}

func TestSemantic_NarrowsAndMergesPriorScore(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{
			{map[string]any{"uuid": "u1"}},
			{map[string]any{"uuid": "u2"}},
		}},
		{Headers: []string{"uuid", "score"}, Rows: [][]any{
			{"u2", 1.0},
		}},
	}}
	searcher := vectorsearch.NewSearcher(backend, &fakeEmbedder{vector: []float32{0.1}})
	p := New(backend, searcher, nil)
	p.Fetch(graphmodel.LabelScope, nil, nil).
		Semantic(SemanticSpec{IndexName: "scope_signature_idx", QueryText: "q", TopK: 5})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u2", results[0].uuid())
	assert.InDelta(t, semanticPriorWeight*1.0+semanticNewWeight*1.0, results[0].Score, 1e-9)
}

func TestSemantic_UnconstrainedFetchesFullEntities(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"uuid", "score"}, Rows: [][]any{{"u1", 0.8}}},
		{Headers: []string{"entity"}, Rows: [][]any{{map[string]any{"uuid": "u1", "name": "foo"}}}},
	}}
	searcher := vectorsearch.NewSearcher(backend, &fakeEmbedder{vector: []float32{0.1}})
	p := New(backend, searcher, nil)
	p.Semantic(SemanticSpec{IndexName: "scope_signature_idx", QueryText: "q", TopK: 5})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "foo", results[0].Entity["name"])
	assert.Equal(t, 0.8, results[0].Score)
}

func TestLLMRerank_UpdatesScoreFromRerankResult(t *testing.T) {
	backend := &fakeBackend{results: []*graphstore.QueryResult{
		{Headers: []string{"entity"}, Rows: [][]any{{map[string]any{"uuid": "u1", "name": "foo"}}}},
	}}
	provider := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: `{"results": [{"index": 0, "relevant": true, "score": 0.9, "reasoning": "match"}]}`}, nil
	}}
	reranker := rerank.NewReranker(provider, nil, config.RerankConfig{BatchSize: 10, Parallel: 1, MergeStrategy: config.ScoreMergeWeighted, MergeWeight: 0.7})
	p := New(backend, nil, reranker)
	p.Fetch(graphmodel.LabelScope, nil, nil).
		LLMRerank("find foo", rerank.EntityContext{Fields: []rerank.EntityField{{Name: "name", Required: true}}}, rerank.Options{})

	results, err := p.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "foo", results[0].Entity["name"])
	require.NotNil(t, results[0].ScoreBreakdown)
	assert.Equal(t, "match", results[0].ScoreBreakdown.Reasoning)
}

func TestSortDeterministic_TieBreaksByUUID(t *testing.T) {
	results := []SearchResult{
		{Entity: map[string]any{"uuid": "zzz"}, Score: 0.5},
		{Entity: map[string]any{"uuid": "aaa"}, Score: 0.5},
		{Entity: map[string]any{"uuid": "mmm"}, Score: 0.9},
	}
	sortDeterministic(results)
	assert.Equal(t, []string{"mmm", "aaa", "zzz"}, []string{results[0].uuid(), results[1].uuid(), results[2].uuid()})
}
