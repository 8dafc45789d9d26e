// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package rerank

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/kind"
	"github.com/scopegraph/scopegraph/pkg/llm"
	"github.com/scopegraph/scopegraph/pkg/summary"
)

type fakeSummaryBackend struct{ result *graphstore.QueryResult }

func (f *fakeSummaryBackend) Query(ctx context.Context, cypher string, params map[string]any) (*graphstore.QueryResult, error) {
	return f.result, nil
}
func (f *fakeSummaryBackend) Execute(ctx context.Context, cypher string, params map[string]any) (graphstore.ExecuteSummary, error) {
	return graphstore.ExecuteSummary{}, nil
}
func (f *fakeSummaryBackend) Close(ctx context.Context) error { return nil }

var testEntityCtx = EntityContext{
	Type:        "Scope",
	DisplayName: "scope",
	Fields: []EntityField{
		{Name: "name", Required: true},
		{Name: "signature", MaxLength: 40},
	},
	Enrichments: []Enrichment{
		{FieldName: "consumes", Label: "Consumes", MaxItems: 2},
	},
}

func entryFor(uuid string, score float64) WorkingEntry {
	return WorkingEntry{
		UUID:        uuid,
		VectorScore: score,
		Properties:  map[string]string{"name": "fn_" + uuid, "signature": "func fn_" + uuid + "()"},
		EnrichmentValues: map[string][]string{
			"consumes": {"a", "b", "c"},
		},
	}
}

func perIndexScoreProvider() *llm.MockProvider {
	return &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		text := `{"results": [{"index": 0, "relevant": true, "score": 0.9, "reasoning": "matches"}]}`
		return &llm.GenerateResponse{Text: text}, nil
	}}
}

func defaultRerankCfg() config.RerankConfig {
	return config.RerankConfig{
		BatchSize:     10,
		Parallel:      5,
		MergeStrategy: config.ScoreMergeWeighted,
		MergeWeight:   0.7,
		Substitution:  config.SubstituteNever,
		Retry:         config.RetryConfig{MaxRetries: 3},
	}
}

func TestRerank_MergesVectorAndLLMScoreWeighted(t *testing.T) {
	reranker := NewReranker(perIndexScoreProvider(), nil, defaultRerankCfg())
	out, err := reranker.Rerank(context.Background(), "find fn", []WorkingEntry{entryFor("u1", 0.5)}, testEntityCtx, Options{})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	want := 0.3*0.5 + 0.7*0.9
	assert.InDelta(t, want, out.Results[0].FinalScore, 1e-9)
	assert.True(t, out.Results[0].Relevant)
	assert.Equal(t, "matches", out.Results[0].Breakdown.Reasoning)
}

func TestRerank_SortsDescendingTieBrokenByUUID(t *testing.T) {
	provider := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: `{"results": [{"index": 0, "relevant": true, "score": 0.5, "reasoning": "x"}, {"index": 1, "relevant": true, "score": 0.5, "reasoning": "x"}]}`}, nil
	}}
	reranker := NewReranker(provider, nil, defaultRerankCfg())
	entries := []WorkingEntry{entryFor("zzz", 0.5), entryFor("aaa", 0.5)}
	out, err := reranker.Rerank(context.Background(), "q", entries, testEntityCtx, Options{})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "aaa", out.Results[0].Entry.UUID)
	assert.Equal(t, "zzz", out.Results[1].Entry.UUID)
}

func TestRerank_MinScoreFilters(t *testing.T) {
	provider := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: `{"results": [
			{"index": 0, "relevant": true, "score": 0.9, "reasoning": "x"},
			{"index": 1, "relevant": false, "score": 0.1, "reasoning": "y"}
		]}`}, nil
	}}
	reranker := NewReranker(provider, nil, defaultRerankCfg())
	entries := []WorkingEntry{entryFor("u1", 0.9), entryFor("u2", 0.1)}
	out, err := reranker.Rerank(context.Background(), "q", entries, testEntityCtx, Options{MinScore: 0.5, HasMinScore: true})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "u1", out.Results[0].Entry.UUID)
}

func TestRerank_PersistentFailureFallsBackToVectorScoreWithDiagnostic(t *testing.T) {
	provider := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return nil, kind.New(kind.LLMQuotaExceeded, "rate limited")
	}}
	cfg := defaultRerankCfg()
	cfg.Retry = config.RetryConfig{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 2, Multiplier: 1}
	reranker := NewReranker(provider, nil, cfg)

	out, err := reranker.Rerank(context.Background(), "q", []WorkingEntry{entryFor("u1", 0.42)}, testEntityCtx, Options{})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.True(t, out.Results[0].Diagnostic)
	assert.Equal(t, 0.42, out.Results[0].FinalScore)
}

func TestRerank_MultiplicativeMerge(t *testing.T) {
	provider := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: `{"results": [{"index": 0, "relevant": true, "score": 0.5, "reasoning": "x"}]}`}, nil
	}}
	cfg := defaultRerankCfg()
	cfg.MergeStrategy = config.ScoreMergeMultiplicative
	reranker := NewReranker(provider, nil, cfg)

	out, err := reranker.Rerank(context.Background(), "q", []WorkingEntry{entryFor("u1", 0.4)}, testEntityCtx, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, out.Results[0].FinalScore, 1e-9)
}

func TestRerank_WithSuggestionsReturnsQueryFeedback(t *testing.T) {
	provider := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: `{"results": [{"index": 0, "relevant": true, "score": 0.5, "reasoning": "x"}], "query_feedback": {"quality": "vague", "suggestions": ["be more specific"]}}`}, nil
	}}
	reranker := NewReranker(provider, nil, defaultRerankCfg())
	out, err := reranker.Rerank(context.Background(), "q", []WorkingEntry{entryFor("u1", 0.5)}, testEntityCtx, Options{WithSuggestions: true})
	require.NoError(t, err)
	require.NotNil(t, out.Feedback)
	assert.Equal(t, "vague", out.Feedback.Quality)
	assert.Equal(t, []string{"be more specific"}, out.Feedback.Suggestions)
}

func TestRerank_MultipleBatchesProcessAllEntries(t *testing.T) {
	provider := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: `{"results": [{"index": 0, "relevant": true, "score": 0.5, "reasoning": "x"}, {"index": 1, "relevant": true, "score": 0.5, "reasoning": "y"}]}`}, nil
	}}
	cfg := defaultRerankCfg()
	cfg.BatchSize = 2
	reranker := NewReranker(provider, nil, cfg)

	entries := make([]WorkingEntry, 5)
	for i := range entries {
		entries[i] = entryFor(fmt.Sprintf("u%d", i), 0.1)
	}
	out, err := reranker.Rerank(context.Background(), "q", entries, testEntityCtx, Options{})
	require.NoError(t, err)
	assert.Len(t, out.Results, 5)
}

func TestResolveField_SubstitutesCachedSummary(t *testing.T) {
	backend := &fakeSummaryBackend{result: &graphstore.QueryResult{
		Headers: []string{"out", "hash"},
		Rows:    [][]any{{"short summary text", "abc123"}},
	}}
	store := summary.NewStore(backend, graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1}))
	field := EntityField{Name: "signature", MaxLength: 40, Summary: &config.SummaryFieldConfig{
		EntityLabel: "Scope", FieldName: "signature", OutputField: "short", RerankUse: config.SubstituteAlways,
	}}
	reranker := NewReranker(&llm.MockProvider{}, store, defaultRerankCfg())
	text, err := reranker.resolveField(context.Background(), entryFor("u1", 0.1), field)
	require.NoError(t, err)
	assert.Equal(t, "short summary text", text)
}

func TestResolveField_FallsBackToRawWithoutSummaryStore(t *testing.T) {
	field := EntityField{Name: "signature", MaxLength: 40, Summary: &config.SummaryFieldConfig{
		EntityLabel: "Scope", FieldName: "signature", OutputField: "short", RerankUse: config.SubstituteAlways,
	}}
	reranker := NewReranker(&llm.MockProvider{}, nil, defaultRerankCfg())
	text, err := reranker.resolveField(context.Background(), entryFor("u1", 0.1), field)
	require.NoError(t, err)
	assert.Equal(t, "func fn_u1()", text)
}
