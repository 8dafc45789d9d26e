// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package rerank implements the LLM reranker (C10): batched, bounded-
// parallel relevance scoring of a working set against a user question,
// merged with each entry's pre-rerank (typically vector) score.
package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/kind"
	"github.com/scopegraph/scopegraph/pkg/llm"
	"github.com/scopegraph/scopegraph/pkg/summary"
)

const systemPrompt = "You are a relevance reranker for a code-search retrieval pipeline. Judge each entry strictly against the question asked."

// EntityField describes one property of an entity to render into a
// rerank prompt: {name, label?, maxLength?, required?}. Required fields
// form the entry's compact header line; optional fields each get their
// own labelled, length-truncated line. Summary, when set, makes the
// field eligible for C7 summary substitution per its RerankUse setting.
type EntityField struct {
	Name      string
	Label     string
	MaxLength int
	Required  bool
	Summary   *config.SummaryFieldConfig
}

// Enrichment renders an expanded-relationship value (e.g. the names of
// scopes a function consumes) as a labelled, length-capped line.
type Enrichment struct {
	FieldName string
	Label     string
	MaxItems  int
}

// EntityContext describes how to render one entity type into a rerank
// prompt entry, per spec.md §4.10.
type EntityContext struct {
	Type        string
	DisplayName string
	Fields      []EntityField
	Enrichments []Enrichment
}

// WorkingEntry is one {entity, score} pair carried into the reranker
// from prior pipeline stages, plus the raw property/enrichment values
// EntityContext needs to render it.
type WorkingEntry struct {
	UUID             string
	VectorScore      float64
	Properties       map[string]string
	EnrichmentValues map[string][]string
}

// ScoreBreakdown records the component scores and LLM reasoning behind a
// result's FinalScore.
type ScoreBreakdown struct {
	VectorScore float64
	LLMScore    float64
	Reasoning   string
}

// Result is one reranked entry.
type Result struct {
	Entry      WorkingEntry
	FinalScore float64
	Relevant   bool
	Breakdown  ScoreBreakdown

	// Diagnostic is true when this entry's batch failed reranking
	// persistently; FinalScore then equals the pre-rerank vector score
	// rather than a merged score.
	Diagnostic bool
}

// QueryFeedback is the optional advisory {quality, suggestions[]}
// assessment one batch may carry when Options.WithSuggestions is set.
type QueryFeedback struct {
	Quality     string
	Suggestions []string
}

// Output is Rerank's return value.
type Output struct {
	Results  []Result
	Feedback *QueryFeedback
}

// Options controls one Rerank call beyond the reranker's static config.
type Options struct {
	MinScore        float64
	HasMinScore     bool
	Limit           int
	HasLimit        bool
	WithSuggestions bool
}

// Reranker runs C10 over a Provider, optionally substituting C7
// summaries into rendered entries.
type Reranker struct {
	provider  llm.Provider
	summaries *summary.Store
	cfg       config.RerankConfig
}

// NewReranker constructs a Reranker. summaries may be nil, in which case
// every field renders its truncated raw value regardless of its
// Summary/RerankUse configuration.
func NewReranker(provider llm.Provider, summaries *summary.Store, cfg config.RerankConfig) *Reranker {
	return &Reranker{provider: provider, summaries: summaries, cfg: cfg}
}

// Rerank scores entries against query, merges the LLM score with each
// entry's pre-rerank VectorScore per cfg.MergeStrategy, and returns
// results filtered by Options.MinScore, sorted by FinalScore descending
// (ties broken by uuid ascending, per spec.md §5's deterministic merge
// ordering), and capped to Options.Limit.
func (r *Reranker) Rerank(ctx context.Context, query string, entries []WorkingEntry, ectx EntityContext, opts Options) (Output, error) {
	batchSize := r.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	parallel := r.cfg.Parallel
	if parallel <= 0 {
		parallel = 5
	}

	batches := chunk(entries, batchSize)
	resultsByBatch := make([][]Result, len(batches))

	var mu sync.Mutex
	var feedback *QueryFeedback
	sem := semaphore.NewWeighted(int64(parallel))
	var wg sync.WaitGroup
	var firstErr error

	for i, batch := range batches {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return Output{}, kind.Wrap(kind.Cancelled, "rerank: cancelled waiting for a batch slot", err)
		}
		wg.Add(1)
		go func(i int, batch []WorkingEntry) {
			defer wg.Done()
			defer sem.Release(1)

			wantFeedback := opts.WithSuggestions && i == 0
			results, fb, err := r.rerankBatch(ctx, query, batch, ectx, wantFeedback)
			if err != nil {
				// Persistent batch failure: don't abort the run. Surface
				// the batch's entries with their pre-rerank scores and a
				// diagnostic flag, per spec.md §4.10's failure policy.
				results = fallbackResults(batch)
			}
			mu.Lock()
			resultsByBatch[i] = results
			if fb != nil {
				feedback = fb
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}(i, batch)
	}
	wg.Wait()
	_ = firstErr // individual batch failures degrade, they never abort Rerank

	var all []Result
	for _, rs := range resultsByBatch {
		all = append(all, rs...)
	}

	if opts.HasMinScore {
		filtered := all[:0]
		for _, res := range all {
			if res.FinalScore >= opts.MinScore {
				filtered = append(filtered, res)
			}
		}
		all = filtered
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].FinalScore != all[j].FinalScore {
			return all[i].FinalScore > all[j].FinalScore
		}
		return all[i].Entry.UUID < all[j].Entry.UUID
	})

	if opts.HasLimit && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}

	return Output{Results: all, Feedback: feedback}, nil
}

func chunk(entries []WorkingEntry, size int) [][]WorkingEntry {
	if size <= 0 {
		size = len(entries)
	}
	var out [][]WorkingEntry
	for i := 0; i < len(entries); i += size {
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		out = append(out, entries[i:end])
	}
	return out
}

func fallbackResults(batch []WorkingEntry) []Result {
	out := make([]Result, len(batch))
	for i, e := range batch {
		out[i] = Result{
			Entry:      e,
			FinalScore: e.VectorScore,
			Breakdown:  ScoreBreakdown{VectorScore: e.VectorScore},
			Diagnostic: true,
		}
	}
	return out
}

// rerankBatch renders batch, calls the provider once (with retry), and
// merges each entry's LLM score with its vector score.
func (r *Reranker) rerankBatch(ctx context.Context, query string, batch []WorkingEntry, ectx EntityContext, withSuggestions bool) ([]Result, *QueryFeedback, error) {
	var data strings.Builder
	for i, e := range batch {
		rendered, err := r.renderEntry(ctx, ectx, e)
		if err != nil {
			return nil, nil, err
		}
		fmt.Fprintf(&data, "Entry %d %s\n", i, rendered)
	}

	schema := llm.OutputSchema{
		Root: "rerank_batch",
		Fields: []llm.Field{
			{Name: "results", Type: llm.FieldArray, Required: true,
				Description: "one object per entry above, each {index, relevant, score, reasoning}, in the same order"},
		},
	}
	if withSuggestions {
		schema.Fields = append(schema.Fields, llm.Field{
			Name: "query_feedback", Type: llm.FieldObject, Required: false,
			Description: "optional assessment of the query itself",
			Nested: []llm.Field{
				{Name: "quality", Type: llm.FieldString, Description: "how well-formed the query is"},
				{Name: "suggestions", Type: llm.FieldArray, Description: "suggested query rewrites"},
			},
		})
	}

	prompt, err := llm.RenderPrompt(llm.DefaultPromptTemplate, llm.PromptData{
		SystemPrompt: systemPrompt,
		UserTask:     fmt.Sprintf("Score how relevant each entry is to the question: %q", query),
		Schema:       schema,
		Data:         data.String(),
	})
	if err != nil {
		return nil, nil, err
	}

	parsed, err := r.generateWithRetry(ctx, prompt, schema)
	if err != nil {
		return nil, nil, err
	}

	items, _ := parsed["results"].([]any)
	results := make([]Result, len(batch))
	for i, e := range batch {
		var relevant bool
		var llmScore float64
		var reasoning string
		if item := findResultItem(items, i); item != nil {
			relevant, _ = item["relevant"].(bool)
			llmScore, _ = toFloat(item["score"])
			reasoning, _ = item["reasoning"].(string)
		}
		results[i] = Result{
			Entry:      e,
			FinalScore: mergeScore(e.VectorScore, llmScore, r.cfg),
			Relevant:   relevant,
			Breakdown:  ScoreBreakdown{VectorScore: e.VectorScore, LLMScore: llmScore, Reasoning: reasoning},
		}
	}

	var feedback *QueryFeedback
	if withSuggestions {
		if qf, ok := parsed["query_feedback"].(map[string]any); ok {
			feedback = &QueryFeedback{
				Quality:     fmt.Sprint(qf["quality"]),
				Suggestions: toStringSlice(qf["suggestions"]),
			}
		}
	}
	return results, feedback, nil
}

// generateWithRetry calls the provider and retries on quota/unavailable
// errors with exponential backoff, grounded on graphstore.Writer's
// runWithRetry: base 1s, cap 30s, up to 3 retries after the first call
// (4 calls in all), per spec.md §4.10's failure policy.
func (r *Reranker) generateWithRetry(ctx context.Context, prompt string, schema llm.OutputSchema) (map[string]any, error) {
	backoff := r.cfg.Retry.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := r.cfg.Retry.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	mult := r.cfg.Retry.Multiplier
	if mult <= 0 {
		mult = 2
	}
	maxRetries := r.cfg.Retry.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, kind.Wrap(kind.Cancelled, "rerank: batch cancelled", ctx.Err())
		}
		obj, err := llm.GenerateStructured(ctx, r.provider, llm.GenerateRequest{Prompt: prompt}, schema)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		k, ok := kind.Of(err)
		retryable := ok && (k == kind.LLMQuotaExceeded || k == kind.LLMUnavailable)
		if !retryable || attempt == maxRetries {
			return nil, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, kind.Wrap(kind.Cancelled, "rerank: batch cancelled", ctx.Err())
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*mult))
	}
	return nil, lastErr
}

// mergeScore combines a pre-rerank vector score with an LLM relevance
// score per cfg.MergeStrategy. MergeWeight is the weight given to the
// LLM score under "weighted" (default 0.7, matching spec.md §4.10's
// w_l=0.7/w_v=0.3 default).
func mergeScore(vector, llmScore float64, cfg config.RerankConfig) float64 {
	weight := cfg.MergeWeight
	if weight == 0 {
		weight = 0.7
	}
	switch cfg.MergeStrategy {
	case config.ScoreMergeMultiplicative:
		return vector * llmScore
	case config.ScoreMergeLLMOverride:
		if llmScore > 0.9 {
			return llmScore
		}
		return 0.5*vector + 0.5*llmScore
	default: // weighted
		return (1-weight)*vector + weight*llmScore
	}
}

// renderEntry renders one entity into its prompt representation: the
// required fields as a compact header line, optional fields on their own
// labelled/truncated lines, then each enrichment as a labelled,
// maxItems-capped line.
func (r *Reranker) renderEntry(ctx context.Context, ectx EntityContext, entry WorkingEntry) (string, error) {
	var header []string
	var optional []string
	for _, f := range ectx.Fields {
		text, err := r.resolveField(ctx, entry, f)
		if err != nil {
			return "", err
		}
		if f.Required {
			header = append(header, text)
			continue
		}
		label := f.Label
		if label == "" {
			label = f.Name
		}
		optional = append(optional, fmt.Sprintf("%s: %s", label, text))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", entry.UUID, strings.Join(header, " "))
	for _, line := range optional {
		fmt.Fprintf(&sb, "  %s\n", line)
	}
	for _, enr := range ectx.Enrichments {
		values := entry.EnrichmentValues[enr.FieldName]
		if len(values) == 0 {
			continue
		}
		max := enr.MaxItems
		if max <= 0 || max > len(values) {
			max = len(values)
		}
		label := enr.Label
		if label == "" {
			label = enr.FieldName
		}
		fmt.Fprintf(&sb, "  %s: %s\n", label, strings.Join(values[:max], ", "))
	}
	return sb.String(), nil
}

// resolveField returns the text a field renders as, applying C7 summary
// substitution when f.Summary is set: "always" sends only the summary
// (falling back to the truncated original when none has been generated
// yet), "prefer_summary" sends the summary plus a 200-char excerpt of the
// original, "never" sends the truncated original.
func (r *Reranker) resolveField(ctx context.Context, entry WorkingEntry, f EntityField) (string, error) {
	raw := entry.Properties[f.Name]
	if f.Summary == nil || r.summaries == nil {
		return truncate(raw, f.MaxLength), nil
	}

	use := f.Summary.RerankUse
	if use == "" {
		use = r.cfg.Substitution
	}
	if use == config.SubstituteNever {
		return truncate(raw, f.MaxLength), nil
	}

	sum, ok, err := r.summaries.Load(ctx, f.Summary.EntityLabel, entry.UUID, *f.Summary)
	if err != nil {
		return "", err
	}
	if !ok {
		return truncate(raw, f.MaxLength), nil
	}

	text := sum.Output[f.Summary.OutputField]
	if use == config.SubstitutePreferSummary {
		return text + " " + truncate(raw, 200), nil
	}
	return text, nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// findResultItem locates batch position index's result object within
// items, preferring an explicit "index" field (models don't always
// preserve array order) and falling back to positional lookup.
func findResultItem(items []any, index int) map[string]any {
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if idx, ok := toFloat(m["index"]); ok && int(idx) == index {
			return m
		}
	}
	if index < len(items) {
		if m, ok := items[index].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, a := range arr {
		if s, ok := a.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
