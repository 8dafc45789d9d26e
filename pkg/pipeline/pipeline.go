// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the query pipeline (C11): an ordered list
// of operations — fetch, filter, expand, semantic, llmRerank, chain,
// traverse — composed left-to-right over a working set of scored
// entities, per spec.md §4.11.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/kind"
	"github.com/scopegraph/scopegraph/pkg/rerank"
	"github.com/scopegraph/scopegraph/pkg/vectorsearch"
)

// defaultFetchLimit bounds an unconstrained fetch/expand — the "full
// scan bounded by engine limits" spec.md §4.11 calls for.
const defaultFetchLimit = 1000

// Direction selects which way an `expand` operation follows a
// relationship, per spec.md §4.11's direction-derived arrow rule.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// PredicateOp enumerates the comparison forms `fetch`/`filter` support.
type PredicateOp string

const (
	OpEq         PredicateOp = "eq"
	OpWhereIn    PredicateOp = "where_in"
	OpContains   PredicateOp = "contains"
	OpStartsWith PredicateOp = "starts_with"
	OpRange      PredicateOp = "range"
)

// Predicate is one `where`/`whereIn`/`contains`/`startsWith`/range test
// against a property, used by both `fetch` (compiled to Cypher WHERE)
// and `filter` (applied in-memory, post-hoc, per spec.md §4.11).
type Predicate struct {
	Field  string
	Op     PredicateOp
	Value  any
	Values []any
	Min    any
	Max    any
}

func (p Predicate) matches(entity map[string]any) bool {
	v, ok := entity[p.Field]
	switch p.Op {
	case OpEq:
		return ok && fmt.Sprint(v) == fmt.Sprint(p.Value)
	case OpWhereIn:
		if !ok {
			return false
		}
		for _, want := range p.Values {
			if fmt.Sprint(v) == fmt.Sprint(want) {
				return true
			}
		}
		return false
	case OpContains:
		s, isStr := v.(string)
		return isStr && strings.Contains(s, fmt.Sprint(p.Value))
	case OpStartsWith:
		s, isStr := v.(string)
		return isStr && strings.HasPrefix(s, fmt.Sprint(p.Value))
	case OpRange:
		f, isNum := asFloat(v)
		if !ok || !isNum {
			return false
		}
		if p.Min != nil {
			if min, ok := asFloat(p.Min); ok && f < min {
				return false
			}
		}
		if p.Max != nil {
			if max, ok := asFloat(p.Max); ok && f > max {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// cypherClause renders p as a Cypher WHERE fragment over var alias n,
// registering its parameter(s) under a unique name in params.
func (p Predicate) cypherClause(alias string, paramName string, params map[string]any) string {
	prop := fmt.Sprintf("%s.%s", alias, p.Field)
	switch p.Op {
	case OpEq:
		params[paramName] = p.Value
		return fmt.Sprintf("%s = $%s", prop, paramName)
	case OpWhereIn:
		params[paramName] = p.Values
		return fmt.Sprintf("%s IN $%s", prop, paramName)
	case OpContains:
		params[paramName] = p.Value
		return fmt.Sprintf("%s CONTAINS $%s", prop, paramName)
	case OpStartsWith:
		params[paramName] = p.Value
		return fmt.Sprintf("%s STARTS WITH $%s", prop, paramName)
	case OpRange:
		var parts []string
		if p.Min != nil {
			params[paramName+"_min"] = p.Min
			parts = append(parts, fmt.Sprintf("%s >= $%s_min", prop, paramName))
		}
		if p.Max != nil {
			params[paramName+"_max"] = p.Max
			parts = append(parts, fmt.Sprintf("%s <= $%s_max", prop, paramName))
		}
		return strings.Join(parts, " AND ")
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// EnrichSpec attaches a labelled, collected related value onto every
// result row: `OPTIONAL MATCH (n)-[:RelType]->(t:TargetLabel)` then
// `collect(DISTINCT t.TargetField) AS As`, per spec.md §4.11's
// enrichment rule.
type EnrichSpec struct {
	RelType     graphmodel.RelType
	Direction   Direction
	TargetLabel graphmodel.NodeLabel
	TargetField string
	As          string
}

// ExpandSpec is `expand`'s {type, direction, depth, targetLabel?}
// argument.
type ExpandSpec struct {
	RelType     graphmodel.RelType
	Direction   Direction
	Depth       int
	TargetLabel graphmodel.NodeLabel
	Enrich      []EnrichSpec
}

// SemanticSpec is `semantic`'s vector-search argument.
type SemanticSpec struct {
	IndexName   string
	QueryText   string
	TopK        any
	MinScore    float64
	HasMinScore bool
}

// ChainFunc reshapes the entire working set arbitrarily.
type ChainFunc func(ctx context.Context, results []SearchResult) ([]SearchResult, error)

// TraverseFunc enriches one entry in place.
type TraverseFunc func(ctx context.Context, result *SearchResult) error

// opKind tags which field of operation is populated — the closed set
// spec.md §4.11 names.
type opKind int

const (
	opFetch opKind = iota
	opFilter
	opExpand
	opSemantic
	opLLMRerank
	opChain
	opTraverse
)

type operation struct {
	kind opKind

	label      graphmodel.NodeLabel // opFetch
	predicates []Predicate          // opFetch, opFilter
	enrich     []EnrichSpec         // opFetch

	expand ExpandSpec // opExpand

	semantic SemanticSpec // opSemantic

	query         string               // opLLMRerank
	entityContext rerank.EntityContext // opLLMRerank
	rerankOpts    rerank.Options       // opLLMRerank

	chainFn    ChainFunc    // opChain
	traverseFn TraverseFunc // opTraverse
}

// ScoreBreakdown is rerank.ScoreBreakdown, re-exported so callers can
// inspect it without importing pkg/rerank. Only an llmRerank stage sets
// SearchResult.ScoreBreakdown; results from the other stages carry nil.
type ScoreBreakdown = rerank.ScoreBreakdown

// SearchResult is one working-set entry: `{entity, score, scoreBreakdown?,
// context?}` per spec.md §4.11.
type SearchResult struct {
	Entity         map[string]any
	Score          float64
	ScoreBreakdown *ScoreBreakdown
	Context        map[string]any
}

func (r SearchResult) uuid() string {
	s, _ := r.Entity["uuid"].(string)
	return s
}

// Pipeline is a builder for an ordered operation list, executed against
// a graphstore.Backend (for fetch/expand), a vectorsearch.Searcher (for
// semantic), and a rerank.Reranker (for llmRerank).
type Pipeline struct {
	backend  graphstore.Backend
	searcher *vectorsearch.Searcher
	reranker *rerank.Reranker
	ops      []operation
}

// New constructs an empty Pipeline.
func New(backend graphstore.Backend, searcher *vectorsearch.Searcher, reranker *rerank.Reranker) *Pipeline {
	return &Pipeline{backend: backend, searcher: searcher, reranker: reranker}
}

// Fetch adds an initial-retrieval operation: MATCH (n:label) with
// predicates compiled to a Cypher WHERE clause.
func (p *Pipeline) Fetch(label graphmodel.NodeLabel, predicates []Predicate, enrich []EnrichSpec) *Pipeline {
	p.ops = append(p.ops, operation{kind: opFetch, label: label, predicates: predicates, enrich: enrich})
	return p
}

// Filter adds a post-hoc in-memory predicate over the current working
// set.
func (p *Pipeline) Filter(predicates ...Predicate) *Pipeline {
	p.ops = append(p.ops, operation{kind: opFilter, predicates: predicates})
	return p
}

// Expand adds a relationship-following operation.
func (p *Pipeline) Expand(spec ExpandSpec) *Pipeline {
	p.ops = append(p.ops, operation{kind: opExpand, expand: spec})
	return p
}

// Semantic adds a vector-search operation.
func (p *Pipeline) Semantic(spec SemanticSpec) *Pipeline {
	p.ops = append(p.ops, operation{kind: opSemantic, semantic: spec})
	return p
}

// LLMRerank adds a C10 reranking operation.
func (p *Pipeline) LLMRerank(query string, ectx rerank.EntityContext, opts rerank.Options) *Pipeline {
	p.ops = append(p.ops, operation{kind: opLLMRerank, query: query, entityContext: ectx, rerankOpts: opts})
	return p
}

// Chain adds a user-supplied whole-set reshaping step.
func (p *Pipeline) Chain(fn ChainFunc) *Pipeline {
	p.ops = append(p.ops, operation{kind: opChain, chainFn: fn})
	return p
}

// Traverse adds a user-supplied per-entry enrichment step.
func (p *Pipeline) Traverse(fn TraverseFunc) *Pipeline {
	p.ops = append(p.ops, operation{kind: opTraverse, traverseFn: fn})
	return p
}

// Execute runs every operation in order and returns the final working
// set. Per spec.md §5, stages observe strict happens-before ordering and
// a cancelled context yields no partial result.
func (p *Pipeline) Execute(ctx context.Context) ([]SearchResult, error) {
	var (
		results []SearchResult
		label   graphmodel.NodeLabel
	)

	for _, op := range p.ops {
		if err := ctx.Err(); err != nil {
			return nil, kind.Wrap(kind.Cancelled, "pipeline: cancelled between operations", err)
		}

		var err error
		switch op.kind {
		case opFetch:
			results, err = p.runFetch(ctx, op)
			label = op.label
		case opFilter:
			results = runFilter(results, op.predicates)
		case opExpand:
			results, err = p.runExpand(ctx, op.expand, results, label)
			if err == nil {
				label = op.expand.TargetLabel
			}
		case opSemantic:
			results, err = p.runSemantic(ctx, op.semantic, results)
		case opLLMRerank:
			results, err = p.runLLMRerank(ctx, op, results)
		case opChain:
			results, err = op.chainFn(ctx, results)
		case opTraverse:
			err = runTraverse(ctx, op.traverseFn, results)
		}
		if err != nil {
			return nil, err
		}
		sortDeterministic(results)
	}
	return results, nil
}

// ExecuteFlat runs Execute and discards score metadata, for callers that
// only want entity property bags.
func (p *Pipeline) ExecuteFlat(ctx context.Context) ([]map[string]any, error) {
	results, err := p.Execute(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(results))
	for i, r := range results {
		out[i] = r.Entity
	}
	return out, nil
}

// DecodeEntities marshals each result's entity property bag into T,
// giving callers the SearchResult<T> shape spec.md §4.11 describes
// without making Pipeline itself generic (Cypher rows are dynamically
// typed property bags regardless of what a caller ultimately wants them
// decoded into).
func DecodeEntities[T any](results []SearchResult) ([]T, error) {
	out := make([]T, len(results))
	for i, r := range results {
		data, err := json.Marshal(r.Entity)
		if err != nil {
			return nil, kind.Wrap(kind.ConfigInvalid, "pipeline: cannot encode entity for decoding", err)
		}
		if err := json.Unmarshal(data, &out[i]); err != nil {
			return nil, kind.Wrap(kind.ConfigInvalid, "pipeline: cannot decode entity", err)
		}
	}
	return out, nil
}

func sortDeterministic(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].uuid() < results[j].uuid()
	})
}

func runFilter(results []SearchResult, predicates []Predicate) []SearchResult {
	out := results[:0]
	for _, r := range results {
		keep := true
		for _, p := range predicates {
			if !p.matches(r.Entity) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

func runTraverse(ctx context.Context, fn TraverseFunc, results []SearchResult) error {
	for i := range results {
		if err := ctx.Err(); err != nil {
			return kind.Wrap(kind.Cancelled, "pipeline: cancelled during traverse", err)
		}
		if err := fn(ctx, &results[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runFetch(ctx context.Context, op operation) ([]SearchResult, error) {
	var sb strings.Builder
	params := map[string]any{}
	fmt.Fprintf(&sb, "MATCH (n:%s)", op.label)
	if clause := buildWhereClause("n", op.predicates, params); clause != "" {
		fmt.Fprintf(&sb, "\nWHERE %s", clause)
	}

	enrichVars := appendEnrichments(&sb, "n", op.enrich, params, nil)

	sb.WriteString("\nRETURN properties(n) AS entity")
	for _, v := range enrichVars {
		fmt.Fprintf(&sb, ", %s AS %s", v.collectExpr, v.alias)
	}
	sb.WriteString("\nLIMIT $limit")
	params["limit"] = int64(defaultFetchLimit)

	result, err := p.backend.Query(ctx, sb.String(), params)
	if err != nil {
		return nil, err
	}
	return rowsToResults(result, enrichAliases(op.enrich))
}

// buildWhereClause renders predicates into an AND-joined WHERE fragment
// with numbered, collision-free parameter names.
func buildWhereClause(alias string, predicates []Predicate, params map[string]any) string {
	var clauses []string
	for i, pr := range predicates {
		clause := pr.cypherClause(alias, fmt.Sprintf("p%d", i), params)
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return strings.Join(clauses, " AND ")
}

type enrichmentVar struct {
	collectExpr string
	alias       string
}

// appendEnrichments writes the OPTIONAL MATCH / WITH chain needed to
// attach each enrichment's collected value without a cartesian blow-up
// across multiple enrichments, and returns the collect(...) expression
// plus alias to add to the final RETURN clause. carry names additional
// identifiers (beyond matchVar) that must survive each WITH.
func appendEnrichments(sb *strings.Builder, matchVar string, enrich []EnrichSpec, params map[string]any, carry []string) []enrichmentVar {
	if len(enrich) == 0 {
		return nil
	}
	vars := make([]enrichmentVar, len(enrich))
	accumulated := append([]string{matchVar}, carry...)
	for i, e := range enrich {
		tVar := fmt.Sprintf("t%d", i)
		fmt.Fprintf(sb, "\nOPTIONAL MATCH %s", relationshipPattern(matchVar, e.RelType, e.Direction, 1, tVar, e.TargetLabel))
		alias := e.As
		if alias == "" {
			alias = fmt.Sprintf("enrich%d", i)
		}
		collectVar := fmt.Sprintf("collected%d", i)
		fmt.Fprintf(sb, "\nWITH %s, collect(DISTINCT %s.%s) AS %s", strings.Join(accumulated, ", "), tVar, e.TargetField, collectVar)
		accumulated = append(accumulated, collectVar)
		vars[i] = enrichmentVar{collectExpr: collectVar, alias: alias}
	}
	return vars
}

func enrichAliases(enrich []EnrichSpec) []string {
	out := make([]string, len(enrich))
	for i, e := range enrich {
		if e.As != "" {
			out[i] = e.As
		} else {
			out[i] = fmt.Sprintf("enrich%d", i)
		}
	}
	return out
}

// relationshipPattern builds the `(from)-[:TYPE*1..depth]->(to:Label)`
// shape spec.md §4.11 mandates, with the arrow derived from direction:
// outgoing → `-[...]->`, incoming → `<-[...]-`, both → `-[...]-`. Bare
// juxtaposition is never produced.
func relationshipPattern(fromVar string, relType graphmodel.RelType, dir Direction, depth int, toVar string, toLabel graphmodel.NodeLabel) string {
	if depth <= 0 {
		depth = 1
	}
	rel := fmt.Sprintf("[:%s*1..%d]", relType, depth)
	var pattern string
	switch dir {
	case DirIn:
		pattern = fmt.Sprintf("(%s)<-%s-(%s", fromVar, rel, toVar)
	case DirBoth:
		pattern = fmt.Sprintf("(%s)-%s-(%s", fromVar, rel, toVar)
	default: // out
		pattern = fmt.Sprintf("(%s)-%s->(%s", fromVar, rel, toVar)
	}
	if toLabel != "" {
		pattern += ":" + string(toLabel)
	}
	return pattern + ")"
}

func (p *Pipeline) runExpand(ctx context.Context, spec ExpandSpec, results []SearchResult, fromLabel graphmodel.NodeLabel) ([]SearchResult, error) {
	hasSource := len(results) > 0
	if fromLabel == "" && !hasSource {
		return nil, kind.New(kind.ConfigInvalid, "pipeline: expand has no source label and no prior working set to expand from")
	}

	params := map[string]any{}
	var sb strings.Builder
	if fromLabel == "" {
		sb.WriteString("MATCH (n)")
	} else {
		fmt.Fprintf(&sb, "MATCH (n:%s)", fromLabel)
	}

	scoreByUUID := map[string]float64{}
	if hasSource {
		uuids := make([]string, len(results))
		for i, r := range results {
			uuids[i] = r.uuid()
			scoreByUUID[r.uuid()] = r.Score
		}
		sb.WriteString("\nWHERE n.uuid IN $sourceUuids")
		params["sourceUuids"] = uuids
	}

	sb.WriteString("\nMATCH ")
	sb.WriteString(relationshipPattern("n", spec.RelType, spec.Direction, spec.Depth, "related", spec.TargetLabel))

	enrichVars := appendEnrichments(&sb, "related", spec.Enrich, params, []string{"n"})

	sb.WriteString("\nRETURN n.uuid AS sourceUuid, properties(related) AS entity")
	for _, v := range enrichVars {
		fmt.Fprintf(&sb, ", %s AS %s", v.collectExpr, v.alias)
	}
	if !hasSource {
		sb.WriteString("\nLIMIT $limit")
		params["limit"] = int64(defaultFetchLimit)
	}

	result, err := p.backend.Query(ctx, sb.String(), params)
	if err != nil {
		return nil, err
	}

	expanded, err := rowsToResultsWithSource(result, enrichAliases(spec.Enrich))
	if err != nil {
		return nil, err
	}
	if hasSource {
		for i := range expanded {
			expanded[i].Score = scoreByUUID[expanded[i].sourceUUID]
		}
	} else {
		for i := range expanded {
			expanded[i].Score = 1
		}
	}
	out := make([]SearchResult, len(expanded))
	for i, e := range expanded {
		out[i] = e.SearchResult
	}
	return out, nil
}

// semanticPriorWeight/semanticNewWeight are the fixed 0.3/0.7 blend spec.md §4.11 specifies
// for `semantic` over a non-empty working set — distinct from C10's
// configurable rerank merge weight.
const semanticPriorWeight, semanticNewWeight = 0.3, 0.7

func (p *Pipeline) runSemantic(ctx context.Context, spec SemanticSpec, results []SearchResult) ([]SearchResult, error) {
	req := vectorsearch.Request{
		IndexName:   spec.IndexName,
		QueryText:   spec.QueryText,
		TopK:        spec.TopK,
		MinScore:    spec.MinScore,
		HasMinScore: spec.HasMinScore,
	}
	byUUID := map[string]SearchResult{}
	if len(results) > 0 {
		uuids := make([]string, len(results))
		for i, r := range results {
			uuids[i] = r.uuid()
			byUUID[r.uuid()] = r
		}
		req.FilterUUIDs = uuids
	}

	matches, err := p.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return p.fetchEntitiesForMatches(ctx, matches)
	}

	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		prior, ok := byUUID[m.UUID]
		if !ok {
			continue
		}
		prior.Score = semanticPriorWeight*prior.Score + semanticNewWeight*m.Score
		out = append(out, prior)
	}
	return out, nil
}

// fetchEntitiesForMatches loads the full property bag for an
// unconstrained semantic search's matches (the vector index alone only
// carries {uuid, score}).
func (p *Pipeline) fetchEntitiesForMatches(ctx context.Context, matches []vectorsearch.Match) ([]SearchResult, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	uuids := make([]string, len(matches))
	scoreByUUID := make(map[string]float64, len(matches))
	for i, m := range matches {
		uuids[i] = m.UUID
		scoreByUUID[m.UUID] = m.Score
	}
	result, err := p.backend.Query(ctx, `MATCH (n) WHERE n.uuid IN $uuids RETURN properties(n) AS entity`, map[string]any{"uuids": uuids})
	if err != nil {
		return nil, err
	}
	results, err := rowsToResults(result, nil)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Score = scoreByUUID[results[i].uuid()]
	}
	return results, nil
}

func (p *Pipeline) runLLMRerank(ctx context.Context, op operation, results []SearchResult) ([]SearchResult, error) {
	entries := make([]rerank.WorkingEntry, len(results))
	for i, r := range results {
		props := make(map[string]string, len(r.Entity))
		for k, v := range r.Entity {
			props[k] = fmt.Sprint(v)
		}
		enrichments := map[string][]string{}
		for k, v := range r.Context {
			if vs, ok := v.([]string); ok {
				enrichments[k] = vs
			}
		}
		entries[i] = rerank.WorkingEntry{UUID: r.uuid(), VectorScore: r.Score, Properties: props, EnrichmentValues: enrichments}
	}

	out, err := p.reranker.Rerank(ctx, op.query, entries, op.entityContext, op.rerankOpts)
	if err != nil {
		return nil, err
	}

	byUUID := make(map[string]SearchResult, len(results))
	for _, r := range results {
		byUUID[r.uuid()] = r
	}
	reranked := make([]SearchResult, len(out.Results))
	for i, res := range out.Results {
		original := byUUID[res.Entry.UUID]
		breakdown := res.Breakdown
		reranked[i] = SearchResult{
			Entity:         original.Entity,
			Score:          res.FinalScore,
			ScoreBreakdown: &breakdown,
			Context:        original.Context,
		}
	}
	return reranked, nil
}

func rowsToResults(result *graphstore.QueryResult, enrichAlias []string) ([]SearchResult, error) {
	entityIdx := headerIndex(result.Headers, "entity")
	if entityIdx < 0 {
		return nil, kind.New(kind.TransientGraphError, "pipeline: query result missing entity column")
	}
	results := make([]SearchResult, 0, len(result.Rows))
	for _, row := range result.Rows {
		entity, _ := row[entityIdx].(map[string]any)
		results = append(results, SearchResult{Entity: entity, Score: 1, Context: enrichmentContext(result.Headers, row, enrichAlias)})
	}
	return results, nil
}

type sourcedResult struct {
	SearchResult
	sourceUUID string
}

func rowsToResultsWithSource(result *graphstore.QueryResult, enrichAlias []string) ([]sourcedResult, error) {
	entityIdx := headerIndex(result.Headers, "entity")
	sourceIdx := headerIndex(result.Headers, "sourceUuid")
	if entityIdx < 0 || sourceIdx < 0 {
		return nil, kind.New(kind.TransientGraphError, "pipeline: expand result missing entity/sourceUuid column")
	}
	out := make([]sourcedResult, 0, len(result.Rows))
	for _, row := range result.Rows {
		entity, _ := row[entityIdx].(map[string]any)
		source, _ := row[sourceIdx].(string)
		out = append(out, sourcedResult{
			SearchResult: SearchResult{Entity: entity, Context: enrichmentContext(result.Headers, row, enrichAlias)},
			sourceUUID:   source,
		})
	}
	return out, nil
}

func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func enrichmentContext(headers []string, row []any, aliases []string) map[string]any {
	if len(aliases) == 0 {
		return nil
	}
	ctx := make(map[string]any, len(aliases))
	for _, alias := range aliases {
		idx := headerIndex(headers, alias)
		if idx < 0 || idx >= len(row) {
			continue
		}
		if arr, ok := row[idx].([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, v := range arr {
				if v != nil {
					strs = append(strs, fmt.Sprint(v))
				}
			}
			ctx[alias] = strs
		}
	}
	return ctx
}
