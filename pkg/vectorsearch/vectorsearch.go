// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package vectorsearch implements the vector search adapter (C9): a
// similarity query over a named Neo4j vector index, optionally restricted
// to a candidate UUID set. Scopes carry two indexes (signature and
// source) so a caller can search "callables shaped like X" separately
// from "code that does X"; this package is agnostic to which index it
// queries and just takes the name.
package vectorsearch

import (
	"context"
	"fmt"

	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/kind"
)

// EmbeddingProvider turns query text into the same vector space an
// index's nodes were embedded into. Embedding generation itself is out of
// scope (the spec's vector-index and embedding-pipeline non-goal); this
// is the minimal query-time interface C9 needs from whatever embeds.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Request is C9's input contract: {indexName, queryText, topK, minScore?,
// filterUuids?}. TopK is `any` because it arrives from pipeline operation
// arguments decoded off YAML/JSON, where a bare number unmarshals as
// float64 — CoerceTopK below is what turns it into the integer the wire
// contract requires.
type Request struct {
	IndexName   string
	QueryText   string
	TopK        any
	MinScore    float64
	HasMinScore bool
	FilterUUIDs []string
}

// Match is one {uuid, score} result.
type Match struct {
	UUID  string
	Score float64
}

// Searcher runs C9 queries against a graphstore.Backend's vector indexes.
type Searcher struct {
	backend  graphstore.Backend
	embedder EmbeddingProvider
}

// NewSearcher constructs a Searcher. embedder turns Request.QueryText into
// the vector db.index.vector.queryNodes is given; backend runs the Cypher.
func NewSearcher(backend graphstore.Backend, embedder EmbeddingProvider) *Searcher {
	return &Searcher{backend: backend, embedder: embedder}
}

// filterOversample bounds how far topK is inflated to compensate for
// post-filtering by FilterUUIDs when the index can't pre-filter: enough
// headroom for a reasonably selective filter without turning every
// filtered search into a near-unbounded scan.
const filterOversample = 10

// Search runs req against the named vector index and returns up to
// req.TopK matches ordered by descending score. When req.FilterUUIDs is
// non-empty, Neo4j's db.index.vector.queryNodes procedure does not
// support restricting candidates ahead of the ANN search, so Search
// compensates by asking the index for topK*filterOversample candidates
// and filtering down to FilterUUIDs in Cypher before truncating to topK —
// the post-filter-with-inflated-topK strategy spec.md §4.9 explicitly
// allows when native pre-filtering isn't available.
func (s *Searcher) Search(ctx context.Context, req Request) ([]Match, error) {
	if req.IndexName == "" {
		return nil, kind.New(kind.ConfigInvalid, "vectorsearch: indexName is required")
	}
	topK, err := CoerceTopK(req.TopK)
	if err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, req.QueryText)
	if err != nil {
		return nil, kind.Wrap(kind.LLMUnavailable, "vectorsearch: failed to embed query text", err)
	}

	fetchK := topK
	if len(req.FilterUUIDs) > 0 {
		fetchK = topK * filterOversample
	}

	cypher := `CALL db.index.vector.queryNodes($indexName, $fetchK, $vector)
YIELD node, score`
	params := map[string]any{
		"indexName": req.IndexName,
		"fetchK":    fetchK,
		"vector":    vector,
	}
	if len(req.FilterUUIDs) > 0 {
		cypher += `
WHERE node.uuid IN $filterUuids`
		params["filterUuids"] = req.FilterUUIDs
	}
	if req.HasMinScore {
		clause := "WHERE"
		if len(req.FilterUUIDs) > 0 {
			clause = "AND"
		}
		cypher += fmt.Sprintf("\n%s score >= $minScore", clause)
		params["minScore"] = req.MinScore
	}
	cypher += `
RETURN node.uuid AS uuid, score
ORDER BY score DESC
LIMIT $topK`
	params["topK"] = topK

	result, err := s.backend.Query(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return parseMatches(result)
}

func parseMatches(result *graphstore.QueryResult) ([]Match, error) {
	uuidIdx, scoreIdx := -1, -1
	for i, h := range result.Headers {
		switch h {
		case "uuid":
			uuidIdx = i
		case "score":
			scoreIdx = i
		}
	}
	if uuidIdx < 0 || scoreIdx < 0 {
		return nil, kind.New(kind.TransientGraphError, "vectorsearch: query result missing uuid/score columns")
	}

	matches := make([]Match, 0, len(result.Rows))
	for _, row := range result.Rows {
		uuid, _ := row[uuidIdx].(string)
		score, ok := asFloat64(row[scoreIdx])
		if !ok {
			continue
		}
		matches = append(matches, Match{UUID: uuid, Score: score})
	}
	return matches, nil
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// CoerceTopK converts topK to the int64 the wire contract requires —
// Neo4j rejects a float where an integer parameter is expected (spec.md
// §6) — accepting the numeric shapes a decoded YAML/JSON config or a
// prior pipeline stage might hand it, and rejecting anything that isn't
// a positive whole number.
func CoerceTopK(topK any) (int64, error) {
	var n int64
	switch t := topK.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case float32:
		if float32(int64(t)) != t {
			return 0, kind.New(kind.ConfigInvalid, "vectorsearch: topK must be a whole number")
		}
		n = int64(t)
	case float64:
		if float64(int64(t)) != t {
			return 0, kind.New(kind.ConfigInvalid, "vectorsearch: topK must be a whole number")
		}
		n = int64(t)
	default:
		return 0, kind.New(kind.ConfigInvalid, fmt.Sprintf("vectorsearch: topK has unsupported type %T", topK))
	}
	if n <= 0 {
		return 0, kind.New(kind.ConfigInvalid, "vectorsearch: topK must be positive")
	}
	return n, nil
}
