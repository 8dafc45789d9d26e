// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package summary implements the summary store (C7): for each
// (entityLabel, fieldName, outputField) triple declared in configuration,
// it persists a generated summary as "<fieldName>_summary_<outputField>"
// alongside "<fieldName>_summary_hash" and "<fieldName>_summarized_at" on
// the entity node itself, following the canonical property naming §6 of
// the spec fixes. Grounded on the teacher's embedding-cache read/write
// pattern (check-hash-then-skip-or-regenerate), generalized from
// embeddings to arbitrary LLM-generated field summaries.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
)

// Summary is one stored field summary.
type Summary struct {
	EntityID  string
	Field     string
	Output    map[string]string // outputField -> generated text
	Hash      string
	Generated bool
}

// Store is the summary store (C7), backed directly by the graph store —
// summaries are properties on the entity node, not a separate table.
type Store struct {
	backend graphstore.Backend
	writer  *graphstore.Writer
}

// NewStore constructs a Store over backend/writer.
func NewStore(backend graphstore.Backend, writer *graphstore.Writer) *Store {
	return &Store{backend: backend, writer: writer}
}

// HashField returns the canonical hash of a field's source value, the
// same digest Store writes and NeedsSummary compares against.
func HashField(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// NeedsSummary reports whether value is long enough (per field.Threshold)
// and either uncached or stale (cached hash doesn't match hash(value)) —
// `needsSummary(value, config)` from spec.md §4.7.
func NeedsSummary(value string, field config.SummaryFieldConfig, cachedHash string) bool {
	if len(value) <= field.Threshold {
		return false
	}
	if cachedHash == "" {
		return true
	}
	return cachedHash != HashField(value)
}

// Load returns the cached summary for one (entityID, field) pair, or
// ok=false if no summary has ever been stored for it. label is the
// entity's node label (e.g. "Scope").
func (s *Store) Load(ctx context.Context, label, entityID string, field config.SummaryFieldConfig) (Summary, bool, error) {
	outputProp := field.FieldName + "_summary_" + field.OutputField
	hashProp := field.FieldName + "_summary_hash"
	cypher := `MATCH (n:` + label + ` {uuid: $id}) RETURN n.` + outputProp + ` AS out, n.` + hashProp + ` AS hash`

	res, err := s.backend.Query(ctx, cypher, map[string]any{"id": entityID})
	if err != nil {
		return Summary{}, false, err
	}
	if len(res.Rows) == 0 {
		return Summary{}, false, nil
	}
	row := res.Rows[0]
	out, _ := value(row, 0)
	hash, _ := value(row, 1)
	if hash == "" {
		return Summary{}, false, nil
	}
	return Summary{
		EntityID: entityID, Field: field.FieldName,
		Output: map[string]string{field.OutputField: out},
		Hash:   hash, Generated: true,
	}, true, nil
}

// Store writes a summary's output properties plus its hash and
// generated-at timestamp atomically (one Cypher SET), keyed by the
// entity's uuid. timestampISO is the caller-supplied ISO-8601 instant,
// since this package never calls time.Now() itself (C7 is deterministic
// given its inputs, matching the rest of the ingestion pipeline's
// content-addressed design).
func (s *Store) Store(ctx context.Context, label, entityID string, field config.SummaryFieldConfig, output, sourceValue, timestampISO string) error {
	outputProp := field.FieldName + "_summary_" + field.OutputField
	hashProp := field.FieldName + "_summary_hash"
	timeProp := field.FieldName + "_summarized_at"

	cypher := `MATCH (n:` + label + ` {uuid: $id}) SET n.` + outputProp + ` = $output, n.` + hashProp + ` = $hash, n.` + timeProp + ` = $ts`
	_, err := s.writer.RawExecute(ctx, cypher, map[string]any{
		"id": entityID, "output": output, "hash": HashField(sourceValue), "ts": timestampISO,
	})
	return err
}

// EntityNeedingSummary is one row of FindEntitiesNeedingSummaries's
// result: an entity whose field is long enough to summarize but has no
// fresh cached summary.
type EntityNeedingSummary struct {
	EntityID string
	Value    string
}

// FindEntitiesNeedingSummaries implements spec.md §4.7's
// `findEntitiesNeedingSummaries(label, field)`: every node of label whose
// field exceeds the configured threshold and whose cached hash is either
// absent or stale. The staleness comparison (cached hash vs. hash(value))
// happens in Go rather than Cypher, since the spec's hash function is the
// scopegraph-wide sha256 this package defines, not something a generic
// Cypher WHERE clause can compute inline.
func (s *Store) FindEntitiesNeedingSummaries(ctx context.Context, label string, field config.SummaryFieldConfig) ([]EntityNeedingSummary, error) {
	fieldProp := field.FieldName
	hashProp := field.FieldName + "_summary_hash"
	cypher := `MATCH (n:` + label + `) WHERE size(n.` + fieldProp + `) > $threshold
RETURN n.uuid AS id, n.` + fieldProp + ` AS value, n.` + hashProp + ` AS hash`

	res, err := s.backend.Query(ctx, cypher, map[string]any{"threshold": int64(field.Threshold)})
	if err != nil {
		return nil, err
	}

	var out []EntityNeedingSummary
	for _, row := range res.Rows {
		id, _ := value(row, 0)
		val, _ := value(row, 1)
		hash, _ := value(row, 2)
		if id == "" || val == "" {
			continue
		}
		if NeedsSummary(val, field, hash) {
			out = append(out, EntityNeedingSummary{EntityID: id, Value: val})
		}
	}
	return out, nil
}

func value(row []any, idx int) (string, bool) {
	if idx >= len(row) || row[idx] == nil {
		return "", false
	}
	s, ok := row[idx].(string)
	return s, ok
}
