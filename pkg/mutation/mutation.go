// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package mutation implements the mutation builder (C12): typed
// create/createBatch/update/delete and relationship add/remove over a
// single entity label, all via MERGE/MATCH by a configured unique field
// (uuid by default). Grounded on graphstore.Writer's MERGE-for-idempotency
// write path and on the node/edge upsert Cypher shapes it already uses for
// ingestion, generalized from a batch-of-everything writer to a
// single-entity, single-call API.
package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/kind"
)

// RelationshipSpec describes one relationship endpoint and payload for
// AddRelationship/RemoveRelationship. TargetIDField defaults to "uuid"
// when empty, mirroring Builder's own unique-field default.
type RelationshipSpec struct {
	Type          graphmodel.RelType
	TargetLabel   graphmodel.NodeLabel
	TargetIDField string
	TargetID      string
	Properties    map[string]any
}

func (s RelationshipSpec) targetIDField() string {
	if s.TargetIDField == "" {
		return "uuid"
	}
	return s.TargetIDField
}

// Builder is the mutation builder (C12) for one entity label.
type Builder struct {
	backend     graphstore.Backend
	writer      *graphstore.Writer
	label       graphmodel.NodeLabel
	uniqueField string
}

// NewBuilder constructs a Builder over label, identifying entities by
// uniqueField (defaults to "uuid" when empty, per spec.md §4.12).
func NewBuilder(backend graphstore.Backend, writer *graphstore.Writer, label graphmodel.NodeLabel, uniqueField string) *Builder {
	if uniqueField == "" {
		uniqueField = "uuid"
	}
	return &Builder{backend: backend, writer: writer, label: label, uniqueField: uniqueField}
}

// Create upserts one entity by its unique field and returns the resulting
// properties. props must include the unique field's value.
func (b *Builder) Create(ctx context.Context, props map[string]any) (map[string]any, error) {
	id, err := b.requireID(props)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeProps(props)
	if err != nil {
		return nil, err
	}
	cypher := fmt.Sprintf(`MERGE (n:%s {%s: $id}) SET n += $props`, b.label, b.uniqueField)
	if _, err := b.writer.RawExecute(ctx, cypher, map[string]any{"id": id, "props": normalized}); err != nil {
		return nil, err
	}
	entity, err := b.fetchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, kind.New(kind.TransientGraphError, "mutation: entity could not be re-read after create").WithEntity(id)
	}
	return entity, nil
}

// CreateBatch upserts many entities in one UNWIND/MERGE statement and
// returns each resulting entity in the same order as props.
func (b *Builder) CreateBatch(ctx context.Context, propsList []map[string]any) ([]map[string]any, error) {
	if len(propsList) == 0 {
		return nil, nil
	}
	ids := make([]string, len(propsList))
	rows := make([]map[string]any, len(propsList))
	for i, props := range propsList {
		id, err := b.requireID(props)
		if err != nil {
			return nil, err
		}
		normalized, err := normalizeProps(props)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		rows[i] = normalized
	}

	cypher := fmt.Sprintf(`UNWIND $rows AS row MERGE (n:%s {%s: row.%s}) SET n += row`, b.label, b.uniqueField, b.uniqueField)
	if _, err := b.writer.RawExecute(ctx, cypher, map[string]any{"rows": rows}); err != nil {
		return nil, err
	}

	fetchCypher := fmt.Sprintf(`MATCH (n:%s) WHERE n.%s IN $ids RETURN properties(n) AS entity`, b.label, b.uniqueField)
	result, err := b.backend.Query(ctx, fetchCypher, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	byID := map[string]map[string]any{}
	idx := headerIndex(result.Headers, "entity")
	for _, row := range result.Rows {
		entity, ok := row[idx].(map[string]any)
		if !ok {
			continue
		}
		if entityID, ok := entity[b.uniqueField].(string); ok {
			byID[entityID] = entity
		}
	}
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if entity, ok := byID[id]; ok {
			out = append(out, entity)
		}
	}
	return out, nil
}

// Update applies patch to the entity identified by id and returns the
// resulting properties. Fails with kind.NotFound if id does not exist.
func (b *Builder) Update(ctx context.Context, id string, patch map[string]any) (map[string]any, error) {
	existing, err := b.fetchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, kind.New(kind.NotFound, "mutation: update target not found").WithEntity(id)
	}
	normalized, err := normalizeProps(patch)
	if err != nil {
		return nil, err
	}
	cypher := fmt.Sprintf(`MATCH (n:%s {%s: $id}) SET n += $patch`, b.label, b.uniqueField)
	if _, err := b.writer.RawExecute(ctx, cypher, map[string]any{"id": id, "patch": normalized}); err != nil {
		return nil, err
	}
	return b.fetchByID(ctx, id)
}

// Delete removes the entity identified by id along with its incident
// relationships (DETACH DELETE). Deleting an entity that no longer
// exists is a no-op, consistent with MERGE's idempotent write semantics
// elsewhere in the mutation path; delete deliberately does not traverse
// beyond the immediate node (no cascade, per spec.md §4.12).
func (b *Builder) Delete(ctx context.Context, id string) error {
	cypher := fmt.Sprintf(`MATCH (n:%s {%s: $id}) DETACH DELETE n`, b.label, b.uniqueField)
	_, err := b.writer.RawExecute(ctx, cypher, map[string]any{"id": id})
	return err
}

// AddRelationship MERGEs a directed relationship from the entity
// identified by sourceID to spec.TargetLabel/spec.TargetID, setting
// spec.Properties on the relationship. Fails with kind.NotFound if
// either endpoint does not exist.
func (b *Builder) AddRelationship(ctx context.Context, sourceID string, spec RelationshipSpec) error {
	if err := b.requireEndpoints(ctx, sourceID, spec); err != nil {
		return err
	}
	props, err := normalizeProps(spec.Properties)
	if err != nil {
		return err
	}
	cypher := fmt.Sprintf(
		`MATCH (a:%s {%s: $sourceId}) MATCH (b:%s {%s: $targetId}) MERGE (a)-[r:%s]->(b) SET r += $props`,
		b.label, b.uniqueField, spec.TargetLabel, spec.targetIDField(), spec.Type,
	)
	_, err = b.writer.RawExecute(ctx, cypher, map[string]any{
		"sourceId": sourceID,
		"targetId": spec.TargetID,
		"props":    props,
	})
	return err
}

// RemoveRelationship deletes the directed relationship from sourceID to
// spec.TargetID, if one exists. Removing a relationship that does not
// exist is a no-op.
func (b *Builder) RemoveRelationship(ctx context.Context, sourceID string, spec RelationshipSpec) error {
	cypher := fmt.Sprintf(
		`MATCH (a:%s {%s: $sourceId})-[r:%s]->(b:%s {%s: $targetId}) DELETE r`,
		b.label, b.uniqueField, spec.Type, spec.TargetLabel, spec.targetIDField(),
	)
	_, err := b.writer.RawExecute(ctx, cypher, map[string]any{
		"sourceId": sourceID,
		"targetId": spec.TargetID,
	})
	return err
}

func (b *Builder) requireID(props map[string]any) (string, error) {
	raw, ok := props[b.uniqueField]
	if !ok {
		return "", kind.New(kind.ConfigInvalid, "mutation: props missing unique field "+b.uniqueField)
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", kind.New(kind.ConfigInvalid, "mutation: unique field "+b.uniqueField+" must be a non-empty string")
	}
	return id, nil
}

func (b *Builder) requireEndpoints(ctx context.Context, sourceID string, spec RelationshipSpec) error {
	sourceOK, err := exists(ctx, b.backend, b.label, b.uniqueField, sourceID)
	if err != nil {
		return err
	}
	if !sourceOK {
		return kind.New(kind.NotFound, "mutation: relationship source not found").WithEntity(sourceID)
	}
	targetOK, err := exists(ctx, b.backend, spec.TargetLabel, spec.targetIDField(), spec.TargetID)
	if err != nil {
		return err
	}
	if !targetOK {
		return kind.New(kind.NotFound, "mutation: relationship target not found").WithEntity(spec.TargetID)
	}
	return nil
}

func exists(ctx context.Context, backend graphstore.Backend, label graphmodel.NodeLabel, field, id string) (bool, error) {
	cypher := fmt.Sprintf(`MATCH (n:%s {%s: $id}) RETURN count(n) AS c`, label, field)
	result, err := backend.Query(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	if len(result.Rows) == 0 {
		return false, nil
	}
	idx := headerIndex(result.Headers, "c")
	count, _ := asInt64(result.Rows[0][idx])
	return count > 0, nil
}

func (b *Builder) fetchByID(ctx context.Context, id string) (map[string]any, error) {
	cypher := fmt.Sprintf(`MATCH (n:%s {%s: $id}) RETURN properties(n) AS entity`, b.label, b.uniqueField)
	result, err := b.backend.Query(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, nil
	}
	idx := headerIndex(result.Headers, "entity")
	entity, ok := result.Rows[0][idx].(map[string]any)
	if !ok {
		return nil, kind.New(kind.TransientGraphError, "mutation: entity row missing properties map")
	}
	return entity, nil
}

func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// normalizeProps converts a property map to scopegraph's canonical wire
// shapes (spec.md §4.12): time.Time becomes ISO-8601 with offset, nested
// maps become JSON strings, scalar arrays pass through unchanged.
func normalizeProps(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, kind.Wrap(kind.ConfigInvalid, "mutation: cannot serialize field "+k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return val, nil
	case time.Time:
		return val.Format(time.RFC3339), nil
	case map[string]any:
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	case []any:
		return normalizeArray(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("unsupported property type %T", v)
		}
		return string(encoded), nil
	}
}

// normalizeArray passes an array through unchanged when every element is
// a scalar (Neo4j property lists must be homogeneous scalars); otherwise
// it falls back to one JSON string for the whole array.
func normalizeArray(arr []any) (any, error) {
	for _, elem := range arr {
		switch elem.(type) {
		case string, bool, int, int32, int64, float32, float64, nil:
			continue
		default:
			encoded, err := json.Marshal(arr)
			if err != nil {
				return nil, err
			}
			return string(encoded), nil
		}
	}
	return arr, nil
}
