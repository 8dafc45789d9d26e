// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

// Package changetracker implements the change tracker (C6): given a freshly
// assembled set of scopes for the files covered by one parse, it classifies
// each against the store's existing Scope.content_hash, decides what's
// deleted, and invalidates any summary caches a changed scope feeds. Per the
// spec's lifecycle-ownership rule, this package and the graph assembler
// (C4, in pkg/ingestion) are the only two components that mutate graph
// state: the assembler creates/updates nodes and edges, the change tracker
// exclusively decides what survives into the upsert batch and what's
// removed.
package changetracker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
	"github.com/scopegraph/scopegraph/pkg/kind"
)

// ScopeClass classifies one scope's status relative to the store.
type ScopeClass string

const (
	ClassCreated   ScopeClass = "created"
	ClassUpdated   ScopeClass = "updated"
	ClassUnchanged ScopeClass = "unchanged"
	ClassDeleted   ScopeClass = "deleted"
)

// Change is one classified non-unchanged scope, carrying a serialized diff
// per step 5 of C6.
type Change struct {
	UUID         string
	FilePath     string
	Class        ScopeClass
	MetadataJSON string
}

// Result is Classify's output: what C5 should upsert, what's already been
// deleted, and the full per-scope change log.
type Result struct {
	// ToUpsert holds only the created and updated scopes — the spec's
	// "only updated + created nodes are passed to C5".
	ToUpsert []graphmodel.Scope
	// ToDelete holds the UUIDs already removed by Classify (unless
	// cfg.DryRun), via the dedicated deletion step.
	ToDelete []string
	Changes  []Change
	// Invalidated holds every scope UUID whose summary hash fields were
	// cleared this run, including cascade targets.
	Invalidated []string
	Counters    map[ScopeClass]int
}

// Tracker is the change tracker (C6).
type Tracker struct {
	backend       graphstore.Backend
	writer        *graphstore.Writer
	cfg           config.IngestionConfig
	summaryFields []string
	logger        *slog.Logger
}

// NewTracker constructs a Tracker. backend serves the read-side hash and
// orphan queries; writer applies deletions and summary-hash invalidation.
// summaryFields names the scope fields configured for summarization
// (config.SummaryConfig.Fields) — each gets its own "<field>_summary_hash"
// property cleared when the scope it was generated from changes.
func NewTracker(backend graphstore.Backend, writer *graphstore.Writer, cfg config.IngestionConfig, summaryFields []string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{backend: backend, writer: writer, cfg: cfg, summaryFields: summaryFields, logger: logger}
}

// Classify runs the full C6 sequence against one project's freshly
// assembled scope set: hash comparison, deletion scoping to files, and
// summary invalidation. In DryRun mode it performs step 1-3's reads plus
// the classification, but skips every write (deletion, invalidation) and
// simply returns the counters.
func (t *Tracker) Classify(ctx context.Context, projectName string, files []string, scopes []graphmodel.Scope) (*Result, error) {
	res := &Result{Counters: map[ScopeClass]int{}}

	uuids := make([]string, len(scopes))
	for i, s := range scopes {
		uuids[i] = s.UUID
	}

	existing, err := t.existingHashes(ctx, uuids)
	if err != nil {
		return nil, kind.Wrap(kind.TransientGraphError, "changetracker: query existing hashes", err)
	}

	var changedUUIDs []string
	for _, s := range scopes {
		old, known := existing[s.UUID]
		class := ClassUnchanged
		switch {
		case !known:
			class = ClassCreated
		case old != s.ContentHash:
			class = ClassUpdated
		}
		res.Counters[class]++
		if class == ClassUnchanged {
			continue
		}
		res.ToUpsert = append(res.ToUpsert, s)
		changedUUIDs = append(changedUUIDs, s.UUID)
		meta, _ := json.Marshal(map[string]string{"old_hash": old, "new_hash": s.ContentHash})
		res.Changes = append(res.Changes, Change{UUID: s.UUID, FilePath: s.FilePath, Class: class, MetadataJSON: string(meta)})
	}

	deleted, err := t.deletedUUIDs(ctx, projectName, files, uuids)
	if err != nil {
		return nil, kind.Wrap(kind.TransientGraphError, "changetracker: query deleted scopes", err)
	}
	res.ToDelete = deleted
	res.Counters[ClassDeleted] = len(deleted)
	for _, uuid := range deleted {
		res.Changes = append(res.Changes, Change{UUID: uuid, Class: ClassDeleted, MetadataJSON: "{}"})
	}

	if t.cfg.DryRun {
		t.logDecision(res)
		return res, nil
	}

	if len(deleted) > 0 {
		if _, err := t.writer.DeleteScopes(ctx, deleted); err != nil {
			return nil, err
		}
	}

	targets, err := t.invalidateSummaries(ctx, changedUUIDs)
	if err != nil {
		return nil, err
	}
	res.Invalidated = targets

	t.logDecision(res)
	return res, nil
}

func (t *Tracker) logDecision(res *Result) {
	t.logger.Info("changetracker.classify",
		"created", res.Counters[ClassCreated], "updated", res.Counters[ClassUpdated],
		"unchanged", res.Counters[ClassUnchanged], "deleted", res.Counters[ClassDeleted],
		"summaries_invalidated", len(res.Invalidated), "dry_run", t.cfg.DryRun)
}

// existingHashes looks up the stored content_hash of every uuid in uuids,
// step 1 of C6.
func (t *Tracker) existingHashes(ctx context.Context, uuids []string) (map[string]string, error) {
	if len(uuids) == 0 {
		return map[string]string{}, nil
	}
	res, err := t.backend.Query(ctx,
		`UNWIND $uuids AS id MATCH (s:Scope {uuid: id}) RETURN s.uuid AS uuid, s.content_hash AS hash`,
		map[string]any{"uuids": uuids})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		uuid, _ := row[0].(string)
		hash, _ := row[1].(string)
		out[uuid] = hash
	}
	return out, nil
}

// deletedUUIDs finds store UUIDs belonging to files covered by this parse
// but absent from the freshly assembled set, step 3 of C6 — scoped to
// files so unrelated projects sharing the same store are untouched.
func (t *Tracker) deletedUUIDs(ctx context.Context, projectName string, files, currentUUIDs []string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	res, err := t.backend.Query(ctx,
		`MATCH (s:Scope {project_name: $project})
WHERE s.file_path IN $files AND NOT s.uuid IN $current
RETURN s.uuid AS uuid`,
		map[string]any{"project": projectName, "files": files, "current": currentUUIDs})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 1 {
			continue
		}
		if uuid, ok := row[0].(string); ok {
			out = append(out, uuid)
		}
	}
	return out, nil
}

// invalidateSummaries clears "<field>_summary_hash" on every changed scope
// (step 4 of C6), and — when cfg.CascadeInvalidateSummaries is set — on
// every scope that CONSUMES one of them, covering the "scopes that import
// or call a changed scope" cascade the spec leaves config-driven. It
// returns the full set of UUIDs actually invalidated.
func (t *Tracker) invalidateSummaries(ctx context.Context, changedUUIDs []string) ([]string, error) {
	if len(changedUUIDs) == 0 || len(t.summaryFields) == 0 {
		return nil, nil
	}
	targets := changedUUIDs
	if t.cfg.CascadeInvalidateSummaries {
		cascaded, err := t.cascadeTargets(ctx, changedUUIDs)
		if err != nil {
			return nil, err
		}
		targets = mergeUnique(changedUUIDs, cascaded)
	}
	if _, err := t.writer.InvalidateSummaryHashes(ctx, targets, t.summaryFields); err != nil {
		return nil, err
	}
	return targets, nil
}

// cascadeTargets finds every scope that CONSUMES one of changedUUIDs —
// its callers/importers — for transitive summary invalidation.
func (t *Tracker) cascadeTargets(ctx context.Context, changedUUIDs []string) ([]string, error) {
	res, err := t.backend.Query(ctx,
		`UNWIND $ids AS id
MATCH (caller:Scope)-[:CONSUMES]->(s:Scope {uuid: id})
RETURN DISTINCT caller.uuid AS uuid`,
		map[string]any{"ids": changedUUIDs})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 1 {
			continue
		}
		if uuid, ok := row[0].(string); ok {
			out = append(out, uuid)
		}
	}
	return out, nil
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
