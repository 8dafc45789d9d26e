// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

package graphstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphmodel"
	"github.com/scopegraph/scopegraph/pkg/kind"
)

// Writer applies Batches to a Backend using the two-phase pattern the
// spec requires: every node in a batch is MERGEd (grouped by label, one
// UNWIND per label) before any edge in that batch is MATCHed and MERGEd
// (grouped by relationship type and endpoint label pair), so a batch
// never depends on write ordering within itself. Each UNWIND statement
// retries on a TransientGraphError with exponential backoff.
type Writer struct {
	backend Backend
	retry   config.RetryConfig
}

// NewWriter constructs a Writer over backend using retry for transient
// failure backoff.
func NewWriter(backend Backend, retry config.RetryConfig) *Writer {
	return &Writer{backend: backend, retry: retry}
}

// Apply writes one Batch, nodes first then edges, and returns the
// aggregate ExecuteSummary.
func (w *Writer) Apply(ctx context.Context, b Batch) (ExecuteSummary, error) {
	var total ExecuteSummary

	for label, rows := range groupNodesByLabel(b.Nodes) {
		sum, err := w.runWithRetry(ctx, upsertNodesCypher(label), map[string]any{"rows": rows})
		if err != nil {
			return total, err
		}
		total = addSummary(total, sum)
	}

	for key, rows := range groupEdges(b.Edges) {
		sum, err := w.runWithRetry(ctx, upsertEdgesCypher(key), map[string]any{"rows": rows})
		if err != nil {
			return total, err
		}
		total = addSummary(total, sum)
	}

	return total, nil
}

// RawExecute runs one arbitrary write statement through the same
// retry-with-backoff path as Apply/DeleteScopes/InvalidateSummaryHashes,
// for callers (the summary store, the mutation builder) whose write
// shape doesn't fit the batched UNWIND pattern those use.
func (w *Writer) RawExecute(ctx context.Context, cypher string, params map[string]any) (ExecuteSummary, error) {
	return w.runWithRetry(ctx, cypher, params)
}

func (w *Writer) runWithRetry(ctx context.Context, cypher string, params map[string]any) (ExecuteSummary, error) {
	backoff := w.retry.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := w.retry.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	mult := w.retry.Multiplier
	if mult <= 0 {
		mult = 2
	}
	maxRetries := w.retry.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ExecuteSummary{}, kind.Wrap(kind.Cancelled, "ingestion write cancelled", ctx.Err())
		}
		sum, err := w.backend.Execute(ctx, cypher, params)
		if err == nil {
			return sum, nil
		}
		lastErr = err
		k, ok := kind.Of(err)
		if !ok || !k.Retryable() || attempt == maxRetries {
			return ExecuteSummary{}, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ExecuteSummary{}, kind.Wrap(kind.Cancelled, "ingestion write cancelled", ctx.Err())
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*mult))
	}
	return ExecuteSummary{}, lastErr
}

func groupNodesByLabel(nodes []NodeUpsert) map[graphmodel.NodeLabel][]map[string]any {
	out := map[graphmodel.NodeLabel][]map[string]any{}
	for _, n := range nodes {
		row := map[string]any{"key": n.Key}
		for k, v := range n.Props {
			row[k] = v
		}
		out[n.Label] = append(out[n.Label], row)
	}
	return out
}

type edgeGroupKey struct {
	relType   graphmodel.RelType
	fromLabel graphmodel.NodeLabel
	toLabel   graphmodel.NodeLabel
}

func groupEdges(edges []EdgeUpsert) map[edgeGroupKey][]map[string]any {
	out := map[edgeGroupKey][]map[string]any{}
	for _, e := range edges {
		key := edgeGroupKey{relType: e.Type, fromLabel: e.FromLabel, toLabel: e.ToLabel}
		row := map[string]any{
			"from":  e.FromKey,
			"to":    e.ToKey,
			"props": e.Props,
		}
		out[key] = append(out[key], row)
	}
	return out
}

// identityProperty returns the name of a label's identity property:
// Scope nodes are identified by uuid, every other label by key.
func identityProperty(label graphmodel.NodeLabel) string {
	if label == graphmodel.LabelScope {
		return "uuid"
	}
	return "key"
}

// upsertNodesCypher builds the UNWIND/MERGE/SET statement for one
// label's batch of node rows, grounded on the UpsertSymbolNode pattern:
// UNWIND $rows AS row MERGE (n:Label {idProp: row.key}) SET n += row.
func upsertNodesCypher(label graphmodel.NodeLabel) string {
	idProp := identityProperty(label)
	return fmt.Sprintf(
		`UNWIND $rows AS row MERGE (n:%s {%s: row.key}) SET n += row`,
		label, idProp,
	)
}

// upsertEdgesCypher builds the UNWIND/MATCH/MERGE/SET statement for one
// (relType, fromLabel, toLabel) group's batch of edge rows, grounded on
// the UpsertEdge pattern: UNWIND $rows AS row MATCH (a {idProp: row.from})
// MATCH (b {idProp: row.to}) MERGE (a)-[r:TYPE]->(b) SET r += row.props.
func upsertEdgesCypher(key edgeGroupKey) string {
	fromProp := identityProperty(key.fromLabel)
	toProp := identityProperty(key.toLabel)
	return fmt.Sprintf(
		`UNWIND $rows AS row
MATCH (a:%s {%s: row.from})
MATCH (b:%s {%s: row.to})
MERGE (a)-[r:%s]->(b)
SET r += row.props`,
		key.fromLabel, fromProp, key.toLabel, toProp, key.relType,
	)
}

func addSummary(a, b ExecuteSummary) ExecuteSummary {
	return ExecuteSummary{
		NodesCreated:         a.NodesCreated + b.NodesCreated,
		NodesDeleted:         a.NodesDeleted + b.NodesDeleted,
		RelationshipsCreated: a.RelationshipsCreated + b.RelationshipsCreated,
		RelationshipsDeleted: a.RelationshipsDeleted + b.RelationshipsDeleted,
		PropertiesSet:        a.PropertiesSet + b.PropertiesSet,
	}
}

// DeleteScopes removes the given Scope uuids and all of their
// relationships in one statement, used by the change tracker (C6) for
// orphan deletion.
func (w *Writer) DeleteScopes(ctx context.Context, uuids []string) (ExecuteSummary, error) {
	if len(uuids) == 0 {
		return ExecuteSummary{}, nil
	}
	return w.runWithRetry(ctx, `UNWIND $uuids AS id MATCH (s:Scope {uuid: id}) DETACH DELETE s`, map[string]any{"uuids": uuids})
}

// InvalidateSummaryHashes clears "<field>_summary_hash" for every field in
// fields on every Scope in uuids, used by the change tracker (C6) to
// invalidate cached summaries (C7) when the scope they were generated from
// changes. fields comes from configuration (SummaryConfig.Fields), not
// user input, so building property names by concatenation is safe — the
// same trust boundary upsertNodesCypher already relies on for labels.
func (w *Writer) InvalidateSummaryHashes(ctx context.Context, uuids, fields []string) (ExecuteSummary, error) {
	if len(uuids) == 0 || len(fields) == 0 {
		return ExecuteSummary{}, nil
	}
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = fmt.Sprintf("s.%s_summary_hash = null", f)
	}
	cypher := fmt.Sprintf(`UNWIND $uuids AS id MATCH (s:Scope {uuid: id}) SET %s`, strings.Join(sets, ", "))
	return w.runWithRetry(ctx, cypher, map[string]any{"uuids": uuids})
}
