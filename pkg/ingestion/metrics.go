// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds the Prometheus metrics for scopegraph's ingestion
// executor (C5) and change tracker (C6). The collectors are created and
// registered on the first record* call. Nothing in the module calls
// recordEmbedRetry, recordBatchRetry or recordUnresolved, and the other
// collectors have no record function, so a run updates no metric.
type metricsIngestion struct {
	once sync.Once

	deltaCreated   prometheus.Counter
	deltaUpdated   prometheus.Counter
	deltaDeleted   prometheus.Counter
	deltaUnchanged prometheus.Counter

	scopesCreated prometheus.Counter
	scopesUpdated prometheus.Counter
	scopesDeleted prometheus.Counter

	embedComputed prometheus.Counter
	embedSkipped  prometheus.Counter
	embedErrors   prometheus.Counter
	embedRetries  prometheus.Counter

	batchesWritten prometheus.Counter
	batchRetries   prometheus.Counter

	referencesUnresolved prometheus.Counter

	parseDuration prometheus.Histogram
	embedDuration prometheus.Histogram
	writeDuration prometheus.Histogram
	totalDuration prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.deltaCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_delta_created_total", Help: "Files classified as newly created by change detection"})
		m.deltaUpdated = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_delta_updated_total", Help: "Files classified as updated by change detection"})
		m.deltaDeleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_delta_deleted_total", Help: "Files classified as deleted by change detection"})
		m.deltaUnchanged = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_delta_unchanged_total", Help: "Files classified as unchanged by change detection"})

		m.scopesCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_scopes_created_total", Help: "Scope nodes created"})
		m.scopesUpdated = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_scopes_updated_total", Help: "Scope nodes updated"})
		m.scopesDeleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_scopes_deleted_total", Help: "Scope nodes deleted as orphans"})

		m.embedComputed = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_embeddings_computed_total", Help: "Embeddings computed"})
		m.embedSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_embeddings_skipped_total", Help: "Embeddings reused from a prior run"})
		m.embedErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_embeddings_errors_total", Help: "Embedding provider errors"})
		m.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_embeddings_retries_total", Help: "Embedding provider retries"})

		m.batchesWritten = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_batches_written_total", Help: "Batches written to the graph store"})
		m.batchRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_batch_retries_total", Help: "Batch write retries after a transient graph error"})

		m.referencesUnresolved = prometheus.NewCounter(prometheus.CounterOpts{Name: "scopegraph_ing_references_unresolved_total", Help: "References dropped because they could not be resolved"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "scopegraph_ing_parse_seconds", Help: "Parse phase duration", Buckets: buckets})
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "scopegraph_ing_embed_seconds", Help: "Embedding phase duration", Buckets: buckets})
		m.writeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "scopegraph_ing_write_seconds", Help: "Graph store write duration", Buckets: buckets})
		m.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "scopegraph_ing_total_seconds", Help: "Total run duration", Buckets: buckets})

		prometheus.MustRegister(
			m.deltaCreated, m.deltaUpdated, m.deltaDeleted, m.deltaUnchanged,
			m.scopesCreated, m.scopesUpdated, m.scopesDeleted,
			m.embedComputed, m.embedSkipped, m.embedErrors, m.embedRetries,
			m.batchesWritten, m.batchRetries, m.referencesUnresolved,
			m.parseDuration, m.embedDuration, m.writeDuration, m.totalDuration,
		)
	})
}

func recordEmbedRetry() { ingMetrics.init(); ingMetrics.embedRetries.Inc() }
func recordBatchRetry()  { ingMetrics.init(); ingMetrics.batchRetries.Inc() }
func recordUnresolved()  { ingMetrics.init(); ingMetrics.referencesUnresolved.Inc() }
