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
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/changetracker"
	"github.com/scopegraph/scopegraph/pkg/config"
	"github.com/scopegraph/scopegraph/pkg/graphstore"
)

// fakeBackend is an in-memory graphstore.Backend recording every Execute
// call, letting executor tests run without a live Neo4j instance.
// lastSHA, when set, is what Query answers a Project.last_indexed_sha
// lookup with, letting delta-wiring tests simulate a prior run.
type fakeBackend struct {
	mu      sync.Mutex
	execs   []string
	lastSHA string
}

func (f *fakeBackend) Query(ctx context.Context, cypher string, params map[string]any) (*graphstore.QueryResult, error) {
	if f.lastSHA != "" {
		return &graphstore.QueryResult{Headers: []string{"sha"}, Rows: [][]any{{f.lastSHA}}}, nil
	}
	return &graphstore.QueryResult{}, nil
}

func (f *fakeBackend) Execute(ctx context.Context, cypher string, params map[string]any) (graphstore.ExecuteSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, cypher)
	rows, _ := params["rows"].([]map[string]any)
	return graphstore.ExecuteSummary{NodesCreated: len(rows)}, nil
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func newTestExecutor(t *testing.T, repoDir string, backend *fakeBackend) *Executor {
	t.Helper()
	registry := NewRegistry()
	registry.Register(NewGoParser(), ".go")

	writer := graphstore.NewWriter(backend, config.RetryConfig{MaxRetries: 1})
	cfg := config.IngestionConfig{MaxFileSizeBytes: 1 << 20}
	tracker := changetracker.NewTracker(backend, writer, cfg, nil, nil)
	return NewExecutor(NewRepoLoader(nil), registry, writer, tracker, backend, cfg, "testproject", nil)
}

func TestExecutor_Run_AssemblesAndWrites(t *testing.T) {
	dir := t.TempDir()
	src := `package sample

func Helper() int {
	return 1
}

func Caller() int {
	return Helper()
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(src), 0o644))

	backend := &fakeBackend{}
	exec := newTestExecutor(t, dir, backend)

	summary, err := exec.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilesParsed)
	assert.Equal(t, 2, summary.ScopesCreated)
	assert.Equal(t, 1, summary.ReferencesMade)
	assert.Equal(t, 1, summary.BatchesWritten)
	assert.NotEmpty(t, backend.execs)
}

func TestExecutor_Run_DryRunSkipsWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc A() {}\n"), 0o644))

	backend := &fakeBackend{}
	exec := newTestExecutor(t, dir, backend)
	exec.cfg.DryRun = true

	summary, err := exec.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.BatchesWritten)
	assert.Empty(t, backend.execs)
}

func TestExecutor_Run_SkipsUnregisteredLanguages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc A() {}\n"), 0o644))

	backend := &fakeBackend{}
	exec := newTestExecutor(t, dir, backend)

	summary, err := exec.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilesParsed)
	assert.Equal(t, 1, summary.FilesSkipped)
}

func TestAssembleFile_ParentChildUUIDs(t *testing.T) {
	infos := []ScopeInfo{
		{Name: "Outer", Kind: "function", StartLine: 1, Content: "func Outer() {}"},
		{Name: "closure#1", Kind: "closure", ParentName: "Outer", StartLine: 2, Content: "func() {}"},
	}
	fs := assembleFile("x.go", "proj", infos)

	require.Len(t, fs.scopes, 2)
	assert.Equal(t, fs.scopes[0].UUID, fs.scopes[1].ParentUUID)
	assert.NotEqual(t, fs.scopes[0].UUID, fs.scopes[1].UUID)
}

func TestIsExternalImport(t *testing.T) {
	assert.False(t, isExternalImport("myproject/internal/foo"))
	assert.False(t, isExternalImport("fmt"))
	assert.True(t, isExternalImport("github.com/stretchr/testify"))
}
