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
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runGit runs a git subcommand in dir, failing the test on error. Tests
// using it are skipped (not failed) when git isn't on PATH.
func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "test")
}

func commitAll(t *testing.T, dir, msg string) {
	t.Helper()
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-q", "-m", msg)
}

func headSHA(t *testing.T, dir string) string {
	t.Helper()
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return string(out[:len(out)-1])
}

func TestExecutor_PlanFiles_FallsBackWithoutGitRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	backend := &fakeBackend{}
	exec := newTestExecutor(t, dir, backend)
	exec.cfg.UseGitDelta = true

	loaded, err := exec.loader.LoadRepository(context.Background(), dir, nil, 0)
	require.NoError(t, err)

	toParse, removed, sha := exec.planFiles(context.Background(), dir, loaded.Files)
	assert.Equal(t, loaded.Files, toParse)
	assert.Empty(t, removed)
	assert.Empty(t, sha)
}

func TestExecutor_PlanFiles_NoNarrowingWithoutPriorSHA(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))
	commitAll(t, dir, "initial")

	backend := &fakeBackend{} // no lastSHA on record: first run
	exec := newTestExecutor(t, dir, backend)
	exec.cfg.UseGitDelta = true

	loaded, err := exec.loader.LoadRepository(context.Background(), dir, nil, 0)
	require.NoError(t, err)

	toParse, removed, sha := exec.planFiles(context.Background(), dir, loaded.Files)
	assert.Equal(t, loaded.Files, toParse, "first run has no stored SHA to diff against, so it parses everything")
	assert.Empty(t, removed)
	assert.Equal(t, headSHA(t, dir), sha, "headSHA is still resolved so this run can stamp the Project node")
}

func TestExecutor_PlanFiles_NarrowsToChangedFilesSinceLastSHA(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc A() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package a\nfunc B() {}\n"), 0o644))
	commitAll(t, dir, "initial")
	baseSHA := headSHA(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc A() {}\n// changed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.go"), []byte("package a\nfunc C() {}\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "b.go")))
	commitAll(t, dir, "second")

	backend := &fakeBackend{lastSHA: baseSHA}
	exec := newTestExecutor(t, dir, backend)
	exec.cfg.UseGitDelta = true

	loaded, err := exec.loader.LoadRepository(context.Background(), dir, nil, 0)
	require.NoError(t, err)
	require.Len(t, loaded.Files, 2, "b.go was deleted, a.go and c.go remain on disk at HEAD")

	toParse, removed, sha := exec.planFiles(context.Background(), dir, loaded.Files)

	var parsedPaths []string
	for _, f := range toParse {
		parsedPaths = append(parsedPaths, f.Path)
	}
	assert.ElementsMatch(t, []string{"a.go", "c.go"}, parsedPaths, "only the modified and added files are re-parsed")
	assert.ElementsMatch(t, []string{"b.go"}, removed, "the deleted file is reported so C6 still scopes its deletion query to it")
	assert.Equal(t, headSHA(t, dir), sha)
}

func TestExecutor_Run_StampsLastIndexedSHAOnGitRepo(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\nfunc A() {}\n"), 0o644))
	commitAll(t, dir, "initial")

	backend := &fakeBackend{}
	exec := newTestExecutor(t, dir, backend)
	exec.cfg.UseGitDelta = true

	_, err := exec.Run(context.Background(), dir)
	require.NoError(t, err)

	var sawProjectUpsert bool
	for _, cypher := range backend.execs {
		if strings.Contains(cypher, "MERGE (n:Project") {
			sawProjectUpsert = true
		}
	}
	assert.True(t, sawProjectUpsert, "Run stages a Project node upsert carrying the resolved HEAD SHA")
}
