// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/graphmodel"
)

func TestSetupTestBackend(t *testing.T) {
	backend := SetupTestBackend(t)
	require.NotNil(t, backend)

	result := QueryScopesByName(t, backend, "NoSuchScope__setup_probe")
	require.NotNil(t, result)
	assert.Empty(t, result.Rows, "should start with no matching scopes")
}

func TestInsertTestScope(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestScope(t, backend, graphmodel.Scope{
		UUID: "func0001", Name: "HandleAuth", Kind: graphmodel.ScopeFunction,
		FilePath: "auth.go", StartLine: 10, EndLine: 25, ProjectName: "helpers_test",
	})

	result := QueryScopesByName(t, backend, "HandleAuth")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "func0001", result.Rows[0][0])
	assert.Equal(t, "HandleAuth", result.Rows[0][1])
}

func TestInsertTestFile(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestFile(t, backend, graphmodel.File{
		Key: graphmodel.FileKey("auth_test_unique.go"), Path: "auth_test_unique.go",
		Language: "go", Size: 1234, ProjectName: "helpers_test",
	})

	result := QueryFilesByPath(t, backend, "auth_test_unique.go")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "auth_test_unique.go", result.Rows[0][1])
}

func TestInsertTestConsumes(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestScope(t, backend, graphmodel.Scope{
		UUID: "caller01", Name: "Main", Kind: graphmodel.ScopeFunction,
		FilePath: "main.go", StartLine: 1, EndLine: 10, ProjectName: "helpers_test",
	})
	InsertTestScope(t, backend, graphmodel.Scope{
		UUID: "callee01", Name: "Helper", Kind: graphmodel.ScopeFunction,
		FilePath: "main.go", StartLine: 12, EndLine: 15, ProjectName: "helpers_test",
	})

	InsertTestConsumes(t, backend, "caller01", "callee01", []graphmodel.ConsumeSite{
		{Line: 5, Column: 2, Context: "Helper()"},
	})
	// This package has no edge-query helper; the insert completing without
	// error is the assertion.
}
