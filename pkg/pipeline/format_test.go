// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scopegraph/scopegraph/pkg/graphstore"
)

func TestFormatQueryResult_Empty(t *testing.T) {
	result := &graphstore.QueryResult{Headers: []string{"uuid"}, Rows: nil}
	out := FormatQueryResult(result, "MATCH (s:Scope) RETURN s.uuid AS uuid")
	assert.Contains(t, out, "Found 0 results")
	assert.Contains(t, out, "No results found.")
	assert.Contains(t, out, "Generated Cypher:")
	assert.Contains(t, out, "MATCH (s:Scope)")
}

func TestFormatQueryResult_Rows(t *testing.T) {
	result := &graphstore.QueryResult{
		Headers: []string{"uuid", "name"},
		Rows: [][]any{
			{"abc12345", "HandleAuth"},
			{"def67890", "HandleLogin"},
		},
	}
	out := FormatQueryResult(result, "MATCH (s:Scope) RETURN s.uuid AS uuid, s.name AS name")
	assert.Contains(t, out, "Found 2 results")
	assert.Contains(t, out, "uuid: abc12345")
	assert.Contains(t, out, "name: HandleLogin")
}

func TestFormatQueryResultSimple_Empty(t *testing.T) {
	out := FormatQueryResultSimple(&graphstore.QueryResult{})
	assert.Equal(t, "No results found.", out)
}

func TestFormatQueryResultSimple_Truncates(t *testing.T) {
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{"uuid", "value"}
	}
	result := &graphstore.QueryResult{Headers: []string{"uuid", "name"}, Rows: rows}
	out := FormatQueryResultSimple(result)
	assert.True(t, strings.Contains(out, "and 5 more results"))
}
