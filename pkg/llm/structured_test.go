// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopegraph/scopegraph/pkg/kind"
)

var summarySchema = OutputSchema{
	Root: "summary",
	Fields: []Field{
		{Name: "summary", Type: FieldString, Description: "a short summary", Required: true},
		{Name: "tags", Type: FieldArray, Description: "relevant tags", Required: false},
	},
}

func TestRenderPrompt_IncludesInstructionsAndTask(t *testing.T) {
	rendered, err := RenderPrompt(DefaultPromptTemplate, PromptData{
		SystemPrompt: "You summarize code.",
		UserTask:     "Summarize this function.",
		Schema:       summarySchema,
	})
	require.NoError(t, err)
	assert.Contains(t, rendered, "You summarize code.")
	assert.Contains(t, rendered, "Summarize this function.")
	assert.Contains(t, rendered, "summary (string, required)")
	assert.Contains(t, rendered, "tags (array, optional)")
}

func TestParseStructured_ExtractsWrappedJSON(t *testing.T) {
	text := "Sure, here you go:\n```json\n{\"summary\": \"does a thing\", \"tags\": [\"a\"]}\n```\nHope that helps."
	obj, err := ParseStructured(text, summarySchema)
	require.NoError(t, err)
	assert.Equal(t, "does a thing", obj["summary"])
}

func TestParseStructured_MissingRequiredFieldIsEmptySummary(t *testing.T) {
	_, err := ParseStructured(`{"tags": ["a"]}`, summarySchema)
	require.Error(t, err)
	k, ok := kind.Of(err)
	require.True(t, ok)
	assert.Equal(t, kind.EmptySummary, k)
}

func TestParseStructured_EmptyRequiredFieldIsEmptySummary(t *testing.T) {
	_, err := ParseStructured(`{"summary": ""}`, summarySchema)
	require.Error(t, err)
	k, ok := kind.Of(err)
	require.True(t, ok)
	assert.Equal(t, kind.EmptySummary, k)
}

func TestParseStructured_NoJSONObjectIsEmptySummary(t *testing.T) {
	_, err := ParseStructured("I refuse to answer in JSON.", summarySchema)
	require.Error(t, err)
	k, ok := kind.Of(err)
	require.True(t, ok)
	assert.Equal(t, kind.EmptySummary, k)
}

func TestGenerateStructured_ParsesProviderOutput(t *testing.T) {
	provider := &MockProvider{GenerateFunc: func(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: `{"summary": "parses fine"}`}, nil
	}}
	obj, err := GenerateStructured(context.Background(), provider, GenerateRequest{Prompt: "x"}, summarySchema)
	require.NoError(t, err)
	assert.Equal(t, "parses fine", obj["summary"])
}

func TestGenerateStructuredBatch_ReturnsResultsInInputOrder(t *testing.T) {
	provider := &MockProvider{GenerateFunc: func(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
		return &GenerateResponse{Text: `{"summary": "` + req.Prompt + `"}`}, nil
	}}
	results, err := GenerateStructuredBatch(context.Background(), provider, []string{"a", "b", "c"}, summarySchema, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []string{"a", "b", "c"} {
		require.NoError(t, results[i].Err)
		assert.Equal(t, want, results[i].Object["summary"])
	}
}

type fakeBatchProvider struct{ *MockProvider }

func (f *fakeBatchProvider) GenerateBatch(ctx context.Context, prompts []string) ([]string, error) {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = `{"summary": "batched-` + p + `"}`
	}
	return out, nil
}

func TestGenerateStructuredBatch_PrefersBatchProvider(t *testing.T) {
	provider := &fakeBatchProvider{MockProvider: &MockProvider{}}
	results, err := GenerateStructuredBatch(context.Background(), provider, []string{"x"}, summarySchema, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "batched-x", results[0].Object["summary"])
}
