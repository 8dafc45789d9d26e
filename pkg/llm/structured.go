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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/sync/semaphore"

	"github.com/scopegraph/scopegraph/pkg/kind"
)

// FieldType enumerates the value types an output schema field may declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// Field describes one field of a structured output schema (C8).
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Nested      []Field // populated when Type == FieldObject
}

// OutputSchema is the schema a structured LLM response is parsed against,
// per spec.md §4.8: `{root, fields:[{name, type, description, required?,
// nested?}]}`.
type OutputSchema struct {
	Root   string
	Fields []Field
}

// PromptData is the {system_prompt, user_task, output_schema, data} set a
// prompt template is rendered from.
type PromptData struct {
	SystemPrompt string
	UserTask     string
	Schema       OutputSchema
	Data         any
}

// DefaultPromptTemplate is scopegraph's built-in template, supporting the
// variable substitution, conditional blocks, and array iteration the spec
// requires — all native to text/template, which is why this package
// reaches for it instead of a third-party templating engine (no pack
// example imports one; the stdlib already expresses every construct
// spec.md §4.8 names).
const DefaultPromptTemplate = `{{.SystemPrompt}}

Task: {{.UserTask}}
{{if .Data}}
Data:
{{.Data}}
{{end}}
Respond with a single JSON object for "{{.Schema.Root}}" containing exactly these fields:
{{instructions .Schema}}
Return ONLY the JSON object, no surrounding prose.`

// RenderPrompt renders tmplText against data, deriving the schema section
// via the "instructions" template function below.
func RenderPrompt(tmplText string, data PromptData) (string, error) {
	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"instructions": DeriveInstructions,
	}).Parse(tmplText)
	if err != nil {
		return "", kind.Wrap(kind.ConfigInvalid, "llm: parse prompt template", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", kind.Wrap(kind.ConfigInvalid, "llm: render prompt template", err)
	}
	return buf.String(), nil
}

// DeriveInstructions renders a schema's fields as a human-readable
// bullet list the model can follow, the "derives instructions from the
// schema" half of C8 — one line per field naming its type, whether it's
// required, and its description, recursing into nested object fields.
func DeriveInstructions(schema OutputSchema) string {
	var sb strings.Builder
	writeFieldInstructions(&sb, schema.Fields, "")
	return sb.String()
}

func writeFieldInstructions(sb *strings.Builder, fields []Field, indent string) {
	for _, f := range fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(sb, "%s- %s (%s, %s): %s\n", indent, f.Name, f.Type, req, f.Description)
		if f.Type == FieldObject && len(f.Nested) > 0 {
			writeFieldInstructions(sb, f.Nested, indent+"  ")
		}
	}
}

// ParseStructured parses raw LLM output strictly against schema: it
// extracts the first top-level JSON object in text (models routinely wrap
// JSON in prose or code fences despite instructions not to), then
// verifies every required field is present and non-empty. A missing or
// empty required field returns kind.EmptySummary rather than a generic
// parse error, as do a response with no JSON object and one that is not
// valid JSON. No caller in the module retries an EmptySummary with a
// smaller batch.
func ParseStructured(text string, schema OutputSchema) (map[string]any, error) {
	jsonText := extractJSONObject(text)
	if jsonText == "" {
		return nil, kind.New(kind.EmptySummary, "llm: no JSON object found in response")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return nil, kind.Wrap(kind.EmptySummary, "llm: response is not valid JSON", err)
	}

	for _, f := range schema.Fields {
		if !f.Required {
			continue
		}
		v, ok := parsed[f.Name]
		if !ok || isEmptyValue(v) {
			return nil, kind.New(kind.EmptySummary, fmt.Sprintf("llm: required field %q missing or empty", f.Name))
		}
	}
	return parsed, nil
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// extractJSONObject returns the substring of text spanning its first
// balanced top-level {...} block, or "" if none is found — tolerant of a
// model wrapping its JSON in markdown fences or explanatory prose.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// GenerateStructured makes one Generate call and strictly parses the
// result against schema.
func GenerateStructured(ctx context.Context, provider Provider, req GenerateRequest, schema OutputSchema) (map[string]any, error) {
	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return ParseStructured(resp.Text, schema)
}

// StructuredResult pairs one prompt's outcome: either a parsed object or
// an error (typically kind.EmptySummary), never both.
type StructuredResult struct {
	Object map[string]any
	Err    error
}

// BatchProvider is implemented by providers that can generate for many
// prompts in a single round-trip; GenerateStructuredBatch prefers it over
// per-prompt Generate calls when available, per spec.md §4.8's "batching
// is preferred when available" rule.
type BatchProvider interface {
	GenerateBatch(ctx context.Context, prompts []string) ([]string, error)
}

// GenerateStructuredBatch generates and strictly parses one response per
// prompt. When provider implements BatchProvider, it's used directly;
// otherwise Generate is called per-prompt with at most parallelism
// concurrent in flight, bounded by a semaphore the same way C10's batch
// fan-out is (golang.org/x/sync/semaphore, not a hand-rolled channel
// pool, since the pack already wires this library for exactly this
// bounded-parallelism shape).
func GenerateStructuredBatch(ctx context.Context, provider Provider, prompts []string, schema OutputSchema, parallelism int) ([]StructuredResult, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	results := make([]StructuredResult, len(prompts))

	if bp, ok := provider.(BatchProvider); ok {
		texts, err := bp.GenerateBatch(ctx, prompts)
		if err != nil {
			return nil, err
		}
		for i, text := range texts {
			obj, perr := ParseStructured(text, schema)
			results[i] = StructuredResult{Object: obj, Err: perr}
		}
		return results, nil
	}

	if len(prompts) == 0 {
		return results, nil
	}

	sem := semaphore.NewWeighted(int64(parallelism))
	var wg sync.WaitGroup
	for i, prompt := range prompts {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, kind.Wrap(kind.Cancelled, "llm: batch generation cancelled", err)
		}
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()
			defer sem.Release(1)
			obj, err := GenerateStructured(ctx, provider, GenerateRequest{Prompt: prompt}, schema)
			results[i] = StructuredResult{Object: obj, Err: err}
		}(i, prompt)
	}
	wg.Wait()
	return results, nil
}
