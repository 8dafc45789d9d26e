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
	"fmt"
	"strconv"
	"strings"

	"github.com/scopegraph/scopegraph/pkg/graphstore"
)

// FormatQueryResult renders a graphstore.QueryResult as a human-readable
// report, echoing the Cypher statement that produced it. Intended for CLI
// and debug output of a pipeline run, not for programmatic consumption.
func FormatQueryResult(result *graphstore.QueryResult, cypher string) string {
	var sb strings.Builder
	sb.WriteString("Found ")
	sb.WriteString(strconv.Itoa(len(result.Rows)))
	sb.WriteString(" results\n\n")

	if len(result.Rows) == 0 {
		sb.WriteString("No results found.\n")
	} else {
		for i, row := range result.Rows {
			sb.WriteString("--- Result ")
			sb.WriteString(strconv.Itoa(i + 1))
			sb.WriteString(" ---\n")
			for j, val := range row {
				if j >= len(result.Headers) {
					continue
				}
				valStr := truncateValue(val, 200)
				sb.WriteString("  ")
				sb.WriteString(result.Headers[j])
				sb.WriteString(": ")
				sb.WriteString(valStr)
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("---\nGenerated Cypher:\n")
	sb.WriteString(cypher)

	return sb.String()
}

// FormatQueryResultSimple renders a graphstore.QueryResult without echoing
// the query, capped at 20 rows.
func FormatQueryResultSimple(result *graphstore.QueryResult) string {
	var sb strings.Builder

	if len(result.Rows) == 0 {
		return "No results found."
	}

	sb.WriteString("Found ")
	sb.WriteString(strconv.Itoa(len(result.Rows)))
	sb.WriteString(" results:\n\n")

	const maxRows = 20
	for i, row := range result.Rows {
		if i >= maxRows {
			sb.WriteString("\n... and ")
			sb.WriteString(strconv.Itoa(len(result.Rows) - maxRows))
			sb.WriteString(" more results")
			break
		}
		for j, val := range row {
			if j >= len(result.Headers) {
				continue
			}
			valStr := truncateValue(val, 100)
			sb.WriteString("  ")
			sb.WriteString(result.Headers[j])
			sb.WriteString(": ")
			sb.WriteString(valStr)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func truncateValue(val any, maxLen int) string {
	s := fmt.Sprintf("%v", val)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
