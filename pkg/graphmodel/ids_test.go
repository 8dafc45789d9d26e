// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

package graphmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeUUID_LineSuffixOnlyAppliesToVariableAndConstant(t *testing.T) {
	for _, kind := range []ScopeKind{ScopeFunction, ScopeMethod, ScopeType, ScopeInterface, ScopeClosure, ScopeModule} {
		line10 := ScopeUUID("parent", "func f()", "f", string(kind), "hash", 10)
		line20 := ScopeUUID("parent", "func f()", "f", string(kind), "hash", 20)
		assert.Equal(t, line10, line20, "kind %s: a shifted start line must not change the UUID", kind)
	}
}

func TestScopeUUID_LineSuffixDisambiguatesVariablesAndConstants(t *testing.T) {
	for _, kind := range []ScopeKind{ScopeVariable, ScopeConstant} {
		line10 := ScopeUUID("parent", "", "x", string(kind), "hash", 10)
		line20 := ScopeUUID("parent", "", "x", string(kind), "hash", 20)
		assert.NotEqual(t, line10, line20, "kind %s: shadowed declarations at different lines must get distinct UUIDs", kind)
	}
}

func TestScopeUUID_DeterministicForIdenticalInputs(t *testing.T) {
	a := ScopeUUID("parent", "func f()", "f", string(ScopeFunction), "hash", 1)
	b := ScopeUUID("parent", "func f()", "f", string(ScopeFunction), "hash", 1)
	assert.Equal(t, a, b)
}
