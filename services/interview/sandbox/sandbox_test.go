// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreen(t *testing.T) {
	tests := []struct {
		name string
		code string
		ok   bool
	}{
		{"clean code passes", "def solve(a):\n    return sorted(a)", true},
		{"import rejected", "import os\ndef solve(a): return a", false},
		{"dunder import rejected", "__import__('os')", false},
		{"open rejected", "open('/etc/passwd')", false},
		{"case insensitive", "IMPORT os", false},
		{"os attribute rejected", "x = os.environ", false},
		{"socket rejected", "s = socket()", false},
		{"eval rejected", "eval('1+1')", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Screen(tc.code)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDisallowedCode)
			}
		})
	}
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not on PATH")
	}
}

func TestEvaluate(t *testing.T) {
	requirePython(t)
	ctx := context.Background()
	e := NewEvaluator(nil)

	t.Run("sorted solution passes all tests", func(t *testing.T) {
		report, err := e.Evaluate(ctx, "def solve(a):\n    return sorted(a)", "solve", []Test{
			{Input: []any{[]any{3, 1, 2}}, Expected: []any{1, 2, 3}},
			{Input: []any{[]any{}}, Expected: []any{}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, report.Passed)
		assert.Equal(t, 2, report.Total)
		for _, r := range report.Results {
			assert.True(t, r.Pass)
			assert.Empty(t, r.Error)
		}
	})

	t.Run("infinite loop times out per test", func(t *testing.T) {
		report, err := e.Evaluate(ctx, "def solve(a):\n    while True: pass", "solve", []Test{
			{Input: []any{1}, Expected: 1},
			{Input: []any{2}, Expected: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Passed)
		for _, r := range report.Results {
			assert.False(t, r.Pass)
			assert.Equal(t, "timeout", r.Error)
		}
	})

	t.Run("missing function reports function_not_found", func(t *testing.T) {
		report, err := e.Evaluate(ctx, "def other(a):\n    return a", "solve", []Test{
			{Input: []any{1}, Expected: 1},
		})
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		assert.Equal(t, "function_not_found", report.Results[0].Error)
	})

	t.Run("disallowed code never spawns a worker", func(t *testing.T) {
		_, err := e.Evaluate(ctx, "import os", "solve", []Test{{Input: 1, Expected: 1}})
		assert.ErrorIs(t, err, ErrDisallowedCode)
	})

	t.Run("wrong result fails the test with actual recorded", func(t *testing.T) {
		report, err := e.Evaluate(ctx, "def solve(a):\n    return a", "solve", []Test{
			{Input: []any{[]any{3, 1}}, Expected: []any{1, 3}},
		})
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		assert.False(t, report.Results[0].Pass)
		assert.NotNil(t, report.Results[0].Actual)
	})

	t.Run("scalar input is passed as single argument", func(t *testing.T) {
		report, err := e.Evaluate(ctx, "def solve(n):\n    return n + 1", "solve", []Test{
			{Input: 41, Expected: 42},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Passed)
	})

	t.Run("restricted builtins hide the dangerous ones", func(t *testing.T) {
		report, err := e.Evaluate(ctx, "def solve(a):\n    return print(a)", "solve", []Test{
			{Input: []any{1}, Expected: nil},
		})
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		assert.False(t, report.Results[0].Pass)
		assert.NotEmpty(t, report.Results[0].Error)
	})

	t.Run("default function name is solution", func(t *testing.T) {
		report, err := e.Evaluate(ctx, "def solution(a):\n    return a", "", []Test{
			{Input: []any{7}, Expected: 7},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Passed)
	})
}
