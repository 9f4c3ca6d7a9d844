// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, `null`},
		{"bools", []any{true, false}, `[true,false]`},
		{"string", "fullscreen", `"fullscreen"`},
		{"no html escaping", "<a> & </a>", `"<a> & </a>"`},
		{"integer float", float64(3), `3`},
		{"fraction", 2.5, `2.5`},
		{"sorted keys", map[string]any{"zeta": 1, "alpha": 2, "mid": 3},
			`{"alpha":2,"mid":3,"zeta":1}`},
		{"nested sort", map[string]any{
			"b": map[string]any{"y": 1, "x": 2},
			"a": []any{map[string]any{"k2": nil, "k1": "v"}},
		}, `{"a":[{"k1":"v","k2":null}],"b":{"x":2,"y":1}}`},
		{"json number", json.Number("10.25"), `10.25`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	// Map iteration order must never leak into the output.
	in := map[string]any{
		"duration": 2.0, "reason": "fs_exit", "screen": map[string]any{"w": 1920, "h": 1080},
	}
	first, err := CanonicalJSON(in)
	require.NoError(t, err)
	for range 50 {
		again, err := CanonicalJSON(in)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestCanonicalJSONRejectsNonFinite(t *testing.T) {
	_, err := CanonicalJSON(math.NaN())
	require.Error(t, err)
	_, err = CanonicalJSON(math.Inf(1))
	require.Error(t, err)
}

func TestCanonicalJSONStructRoundTrip(t *testing.T) {
	type payload struct {
		B string `json:"b"`
		A int    `json:"a"`
	}
	got, err := CanonicalJSON(payload{B: "x", A: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":"x"}`, string(got))
}
