// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

func TestPrecheck(t *testing.T) {
	t.Run("pending moves to ready on pass", func(t *testing.T) {
		tr, err := Precheck(datatypes.StatePendingPrecheck, "pass")
		require.NoError(t, err)
		assert.Equal(t, datatypes.StateReady, tr.To)
		assert.Empty(t, tr.Effects)
	})

	t.Run("paused moves to ready on warning", func(t *testing.T) {
		tr, err := Precheck(datatypes.StatePaused, "warning")
		require.NoError(t, err)
		assert.Equal(t, datatypes.StateReady, tr.To)
	})

	t.Run("fail keeps current state without error", func(t *testing.T) {
		tr, err := Precheck(datatypes.StatePendingPrecheck, "fail")
		require.NoError(t, err)
		assert.Equal(t, datatypes.StatePendingPrecheck, tr.To)
	})

	t.Run("active rejects precheck", func(t *testing.T) {
		_, err := Precheck(datatypes.StateActive, "pass")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestStart(t *testing.T) {
	t.Run("ready moves to active with token grants", func(t *testing.T) {
		tr, err := Start(datatypes.StateReady)
		require.NoError(t, err)
		assert.Equal(t, datatypes.StateActive, tr.To)
		assert.Equal(t, []Effect{EffectMintWST, EffectMintAIPT, EffectMintUPT}, tr.Effects)
	})

	for _, from := range []datatypes.State{
		datatypes.StatePendingPrecheck,
		datatypes.StateActive,
		datatypes.StatePaused,
		datatypes.StateCompleted,
		datatypes.StateEnded,
	} {
		t.Run("rejects from "+string(from), func(t *testing.T) {
			_, err := Start(from)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestFinalize(t *testing.T) {
	t.Run("active moves to completed", func(t *testing.T) {
		tr, err := Finalize(datatypes.StateActive)
		require.NoError(t, err)
		assert.Equal(t, datatypes.StateCompleted, tr.To)
		assert.Contains(t, tr.Effects, EffectGenerateSummary)
	})

	t.Run("ready rejects finalize", func(t *testing.T) {
		_, err := Finalize(datatypes.StateReady)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestPolicyTransitions(t *testing.T) {
	t.Run("auto-pause only from active", func(t *testing.T) {
		tr, ok := AutoPause(datatypes.StateActive)
		require.True(t, ok)
		assert.Equal(t, datatypes.StatePaused, tr.To)
		assert.Equal(t, []Effect{EffectBroadcastPaused}, tr.Effects)

		_, ok = AutoPause(datatypes.StateReady)
		assert.False(t, ok)
	})

	t.Run("auto-seal from any non-terminal state", func(t *testing.T) {
		for _, from := range []datatypes.State{
			datatypes.StatePendingPrecheck,
			datatypes.StateReady,
			datatypes.StateActive,
			datatypes.StatePaused,
		} {
			tr, ok := AutoSeal(from)
			require.True(t, ok, "from %s", from)
			assert.Equal(t, datatypes.StateEnded, tr.To)
			assert.Equal(t, []Effect{EffectGenerateSummary, EffectBroadcastEnded}, tr.Effects)
		}
	})

	t.Run("auto-seal leaves terminal states alone", func(t *testing.T) {
		for _, from := range []datatypes.State{datatypes.StateCompleted, datatypes.StateEnded} {
			tr, ok := AutoSeal(from)
			assert.False(t, ok)
			assert.Equal(t, from, tr.To)
		}
	})
}

func TestTokenGates(t *testing.T) {
	assert.True(t, CanIssueACET(datatypes.StatePendingPrecheck))
	assert.True(t, CanIssueACET(datatypes.StateReady))
	assert.True(t, CanIssueACET(datatypes.StateActive))
	assert.True(t, CanIssueACET(datatypes.StatePaused))
	assert.False(t, CanIssueACET(datatypes.StateCompleted))
	assert.False(t, CanIssueACET(datatypes.StateEnded))

	assert.True(t, CanIssueAIPT(datatypes.StateActive))
	assert.False(t, CanIssueAIPT(datatypes.StateReady))

	assert.True(t, CanRefreshWST(datatypes.StateActive))
	assert.False(t, CanRefreshWST(datatypes.StatePaused))
}
