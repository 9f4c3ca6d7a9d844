// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fsm enforces the session lifecycle. Transition functions are pure:
// they take the current state and return the next state plus the effects the
// caller must apply after the store commit (token mints, broadcasts). The
// state machine never touches the store or the broadcast bus itself, which
// keeps handlers -> fsm -> broadcast a one-way flow.
package fsm

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// ErrInvalidState is surfaced verbatim as the 409 error code.
var ErrInvalidState = errors.New("invalid_state")

// Effect names a side effect the caller applies after committing the new
// state. Effects are applied in slice order.
type Effect string

const (
	// EffectMintIST mints an interview-api session token.
	EffectMintIST Effect = "mint_ist"
	// EffectMintWST mints a websocket token.
	EffectMintWST Effect = "mint_wst"
	// EffectMintAIPT mints an ai-proxy token.
	EffectMintAIPT Effect = "mint_aipt"
	// EffectMintUPT mints an upload token.
	EffectMintUPT Effect = "mint_upt"
	// EffectBroadcastPaused emits SESSION_PAUSED to the session room.
	EffectBroadcastPaused Effect = "broadcast_paused"
	// EffectBroadcastEnded emits SESSION_ENDED to the session room.
	EffectBroadcastEnded Effect = "broadcast_ended"
	// EffectGenerateSummary runs the finalizer's summary generation.
	EffectGenerateSummary Effect = "generate_summary"
)

// Transition is the outcome of a lifecycle step: the state to commit and the
// effects to apply afterwards.
type Transition struct {
	From    datatypes.State
	To      datatypes.State
	Effects []Effect
}

func invalid(op string, from datatypes.State) error {
	return fmt.Errorf("%w: cannot %s from %q", ErrInvalidState, op, from)
}

// Precheck moves PendingPrecheck or Paused to Ready when the precheck did
// not fail. A failing precheck is not a transition: the session stays where
// it is and the caller surfaces canProceed=false.
func Precheck(from datatypes.State, overallStatus string) (Transition, error) {
	if overallStatus == "fail" {
		return Transition{From: from, To: from}, nil
	}
	switch from {
	case datatypes.StatePendingPrecheck, datatypes.StatePaused:
		return Transition{From: from, To: datatypes.StateReady}, nil
	default:
		return Transition{}, invalid("precheck", from)
	}
}

// Start moves Ready to Active and grants the in-interview token set.
func Start(from datatypes.State) (Transition, error) {
	if from != datatypes.StateReady {
		return Transition{}, invalid("start", from)
	}
	return Transition{
		From:    from,
		To:      datatypes.StateActive,
		Effects: []Effect{EffectMintWST, EffectMintAIPT, EffectMintUPT},
	}, nil
}

// Finalize moves Active to Completed. Summary generation runs as an effect
// so the store commit and the (potentially slow) analyzer calls stay apart.
func Finalize(from datatypes.State) (Transition, error) {
	if from != datatypes.StateActive {
		return Transition{}, invalid("finalize", from)
	}
	return Transition{
		From:    from,
		To:      datatypes.StateCompleted,
		Effects: []Effect{EffectGenerateSummary},
	}, nil
}

// AutoPause moves Active to Paused on a policy trigger. Only Active pauses;
// any other state is left alone without error because policy evaluation is
// best-effort and must not fail the ingest that triggered it.
func AutoPause(from datatypes.State) (Transition, bool) {
	if from != datatypes.StateActive {
		return Transition{From: from, To: from}, false
	}
	return Transition{
		From:    from,
		To:      datatypes.StatePaused,
		Effects: []Effect{EffectBroadcastPaused},
	}, true
}

// AutoSeal moves any non-terminal state to Ended. Terminal states are left
// alone: a session sealed by a racing batch stays sealed with its original
// end code.
func AutoSeal(from datatypes.State) (Transition, bool) {
	if from.Terminal() {
		return Transition{From: from, To: from}, false
	}
	return Transition{
		From:    from,
		To:      datatypes.StateEnded,
		Effects: []Effect{EffectGenerateSummary, EffectBroadcastEnded},
	}, true
}

// CanIssueACET reports whether an anti-cheat emit token may be issued. Any
// non-terminal state qualifies: the precheck baseline is emitted from
// PendingPrecheck, before the session is ever Ready.
func CanIssueACET(state datatypes.State) bool {
	return !state.Terminal()
}

// CanIssueAIPT reports whether an ai-proxy token may be issued.
func CanIssueAIPT(state datatypes.State) bool {
	return state == datatypes.StateActive
}

// CanRefreshWST reports whether a token refresh also returns a new WST.
func CanRefreshWST(state datatypes.State) bool {
	return state == datatypes.StateActive
}
