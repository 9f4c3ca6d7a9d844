// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/chain"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/fsm"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

// Tail returns the session's current chain tail.
func (e *Engine) Tail(ctx context.Context, sessionID string) (chain.Tail, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return chain.Tail{}, err
	}
	return e.store.Tail(ctx, sessionID)
}

// appendChain validates a batch against the stored tail and commits it. If a
// concurrent batch advanced the tail first, the stale batch is re-validated
// against the fresh tail so the caller gets the precise chain error instead
// of a generic conflict.
func (e *Engine) appendChain(ctx context.Context, sessionID string, events []datatypes.IncomingEvent) ([]datatypes.AntiCheatEvent, chain.Tail, error) {
	tail, err := e.store.Tail(ctx, sessionID)
	if err != nil {
		return nil, chain.Tail{}, err
	}
	enriched, newTail, err := chain.Extend(sessionID, tail, events, e.now().UTC())
	if err != nil {
		return nil, tail, err
	}

	err = e.store.InsertEvents(ctx, sessionID, tail, enriched, newTail)
	if errors.Is(err, store.ErrTailMoved) {
		fresh, terr := e.store.Tail(ctx, sessionID)
		if terr != nil {
			return nil, tail, terr
		}
		if _, _, verr := chain.Extend(sessionID, fresh, events, e.now().UTC()); verr != nil {
			return nil, fresh, verr
		}
		// The batch would chain onto the fresh tail, but its hashes were
		// computed against the old one. The client must refetch and rebuild.
		return nil, fresh, chain.ErrChainBroken
	}
	if err != nil {
		return nil, tail, err
	}
	return enriched, newTail, nil
}

// IngestEvents appends an anti-cheat batch to the session's hash chain and
// runs the policy evaluator over the accepted events. Policy escalation can
// pause or seal the session as a side effect; chain acceptance and the
// returned tail are unaffected by what the policy decides.
func (e *Engine) IngestEvents(ctx context.Context, sessionID string, events []datatypes.IncomingEvent) (chain.Tail, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return chain.Tail{}, err
	}
	if sess.State.Terminal() {
		return chain.Tail{}, fmt.Errorf("%w: ingest in %q", fsm.ErrInvalidState, sess.State)
	}

	enriched, newTail, err := e.appendChain(ctx, sessionID, events)
	if err != nil {
		return chain.Tail{}, err
	}

	outcome := e.policy.Evaluate(enriched, sess.PolicyCounters, sess.State, e.now().UTC())

	if len(outcome.Strikes) > 0 {
		if err := e.store.InsertStrikes(ctx, outcome.Strikes); err != nil {
			return chain.Tail{}, err
		}
		for _, strike := range outcome.Strikes {
			e.bus.Emit(broadcast.Room(sessionID), map[string]any{
				"type":       msgStrikeCreated,
				"strikeType": strike.Type,
				"severity":   strike.Severity,
				"ts":         strike.TS,
			})
		}
	}
	if len(outcome.Deltas) > 0 {
		_, err = e.store.UpdateSession(ctx, sessionID, func(s *datatypes.Session) error {
			if s.PolicyCounters == nil {
				s.PolicyCounters = make(map[string]int, len(outcome.Deltas))
			}
			for k, v := range outcome.Deltas {
				s.PolicyCounters[k] += v
			}
			return nil
		})
		if err != nil {
			return chain.Tail{}, err
		}
	}

	switch {
	case outcome.Decision.Seal:
		if err := e.seal(ctx, sessionID, outcome.Decision.EndCode); err != nil {
			e.logger.Error("auto-seal failed",
				"session_id", sessionID, "end_code", outcome.Decision.EndCode, "error", err.Error())
		}
	case outcome.Decision.Pause:
		e.autoPause(ctx, sessionID, outcome.Decision.PauseReason)
	}

	return newTail, nil
}

// autoPause applies the policy pause. Losing the CAS race (the session
// moved on or was sealed concurrently) is not an error.
func (e *Engine) autoPause(ctx context.Context, sessionID, reason string) {
	_, err := e.store.CompareAndSwapState(ctx, sessionID,
		[]datatypes.State{datatypes.StateActive}, datatypes.StatePaused,
		func(s *datatypes.Session) { s.PauseReason = reason })
	if errors.Is(err, store.ErrStateMismatch) {
		return
	}
	if err != nil {
		e.logger.Error("auto-pause failed",
			"session_id", sessionID, "reason", reason, "error", err.Error())
		return
	}
	e.logger.Warn("session auto-paused", "session_id", sessionID, "reason", reason)
	e.bus.Emit(broadcast.Room(sessionID), map[string]any{
		"type":   msgSessionPaused,
		"reason": reason,
	})
}
