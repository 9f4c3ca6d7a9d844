// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates the interview session lifecycle: precheck,
// question pacing, answer intake, anti-cheat ingestion with policy
// escalation, and finalization. Handlers stay thin; every state mutation
// goes through here and commits via the store's transactional helpers
// before any broadcast or token effect is applied.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianInterview/services/interview/ai"
	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/fsm"
	"github.com/AleutianAI/AleutianInterview/services/interview/policy"
	"github.com/AleutianAI/AleutianInterview/services/interview/sandbox"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

var (
	// ErrConsentRequired is returned when a session is created without
	// both consent flags.
	ErrConsentRequired = errors.New("consent_required")

	// ErrNoQuestionsRemaining is returned when the question quota is spent.
	ErrNoQuestionsRemaining = errors.New("no_questions_remaining")

	// ErrRateLimited is returned when question pacing is violated.
	ErrRateLimited = errors.New("rate_limited")

	// ErrAnswerRequired is returned when a next question is requested
	// while one is still outstanding.
	ErrAnswerRequired = errors.New("answer_required")
)

// Broadcast message types pushed to the session room.
const (
	msgQuestionCreated = "QUESTION_CREATED"
	msgFeedbackCreated = "FEEDBACK_CREATED"
	msgStrikeCreated   = "STRIKE_CREATED"
	msgSessionPaused   = "SESSION_PAUSED"
	msgSessionEnded    = "SESSION_ENDED"
)

// Engine wires the store, policy evaluator, AI provider, sandbox, and
// broadcast bus together. Safe for concurrent use.
type Engine struct {
	store     *store.Store
	policy    *policy.Engine
	provider  ai.Provider
	bus       *broadcast.Bus
	evaluator *sandbox.Evaluator

	minInterval time.Duration
	logger      *slog.Logger
	now         func() time.Time

	// background tracks async feedback goroutines so Close can drain them.
	background sync.WaitGroup
}

// New builds an engine. minInterval is the per-session question pacing
// floor.
func New(st *store.Store, pol *policy.Engine, provider ai.Provider, bus *broadcast.Bus, eval *sandbox.Evaluator, minInterval time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       st,
		policy:      pol,
		provider:    provider,
		bus:         bus,
		evaluator:   eval,
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
	}
}

// Close waits for background feedback work to finish. The store and bus are
// owned by the caller and closed separately.
func (e *Engine) Close() {
	e.background.Wait()
}

// mapStateErr converts the store's CAS mismatch into the FSM's 409 error.
func mapStateErr(err error) error {
	if errors.Is(err, store.ErrStateMismatch) {
		return fmt.Errorf("%w: %v", fsm.ErrInvalidState, err)
	}
	return err
}

// CreateSession validates consents, snapshots the config, and inserts the
// session in PendingPrecheck.
func (e *Engine) CreateSession(ctx context.Context, userID string, req datatypes.CreateSessionRequest) (*datatypes.Session, error) {
	if !req.ConsentRecording || !req.ConsentAntiCheat {
		return nil, ErrConsentRequired
	}
	cfg := req.ToConfig()
	if cfg.ConsentTimestamp == "" {
		cfg.ConsentTimestamp = e.now().UTC().Format(time.RFC3339)
	}
	sess := &datatypes.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     datatypes.StatePendingPrecheck,
		Config:    cfg,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.InsertSession(ctx, sess); err != nil {
		return nil, err
	}
	e.logger.Info("session created",
		"session_id", sess.ID, "user_id", userID,
		"questions", cfg.QuestionCount, "modes", cfg.Modes)
	return sess, nil
}

// GetSession loads a session.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	return e.store.GetSession(ctx, sessionID)
}

// Precheck ingests baseline anti-cheat events, records the device checks,
// and moves the session to Ready unless the checks failed. canProceed is
// false exactly when the overall status is fail; the session then stays in
// its current state for a retry.
func (e *Engine) Precheck(ctx context.Context, sessionID string, payload datatypes.PrecheckPayload) (*datatypes.PrecheckResponse, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	overall := precheckStatus(payload.Checks)

	tr, err := fsm.Precheck(sess.State, overall)
	if err != nil {
		return nil, err
	}

	if len(payload.Events) > 0 {
		if _, _, err := e.appendChain(ctx, sessionID, payload.Events); err != nil {
			return nil, err
		}
	}

	if tr.To != tr.From {
		_, err = e.store.CompareAndSwapState(ctx, sessionID,
			[]datatypes.State{tr.From}, tr.To,
			func(s *datatypes.Session) { s.Precheck = payload.Checks })
		if err != nil {
			return nil, mapStateErr(err)
		}
	} else {
		_, err = e.store.UpdateSession(ctx, sessionID, func(s *datatypes.Session) error {
			s.Precheck = payload.Checks
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return &datatypes.PrecheckResponse{
		PrecheckID:    uuid.New().String(),
		SessionID:     sessionID,
		OverallStatus: overall,
		CanProceed:    overall != "fail",
	}, nil
}

// precheckStatus derives the overall status from the client device checks:
// the network check's status is authoritative, everything else is
// informational.
func precheckStatus(checks map[string]any) string {
	net, ok := checks["network"].(map[string]any)
	if !ok {
		return "pass"
	}
	switch net["status"] {
	case "warning":
		return "warning"
	case "fail":
		return "fail"
	default:
		return "pass"
	}
}

// Start moves the session from Ready to Active and returns the token-grant
// effects for the handler to apply.
func (e *Engine) Start(ctx context.Context, sessionID string) (*datatypes.Session, []fsm.Effect, error) {
	tr, err := fsm.Start(datatypes.StateReady)
	if err != nil {
		return nil, nil, err
	}
	sess, err := e.store.CompareAndSwapState(ctx, sessionID,
		[]datatypes.State{datatypes.StateReady}, datatypes.StateActive, nil)
	if err != nil {
		return nil, nil, mapStateErr(err)
	}
	e.logger.Info("session started", "session_id", sessionID)
	return sess, tr.Effects, nil
}
