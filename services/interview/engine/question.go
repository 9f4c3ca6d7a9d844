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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/fsm"
	"github.com/AleutianAI/AleutianInterview/services/interview/sandbox"
)

// NextQuestion mints the session's next question. Preconditions (Active, no
// outstanding answer, quota, pacing) are checked twice: once on a cheap
// snapshot before the generator runs, and again inside the commit
// transaction, so two racing callers cannot both advance askedCount.
func (e *Engine) NextQuestion(ctx context.Context, sessionID string) (*datatypes.Question, int, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	now := e.now().UTC()
	if err := e.questionGate(sess, now); err != nil {
		return nil, 0, err
	}

	generated, err := e.provider.GenerateQuestion(ctx, sess.Config, sess.Remaining(), sess.Config.Difficulty)
	if err != nil {
		// The resilient provider falls back internally; an error here
		// means the context died.
		return nil, 0, err
	}

	q := &datatypes.Question{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      generated.Type,
		Text:      generated.Text,
		Metadata:  generated.Metadata,
		CreatedAt: now,
	}
	committed, err := e.store.InsertQuestionAndUpdate(ctx, q, func(s *datatypes.Session) error {
		if err := e.questionGate(s, now); err != nil {
			return err
		}
		s.AskedCount++
		s.AwaitingAnswer = true
		s.LastAskedAt = now
		q.Number = s.AskedCount
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	e.bus.Emit(broadcast.Room(sessionID), map[string]any{
		"type":       msgQuestionCreated,
		"questionId": q.ID,
		"qtype":      q.Type,
		"number":     q.Number,
	})
	e.logger.Info("question minted",
		"session_id", sessionID, "number", q.Number, "qtype", q.Type)
	return q, committed.Config.QuestionCount, nil
}

// questionGate enforces the next-question preconditions against a session
// snapshot.
func (e *Engine) questionGate(sess *datatypes.Session, now time.Time) error {
	if sess.State != datatypes.StateActive {
		return fmt.Errorf("%w: next question in %q", fsm.ErrInvalidState, sess.State)
	}
	if sess.AwaitingAnswer {
		return ErrAnswerRequired
	}
	if sess.AskedCount >= sess.Config.QuestionCount {
		return ErrNoQuestionsRemaining
	}
	if !sess.LastAskedAt.IsZero() && now.Sub(sess.LastAskedAt) < e.minInterval {
		return ErrRateLimited
	}
	return nil
}

// SubmitAnswer persists the answer and clears the outstanding-question flag
// in one transaction. Analysis runs in the background: the caller always
// gets a submitted status immediately and the feedback arrives over the
// session stream as FEEDBACK_CREATED.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID string, req datatypes.SubmitAnswerRequest) (*datatypes.Answer, error) {
	answer := &datatypes.Answer{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		QuestionID:   req.QuestionID,
		AnswerType:   req.AnswerType,
		ResponseText: req.ResponseText,
		AudioRef:     req.AudioRef,
		CodeRef:      req.CodeRef,
		MCQSelected:  req.MCQSelected,
		FIBEntries:   req.FIBEntries,
		Transcripts:  req.Transcripts,
		TimeSpent:    req.TimeSpent,
		CodeTests:    req.CodeTests,
		CreatedAt:    e.now().UTC(),
	}
	if err := answer.ValidateVariant(); err != nil {
		return nil, err
	}

	question, err := e.store.GetQuestion(ctx, sessionID, req.QuestionID)
	if err != nil {
		return nil, err
	}

	_, err = e.store.InsertAnswerAndUpdate(ctx, answer, func(s *datatypes.Session) error {
		if s.State != datatypes.StateActive {
			return fmt.Errorf("%w: answer in %q", fsm.ErrInvalidState, s.State)
		}
		s.AwaitingAnswer = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.background.Add(1)
	go e.analyzeAnswer(*question, *answer)

	return answer, nil
}

// analyzeAnswer grades one answer off the request path. Failures are logged
// and swallowed: feedback is best-effort and must never surface an error to
// the candidate.
func (e *Engine) analyzeAnswer(question datatypes.Question, answer datatypes.Answer) {
	defer e.background.Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	feedback, err := e.provider.AnalyzeQA(ctx, question, &answer)
	if err != nil {
		e.logger.Warn("answer analysis failed",
			"session_id", answer.SessionID, "answer_id", answer.ID, "error", err.Error())
		return
	}
	err = e.store.UpdateAnswer(ctx, answer.SessionID, answer.ID, func(a *datatypes.Answer) error {
		a.ImmediateFeedback = &feedback
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to persist feedback",
			"session_id", answer.SessionID, "answer_id", answer.ID, "error", err.Error())
		return
	}
	e.bus.Emit(broadcast.Room(answer.SessionID), map[string]any{
		"type":       msgFeedbackCreated,
		"questionId": answer.QuestionID,
		"feedback":   feedback,
	})
}

// CodeEval runs submitted code against its tests in the sandbox. The
// session must exist but no state is required: candidates may re-run code
// while paused.
func (e *Engine) CodeEval(ctx context.Context, sessionID string, req datatypes.CodeEvalRequest) (sandbox.Report, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return sandbox.Report{}, err
	}
	tests := make([]sandbox.Test, 0, len(req.Tests))
	for _, t := range req.Tests {
		tests = append(tests, sandbox.Test{Input: t["input"], Expected: t["expected"]})
	}
	return e.evaluator.Evaluate(ctx, req.Code, req.FunctionName, tests)
}
