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
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianInterview/services/interview/ai"
	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/fsm"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

// maxAnalysisConcurrency caps the per-question analysis fan-out during
// summary generation.
const maxAnalysisConcurrency = 4

// Finalize completes an Active session: the state commits first (which
// atomically excludes double finalization and racing auto-seals), then the
// summary is generated and stored.
func (e *Engine) Finalize(ctx context.Context, sessionID string) (*datatypes.Summary, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := fsm.Finalize(sess.State); err != nil {
		return nil, err
	}

	sealedAt := e.now().UTC()
	sess, err = e.store.CompareAndSwapState(ctx, sessionID,
		[]datatypes.State{datatypes.StateActive}, datatypes.StateCompleted,
		func(s *datatypes.Session) { s.SealedAt = sealedAt })
	if err != nil {
		return nil, mapStateErr(err)
	}

	summary, err := e.buildSummary(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := e.store.InsertSummary(ctx, summary); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return e.store.GetSummary(ctx, sessionID)
		}
		return nil, err
	}
	e.logger.Info("session finalized", "session_id", sessionID, "summary_id", summary.ID)
	return summary, nil
}

// seal force-ends a session on a policy decision. Sealing an already
// terminal session is a no-op so racing batches cannot overwrite the first
// end code.
func (e *Engine) seal(ctx context.Context, sessionID, endCode string) error {
	sealedAt := e.now().UTC()
	sess, err := e.store.CompareAndSwapState(ctx, sessionID,
		[]datatypes.State{
			datatypes.StatePendingPrecheck,
			datatypes.StateReady,
			datatypes.StateActive,
			datatypes.StatePaused,
		},
		datatypes.StateEnded,
		func(s *datatypes.Session) {
			s.EndCode = endCode
			s.SealedAt = sealedAt
		})
	if errors.Is(err, store.ErrStateMismatch) {
		return nil
	}
	if err != nil {
		return err
	}
	e.logger.Warn("session auto-sealed", "session_id", sessionID, "end_code", endCode)

	summary, err := e.buildSummary(ctx, sess)
	if err != nil {
		return err
	}
	if err := e.store.InsertSummary(ctx, summary); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return err
	}

	e.bus.Emit(broadcast.Room(sessionID), map[string]any{
		"type":   msgSessionEnded,
		"reason": endCode,
	})
	return nil
}

// buildSummary analyzes every question against its latest answer and asks
// the summarizer for the rubric. Per-question analysis fans out under an
// errgroup; individual failures degrade to the deterministic fallback
// rather than failing the summary.
func (e *Engine) buildSummary(ctx context.Context, sess *datatypes.Session) (*datatypes.Summary, error) {
	questions, err := e.store.ListQuestions(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	latest, err := e.store.LatestAnswers(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	perQuestion := make([]datatypes.PerQuestionResult, len(questions))
	qa := make([]ai.QA, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxAnalysisConcurrency)
	for i, q := range questions {
		g.Go(func() error {
			var answer *datatypes.Answer
			if a, ok := latest[q.ID]; ok {
				answer = &a
			}
			qa[i] = ai.QA{Question: q, Answer: answer}

			feedback, err := e.provider.AnalyzeQA(gctx, q, answer)
			if err != nil {
				feedback = ai.FallbackAnalysis(answer)
			}
			perQuestion[i] = datatypes.PerQuestionResult{
				QuestionID:  q.ID,
				Number:      q.Number,
				Score:       feedback.Score,
				Feedback:    feedback.Feedback,
				ModelAnswer: feedback.ModelAnswer,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	body, err := e.provider.Summarize(ctx, sess.Config, qa)
	if err != nil {
		body = ai.FallbackSummary()
	}

	return &datatypes.Summary{
		ID:          uuid.New().String(),
		SessionID:   sess.ID,
		Summary:     body,
		PerQuestion: perQuestion,
		CreatedAt:   e.now().UTC(),
	}, nil
}

// Summary loads the session's summary.
func (e *Engine) Summary(ctx context.Context, sessionID string) (*datatypes.Summary, error) {
	return e.store.GetSummary(ctx, sessionID)
}

// Review merges questions, the full answer history, the latest answer per
// question, and the per-question analysis from the summary when one exists.
func (e *Engine) Review(ctx context.Context, sessionID string) (*datatypes.ReviewResponse, error) {
	questions, err := e.store.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := e.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[string][]datatypes.Answer)
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
	}
	for _, list := range byQuestion {
		sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	}

	perQuestion := make(map[string]datatypes.PerQuestionResult)
	if summary, err := e.store.GetSummary(ctx, sessionID); err == nil {
		for _, p := range summary.PerQuestion {
			perQuestion[p.QuestionID] = p
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	items := make([]datatypes.ReviewItem, 0, len(questions))
	for _, q := range questions {
		history := byQuestion[q.ID]
		item := datatypes.ReviewItem{
			QuestionID: q.ID,
			Number:     q.Number,
			Type:       q.Type,
			Text:       q.Text,
			Metadata:   q.Metadata,
			Answers:    make([]datatypes.ReviewAnswer, 0, len(history)),
		}
		for _, a := range history {
			item.Answers = append(item.Answers, datatypes.ReviewAnswer{
				ID:           a.ID,
				AnswerType:   a.AnswerType,
				ResponseText: a.ResponseText,
				CreatedAt:    a.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			})
		}
		if len(history) > 0 {
			last := history[len(history)-1]
			item.YourAnswer = last.ResponseText
			item.AnswerType = last.AnswerType
			item.MCQSelected = last.MCQSelected
			item.FIBEntries = last.FIBEntries
			item.CodeTests = last.CodeTests
		}
		if p, ok := perQuestion[q.ID]; ok {
			score := p.Score
			item.Score = &score
			item.Feedback = p.Feedback
			item.ModelAnswer = p.ModelAnswer
		}
		items = append(items, item)
	}
	return &datatypes.ReviewResponse{Items: items}, nil
}
