// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInterview/services/interview/chain"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryDBConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSession(id string) *datatypes.Session {
	return &datatypes.Session{
		ID:     id,
		UserID: "user-1",
		State:  datatypes.StatePendingPrecheck,
		Config: datatypes.SessionConfig{
			RoleCategory:  "software-engineering",
			Modes:         []string{"behavioral"},
			QuestionCount: 3,
			DurationLimit: 30,
			Language:      "en",
			Difficulty:    "medium",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestSessionCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("insert and get round-trips", func(t *testing.T) {
		sess := testSession("sess-1")
		require.NoError(t, s.InsertSession(ctx, sess))

		got, err := s.GetSession(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, sess.UserID, got.UserID)
		assert.Equal(t, datatypes.StatePendingPrecheck, got.State)
		assert.Equal(t, 3, got.Config.QuestionCount)
	})

	t.Run("duplicate insert fails", func(t *testing.T) {
		err := s.InsertSession(ctx, testSession("sess-1"))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("missing session is not found", func(t *testing.T) {
		_, err := s.GetSession(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update applies mutation atomically", func(t *testing.T) {
		got, err := s.UpdateSession(ctx, "sess-1", func(sess *datatypes.Session) error {
			sess.AskedCount++
			sess.AwaitingAnswer = true
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, got.AskedCount)
		assert.True(t, got.AwaitingAnswer)
	})

	t.Run("update error aborts write", func(t *testing.T) {
		wantErr := assert.AnError
		_, err := s.UpdateSession(ctx, "sess-1", func(sess *datatypes.Session) error {
			sess.AskedCount = 99
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)

		got, err := s.GetSession(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.AskedCount)
	})
}

func TestCompareAndSwapState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertSession(ctx, testSession("sess-cas")))

	t.Run("swaps when state matches", func(t *testing.T) {
		got, err := s.CompareAndSwapState(ctx, "sess-cas",
			[]datatypes.State{datatypes.StatePendingPrecheck}, datatypes.StateReady, nil)
		require.NoError(t, err)
		assert.Equal(t, datatypes.StateReady, got.State)
	})

	t.Run("rejects when state differs", func(t *testing.T) {
		_, err := s.CompareAndSwapState(ctx, "sess-cas",
			[]datatypes.State{datatypes.StatePendingPrecheck}, datatypes.StateActive, nil)
		assert.ErrorIs(t, err, ErrStateMismatch)

		got, err := s.GetSession(ctx, "sess-cas")
		require.NoError(t, err)
		assert.Equal(t, datatypes.StateReady, got.State)
	})

	t.Run("set applies extra fields", func(t *testing.T) {
		got, err := s.CompareAndSwapState(ctx, "sess-cas",
			[]datatypes.State{datatypes.StateReady}, datatypes.StateEnded, func(sess *datatypes.Session) {
				sess.EndCode = "fs_exit_excess"
				sess.SealedAt = time.Now().UTC()
			})
		require.NoError(t, err)
		assert.Equal(t, "fs_exit_excess", got.EndCode)
		assert.False(t, got.SealedAt.IsZero())
	})
}

func TestQuestions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertSession(ctx, testSession("sess-q")))

	q1 := &datatypes.Question{ID: "q-1", SessionID: "sess-q", Number: 1, Type: datatypes.QuestionBehavioral, Text: "first", CreatedAt: time.Now().UTC()}
	q2 := &datatypes.Question{ID: "q-2", SessionID: "sess-q", Number: 2, Type: datatypes.QuestionCoding, Text: "second", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertQuestion(ctx, q1))
	require.NoError(t, s.InsertQuestion(ctx, q2))

	t.Run("number slot is unique", func(t *testing.T) {
		dup := &datatypes.Question{ID: "q-3", SessionID: "sess-q", Number: 1, Type: datatypes.QuestionBehavioral, Text: "dup"}
		assert.ErrorIs(t, s.InsertQuestion(ctx, dup), ErrAlreadyExists)
	})

	t.Run("lookup by id is session scoped", func(t *testing.T) {
		got, err := s.GetQuestion(ctx, "sess-q", "q-2")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Number)

		_, err = s.GetQuestion(ctx, "other-session", "q-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list is number ordered", func(t *testing.T) {
		list, err := s.ListQuestions(ctx, "sess-q")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, 1, list[0].Number)
		assert.Equal(t, 2, list[1].Number)
	})
}

func TestAnswers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC()
	first := &datatypes.Answer{ID: "a-1", SessionID: "sess-a", QuestionID: "q-1", AnswerType: datatypes.AnswerText, ResponseText: "draft", CreatedAt: base}
	second := &datatypes.Answer{ID: "a-2", SessionID: "sess-a", QuestionID: "q-1", AnswerType: datatypes.AnswerText, ResponseText: "final", CreatedAt: base.Add(time.Second)}
	require.NoError(t, s.InsertAnswer(ctx, first))
	require.NoError(t, s.InsertAnswer(ctx, second))

	t.Run("latest answer wins per question", func(t *testing.T) {
		latest, err := s.LatestAnswers(ctx, "sess-a")
		require.NoError(t, err)
		require.Contains(t, latest, "q-1")
		assert.Equal(t, "final", latest["q-1"].ResponseText)
	})

	t.Run("update attaches feedback", func(t *testing.T) {
		err := s.UpdateAnswer(ctx, "sess-a", "a-2", func(a *datatypes.Answer) error {
			a.ImmediateFeedback = &datatypes.Feedback{Score: 75, Feedback: "solid", ModelAnswer: "model"}
			return nil
		})
		require.NoError(t, err)

		latest, err := s.LatestAnswers(ctx, "sess-a")
		require.NoError(t, err)
		require.NotNil(t, latest["q-1"].ImmediateFeedback)
		assert.Equal(t, 75, latest["q-1"].ImmediateFeedback.Score)
	})
}

func extendAndInsert(t *testing.T, s *Store, sessionID string, events []datatypes.IncomingEvent) chain.Tail {
	t.Helper()
	ctx := context.Background()
	tail, err := s.Tail(ctx, sessionID)
	require.NoError(t, err)
	enriched, newTail, err := chain.Extend(sessionID, tail, events, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.InsertEvents(ctx, sessionID, tail, enriched, newTail))
	return newTail
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	const sid = "sess-ev"

	t.Run("zero tail before any event", func(t *testing.T) {
		tail, err := s.Tail(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, chain.Tail{}, tail)
	})

	tail := extendAndInsert(t, s, sid, []datatypes.IncomingEvent{
		{Seq: 1, Type: datatypes.EventTabSwitch, TS: "2026-01-01T00:00:00Z", PrevHash: ""},
	})

	t.Run("tail advances with the batch", func(t *testing.T) {
		got, err := s.Tail(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, tail, got)
		assert.EqualValues(t, 1, got.Seq)
		assert.NotEmpty(t, got.Hash)
	})

	t.Run("stale tail is rejected", func(t *testing.T) {
		stale, _, err := chain.Extend(sid, chain.Tail{}, []datatypes.IncomingEvent{
			{Seq: 1, Type: datatypes.EventTabSwitch, TS: "2026-01-01T00:00:01Z", PrevHash: ""},
		}, time.Now().UTC())
		require.NoError(t, err)
		err = s.InsertEvents(ctx, sid, chain.Tail{}, stale, chain.Tail{Seq: 1, Hash: "x"})
		assert.ErrorIs(t, err, ErrTailMoved)

		n, err := s.CountEvents(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("events list in seq order and verify", func(t *testing.T) {
		extendAndInsert(t, s, sid, []datatypes.IncomingEvent{
			{Seq: 5, Type: datatypes.EventFSExit, TS: "2026-01-01T00:00:02Z", PrevHash: tail.Hash, Details: map[string]any{"durationMs": 1200}},
		})

		events, err := s.ListEvents(ctx, sid)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.EqualValues(t, 1, events[0].Seq)
		assert.EqualValues(t, 5, events[1].Seq)
		assert.NoError(t, chain.VerifyLog(sid, events))
	})
}

func TestStrikesAndSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	const sid = "sess-sum"

	now := time.Now().UTC()
	strikes := []datatypes.Strike{
		{ID: "st-1", SessionID: sid, Type: datatypes.EventFaceMissing, Severity: datatypes.SeverityRed, TS: "2026-01-01T00:00:00Z", CreatedAt: now},
		{ID: "st-2", SessionID: sid, Type: datatypes.EventFaceMissing, Severity: datatypes.SeverityYellow, TS: "2026-01-01T00:00:01Z", CreatedAt: now.Add(time.Millisecond)},
		{ID: "st-3", SessionID: sid, Type: datatypes.EventFaceMissing, Severity: datatypes.SeverityRed, TS: "2026-01-01T00:00:02Z", CreatedAt: now.Add(2 * time.Millisecond)},
	}
	require.NoError(t, s.InsertStrikes(ctx, strikes))

	t.Run("red strike count filters severity and type", func(t *testing.T) {
		n, err := s.CountRedStrikes(ctx, sid, datatypes.EventFaceMissing)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.CountRedStrikes(ctx, sid, datatypes.EventFSExit)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("summary is write-once", func(t *testing.T) {
		sum := &datatypes.Summary{
			ID:        "sum-1",
			SessionID: sid,
			Summary: datatypes.SummaryBody{
				Rubric:    map[string]int{"communication": 3, "problem_solving": 3, "technical": 3},
				Strengths: []string{"clear structure"},
			},
			CreatedAt: now,
		}
		require.NoError(t, s.InsertSummary(ctx, sum))
		assert.ErrorIs(t, s.InsertSummary(ctx, sum), ErrAlreadyExists)

		got, err := s.GetSummary(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, "sum-1", got.ID)
	})
}
