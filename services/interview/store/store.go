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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianInterview/services/interview/chain"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when an insert would overwrite an
	// existing record.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStateMismatch is returned by CompareAndSwapState when the session
	// is not in any of the expected states.
	ErrStateMismatch = errors.New("session state mismatch")
)

// Key layout. Every record of a session shares the session id in its key, so
// a session's data is one prefix scan away. Event keys zero-pad the sequence
// number to 12 digits so lexicographic key order equals sequence order and
// the chain tail is a single reverse seek.
const (
	prefixSession = "s:"
	prefixQuest   = "q:"  // q:<sessionID>:<number %06d>
	prefixQIndex  = "qx:" // qx:<questionID> -> primary question key
	prefixAnswer  = "a:"  // a:<sessionID>:<answerID>
	prefixEvent   = "e:"  // e:<sessionID>:<seq %012d>
	prefixTail    = "et:" // et:<sessionID> -> {seq, hash}
	prefixStrike  = "k:"  // k:<sessionID>:<createdAt unixnano %020d>:<strikeID>
	prefixSummary = "m:"  // m:<sessionID>
)

func sessionKey(id string) []byte { return []byte(prefixSession + id) }
func questionKey(sessionID string, number int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", prefixQuest, sessionID, number))
}
func questionIndexKey(questionID string) []byte { return []byte(prefixQIndex + questionID) }
func answerKey(sessionID, answerID string) []byte {
	return []byte(prefixAnswer + sessionID + ":" + answerID)
}
func eventKey(sessionID string, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%012d", prefixEvent, sessionID, seq))
}
func tailKey(sessionID string) []byte { return []byte(prefixTail + sessionID) }
func strikeKey(sessionID string, createdAt time.Time, strikeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixStrike, sessionID, createdAt.UnixNano(), strikeID))
}
func summaryKey(sessionID string) []byte { return []byte(prefixSummary + sessionID) }

// Store is the persistence layer of the session engine. All methods are safe
// for concurrent use; multi-record operations are transactional.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens (or creates) the database described by cfg.
func Open(cfg DBConfig) (*Store, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, logger: cfg.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 {
			ratio = 0.5
		}
		go gcLoop(db, cfg.GCInterval, ratio, s.logger, s.gcStop, s.gcDone)
	}
	return s, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	return s.db.Close()
}

// --- generic helpers ---

func putJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, raw)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(raw []byte) error {
		return json.Unmarshal(raw, v)
	})
}

func insertJSON(txn *badger.Txn, key []byte, v any) error {
	_, err := txn.Get(key)
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return putJSON(txn, key, v)
}

// --- sessions ---

// InsertSession stores a new session. ErrAlreadyExists if the id is taken.
func (s *Store) InsertSession(ctx context.Context, sess *datatypes.Session) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertJSON(txn, sessionKey(sess.ID), sess)
	})
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*datatypes.Session, error) {
	var sess datatypes.Session
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, sessionKey(id), &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSession applies mutate to the current session record inside one
// transaction and persists the result. mutate returning an error aborts the
// write and the error is returned unchanged, so callers can enforce
// preconditions (state checks, counters, quotas) atomically.
func (s *Store) UpdateSession(ctx context.Context, id string, mutate func(*datatypes.Session) error) (*datatypes.Session, error) {
	var sess datatypes.Session
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, sessionKey(id), &sess); err != nil {
			return err
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		return putJSON(txn, sessionKey(id), &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// CompareAndSwapState transitions the session to next only if its current
// state is one of from. set, when non-nil, applies additional field changes
// in the same transaction. ErrStateMismatch carries the losing state via
// fmt wrapping.
func (s *Store) CompareAndSwapState(ctx context.Context, id string, from []datatypes.State, next datatypes.State, set func(*datatypes.Session)) (*datatypes.Session, error) {
	return s.UpdateSession(ctx, id, func(sess *datatypes.Session) error {
		ok := false
		for _, f := range from {
			if sess.State == f {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: in %q", ErrStateMismatch, sess.State)
		}
		sess.State = next
		if set != nil {
			set(sess)
		}
		return nil
	})
}

// --- questions ---

// InsertQuestion stores a question and its id index. Fails if the
// (session, number) slot or the id is already taken.
func (s *Store) InsertQuestion(ctx context.Context, q *datatypes.Question) error {
	primary := questionKey(q.SessionID, q.Number)
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := insertJSON(txn, primary, q); err != nil {
			return err
		}
		if _, err := txn.Get(questionIndexKey(q.ID)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(questionIndexKey(q.ID), primary)
	})
}

// InsertQuestionAndUpdate validates and mutates the session, then inserts
// the question minted for it, all in one transaction. mutate runs before the
// insert so it can assign q.Number from the updated askedCount; an error
// from mutate aborts everything. Two racing callers serialize on the session
// record, so at most one commits.
func (s *Store) InsertQuestionAndUpdate(ctx context.Context, q *datatypes.Question, mutate func(*datatypes.Session) error) (*datatypes.Session, error) {
	var sess datatypes.Session
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, sessionKey(q.SessionID), &sess); err != nil {
			return err
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		primary := questionKey(q.SessionID, q.Number)
		if err := insertJSON(txn, primary, q); err != nil {
			return err
		}
		if err := txn.Set(questionIndexKey(q.ID), primary); err != nil {
			return err
		}
		return putJSON(txn, sessionKey(q.SessionID), &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// InsertAnswerAndUpdate inserts the answer and mutates its session in one
// transaction, so the awaitingAnswer flag and the answer row commit
// together.
func (s *Store) InsertAnswerAndUpdate(ctx context.Context, a *datatypes.Answer, mutate func(*datatypes.Session) error) (*datatypes.Session, error) {
	var sess datatypes.Session
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, sessionKey(a.SessionID), &sess); err != nil {
			return err
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		if err := insertJSON(txn, answerKey(a.SessionID, a.ID), a); err != nil {
			return err
		}
		return putJSON(txn, sessionKey(a.SessionID), &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetQuestion resolves a question by id, scoped to the session: a question
// id belonging to another session reads as not found.
func (s *Store) GetQuestion(ctx context.Context, sessionID, questionID string) (*datatypes.Question, error) {
	var q datatypes.Question
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(questionIndexKey(questionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var primary []byte
		if err := item.Value(func(raw []byte) error {
			primary = append([]byte(nil), raw...)
			return nil
		}); err != nil {
			return err
		}
		if !strings.HasPrefix(string(primary), prefixQuest+sessionID+":") {
			return ErrNotFound
		}
		return getJSON(txn, primary, &q)
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQuestions returns the session's questions in ascending number order.
func (s *Store) ListQuestions(ctx context.Context, sessionID string) ([]datatypes.Question, error) {
	var out []datatypes.Question
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixQuest + sessionID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var q datatypes.Question
			if err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &q)
			}); err != nil {
				return err
			}
			out = append(out, q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- answers ---

// InsertAnswer stores a new answer.
func (s *Store) InsertAnswer(ctx context.Context, a *datatypes.Answer) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertJSON(txn, answerKey(a.SessionID, a.ID), a)
	})
}

// UpdateAnswer applies mutate to an existing answer, transactionally. Used
// by the async feedback path to attach immediateFeedback after grading.
func (s *Store) UpdateAnswer(ctx context.Context, sessionID, answerID string, mutate func(*datatypes.Answer) error) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := answerKey(sessionID, answerID)
		var a datatypes.Answer
		if err := getJSON(txn, key, &a); err != nil {
			return err
		}
		if err := mutate(&a); err != nil {
			return err
		}
		return putJSON(txn, key, &a)
	})
}

// ListAnswers returns every answer of the session, unordered. Callers pick
// the latest per question by CreatedAt.
func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]datatypes.Answer, error) {
	var out []datatypes.Answer
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixAnswer + sessionID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var a datatypes.Answer
			if err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &a)
			}); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LatestAnswers maps each questionID to its newest answer by CreatedAt.
func (s *Store) LatestAnswers(ctx context.Context, sessionID string) (map[string]datatypes.Answer, error) {
	all, err := s.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]datatypes.Answer, len(all))
	for _, a := range all {
		if prev, ok := latest[a.QuestionID]; !ok || a.CreatedAt.After(prev.CreatedAt) {
			latest[a.QuestionID] = a
		}
	}
	return latest, nil
}

// --- anti-cheat events ---

// storedTail is the persisted chain-tail pointer.
type storedTail struct {
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// Tail returns the chain tail of the session: the seq and hash of the newest
// accepted event, or the zero tail when no event exists yet.
func (s *Store) Tail(ctx context.Context, sessionID string) (chain.Tail, error) {
	var t storedTail
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, tailKey(sessionID), &t)
	})
	if errors.Is(err, ErrNotFound) {
		return chain.Tail{}, nil
	}
	if err != nil {
		return chain.Tail{}, err
	}
	return chain.Tail{Seq: t.Seq, Hash: t.Hash}, nil
}

// ErrTailMoved is returned when a concurrent batch advanced the chain between
// the caller's tail read and the insert. The caller re-reads the tail and
// re-validates; the stale batch then fails chain verification on its own.
var ErrTailMoved = errors.New("chain tail moved")

// InsertEvents appends a validated batch to the session's event log. The
// batch must have been built by chain.Extend against expect; if another
// writer advanced the tail first, ErrTailMoved is returned and nothing is
// written. The tail pointer read inside the transaction also gives Badger a
// conflict-detection key, so two racing batches can never both commit.
func (s *Store) InsertEvents(ctx context.Context, sessionID string, expect chain.Tail, events []datatypes.AntiCheatEvent, newTail chain.Tail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// No retry loop here: a conflict means the tail moved, which the caller
	// must observe rather than have papered over.
	err := s.db.Update(func(txn *badger.Txn) error {
		var t storedTail
		err := getJSON(txn, tailKey(sessionID), &t)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if t.Seq != expect.Seq || t.Hash != expect.Hash {
			return ErrTailMoved
		}
		for i := range events {
			if err := insertJSON(txn, eventKey(sessionID, events[i].Seq), &events[i]); err != nil {
				return err
			}
		}
		return putJSON(txn, tailKey(sessionID), storedTail{Seq: newTail.Seq, Hash: newTail.Hash})
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrTailMoved
	}
	return err
}

// ListEvents returns the session's events in ascending seq order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]datatypes.AntiCheatEvent, error) {
	var out []datatypes.AntiCheatEvent
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixEvent + sessionID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ev datatypes.AntiCheatEvent
			if err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &ev)
			}); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountEvents returns the number of stored events for the session.
func (s *Store) CountEvents(ctx context.Context, sessionID string) (int, error) {
	n := 0
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixEvent + sessionID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// --- strikes ---

// InsertStrikes stores a batch of strikes atomically.
func (s *Store) InsertStrikes(ctx context.Context, strikes []datatypes.Strike) error {
	if len(strikes) == 0 {
		return nil
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for i := range strikes {
			st := &strikes[i]
			if err := putJSON(txn, strikeKey(st.SessionID, st.CreatedAt, st.ID), st); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListStrikes returns the session's strikes in creation order.
func (s *Store) ListStrikes(ctx context.Context, sessionID string) ([]datatypes.Strike, error) {
	var out []datatypes.Strike
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixStrike + sessionID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var st datatypes.Strike
			if err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &st)
			}); err != nil {
				return err
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountRedStrikes returns how many red strikes of the given type exist.
func (s *Store) CountRedStrikes(ctx context.Context, sessionID, eventType string) (int, error) {
	strikes, err := s.ListStrikes(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range strikes {
		if st.Type == eventType && st.Severity == datatypes.SeverityRed {
			n++
		}
	}
	return n, nil
}

// --- summaries ---

// InsertSummary stores the session's summary. The single-key insert makes
// the at-most-one-summary guarantee structural: a second finalize attempt
// gets ErrAlreadyExists no matter how the race interleaves.
func (s *Store) InsertSummary(ctx context.Context, sum *datatypes.Summary) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertJSON(txn, summaryKey(sum.SessionID), sum)
	})
}

// GetSummary loads the session's summary.
func (s *Store) GetSummary(ctx context.Context, sessionID string) (*datatypes.Summary, error) {
	var sum datatypes.Summary
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, summaryKey(sessionID), &sum)
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
