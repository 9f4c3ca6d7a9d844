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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/google/uuid"
)

var (
	// ErrSeqReplay is returned when a batch starts at or below the stored
	// tail sequence, or repeats a sequence within itself.
	ErrSeqReplay = errors.New("event_seq_replay_or_out_of_order")

	// ErrChainBroken is returned when an event's prevHash does not match
	// the hash of the event before it.
	ErrChainBroken = errors.New("event_chain_broken")

	// ErrEmptyBatch is returned when Extend is called with no events.
	ErrEmptyBatch = errors.New("empty event batch")
)

// Tail identifies the newest accepted event of a session's chain. The zero
// Tail (seq 0, empty hash) is the state before any event was accepted.
type Tail struct {
	Seq  int64
	Hash string
}

// EventHash computes the hash of one event given the running previous hash:
//
//	SHA-256(sessionId ∥ seq ∥ type ∥ ts ∥ canonicalJSON(details) ∥ prevHash)
//
// with seq in decimal and all parts as UTF-8 bytes.
func EventHash(sessionID string, seq int64, eventType, ts string, details map[string]any, prevHash string) (string, error) {
	canonical, err := CanonicalJSON(detailsOrNull(details))
	if err != nil {
		return "", err
	}
	digest := sha256.New()
	digest.Write([]byte(sessionID))
	digest.Write([]byte(strconv.FormatInt(seq, 10)))
	digest.Write([]byte(eventType))
	digest.Write([]byte(ts))
	digest.Write(canonical)
	digest.Write([]byte(prevHash))
	return hex.EncodeToString(digest.Sum(nil)), nil
}

func detailsOrNull(details map[string]any) any {
	if details == nil {
		return nil
	}
	return details
}

// Extend validates a batch of incoming events against the stored tail and
// returns the enriched records ready for transactional insertion, plus the
// new tail.
//
// Events are sorted by seq; sequence numbers must be strictly increasing
// and the first must exceed tail.Seq (gaps are allowed). Each prevHash must
// equal the hash of the event before it, starting from tail.Hash. The batch
// is all-or-nothing: any failure leaves the chain untouched.
func Extend(sessionID string, tail Tail, events []datatypes.IncomingEvent, now time.Time) ([]datatypes.AntiCheatEvent, Tail, error) {
	if len(events) == 0 {
		return nil, tail, ErrEmptyBatch
	}

	sorted := make([]datatypes.IncomingEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	if sorted[0].Seq <= tail.Seq {
		return nil, tail, ErrSeqReplay
	}

	enriched := make([]datatypes.AntiCheatEvent, 0, len(sorted))
	runningSeq := tail.Seq
	runningPrev := tail.Hash
	for _, ev := range sorted {
		if ev.Seq <= runningSeq {
			return nil, tail, ErrSeqReplay
		}
		if ev.PrevHash != runningPrev {
			return nil, tail, ErrChainBroken
		}
		hash, err := EventHash(sessionID, ev.Seq, ev.Type, ev.TS, ev.Details, runningPrev)
		if err != nil {
			return nil, tail, err
		}
		enriched = append(enriched, datatypes.AntiCheatEvent{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			Seq:       ev.Seq,
			Type:      ev.Type,
			Details:   ev.Details,
			TS:        ev.TS,
			PrevHash:  ev.PrevHash,
			Hash:      hash,
			CreatedAt: now,
		})
		runningSeq = ev.Seq
		runningPrev = hash
	}

	return enriched, Tail{Seq: runningSeq, Hash: runningPrev}, nil
}

// VerifyLog re-checks an already stored, seq-ordered event log against the
// chain recipe. Used by audits and tests; ingestion always goes through
// Extend.
func VerifyLog(sessionID string, events []datatypes.AntiCheatEvent) error {
	prev := ""
	var lastSeq int64
	for _, ev := range events {
		if ev.Seq <= lastSeq {
			return ErrSeqReplay
		}
		if ev.PrevHash != prev {
			return ErrChainBroken
		}
		hash, err := EventHash(sessionID, ev.Seq, ev.Type, ev.TS, ev.Details, prev)
		if err != nil {
			return err
		}
		if hash != ev.Hash {
			return ErrChainBroken
		}
		prev = ev.Hash
		lastSeq = ev.Seq
	}
	return nil
}
