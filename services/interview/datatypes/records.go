// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"time"
)

// Question types.
const (
	QuestionBehavioral = "behavioral"
	QuestionCoding     = "coding"
	QuestionMCQ        = "mcq"
	QuestionFIB        = "fib"
	QuestionScenario   = "scenario"
)

// Question is a single minted interview question. At most one question
// exists per (SessionID, Number); numbers are 1-based and strictly
// increasing with the session's askedCount.
type Question struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Number    int            `json:"number"`
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Answer types (the variant discriminator).
const (
	AnswerVoice = "voice"
	AnswerText  = "text"
	AnswerCode  = "code"
	AnswerMCQ   = "mcq"
	AnswerFIB   = "fib"
)

// Feedback is the analyzer's verdict for one answer.
type Feedback struct {
	Score       int    `json:"score"`
	Feedback    string `json:"feedback"`
	ModelAnswer string `json:"modelAnswer"`
}

// Answer is a tagged variant over the five answer types: AnswerType is the
// discriminator and only the matching payload fields may be set. Multiple
// answers per question are allowed; the latest by CreatedAt is authoritative.
type Answer struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	QuestionID string `json:"questionId"`
	AnswerType string `json:"answerType"`

	ResponseText string           `json:"responseText,omitempty"`
	AudioRef     string           `json:"audioRef,omitempty"`
	CodeRef      string           `json:"codeRef,omitempty"`
	MCQSelected  []string         `json:"mcqSelected,omitempty"`
	FIBEntries   []map[string]any `json:"fibEntries,omitempty"`
	Transcripts  []map[string]any `json:"transcripts,omitempty"`
	TimeSpent    int              `json:"timeSpent,omitempty"`
	CodeTests    []map[string]any `json:"codeTests,omitempty"`

	ImmediateFeedback *Feedback `json:"immediateFeedback,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ErrCrossVariant is returned when an answer sets payload fields belonging
// to a different discriminator value.
var ErrCrossVariant = errors.New("answer fields do not match answerType")

// ValidateVariant checks the discriminator against the populated payload
// fields. Voice and text both carry responseText; everything else is
// exclusive to its own variant.
func (a *Answer) ValidateVariant() error {
	switch a.AnswerType {
	case AnswerVoice, AnswerText:
		if a.CodeRef != "" || len(a.MCQSelected) > 0 || len(a.FIBEntries) > 0 {
			return ErrCrossVariant
		}
	case AnswerCode:
		if len(a.MCQSelected) > 0 || len(a.FIBEntries) > 0 || a.AudioRef != "" {
			return ErrCrossVariant
		}
	case AnswerMCQ:
		if a.CodeRef != "" || len(a.FIBEntries) > 0 || a.AudioRef != "" || len(a.CodeTests) > 0 {
			return ErrCrossVariant
		}
	case AnswerFIB:
		if a.CodeRef != "" || len(a.MCQSelected) > 0 || a.AudioRef != "" || len(a.CodeTests) > 0 {
			return ErrCrossVariant
		}
	default:
		return ErrCrossVariant
	}
	return nil
}

// Anti-cheat event types the policy evaluator classifies.
const (
	EventScreenshotAttempt = "SCREENSHOT_ATTEMPT"
	EventFSExit            = "FS_EXIT"
	EventTabSwitch         = "TAB_SWITCH"
	EventFaceMissing       = "FACE_MISSING"
)

// AntiCheatEvent is one entry of the per-session hash chain. Seq is
// strictly monotonic per session; Hash covers the event body plus PrevHash
// so the log is tamper-evident.
type AntiCheatEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Details   map[string]any `json:"details"`
	TS        string         `json:"ts"`
	PrevHash  string         `json:"prevHash"`
	Hash      string         `json:"hash"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Strike severities.
const (
	SeverityYellow = "yellow"
	SeverityRed    = "red"
)

// Strike is a policy-classified anti-cheat event.
type Strike struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	TS        string         `json:"ts"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// PerQuestionResult is one question's analysis inside a summary.
type PerQuestionResult struct {
	QuestionID  string `json:"questionId"`
	Number      int    `json:"number"`
	Score       int    `json:"score"`
	Feedback    string `json:"feedback"`
	ModelAnswer string `json:"modelAnswer"`
}

// SummaryBody is the summarizer output.
type SummaryBody struct {
	Rubric         map[string]int `json:"rubric"`
	Strengths      []string       `json:"strengths"`
	Gaps           []string       `json:"gaps"`
	ScoreBreakdown map[string]any `json:"scoreBreakdown"`
}

// Summary is created exactly once per session, on the Completed or Ended
// transition, and is immutable thereafter.
type Summary struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"sessionId"`
	Summary     SummaryBody         `json:"summary"`
	PerQuestion []PerQuestionResult `json:"perQuestion"`
	CreatedAt   time.Time           `json:"createdAt"`
}
