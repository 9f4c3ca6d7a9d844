// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the persisted records and wire DTOs of the
// interview session engine.
package datatypes

import "time"

// State is the session lifecycle state. Transitions are enforced by the fsm
// package; the store only ever writes states it is handed.
type State string

const (
	StatePendingPrecheck State = "PendingPrecheck"
	StateReady           State = "Ready"
	StateActive          State = "Active"
	StatePaused          State = "Paused"
	StateCompleted       State = "Completed"
	StateEnded           State = "Ended"
)

// Terminal reports whether the state admits no further mutation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateEnded
}

// SessionConfig is the immutable configuration snapshot captured at session
// creation time.
type SessionConfig struct {
	RoleCategory            string   `json:"roleCategory"`
	RoleSubType             string   `json:"roleSubType,omitempty"`
	ExperienceYears         int      `json:"experienceYears"`
	ExperienceMonths        int      `json:"experienceMonths"`
	Modes                   []string `json:"modes"`
	QuestionCount           int      `json:"questionCount"`
	DurationLimit           int      `json:"durationLimit"`
	Language                string   `json:"language"`
	AccentPreference        string   `json:"accentPreference,omitempty"`
	Difficulty              string   `json:"difficulty"`
	JobDescription          string   `json:"jobDescription,omitempty"`
	ResumeFileRef           string   `json:"resumeFileRef,omitempty"`
	CompanyTargets          []string `json:"companyTargets,omitempty"`
	IncludeCuratedQuestions bool     `json:"includeCuratedQuestions"`
	AllowAIGenerated        bool     `json:"allowAIGenerated"`
	EnableMCQ               bool     `json:"enableMCQ,omitempty"`
	EnableFIB               bool     `json:"enableFIB,omitempty"`
	ConsentRecording        bool     `json:"consentRecording"`
	ConsentAntiCheat        bool     `json:"consentAntiCheat"`
	ConsentTimestamp        string   `json:"consentTimestamp"`
}

// Session is the root record. A session exclusively owns its questions,
// answers, events, strikes, and summary.
//
// Invariants:
//   - AskedCount never decreases and never exceeds Config.QuestionCount.
//   - AwaitingAnswer implies the newest question's number == AskedCount.
//   - Terminal sessions are immutable except for summary reads.
type Session struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	State          State          `json:"state"`
	Config         SessionConfig  `json:"config"`
	AskedCount     int            `json:"askedCount"`
	AwaitingAnswer bool           `json:"awaitingAnswer"`
	LastAskedAt    time.Time      `json:"lastAskedAt,omitempty"`
	PolicyCounters map[string]int `json:"policyCounters,omitempty"`
	Precheck       map[string]any `json:"precheck,omitempty"`
	PauseReason    string         `json:"pauseReason,omitempty"`
	EndCode        string         `json:"endCode,omitempty"`
	SealedAt       time.Time      `json:"sealedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Remaining is the number of questions the session may still ask.
func (s *Session) Remaining() int {
	r := s.Config.QuestionCount - s.AskedCount
	if r < 0 {
		return 0
	}
	return r
}
