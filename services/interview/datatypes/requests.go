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

// Request/response DTOs for the REST surface. Field names match the wire
// format the web client already speaks, hence the camelCase JSON tags.

type LoginRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name,omitempty"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type CreateSessionRequest struct {
	UserID                  string   `json:"userId,omitempty"`
	RoleCategory            string   `json:"roleCategory" binding:"required"`
	RoleSubType             string   `json:"roleSubType,omitempty"`
	ExperienceYears         int      `json:"experienceYears"`
	ExperienceMonths        int      `json:"experienceMonths"`
	Modes                   []string `json:"modes" binding:"required,min=1,dive,interview_mode"`
	QuestionCount           int      `json:"questionCount" binding:"required,gt=0"`
	DurationLimit           int      `json:"durationLimit"`
	Language                string   `json:"language" binding:"required"`
	AccentPreference        string   `json:"accentPreference,omitempty"`
	Difficulty              string   `json:"difficulty" binding:"required,oneof=easy medium hard adaptive"`
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

// ToConfig copies the request into the session's immutable config snapshot.
func (r *CreateSessionRequest) ToConfig() SessionConfig {
	return SessionConfig{
		RoleCategory:            r.RoleCategory,
		RoleSubType:             r.RoleSubType,
		ExperienceYears:         r.ExperienceYears,
		ExperienceMonths:        r.ExperienceMonths,
		Modes:                   r.Modes,
		QuestionCount:           r.QuestionCount,
		DurationLimit:           r.DurationLimit,
		Language:                r.Language,
		AccentPreference:        r.AccentPreference,
		Difficulty:              r.Difficulty,
		JobDescription:          r.JobDescription,
		ResumeFileRef:           r.ResumeFileRef,
		CompanyTargets:          r.CompanyTargets,
		IncludeCuratedQuestions: r.IncludeCuratedQuestions,
		AllowAIGenerated:        r.AllowAIGenerated,
		EnableMCQ:               r.EnableMCQ,
		EnableFIB:               r.EnableFIB,
		ConsentRecording:        r.ConsentRecording,
		ConsentAntiCheat:        r.ConsentAntiCheat,
		ConsentTimestamp:        r.ConsentTimestamp,
	}
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	IST       string `json:"ist"`
	NextStep  string `json:"nextStep"`
}

// IncomingEvent is an anti-cheat event as the client submits it: everything
// but the server-computed hash and storage metadata.
type IncomingEvent struct {
	SessionID string         `json:"sessionId"`
	Seq       int64          `json:"seq" binding:"required,gt=0"`
	Type      string         `json:"type" binding:"required"`
	Details   map[string]any `json:"details"`
	TS        string         `json:"ts" binding:"required"`
	PrevHash  string         `json:"prevHash"`
}

type PrecheckPayload struct {
	SessionID string          `json:"sessionId"`
	Checks    map[string]any  `json:"checks"`
	Events    []IncomingEvent `json:"events"`
}

type PrecheckResponse struct {
	PrecheckID    string `json:"precheckId"`
	SessionID     string `json:"sessionId"`
	OverallStatus string `json:"overallStatus"`
	CanProceed    bool   `json:"canProceed"`
}

type StartResponse struct {
	WST      string `json:"wst"`
	AIPT     string `json:"aipt"`
	UPT      string `json:"upt"`
	NextStep string `json:"nextStep"`
}

type NextQuestionResponse struct {
	QuestionID     string         `json:"questionId"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
	Type           string         `json:"type"`
	Text           string         `json:"text"`
	Metadata       map[string]any `json:"metadata"`
}

type SubmitAnswerRequest struct {
	SessionID    string           `json:"sessionId"`
	QuestionID   string           `json:"questionId" binding:"required"`
	AnswerType   string           `json:"answerType" binding:"required,oneof=voice text code mcq fib"`
	ResponseText string           `json:"responseText,omitempty"`
	AudioRef     string           `json:"audioRef,omitempty"`
	CodeRef      string           `json:"codeRef,omitempty"`
	MCQSelected  []string         `json:"mcqSelected,omitempty"`
	FIBEntries   []map[string]any `json:"fibEntries,omitempty"`
	Transcripts  []map[string]any `json:"transcripts,omitempty"`
	TimeSpent    int              `json:"timeSpent,omitempty"`
	CodeTests    []map[string]any `json:"codeTests,omitempty"`
}

type SubmitAnswerResponse struct {
	Status            string    `json:"status"`
	ImmediateFeedback *Feedback `json:"immediateFeedback"`
}

type CodeEvalRequest struct {
	Code         string           `json:"code" binding:"required"`
	FunctionName string           `json:"functionName"`
	Tests        []map[string]any `json:"tests"`
}

type CodeTestResult struct {
	Input    any    `json:"input"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual,omitempty"`
	Pass     bool   `json:"pass"`
	Error    string `json:"error,omitempty"`
}

type CodeEvalResponse struct {
	Results []CodeTestResult `json:"results"`
	Passed  int              `json:"passed"`
	Total   int              `json:"total"`
}

type FinalizeResponse struct {
	SummaryID string `json:"summaryId"`
	Status    string `json:"status"`
}

type SummaryResponse struct {
	SessionID      string         `json:"sessionId"`
	Rubric         map[string]int `json:"rubric"`
	Strengths      []string       `json:"strengths"`
	Gaps           []string       `json:"gaps"`
	ScoreBreakdown map[string]any `json:"scoreBreakdown"`
}

type TokenRefreshResponse struct {
	IST string `json:"ist,omitempty"`
	WST string `json:"wst,omitempty"`
}

type TailResponse struct {
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

type IngestResponse struct {
	TailSeq  int64  `json:"tailSeq"`
	TailHash string `json:"tailHash"`
}

// ReviewAnswer is one historical answer in the review view.
type ReviewAnswer struct {
	ID           string `json:"id"`
	AnswerType   string `json:"answerType"`
	ResponseText string `json:"responseText,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

// ReviewItem merges a question, its answer history, and the per-question
// analysis from the summary (when one exists).
type ReviewItem struct {
	QuestionID  string           `json:"questionId"`
	Number      int              `json:"number"`
	Type        string           `json:"type"`
	Text        string           `json:"text"`
	Metadata    map[string]any   `json:"metadata"`
	YourAnswer  string           `json:"yourAnswer,omitempty"`
	AnswerType  string           `json:"answerType,omitempty"`
	MCQSelected []string         `json:"mcqSelected,omitempty"`
	FIBEntries  []map[string]any `json:"fibEntries,omitempty"`
	CodeTests   []map[string]any `json:"codeTests,omitempty"`
	Answers     []ReviewAnswer   `json:"answers"`
	Score       *int             `json:"score,omitempty"`
	Feedback    string           `json:"feedback,omitempty"`
	ModelAnswer string           `json:"modelAnswer,omitempty"`
}

type ReviewResponse struct {
	Items []ReviewItem `json:"items"`
}

type StateResponse struct {
	State      State `json:"state"`
	AskedCount int   `json:"askedCount"`
}
