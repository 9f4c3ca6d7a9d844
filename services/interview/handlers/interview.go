// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
)

// NextQuestion mints the session's next question.
func (h *Handler) NextQuestion(c *gin.Context) {
	q, total, err := h.Engine.NextQuestion(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.QuestionsMintedTotal.WithLabelValues(q.Type).Inc()
	}
	c.JSON(http.StatusOK, datatypes.NextQuestionResponse{
		QuestionID:     q.ID,
		QuestionNumber: q.Number,
		TotalQuestions: total,
		Type:           q.Type,
		Text:           q.Text,
		Metadata:       q.Metadata,
	})
}

// SubmitAnswer records the answer and returns immediately; analysis runs in
// the background and arrives over the session stream as FEEDBACK_CREATED.
func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req datatypes.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	_, err := h.Engine.SubmitAnswer(c.Request.Context(), c.Param("sessionId"), req)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.SubmitAnswerResponse{Status: "submitted"})
}

// CodeEval runs submitted code against its tests in the sandbox.
func (h *Handler) CodeEval(c *gin.Context) {
	var req datatypes.CodeEvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	report, err := h.Engine.CodeEval(c.Request.Context(), c.Param("sessionId"), req)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	resp := datatypes.CodeEvalResponse{
		Results: make([]datatypes.CodeTestResult, 0, len(report.Results)),
		Passed:  report.Passed,
		Total:   report.Total,
	}
	for _, r := range report.Results {
		resp.Results = append(resp.Results, datatypes.CodeTestResult{
			Input:    r.Input,
			Expected: r.Expected,
			Actual:   r.Actual,
			Pass:     r.Pass,
			Error:    r.Error,
		})
	}
	if m := observability.DefaultMetrics; m != nil {
		outcome := "fail"
		if report.Passed == report.Total && report.Total > 0 {
			outcome = "pass"
		}
		m.SandboxRunsTotal.WithLabelValues(outcome).Inc()
	}
	c.JSON(http.StatusOK, resp)
}

// Finalize completes the session and generates the summary.
func (h *Handler) Finalize(c *gin.Context) {
	summary, err := h.Engine.Finalize(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.FinalizeResponse{
		SummaryID: summary.ID,
		Status:    "completed",
	})
}

// Summary returns the session's rubric summary.
func (h *Handler) Summary(c *gin.Context) {
	if _, ok := h.ownedSession(c, c.Param("sessionId")); !ok {
		return
	}
	summary, err := h.Engine.Summary(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.SummaryResponse{
		SessionID:      summary.SessionID,
		Rubric:         summary.Summary.Rubric,
		Strengths:      summary.Summary.Strengths,
		Gaps:           summary.Summary.Gaps,
		ScoreBreakdown: summary.Summary.ScoreBreakdown,
	})
}

// Review returns the merged question/answer/analysis view.
func (h *Handler) Review(c *gin.Context) {
	if _, ok := h.ownedSession(c, c.Param("sessionId")); !ok {
		return
	}
	review, err := h.Engine.Review(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, review)
}
