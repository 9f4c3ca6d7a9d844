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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianInterview/services/interview/chain"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/engine"
	"github.com/AleutianAI/AleutianInterview/services/interview/fsm"
	"github.com/AleutianAI/AleutianInterview/services/interview/sandbox"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

// respondError maps engine sentinels to HTTP statuses with stable error
// codes. Clients branch on the code, not the message.
func respondError(c *gin.Context, logger errLogger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, engine.ErrConsentRequired):
		status, code = http.StatusBadRequest, "consent_required"
	case errors.Is(err, chain.ErrSeqReplay):
		status, code = http.StatusBadRequest, chain.ErrSeqReplay.Error()
	case errors.Is(err, chain.ErrChainBroken):
		status, code = http.StatusBadRequest, chain.ErrChainBroken.Error()
	case errors.Is(err, chain.ErrEmptyBatch):
		status, code = http.StatusBadRequest, "empty_event_batch"
	case errors.Is(err, sandbox.ErrDisallowedCode):
		status, code = http.StatusBadRequest, "disallowed_code"
	case errors.Is(err, engine.ErrNoQuestionsRemaining):
		status, code = http.StatusBadRequest, "no_questions_remaining"
	case errors.Is(err, datatypes.ErrCrossVariant):
		status, code = http.StatusBadRequest, "invalid_answer_variant"
	case errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrAnswerRequired):
		status, code = http.StatusConflict, "answer_required"
	case errors.Is(err, fsm.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	case errors.Is(err, engine.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	}
	if status == http.StatusInternalServerError && logger != nil {
		args := []any{"path", c.FullPath(), "error", err.Error()}
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.HasTraceID() {
			args = append(args, "trace_id", sc.TraceID().String())
		}
		logger.Error("request failed", args...)
	}
	c.JSON(status, gin.H{"error": code})
}

type errLogger interface {
	Error(msg string, args ...any)
}

// bindError reports a request-body validation failure.
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
}
