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
	"github.com/AleutianAI/AleutianInterview/services/interview/fsm"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
)

// CreateSession creates a session in PendingPrecheck and hands back the
// session-bound IST.
func (h *Handler) CreateSession(c *gin.Context) {
	var req datatypes.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	claims := middleware.GetClaims(c)
	userID := claims.Subject
	if req.UserID != "" {
		userID = req.UserID
	}

	sess, err := h.Engine.CreateSession(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	ist, err := h.mintIST(sess)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.SessionsCreatedTotal.Inc()
	}
	c.JSON(http.StatusCreated, datatypes.CreateSessionResponse{
		SessionID: sess.ID,
		IST:       ist,
		NextStep:  "precheck",
	})
}

// Precheck records the device checks, ingests the baseline event batch, and
// moves the session to Ready unless the checks failed.
func (h *Handler) Precheck(c *gin.Context) {
	var payload datatypes.PrecheckPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		bindError(c, err)
		return
	}
	resp, err := h.Engine.Precheck(c.Request.Context(), c.Param("sessionId"), payload)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StartSession activates a Ready session and mints the per-surface tokens
// the FSM's start effects call for. Runs on the cookie, so ownership is
// checked before the transition.
func (h *Handler) StartSession(c *gin.Context) {
	if _, ok := h.ownedSession(c, c.Param("sessionId")); !ok {
		return
	}
	sess, effects, err := h.Engine.Start(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	resp := datatypes.StartResponse{NextStep: "interview"}
	for _, effect := range effects {
		var token string
		var merr error
		switch effect {
		case fsm.EffectMintWST:
			token, merr = h.mintWST(sess)
			resp.WST = token
		case fsm.EffectMintAIPT:
			token, merr = h.mintAIPT(sess)
			resp.AIPT = token
		case fsm.EffectMintUPT:
			token, merr = h.mintUPT(sess)
			resp.UPT = token
		}
		if merr != nil {
			respondError(c, h.Logger, merr)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SessionState returns the lifecycle state and progress counter.
func (h *Handler) SessionState(c *gin.Context) {
	sess, ok := h.ownedSession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, datatypes.StateResponse{
		State:      sess.State,
		AskedCount: sess.AskedCount,
	})
}
