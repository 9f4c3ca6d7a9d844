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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/fsm"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
)

// Per-audience mint helpers. Every session-bound token embeds the session
// id in both the claims and the capability scope.

func (h *Handler) mintIST(sess *datatypes.Session) (string, error) {
	remaining := sess.Remaining()
	return h.Minter.Mint(auth.MintParams{
		Sub:       sess.UserID,
		Role:      "candidate",
		Scopes:    []string{auth.ScopeInterviewSession(sess.ID)},
		Audience:  auth.AudienceInterview,
		SessionID: sess.ID,
		TTL:       h.Settings.TTLIST,
		Extras:    &auth.Extras{RemainingQuestions: &remaining},
	})
}

func (h *Handler) mintWST(sess *datatypes.Session) (string, error) {
	return h.Minter.Mint(auth.MintParams{
		Sub:       sess.UserID,
		Role:      "candidate",
		Scopes:    []string{auth.ScopeWSInterview(sess.ID)},
		Audience:  auth.AudienceWS,
		SessionID: sess.ID,
		TTL:       h.Settings.TTLWST,
	})
}

func (h *Handler) mintAIPT(sess *datatypes.Session) (string, error) {
	remaining := sess.Remaining()
	return h.Minter.Mint(auth.MintParams{
		Sub:       sess.UserID,
		Role:      "candidate",
		Scopes:    []string{auth.ScopeAIAsk},
		Audience:  auth.AudienceAIProxy,
		SessionID: sess.ID,
		TTL:       h.Settings.TTLAIPT,
		Extras: &auth.Extras{
			RemainingQuestions: &remaining,
			Modes:              sess.Config.Modes,
			Difficulty:         sess.Config.Difficulty,
		},
	})
}

func (h *Handler) mintUPT(sess *datatypes.Session) (string, error) {
	return h.Minter.Mint(auth.MintParams{
		Sub:       "media",
		Role:      "system",
		Scopes:    []string{auth.ScopeUploadSession(sess.ID)},
		Audience:  auth.AudienceUpload,
		SessionID: sess.ID,
		TTL:       h.Settings.TTLUPT,
	})
}

func (h *Handler) mintACET(sess *datatypes.Session) (string, error) {
	return h.Minter.Mint(auth.MintParams{
		Sub:       sess.UserID,
		Role:      "candidate",
		Scopes:    []string{auth.ScopeAntiCheatEmit(sess.ID)},
		Audience:  auth.AudienceAntiCheat,
		SessionID: sess.ID,
		TTL:       h.Settings.TTLACET,
	})
}

// ownedSession loads the addressed session and checks the verified token's
// subject owns it. Cookie and user-API tokens are user-bound rather than
// session-bound, so ownership is the binding for routes behind them.
func (h *Handler) ownedSession(c *gin.Context, sessionID string) (*datatypes.Session, bool) {
	claims := middleware.GetClaims(c)
	sess, err := h.Engine.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, h.Logger, err)
		return nil, false
	}
	if claims == nil || claims.Subject != sess.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session_mismatch"})
		return nil, false
	}
	return sess, true
}

// RefreshTokens reissues the IST, plus a WST while the session is Active.
func (h *Handler) RefreshTokens(c *gin.Context) {
	sess, ok := h.ownedSession(c, c.Param("sessionId"))
	if !ok {
		return
	}

	ist, err := h.mintIST(sess)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	resp := datatypes.TokenRefreshResponse{IST: ist}
	if fsm.CanRefreshWST(sess.State) {
		wst, err := h.mintWST(sess)
		if err != nil {
			respondError(c, h.Logger, err)
			return
		}
		resp.WST = wst
	}
	c.JSON(http.StatusOK, resp)
}

// IssueACET mints an anti-cheat emission token. Available in every
// non-terminal state: the client needs one before its first precheck, and
// paused-session telemetry must keep flowing.
func (h *Handler) IssueACET(c *gin.Context) {
	sess, ok := h.ownedSession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if !fsm.CanIssueACET(sess.State) {
		respondError(c, h.Logger, fmt.Errorf("%w: acet in %q", fsm.ErrInvalidState, sess.State))
		return
	}
	token, err := h.mintACET(sess)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acet": token})
}

// IssueAIPT mints an AI proxy token. Active sessions only.
func (h *Handler) IssueAIPT(c *gin.Context) {
	sess, ok := h.ownedSession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if !fsm.CanIssueAIPT(sess.State) {
		respondError(c, h.Logger, fmt.Errorf("%w: aipt in %q", fsm.ErrInvalidState, sess.State))
		return
	}
	token, err := h.mintAIPT(sess)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aipt": token})
}

// IssueUPT mints an upload token for the session's media. The session comes
// from the query string because the upload routes sit outside the
// /interview/:sessionId tree.
func (h *Handler) IssueUPT(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": "sessionId query parameter required"})
		return
	}
	sess, ok := h.ownedSession(c, sessionID)
	if !ok {
		return
	}
	token, err := h.mintUPT(sess)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upt": token})
}
