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

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
)

// Login mints the candidate's API bearer and sets the HttpOnly session
// cookie. There is no password flow here: identity is the email the client
// asserts, which is all a local mock-interview deployment needs.
func (h *Handler) Login(c *gin.Context) {
	var req datatypes.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	apiToken, err := h.Minter.Mint(auth.MintParams{
		Sub:      req.Email,
		Role:     "candidate",
		Scopes:   []string{auth.ScopeUser},
		Audience: auth.AudienceUser,
		TTL:      h.Settings.TTLUser,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cookieToken, err := h.Minter.Mint(auth.MintParams{
		Sub:      req.Email,
		Role:     "candidate",
		Scopes:   []string{auth.ScopeSession},
		Audience: auth.AudienceSession,
		TTL:      h.Settings.TTLUser,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.SessionCookieName, cookieToken,
		int(h.Settings.TTLUser.Seconds()), "/",
		h.Settings.CookieDomain, h.Settings.CookieSecure, true)

	h.Logger.Info("login", "sub", req.Email)
	c.JSON(http.StatusOK, datatypes.LoginResponse{Token: apiToken})
}
