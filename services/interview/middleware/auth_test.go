// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func mintToken(t *testing.T, m *auth.Minter, audience, sessionID string, scopes ...string) string {
	t.Helper()
	token, err := m.Mint(auth.MintParams{
		Sub:       "cand@example.com",
		Role:      "candidate",
		Scopes:    scopes,
		Audience:  audience,
		SessionID: sessionID,
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	return token
}

func protectedRouter(m *auth.Minter) *gin.Engine {
	r := gin.New()
	r.GET("/s/:sessionId",
		RequireBearer(m, auth.AudienceInterview),
		RequireSessionMatch(),
		RequireScope(auth.ScopeInterviewSession),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"sub": GetClaims(c).Subject})
		})
	r.GET("/cookie",
		RequireSessionCookie(m),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequireBearer(t *testing.T) {
	m := auth.NewMinter("secret", nil)
	r := protectedRouter(m)

	do := func(authz string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/s/sess-1", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("missing header", func(t *testing.T) {
		w := do("")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing_bearer")
	})

	t.Run("malformed header", func(t *testing.T) {
		w := do("Basic abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := do("Bearer not.a.jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_token")
	})

	t.Run("wrong audience", func(t *testing.T) {
		token := mintToken(t, m, auth.AudienceUser, "sess-1", auth.ScopeInterviewSession("sess-1"))
		w := do("Bearer " + token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid", func(t *testing.T) {
		token := mintToken(t, m, auth.AudienceInterview, "sess-1", auth.ScopeInterviewSession("sess-1"))
		w := do("Bearer " + token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cand@example.com")
	})

	t.Run("case-insensitive scheme", func(t *testing.T) {
		token := mintToken(t, m, auth.AudienceInterview, "sess-1", auth.ScopeInterviewSession("sess-1"))
		w := do("bearer " + token)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireSessionMatch(t *testing.T) {
	m := auth.NewMinter("secret", nil)
	r := protectedRouter(m)

	// Token bound to sess-1 addressing sess-2.
	token := mintToken(t, m, auth.AudienceInterview, "sess-1", auth.ScopeInterviewSession("sess-1"))
	req := httptest.NewRequest(http.MethodGet, "/s/sess-2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "session_mismatch")
}

func TestRequireScope(t *testing.T) {
	m := auth.NewMinter("secret", nil)
	r := protectedRouter(m)

	// Right audience and session binding, wrong capability.
	token := mintToken(t, m, auth.AudienceInterview, "sess-1", auth.ScopeAntiCheatEmit("sess-1"))
	req := httptest.NewRequest(http.MethodGet, "/s/sess-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_scope")
}

func TestRequireSessionCookie(t *testing.T) {
	m := auth.NewMinter("secret", nil)
	r := protectedRouter(m)

	t.Run("missing cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cookie", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing_session")
	})

	t.Run("valid cookie", func(t *testing.T) {
		token := mintToken(t, m, auth.AudienceSession, "", auth.ScopeSession)
		req := httptest.NewRequest(http.MethodGet, "/cookie", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bearer audience in cookie", func(t *testing.T) {
		token := mintToken(t, m, auth.AudienceUser, "", auth.ScopeUser)
		req := httptest.NewRequest(http.MethodGet, "/cookie", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
