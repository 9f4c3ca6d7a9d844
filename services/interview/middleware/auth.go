// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the Gin authentication middleware for the
// interview service.
//
// Every protected surface verifies a token against its own audience, then
// stores the verified claims in the Gin context for handlers. Session-bound
// routes additionally check that the token's sessionId matches the path
// parameter, so a token minted for one session can never act on another.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
)

// claimsKey is the context key for the verified token claims. Typed key
// string to avoid collisions with other context values.
const claimsKey = "aleutian_interview_claims"

// SessionCookieName is the HttpOnly cookie carrying the session token.
const SessionCookieName = "aleutian_session"

// SetClaims stores verified claims in the Gin context.
func SetClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)
}

// GetClaims retrieves the verified claims, or nil when the request did not
// pass an auth middleware.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, exists := c.Get(claimsKey); exists {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// RequireBearer verifies the Authorization bearer token against the given
// audience and stores the claims. 401 with a stable error code on failure.
func RequireBearer(minter *auth.Minter, audience string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abortAuth(c, auth.ErrMissingBearer)
			return
		}
		claims, err := minter.Verify(token, audience)
		if err != nil {
			abortAuth(c, err)
			return
		}
		SetClaims(c, claims)
		c.Next()
	}
}

// RequireSessionCookie verifies the session cookie. Token-issue routes use
// this instead of a bearer so the browser can call them without holding any
// token in script-accessible storage.
func RequireSessionCookie(minter *auth.Minter) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			abortAuth(c, auth.ErrMissingSession)
			return
		}
		claims, verr := minter.Verify(token, auth.AudienceSession)
		if verr != nil {
			abortAuth(c, verr)
			return
		}
		SetClaims(c, claims)
		c.Next()
	}
}

// RequireSessionMatch rejects requests whose token is bound to a different
// session than the path addresses.
func RequireSessionMatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			abortAuth(c, auth.ErrInvalidToken)
			return
		}
		if claims.SessionID != c.Param("sessionId") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "session_mismatch"})
			return
		}
		c.Next()
	}
}

// RequireScope rejects requests whose claims lack the capability computed
// from the addressed session. scopeFor receives the :sessionId path param.
func RequireScope(scopeFor func(sessionID string) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			abortAuth(c, auth.ErrInvalidToken)
			return
		}
		if err := auth.RequireScope(claims, scopeFor(c.Param("sessionId"))); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// RequireGlobalScope is RequireScope for capabilities that do not embed a
// session id.
func RequireGlobalScope(scope string) gin.HandlerFunc {
	return RequireScope(func(string) string { return scope })
}

func abortAuth(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
}

// extractBearerToken parses "Authorization: Bearer <token>". The scheme is
// case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
