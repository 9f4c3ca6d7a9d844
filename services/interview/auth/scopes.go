// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import "errors"

// Global capability scopes.
const (
	ScopeUser    = "user"
	ScopeSession = "session"
	ScopeAIAsk   = "ai:ask"
)

// ErrInsufficientScope is surfaced verbatim as the 403 error code.
var ErrInsufficientScope = errors.New("insufficient_scope")

// Session-bound capability scopes embed the session id.

func ScopeInterviewSession(sessionID string) string { return "interview:session:" + sessionID }
func ScopeWSInterview(sessionID string) string      { return "ws:interview:" + sessionID }
func ScopeAntiCheatEmit(sessionID string) string    { return "anti-cheat:emit:" + sessionID }
func ScopeUploadSession(sessionID string) string    { return "upload:session:" + sessionID }

// RequireScope checks that the claims carry the required capability string
// verbatim. Matching is deliberately exact: prefix matching would let a
// broader scope string satisfy a session-bound capability.
func RequireScope(claims *Claims, required string) error {
	for _, s := range claims.Scope {
		if s == required {
			return nil
		}
	}
	return ErrInsufficientScope
}
