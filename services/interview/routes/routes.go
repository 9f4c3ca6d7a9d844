// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
	"github.com/AleutianAI/AleutianInterview/services/interview/handlers"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
)

// SetupRoutes wires the full route table. Each operation runs behind the one
// token audience that may call it: precheck rides the anti-cheat emit token
// (the baseline batch comes with it), start and token issuance ride the
// HttpOnly session cookie, question minting rides the AI proxy token, answer
// submission rides the interview session token, and post-session reads ride
// the candidate's API bearer. The WebSocket and media-upload routes
// authenticate inside the handler because browsers cannot set headers on an
// upgrade or a multipart form post.
func SetupRoutes(router *gin.Engine, h *handlers.Handler) {
	router.GET("/health", h.HealthCheck)
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/auth/login", h.Login)

		// Session creation runs on the candidate's API bearer.
		v1.POST("/sessions",
			middleware.RequireBearer(h.Minter, auth.AudienceUser),
			middleware.RequireGlobalScope(auth.ScopeUser),
			h.CreateSession)

		// Precheck carries the baseline event batch, so it authenticates
		// like event emission does.
		v1.POST("/interview/:sessionId/precheck",
			middleware.RequireBearer(h.Minter, auth.AudienceAntiCheat),
			middleware.RequireSessionMatch(),
			middleware.RequireScope(auth.ScopeAntiCheatEmit),
			h.Precheck)

		// Start runs on the cookie: it is the call that mints the
		// in-interview token set, so no bearer exists for it yet.
		v1.POST("/interview/:sessionId/start",
			middleware.RequireSessionCookie(h.Minter),
			h.StartSession)

		// Question minting spends the AI proxy token.
		v1.POST("/interview/:sessionId/next-question",
			middleware.RequireBearer(h.Minter, auth.AudienceAIProxy),
			middleware.RequireSessionMatch(),
			middleware.RequireGlobalScope(auth.ScopeAIAsk),
			h.NextQuestion)

		// Answer intake and finalization run on the session-bound IST.
		interview := v1.Group("/interview/:sessionId",
			middleware.RequireBearer(h.Minter, auth.AudienceInterview),
			middleware.RequireSessionMatch(),
			middleware.RequireScope(auth.ScopeInterviewSession))
		{
			interview.POST("/answer", h.SubmitAnswer)
			interview.POST("/code-eval", h.CodeEval)
			interview.POST("/finalize", h.Finalize)
		}

		// Read views outlive the short interview tokens, so they run on
		// the candidate's API bearer with an ownership check.
		reads := v1.Group("/interview/:sessionId",
			middleware.RequireBearer(h.Minter, auth.AudienceUser),
			middleware.RequireGlobalScope(auth.ScopeUser))
		{
			reads.GET("/state", h.SessionState)
			reads.GET("/summary", h.Summary)
			reads.GET("/review", h.Review)
		}

		// Token issue routes run on the HttpOnly session cookie so the
		// browser holds nothing long-lived in script-accessible storage.
		tokens := v1.Group("/interview/:sessionId/token",
			middleware.RequireSessionCookie(h.Minter))
		{
			tokens.POST("/refresh", h.RefreshTokens)
			tokens.POST("/acet", h.IssueACET)
			tokens.POST("/aipt", h.IssueAIPT)
		}

		// The push stream authenticates its WST inside the handler.
		v1.GET("/interview/:sessionId/stream", h.StreamSession)

		v1.POST("/interview/:sessionId/anti-cheat",
			middleware.RequireBearer(h.Minter, auth.AudienceAntiCheat),
			middleware.RequireSessionMatch(),
			middleware.RequireScope(auth.ScopeAntiCheatEmit),
			h.EmitEvents)
		v1.GET("/interview/:sessionId/anti-cheat/tail",
			middleware.RequireBearer(h.Minter, auth.AudienceUser),
			middleware.RequireGlobalScope(auth.ScopeUser),
			h.ChainTail)

		// The recorder fetches a UPT over the cookie, then posts chunks
		// with the token in the query string: multipart uploads from the
		// MediaRecorder API cannot carry an Authorization header.
		media := v1.Group("/media")
		{
			media.POST("/issue-upt",
				middleware.RequireSessionCookie(h.Minter),
				h.IssueUPT)
			media.POST("/upload", h.UploadMedia)
		}
	}
}
