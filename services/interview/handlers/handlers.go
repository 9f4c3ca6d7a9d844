// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP and WebSocket surface of the
// interview service. Handlers stay thin: bind, call the engine, map errors.
// All state transitions and invariants live in the engine.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/config"
	"github.com/AleutianAI/AleutianInterview/services/interview/engine"
)

// Handler carries the dependencies every route shares.
type Handler struct {
	Engine   *engine.Engine
	Minter   *auth.Minter
	Bus      *broadcast.Bus
	Settings config.Settings
	Logger   *slog.Logger
}

// NewHandler builds the handler set.
func NewHandler(eng *engine.Engine, minter *auth.Minter, bus *broadcast.Bus, settings config.Settings, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Engine:   eng,
		Minter:   minter,
		Bus:      bus,
		Settings: settings,
		Logger:   logger,
	}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "interview"})
}
