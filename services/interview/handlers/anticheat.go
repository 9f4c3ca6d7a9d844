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

// emitRequest is the anti-cheat batch envelope.
type emitRequest struct {
	Events []datatypes.IncomingEvent `json:"events" binding:"required,min=1"`
}

// EmitEvents appends an anti-cheat batch to the session's hash chain. The
// batch is all-or-nothing: on any chain error nothing is stored and the
// client must refetch the tail and rebuild.
func (h *Handler) EmitEvents(c *gin.Context) {
	var req emitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tail, err := h.Engine.IngestEvents(c.Request.Context(), c.Param("sessionId"), req.Events)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.EventsIngestedTotal.Add(float64(len(req.Events)))
	}
	c.JSON(http.StatusOK, datatypes.IngestResponse{
		TailSeq:  tail.Seq,
		TailHash: tail.Hash,
	})
}

// ChainTail returns the session's current chain tail so a reconnecting
// client can resume emission. Runs on the candidate's API bearer rather than
// the ACET, so a client whose emit token expired can still find its place.
func (h *Handler) ChainTail(c *gin.Context) {
	if _, ok := h.ownedSession(c, c.Param("sessionId")); !ok {
		return
	}
	tail, err := h.Engine.Tail(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.TailResponse{Seq: tail.Seq, Hash: tail.Hash})
}
