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
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
)

// Application close codes for authentication failures on the stream. The
// handshake succeeds first so the browser can observe the code; a 401 on
// upgrade is indistinguishable from a network error in the WebSocket API.
const (
	closeMissingToken = 4401
	closeInvalidToken = 4403
)

const writeTimeout = 10 * time.Second

// wsConn adapts a gorilla connection to the broadcast bus. Gorilla allows
// only one concurrent writer, hence the mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) Close() error { return w.conn.Close() }

func (w *wsConn) closeWith(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason))
	_ = w.conn.Close()
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.Settings.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}

// StreamSession upgrades to the per-session push stream. The WST arrives as
// a query parameter because browsers cannot set headers on a WebSocket
// handshake. The server never reads application messages; the read loop
// exists only to detect disconnect and answer pings.
func (h *Handler) StreamSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	raw, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("ws upgrade failed", "session_id", sessionID, "error", err.Error())
		return
	}
	conn := &wsConn{conn: raw}

	token := c.Query("token")
	if token == "" {
		conn.closeWith(closeMissingToken, "missing_token")
		return
	}
	claims, err := h.Minter.Verify(token, auth.AudienceWS)
	if err != nil {
		conn.closeWith(closeInvalidToken, err.Error())
		return
	}
	if claims.SessionID != sessionID ||
		auth.RequireScope(claims, auth.ScopeWSInterview(sessionID)) != nil {
		conn.closeWith(closeInvalidToken, "session_mismatch")
		return
	}

	room := broadcast.Room(sessionID)
	h.Bus.Join(room, conn)
	if m := observability.DefaultMetrics; m != nil {
		m.ActiveStreams.Inc()
	}
	h.Logger.Info("ws stream opened", "session_id", sessionID, "sub", claims.Subject)

	defer func() {
		h.Bus.Leave(room, conn)
		if m := observability.DefaultMetrics; m != nil {
			m.ActiveStreams.Dec()
		}
		h.Logger.Info("ws stream closed", "session_id", sessionID)
	}()

	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			return
		}
	}
}
