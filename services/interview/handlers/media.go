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
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
)

// UploadMedia stores one recording chunk for the session. The UPT arrives as
// a query parameter: the recorder posts multipart forms straight from the
// browser and cannot attach an Authorization header. The session id comes
// from the verified claims, never from the client. Files are written under
// the configured upload directory as
//
//	<sessionId>_<uploadId>_<filename>
//
// and the response carries the sha256 checksum so the client can verify the
// write.
func (h *Handler) UploadMedia(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrMissingBearer.Error()})
		return
	}
	claims, err := h.Minter.Verify(raw, auth.AudienceUpload)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	sessionID := claims.SessionID
	if err := auth.RequireScope(claims, auth.ScopeUploadSession(sessionID)); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.Engine.GetSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, h.Logger, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		bindError(c, err)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.Settings.UploadDir, 0o750); err != nil {
		respondError(c, h.Logger, err)
		return
	}

	// Base strips any client-supplied path components.
	name := sessionID + "_" + uuid.New().String() + "_" + filepath.Base(header.Filename)
	path := filepath.Join(h.Settings.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	defer dst.Close()

	digest := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, digest), file); err != nil {
		_ = os.Remove(path)
		respondError(c, h.Logger, err)
		return
	}

	h.Logger.Info("media stored", "session_id", sessionID, "file", name)
	c.JSON(http.StatusOK, gin.H{
		"url":      "/media/" + name,
		"checksum": hex.EncodeToString(digest.Sum(nil)),
	})
}
