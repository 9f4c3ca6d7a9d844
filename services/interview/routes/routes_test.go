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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInterview/services/interview/ai"
	"github.com/AleutianAI/AleutianInterview/services/interview/auth"
	"github.com/AleutianAI/AleutianInterview/services/interview/broadcast"
	"github.com/AleutianAI/AleutianInterview/services/interview/config"
	"github.com/AleutianAI/AleutianInterview/services/interview/engine"
	"github.com/AleutianAI/AleutianInterview/services/interview/handlers"
	"github.com/AleutianAI/AleutianInterview/services/interview/policy"
	"github.com/AleutianAI/AleutianInterview/services/interview/sandbox"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	t      *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.Open(store.InMemoryDBConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pol, err := policy.NewEngine()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := broadcast.NewBus()
	eng := engine.New(st, pol, ai.NewResilient(nil, "fallback", 0),
		bus, sandbox.NewEvaluator(logger), time.Millisecond, logger)
	t.Cleanup(eng.Close)

	settings := config.Settings{
		UploadDir: t.TempDir(),
		TTLUser:   time.Hour,
		TTLIST:    time.Minute,
		TTLWST:    time.Minute,
		TTLAIPT:   time.Minute,
		TTLUPT:    time.Minute,
		TTLACET:   time.Minute,
	}
	minter := auth.NewMinter("test-secret", nil)
	h := handlers.NewHandler(eng, minter, bus, settings, logger)

	router := gin.New()
	SetupRoutes(router, h)
	return &testServer{router: router, t: t}
}

type testResponse struct {
	code    int
	body    map[string]any
	cookies []*http.Cookie
}

func (s *testServer) do(method, path, bearer string, cookies []*http.Cookie, payload any) testResponse {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(s.t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := testResponse{code: w.Code, cookies: w.Result().Cookies()}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out.body)
	}
	return out
}

func TestFullInterviewFlow(t *testing.T) {
	s := newTestServer(t)

	// Login: bearer plus HttpOnly session cookie.
	login := s.do(http.MethodPost, "/v1/auth/login", "", nil,
		map[string]any{"email": "cand@example.com"})
	require.Equal(t, http.StatusOK, login.code)
	userToken := login.body["token"].(string)
	require.NotEmpty(t, userToken)
	require.NotEmpty(t, login.cookies)

	// Create a one-question session.
	created := s.do(http.MethodPost, "/v1/sessions", userToken, nil, map[string]any{
		"roleCategory":     "software_engineering",
		"modes":            []string{"behavioral"},
		"questionCount":    1,
		"language":         "en",
		"difficulty":       "medium",
		"consentRecording": true,
		"consentAntiCheat": true,
	})
	require.Equal(t, http.StatusCreated, created.code, created.body)
	sessionID := created.body["sessionId"].(string)
	ist := created.body["ist"].(string)
	assert.Equal(t, "precheck", created.body["nextStep"])

	base := "/v1/interview/" + sessionID

	// ACET comes off the session cookie before the first precheck: the
	// precheck baseline batch already needs it.
	acetResp := s.do(http.MethodPost, base+"/token/acet", "", login.cookies, nil)
	require.Equal(t, http.StatusOK, acetResp.code, acetResp.body)
	acet := acetResp.body["acet"].(string)

	// Precheck runs on the ACET and makes the session startable.
	pre := s.do(http.MethodPost, base+"/precheck", acet, nil, map[string]any{
		"checks": map[string]any{"network": map[string]any{"status": "pass"}},
	})
	require.Equal(t, http.StatusOK, pre.code, pre.body)
	assert.Equal(t, true, pre.body["canProceed"])

	// Start runs on the cookie and grants the in-interview token set.
	start := s.do(http.MethodPost, base+"/start", "", login.cookies, nil)
	require.Equal(t, http.StatusOK, start.code, start.body)
	require.NotEmpty(t, start.body["wst"])
	aipt := start.body["aipt"].(string)
	require.NotEmpty(t, aipt)
	require.NotEmpty(t, start.body["upt"])

	// Question minting spends the AIPT, answering the IST.
	q := s.do(http.MethodPost, base+"/next-question", aipt, nil, nil)
	require.Equal(t, http.StatusOK, q.code, q.body)
	assert.Equal(t, float64(1), q.body["questionNumber"])
	questionID := q.body["questionId"].(string)

	ans := s.do(http.MethodPost, base+"/answer", ist, nil, map[string]any{
		"questionId":   questionID,
		"answerType":   "text",
		"responseText": "I profiled the service and removed the N+1 query.",
	})
	require.Equal(t, http.StatusOK, ans.code)
	assert.Equal(t, "submitted", ans.body["status"])

	// Anti-cheat batch on the ACET surface. The first event chains onto the
	// zero tail, so its prevHash is empty.
	ts := time.Now().UTC().Format(time.RFC3339)
	emit := s.do(http.MethodPost, base+"/anti-cheat", acet, nil, map[string]any{
		"events": []map[string]any{{
			"sessionId": sessionID,
			"seq":       1,
			"type":      "TAB_SWITCH",
			"ts":        ts,
			"prevHash":  "",
		}},
	})
	require.Equal(t, http.StatusOK, emit.code, emit.body)
	assert.Equal(t, float64(1), emit.body["tailSeq"])

	// The tail read outlives the ACET, so it runs on the API bearer.
	tail := s.do(http.MethodGet, base+"/anti-cheat/tail", userToken, nil, nil)
	require.Equal(t, http.StatusOK, tail.code)
	assert.Equal(t, float64(1), tail.body["seq"])

	// Finalize on the IST, then read the results on the API bearer.
	fin := s.do(http.MethodPost, base+"/finalize", ist, nil, nil)
	require.Equal(t, http.StatusOK, fin.code, fin.body)
	assert.Equal(t, "completed", fin.body["status"])

	summary := s.do(http.MethodGet, base+"/summary", userToken, nil, nil)
	require.Equal(t, http.StatusOK, summary.code)
	rubric := summary.body["rubric"].(map[string]any)
	assert.Contains(t, rubric, "communication")

	state := s.do(http.MethodGet, base+"/state", userToken, nil, nil)
	require.Equal(t, http.StatusOK, state.code)
	assert.Equal(t, "Completed", state.body["state"])
}

func TestSurfaceIsolation(t *testing.T) {
	s := newTestServer(t)

	login := s.do(http.MethodPost, "/v1/auth/login", "", nil,
		map[string]any{"email": "cand@example.com"})
	require.Equal(t, http.StatusOK, login.code)
	userToken := login.body["token"].(string)

	created := s.do(http.MethodPost, "/v1/sessions", userToken, nil, map[string]any{
		"roleCategory":     "software_engineering",
		"modes":            []string{"behavioral"},
		"questionCount":    1,
		"language":         "en",
		"difficulty":       "easy",
		"consentRecording": true,
		"consentAntiCheat": true,
	})
	require.Equal(t, http.StatusCreated, created.code)
	sessionID := created.body["sessionId"].(string)
	ist := created.body["ist"].(string)

	t.Run("user bearer rejected on answer intake", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/interview/"+sessionID+"/answer", userToken, nil,
			map[string]any{"questionId": "q", "answerType": "text"})
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})

	t.Run("ist rejected on session creation", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/sessions", ist, nil, map[string]any{})
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})

	t.Run("ist rejected on question minting", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/interview/"+sessionID+"/next-question", ist, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})

	t.Run("ist rejected on foreign session", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/interview/other-session/answer", ist, nil,
			map[string]any{"questionId": "q", "answerType": "text"})
		assert.Equal(t, http.StatusForbidden, resp.code)
	})

	t.Run("ist rejected on anti-cheat emit", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/interview/"+sessionID+"/anti-cheat", ist, nil,
			map[string]any{"events": []map[string]any{{"seq": 1, "type": "TAB_SWITCH", "ts": "t"}}})
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})

	t.Run("acet bound to its session", func(t *testing.T) {
		acetResp := s.do(http.MethodPost, "/v1/interview/"+sessionID+"/token/acet", "", login.cookies, nil)
		require.Equal(t, http.StatusOK, acetResp.code, acetResp.body)
		acet := acetResp.body["acet"].(string)

		resp := s.do(http.MethodPost, "/v1/interview/other-session/anti-cheat", acet, nil,
			map[string]any{"events": []map[string]any{{"seq": 1, "type": "TAB_SWITCH", "ts": "t"}}})
		assert.Equal(t, http.StatusForbidden, resp.code)
	})

	t.Run("start requires the session cookie", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/interview/"+sessionID+"/start", "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})

	t.Run("missing consent is a 400", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/sessions", userToken, nil, map[string]any{
			"roleCategory":  "software_engineering",
			"modes":         []string{"behavioral"},
			"questionCount": 1,
			"language":      "en",
			"difficulty":    "easy",
		})
		assert.Equal(t, http.StatusBadRequest, resp.code)
		assert.Equal(t, "consent_required", resp.body["error"])
	})
}

func TestMediaUpload(t *testing.T) {
	s := newTestServer(t)

	login := s.do(http.MethodPost, "/v1/auth/login", "", nil,
		map[string]any{"email": "cand@example.com"})
	userToken := login.body["token"].(string)

	created := s.do(http.MethodPost, "/v1/sessions", userToken, nil, map[string]any{
		"roleCategory":     "software_engineering",
		"modes":            []string{"behavioral"},
		"questionCount":    1,
		"language":         "en",
		"difficulty":       "easy",
		"consentRecording": true,
		"consentAntiCheat": true,
	})
	require.Equal(t, http.StatusCreated, created.code)
	sessionID := created.body["sessionId"].(string)

	uptResp := s.do(http.MethodPost, "/v1/media/issue-upt?sessionId="+sessionID, "", login.cookies, nil)
	require.Equal(t, http.StatusOK, uptResp.code, uptResp.body)
	upt := uptResp.body["upt"].(string)

	content := []byte("webm-bytes-here")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "chunk-0.webm")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	// The token travels in the query string: the recorder cannot set an
	// Authorization header on a multipart post.
	req := httptest.NewRequest(http.MethodPost, "/v1/media/upload?token="+upt, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), body["checksum"])
	assert.Contains(t, body["url"], sessionID)

	t.Run("missing token is a 401", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/media/upload", "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})

	t.Run("user bearer cannot upload", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/v1/media/upload?token="+userToken, "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})
}
