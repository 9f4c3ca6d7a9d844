// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider implements Provider against the Gemini generateContent API
// with a plain HTTP client.
type GeminiProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiProvider builds the provider. An empty model defaults to
// gemini-1.5-flash.
func NewGeminiProvider(apiKey, model string, timeout time.Duration) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key not set")
	}
	if model == "" {
		model = "gemini-1.5-flash"
		slog.Warn("GEMINI_MODEL not set, defaulting to gemini-1.5-flash")
	}
	slog.Info("Initializing Gemini interview provider", "model", model)
	return &GeminiProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultGeminiBaseURL,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

func (p *GeminiProvider) generate(ctx context.Context, prompt string) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// GenerateQuestion asks for one question in the session's first mode.
func (p *GeminiProvider) GenerateQuestion(ctx context.Context, cfg datatypes.SessionConfig, remaining int, difficulty string) (GeneratedQuestion, error) {
	mode := "behavioral"
	if len(cfg.Modes) > 0 && cfg.Modes[0] != "" {
		mode = cfg.Modes[0]
	}
	prompt := fmt.Sprintf(
		"You are an interviewer. Create one question in the given mode for a role.\nMode: %s\nRole: %s\nDifficulty: %s\nReturn only the question text.",
		mode, cfg.RoleCategory, difficulty)

	text, err := p.generate(ctx, prompt)
	if err != nil {
		return GeneratedQuestion{}, err
	}
	return GeneratedQuestion{
		Type:     strings.ToLower(mode),
		Text:     strings.TrimSpace(text),
		Metadata: map[string]any{"difficulty": difficulty, "hintAvailable": true},
	}, nil
}

// AnalyzeQA evaluates one answer. Gemini has no strict JSON mode here, so a
// stray code fence around the verdict is tolerated.
func (p *GeminiProvider) AnalyzeQA(ctx context.Context, q datatypes.Question, a *datatypes.Answer) (datatypes.Feedback, error) {
	payload, err := p.generate(ctx, analysisPrompt(q, a))
	if err != nil {
		return datatypes.Feedback{}, err
	}
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")
	return parseFeedback(strings.TrimSpace(payload))
}

// Summarize produces the rubric summary with the raw model text attached.
func (p *GeminiProvider) Summarize(ctx context.Context, cfg datatypes.SessionConfig, qa []QA) (datatypes.SummaryBody, error) {
	text, err := p.generate(ctx, summaryPrompt(cfg, qa))
	if err != nil {
		return datatypes.SummaryBody{}, err
	}
	body := FallbackSummary()
	if len(text) > 1000 {
		text = text[:1000]
	}
	body.ScoreBreakdown["raw"] = strings.TrimSpace(text)
	return body, nil
}
