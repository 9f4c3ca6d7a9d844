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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// OpenAIProvider implements Provider against the OpenAI chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds the provider. An empty model defaults to
// gpt-4o-mini.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI interview provider", "model", model)
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an experienced technical interviewer."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateQuestion asks for one question in the session's first mode.
func (p *OpenAIProvider) GenerateQuestion(ctx context.Context, cfg datatypes.SessionConfig, remaining int, difficulty string) (GeneratedQuestion, error) {
	mode := "behavioral"
	if len(cfg.Modes) > 0 && cfg.Modes[0] != "" {
		mode = cfg.Modes[0]
	}
	prompt := fmt.Sprintf(
		"You are an interviewer. Create one question in the given mode for a role.\nMode: %s\nRole: %s\nDifficulty: %s\nReturn only the question text.",
		mode, cfg.RoleCategory, difficulty)

	text, err := p.complete(ctx, prompt, false)
	if err != nil {
		return GeneratedQuestion{}, err
	}
	return GeneratedQuestion{
		Type:     strings.ToLower(mode),
		Text:     strings.TrimSpace(text),
		Metadata: map[string]any{"difficulty": difficulty, "hintAvailable": true},
	}, nil
}

// AnalyzeQA evaluates one answer and expects a JSON verdict back.
func (p *OpenAIProvider) AnalyzeQA(ctx context.Context, q datatypes.Question, a *datatypes.Answer) (datatypes.Feedback, error) {
	prompt := analysisPrompt(q, a)
	payload, err := p.complete(ctx, prompt, true)
	if err != nil {
		return datatypes.Feedback{}, err
	}
	return parseFeedback(payload)
}

// Summarize produces the rubric summary. The model output is advisory; the
// structured body keeps the fallback shape with the raw text attached.
func (p *OpenAIProvider) Summarize(ctx context.Context, cfg datatypes.SessionConfig, qa []QA) (datatypes.SummaryBody, error) {
	text, err := p.complete(ctx, summaryPrompt(cfg, qa), false)
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

// analysisPrompt builds the shared evaluation prompt with the type-specific
// additions for code, mcq, and fib answers.
func analysisPrompt(q datatypes.Question, a *datatypes.Answer) string {
	answerText := ""
	answerType := datatypes.AnswerText
	if a != nil {
		answerText = a.ResponseText
		if a.AnswerType != "" {
			answerType = a.AnswerType
		}
	}
	parts := []string{
		"Evaluate the candidate's answer to the interview question.",
		"Return a JSON object with keys: score (0-100), feedback (1-2 sentences), modelAnswer (short ideal outline).",
		"Question type: " + q.Type,
		"Answer type: " + answerType,
		"Question: " + q.Text,
		"Answer: " + answerText,
	}
	if a != nil {
		switch answerType {
		case datatypes.AnswerCode:
			if answerText != "" {
				parts = append(parts,
					"Code snippet:\n"+answerText,
					"Consider correctness, complexity, readability, and edge cases.")
			}
		case datatypes.AnswerMCQ:
			if len(a.MCQSelected) > 0 {
				parts = append(parts,
					fmt.Sprintf("Selected options: %v", a.MCQSelected),
					"Explain correctness and briefly note why alternatives are incorrect.")
			}
		case datatypes.AnswerFIB:
			if len(a.FIBEntries) > 0 {
				parts = append(parts,
					fmt.Sprintf("Filled blanks: %v", a.FIBEntries),
					"Assess correctness per blank and provide ideal values.")
			}
		}
	}
	return strings.Join(parts, "\n")
}

func summaryPrompt(cfg datatypes.SessionConfig, qa []QA) string {
	var sb strings.Builder
	sb.WriteString("Summarize this interview session. Provide rubric (0-5) for communication, problem_solving, technical,")
	sb.WriteString(" strengths (2-3 bullets), gaps (2-3 bullets), and overall score (0-100).\n")
	fmt.Fprintf(&sb, "Role: %s, difficulty: %s, questions: %d\n", cfg.RoleCategory, cfg.Difficulty, len(qa))
	for _, pair := range qa {
		fmt.Fprintf(&sb, "Q%d (%s): %s\n", pair.Question.Number, pair.Question.Type, pair.Question.Text)
		if pair.Answer != nil {
			fmt.Fprintf(&sb, "A: %s\n", pair.Answer.ResponseText)
		} else {
			sb.WriteString("A: (no answer)\n")
		}
	}
	return sb.String()
}

// parseFeedback decodes a provider JSON verdict, tolerating fractional
// scores and missing fields.
func parseFeedback(payload string) (datatypes.Feedback, error) {
	var raw struct {
		Score       json.Number `json:"score"`
		Feedback    string      `json:"feedback"`
		ModelAnswer string      `json:"modelAnswer"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return datatypes.Feedback{}, fmt.Errorf("parse analysis payload: %w", err)
	}
	score := 75
	if f, err := raw.Score.Float64(); err == nil {
		score = int(f)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	fb := datatypes.Feedback{Score: score, Feedback: raw.Feedback, ModelAnswer: raw.ModelAnswer}
	if fb.Feedback == "" {
		fb.Feedback = "Add more detail and structure."
	}
	if fb.ModelAnswer == "" {
		fb.ModelAnswer = "Structure using STAR; include metrics and tradeoffs."
	}
	return fb, nil
}
