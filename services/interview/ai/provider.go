// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ai abstracts the question generator, answer analyzer, and session
// summarizer behind a single capability interface. Concrete providers are
// picked by configuration; every call is wrapped with a timeout and a
// deterministic fallback so a degraded provider never blocks a session.
package ai

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

var tracer = otel.Tracer("aleutian.interview.ai")

// GeneratedQuestion is the generator output before persistence.
type GeneratedQuestion struct {
	Type     string
	Text     string
	Metadata map[string]any
}

// QA pairs a question with its authoritative answer (nil when unanswered).
type QA struct {
	Question datatypes.Question
	Answer   *datatypes.Answer
}

// Provider is the capability set the engine depends on.
type Provider interface {
	GenerateQuestion(ctx context.Context, cfg datatypes.SessionConfig, remaining int, difficulty string) (GeneratedQuestion, error)
	AnalyzeQA(ctx context.Context, q datatypes.Question, a *datatypes.Answer) (datatypes.Feedback, error)
	Summarize(ctx context.Context, cfg datatypes.SessionConfig, qa []QA) (datatypes.SummaryBody, error)
}

// Resilient wraps an optional inner provider with a per-call timeout and the
// deterministic fallbacks. inner == nil means fallback-only operation, which
// is the mode every test and keyless deployment runs in.
type Resilient struct {
	inner   Provider
	name    string
	timeout time.Duration
}

// NewResilient builds the wrapper. name is used for logging and spans.
func NewResilient(inner Provider, name string, timeout time.Duration) *Resilient {
	return &Resilient{inner: inner, name: name, timeout: timeout}
}

// GenerateQuestion tries the inner provider, then falls back to the
// deterministic question for the session's first mode.
func (r *Resilient) GenerateQuestion(ctx context.Context, cfg datatypes.SessionConfig, remaining int, difficulty string) (GeneratedQuestion, error) {
	ctx, span := tracer.Start(ctx, "ai.GenerateQuestion")
	defer span.End()
	span.SetAttributes(attribute.String("ai.provider", r.name))

	if r.inner != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		q, err := r.inner.GenerateQuestion(callCtx, cfg, remaining, difficulty)
		cancel()
		if err == nil {
			return q, nil
		}
		slog.Warn("question generation degraded to fallback",
			"provider", r.name, "error", err.Error())
	}
	return FallbackQuestion(cfg, remaining, difficulty), nil
}

// AnalyzeQA tries the inner provider, then falls back to the length-scored
// heuristic.
func (r *Resilient) AnalyzeQA(ctx context.Context, q datatypes.Question, a *datatypes.Answer) (datatypes.Feedback, error) {
	ctx, span := tracer.Start(ctx, "ai.AnalyzeQA")
	defer span.End()
	span.SetAttributes(attribute.String("ai.provider", r.name))

	if r.inner != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		fb, err := r.inner.AnalyzeQA(callCtx, q, a)
		cancel()
		if err == nil {
			return fb, nil
		}
		slog.Warn("answer analysis degraded to fallback",
			"provider", r.name, "error", err.Error())
	}
	return FallbackAnalysis(a), nil
}

// Summarize tries the inner provider, then falls back to the fixed rubric.
func (r *Resilient) Summarize(ctx context.Context, cfg datatypes.SessionConfig, qa []QA) (datatypes.SummaryBody, error) {
	ctx, span := tracer.Start(ctx, "ai.Summarize")
	defer span.End()
	span.SetAttributes(attribute.String("ai.provider", r.name), attribute.Int("ai.qa_count", len(qa)))

	if r.inner != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		body, err := r.inner.Summarize(callCtx, cfg, qa)
		cancel()
		if err == nil {
			return body, nil
		}
		slog.Warn("session summary degraded to fallback",
			"provider", r.name, "error", err.Error())
	}
	return FallbackSummary(), nil
}
