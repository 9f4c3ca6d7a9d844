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
	"log/slog"
	"time"
)

// Options selects and configures the concrete provider.
type Options struct {
	Provider    string // "openai" or "gemini"; anything else is fallback-only
	OpenAIKey   string
	OpenAIModel string
	GoogleKey   string
	GeminiModel string

	OpenAITimeout time.Duration
	GeminiTimeout time.Duration
}

// New builds the resilient provider for the configured backend. A missing
// key or unknown provider name degrades to fallback-only operation instead
// of failing startup; the interview must run without AI credentials.
func New(opts Options) *Resilient {
	switch opts.Provider {
	case "openai":
		if p, err := NewOpenAIProvider(opts.OpenAIKey, opts.OpenAIModel); err == nil {
			return NewResilient(p, "openai", opts.OpenAITimeout)
		} else {
			slog.Warn("openai provider unavailable, using deterministic fallback", "error", err.Error())
		}
	case "gemini":
		if p, err := NewGeminiProvider(opts.GoogleKey, opts.GeminiModel, opts.GeminiTimeout); err == nil {
			return NewResilient(p, "gemini", opts.GeminiTimeout)
		} else {
			slog.Warn("gemini provider unavailable, using deterministic fallback", "error", err.Error())
		}
	default:
		slog.Info("no AI provider configured, using deterministic fallback", "provider", opts.Provider)
	}
	return NewResilient(nil, "fallback", 0)
}
