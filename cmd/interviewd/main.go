// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command interviewd starts the AleutianInterview session server.
//
// Configuration is environment-driven; every variable has a default so the
// server boots with no configuration at all (in-memory store, deterministic
// AI fallbacks).
//
// # Environment Variables
//
//   - INTERVIEW_PORT: HTTP server port (default: 12310)
//   - INTERVIEW_DB_PATH: BadgerDB directory; empty means in-memory
//   - INTERVIEW_UPLOAD_DIR: media upload directory (default: .uploads)
//   - AUTH_SECRET: HMAC secret for all minted tokens
//   - AI_PROVIDER: openai, gemini, or none (default: openai)
//   - OPENAI_API_KEY / GOOGLE_API_KEY: provider credentials
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	go build -o interviewd ./cmd/interviewd
//	./interviewd
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianInterview/services/interview"
	"github.com/AleutianAI/AleutianInterview/services/interview/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	settings := config.Load()
	slog.Info("starting interview service",
		"port", settings.Port,
		"ai_provider", settings.AIProvider,
		"db_path", settings.DBPath,
	)

	svc, err := interview.New(settings, logger)
	if err != nil {
		log.Fatalf("Failed to create interview service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("Interview service error: %v", err)
	}
}
