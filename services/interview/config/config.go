// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the environment-driven settings for the interview
// service. Every value has a default so the service boots with no
// configuration at all (local development mode).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the full configuration for the interview service.
type Settings struct {
	// Port is the HTTP listen port.
	Port int

	// DBPath is the directory for BadgerDB files. Empty means in-memory
	// (development / tests only; nothing survives a restart).
	DBPath string

	// UploadDir is where media uploads are written.
	UploadDir string

	// AuthSecret signs every token the service mints. Change it in any
	// real deployment; rotating it invalidates all outstanding tokens.
	AuthSecret string

	CookieSecure   bool
	CookieDomain   string
	AllowedOrigins []string

	// AIProvider selects the question/analysis/summary backend:
	// "openai", "gemini", or "none" (deterministic fallback only).
	AIProvider   string
	OpenAIAPIKey string
	OpenAIModel  string
	GoogleAPIKey string
	GeminiModel  string

	// Per-provider call timeouts. On expiry the deterministic fallback
	// producers take over; a degraded provider never blocks a session.
	OpenAITimeout time.Duration
	GeminiTimeout time.Duration

	// Token lifetimes.
	TTLUser time.Duration
	TTLIST  time.Duration
	TTLWST  time.Duration
	TTLAIPT time.Duration
	TTLUPT  time.Duration
	TTLACET time.Duration

	// QuestionMinInterval is the per-session pacing floor between
	// consecutive next-question calls.
	QuestionMinInterval time.Duration

	// OTelEndpoint enables OTLP trace export when non-empty.
	OTelEndpoint string
}

// Load builds Settings from the environment.
func Load() Settings {
	return Settings{
		Port:       getEnvInt("INTERVIEW_PORT", 12310),
		DBPath:     os.Getenv("INTERVIEW_DB_PATH"),
		UploadDir:  getEnvString("INTERVIEW_UPLOAD_DIR", ".uploads"),
		AuthSecret: getEnvString("AUTH_SECRET", "change_this"),

		CookieSecure:   getEnvBool("COOKIE_SECURE", false),
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		AIProvider:   getEnvString("AI_PROVIDER", "openai"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
		GoogleAPIKey: os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:  getEnvString("GEMINI_MODEL", "gemini-1.5-flash"),

		OpenAITimeout: getEnvSeconds("OPENAI_TIMEOUT_SECONDS", 30),
		GeminiTimeout: getEnvSeconds("GEMINI_TIMEOUT_SECONDS", 25),

		TTLUser: getEnvSeconds("TTL_USER_JWT", 3600),
		TTLIST:  getEnvSeconds("TTL_IST", 900),
		TTLWST:  getEnvSeconds("TTL_WST", 900),
		TTLAIPT: getEnvAIPT(),
		TTLUPT:  getEnvSeconds("TTL_UPT", 1200),
		TTLACET: getEnvSeconds("TTL_ACET", 900),

		QuestionMinInterval: getEnvSeconds("QUESTION_MIN_INTERVAL_SECONDS", 5),

		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// getEnvAIPT resolves the AIPT lifetime. Older deployments set TTL_AUPT (a
// historical misspelling that shipped); both names are honored, TTL_AIPT
// winning when both are present.
func getEnvAIPT() time.Duration {
	if v := os.Getenv("TTL_AIPT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return getEnvSeconds("TTL_AUPT", 600)
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
