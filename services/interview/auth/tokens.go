// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth mints and verifies the short-lived HS256 tokens that
// authorize every client action, checks capability scopes, and tracks
// revoked token ids.
//
// # Audiences
//
// Each surface of the API verifies against its own audience so a token can
// never be replayed across surfaces:
//
//	user-api       candidate REST token
//	session        session cookie
//	interview-api  IST, session-bound
//	interview-ws   WST, WebSocket upgrade
//	ai-proxy       AIPT, question generation only
//	upload         UPT, media ingest
//	anti-cheat     ACET, event emission
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token audiences.
const (
	AudienceUser      = "user-api"
	AudienceSession   = "session"
	AudienceInterview = "interview-api"
	AudienceWS        = "interview-ws"
	AudienceAIProxy   = "ai-proxy"
	AudienceUpload    = "upload"
	AudienceAntiCheat = "anti-cheat"
)

// Verification failures, surfaced verbatim as 401 error codes.
var (
	ErrMissingBearer = errors.New("missing_bearer")
	ErrTokenExpired  = errors.New("token_expired")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrTokenRevoked  = errors.New("token_revoked")
	ErrMissingSession = errors.New("missing_session")
)

// Extras are the audience-specific claims some tokens carry (AIPT carries
// all three; the creation-time IST carries only RemainingQuestions).
type Extras struct {
	RemainingQuestions *int     `json:"remainingQuestions,omitempty"`
	Modes              []string `json:"modes,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`
}

// Claims is the signed token payload.
type Claims struct {
	Role      string   `json:"role"`
	Scope     []string `json:"scope"`
	SessionID string   `json:"sessionId,omitempty"`
	DeviceID  string   `json:"deviceId,omitempty"`
	IPHash    string   `json:"ipHash,omitempty"`

	RemainingQuestions *int     `json:"remainingQuestions,omitempty"`
	Modes              []string `json:"modes,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`

	jwt.RegisteredClaims
}

// MintParams describes one token to mint.
type MintParams struct {
	Sub       string
	Role      string
	Scopes    []string
	Audience  string
	SessionID string
	DeviceID  string
	IPHash    string
	TTL       time.Duration
	Extras    *Extras
}

// Minter signs and verifies tokens with a shared HMAC secret. Tokens are
// stateless; revocation is handled by the jti set passed at construction.
type Minter struct {
	secret     []byte
	revocation *RevocationList
	now        func() time.Time
}

// NewMinter creates a Minter. revocation may be nil (no revocation checks).
func NewMinter(secret string, revocation *RevocationList) *Minter {
	return &Minter{
		secret:     []byte(secret),
		revocation: revocation,
		now:        time.Now,
	}
}

// Mint signs a token for the given parameters. jti is always a fresh UUID.
func (m *Minter) Mint(p MintParams) (string, error) {
	if p.TTL <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := m.now()
	claims := Claims{
		Role:      p.Role,
		Scope:     p.Scopes,
		SessionID: p.SessionID,
		DeviceID:  p.DeviceID,
		IPHash:    p.IPHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Sub,
			Audience:  jwt.ClaimStrings{p.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			ID:        uuid.New().String(),
		},
	}
	if p.Extras != nil {
		claims.RemainingQuestions = p.Extras.RemainingQuestions
		claims.Modes = p.Extras.Modes
		claims.Difficulty = p.Extras.Difficulty
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify parses and validates a token. When audience is non-empty the token
// must carry it; exp and iat are always required. Returns ErrTokenExpired,
// ErrInvalidToken, or ErrTokenRevoked on failure.
func (m *Minter) Verify(token, audience string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	// WithIssuedAt only validates iat when present; the payload contract
	// requires it outright.
	if claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	if m.revocation != nil && claims.ID != "" && m.revocation.IsRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
