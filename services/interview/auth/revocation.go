// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"sync"
	"time"
)

// revokedEntry records why and until when a jti is denied.
type revokedEntry struct {
	RevokedAt time.Time
	Reason    string
	ExpiresAt time.Time
}

// RevocationList is the process-scoped set of revoked token ids. Entries
// carry a TTL at least as long as the longest token lifetime, so a revoked
// token stays revoked until it would have expired anyway.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]revokedEntry

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRevocationList creates an empty list. Call Start to begin background
// sweeping of expired entries and Stop at shutdown.
func NewRevocationList() *RevocationList {
	return &RevocationList{
		entries: make(map[string]revokedEntry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Revoke denies the jti for ttl. ttl must cover the token's remaining
// lifetime; a shorter value would resurrect the token before exp.
func (r *RevocationList) Revoke(jti, reason string, ttl time.Duration) {
	now := time.Now()
	r.mu.Lock()
	r.entries[jti] = revokedEntry{RevokedAt: now, Reason: reason, ExpiresAt: now.Add(ttl)}
	r.mu.Unlock()
}

// IsRevoked reports whether the jti is currently denied.
func (r *RevocationList) IsRevoked(jti string) bool {
	r.mu.RLock()
	e, ok := r.entries[jti]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Now().Before(e.ExpiresAt)
}

// Len returns the number of live entries (expired ones may still be counted
// until the next sweep).
func (r *RevocationList) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Start launches the background sweeper.
func (r *RevocationList) Start(interval time.Duration) {
	go r.run(interval)
}

// Stop halts the sweeper and waits for it to exit.
func (r *RevocationList) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *RevocationList) run(interval time.Duration) {
	defer close(r.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *RevocationList) sweep() {
	now := time.Now()
	r.mu.Lock()
	for jti, e := range r.entries {
		if now.After(e.ExpiresAt) {
			delete(r.entries, jti)
		}
	}
	r.mu.Unlock()
}
