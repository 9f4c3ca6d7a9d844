// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package broadcast fans session events out to live WebSocket listeners.
// One process-scoped bus holds a set of connections per room; delivery is
// best-effort with no persistence, and a connection that fails a send is
// dropped after the delivering iteration.
package broadcast

import (
	"log/slog"
	"sync"
)

// Conn is the subset of *websocket.Conn the bus needs. Narrowed to an
// interface so bus tests run without real sockets.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Room returns the room id for a session.
func Room(sessionID string) string { return "session:" + sessionID }

// Bus is the per-room connection registry. Emits within one room are
// serialized by the mutex, which gives FIFO delivery per room.
type Bus struct {
	mu    sync.Mutex
	rooms map[string]map[Conn]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{rooms: make(map[string]map[Conn]struct{})}
}

// Join registers a connection in a room.
func (b *Bus) Join(room string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.rooms[room]
	if !ok {
		set = make(map[Conn]struct{})
		b.rooms[room] = set
	}
	set[conn] = struct{}{}
}

// Leave removes a connection from a room, dropping the room when empty.
func (b *Bus) Leave(room string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(room, conn)
}

func (b *Bus) removeLocked(room string, conn Conn) {
	set, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(b.rooms, room)
	}
}

// Emit delivers message to every subscriber of the room. A failed send marks
// the connection dead; dead connections are closed and removed after the
// iteration so delivery to the rest is not disturbed.
func (b *Bus) Emit(room string, message any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.rooms[room]
	if !ok {
		return
	}

	var dead []Conn
	for conn := range set {
		if err := conn.WriteJSON(message); err != nil {
			slog.Debug("reaping dead websocket subscriber",
				"room", room, "error", err.Error())
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		_ = conn.Close()
		b.removeLocked(room, conn)
	}
}

// Subscribers reports the live connection count of a room.
func (b *Bus) Subscribers(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[room])
}

// Shutdown closes every connection and empties the registry.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for room, set := range b.rooms {
		for conn := range set {
			_ = conn.Close()
		}
		delete(b.rooms, room)
	}
}
