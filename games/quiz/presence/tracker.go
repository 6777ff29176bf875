/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package presence tracks which connections are live in each room.
//
// A player may hold several connections (tabs, devices) and keeps their place
// in a room across reconnects, so presence is tracked per connection and
// folded into per-player online/offline state.
package presence

import (
	"sort"
	"sync"
	"time"
)

type room struct {
	conns   map[string]string // connID -> playerID
	offline map[string]time.Time
}

type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]*room

	now func() time.Time
}

func New() *Tracker {
	return &Tracker{
		rooms: make(map[string]*room),
		now:   time.Now,
	}
}

func (t *Tracker) roomLocked(code string) *room {
	r, ok := t.rooms[code]
	if !ok {
		r = &room{
			conns:   make(map[string]string),
			offline: make(map[string]time.Time),
		}
		t.rooms[code] = r
	}

	return r
}

// Connect records a live connection for playerID in the room.
func (t *Tracker) Connect(code, playerID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.roomLocked(code)
	r.conns[connID] = playerID
	delete(r.offline, playerID)
}

// Disconnect drops a connection. offline is true when it was the player's
// last live connection in the room.
func (t *Tracker) Disconnect(code, connID string) (playerID string, offline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rooms[code]
	if !ok {
		return "", false
	}

	playerID, ok = r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)

	for _, p := range r.conns {
		if p == playerID {
			return playerID, false
		}
	}

	r.offline[playerID] = t.now()

	return playerID, true
}

func (t *Tracker) IsOnline(code, playerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rooms[code]
	if !ok {
		return false
	}

	for _, p := range r.conns {
		if p == playerID {
			return true
		}
	}

	return false
}

// OnlineCount returns the number of live connections in the room.
func (t *Tracker) OnlineCount(code string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rooms[code]
	if !ok {
		return 0
	}

	return len(r.conns)
}

// OnlinePlayers returns the sorted ids of players with a live connection.
func (t *Tracker) OnlinePlayers(code string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rooms[code]
	if !ok {
		return nil
	}

	seen := make(map[string]bool, len(r.conns))
	out := make([]string, 0, len(r.conns))
	for _, p := range r.conns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)

	return out
}

// OfflineFor reports how long the player has been without a live connection.
// ok is false if the player is online or unknown to the room.
func (t *Tracker) OfflineFor(code, playerID string) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rooms[code]
	if !ok {
		return 0, false
	}

	since, ok := r.offline[playerID]
	if !ok {
		return 0, false
	}

	return t.now().Sub(since), true
}

// LastOffline reports how long ago the most recent player in the room went
// offline. ok is false if no player is offline.
func (t *Tracker) LastOffline(code string) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rooms[code]
	if !ok || len(r.offline) == 0 {
		return 0, false
	}

	var latest time.Time
	for _, since := range r.offline {
		if since.After(latest) {
			latest = since
		}
	}

	return t.now().Sub(latest), true
}

// Forget removes every trace of a player from the room.
func (t *Tracker) Forget(code, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rooms[code]
	if !ok {
		return
	}

	for c, p := range r.conns {
		if p == playerID {
			delete(r.conns, c)
		}
	}
	delete(r.offline, playerID)
}

// Drop discards all presence for a destroyed room.
func (t *Tracker) Drop(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.rooms, code)
}
