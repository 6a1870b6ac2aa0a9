// Package lobby keeps the pre-game state of rooms that lives only in memory:
// who the host is and who has declared themselves ready. The hub goroutine
// owns it; nothing here is safe for concurrent use.
package lobby

import (
	"sort"
	"strings"
)

type Room struct {
	Code      string
	SessionID string
	Host      string
	ready     map[string]bool
}

// SetReady records userID's readiness and reports whether it changed.
func (r *Room) SetReady(userID string, ready bool) bool {
	if r.ready[userID] == ready {
		return false
	}
	if ready {
		r.ready[userID] = true
	} else {
		delete(r.ready, userID)
	}
	return true
}

// Ready returns a copy of the readiness map.
func (r *Room) Ready() map[string]bool {
	out := make(map[string]bool, len(r.ready))
	for id, ok := range r.ready {
		out[id] = ok
	}
	return out
}

func (r *Room) ReadyIDs() []string {
	ids := make([]string, 0, len(r.ready))
	for id := range r.ready {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllReady reports whether every one of userIDs is ready. Empty IDs (an
// unfilled seat) are never ready.
func (r *Room) AllReady(userIDs ...string) bool {
	if len(userIDs) == 0 {
		return false
	}
	for _, id := range userIDs {
		if id == "" || !r.ready[id] {
			return false
		}
	}
	return true
}

// Forget drops userID's readiness, e.g. when they leave.
func (r *Room) Forget(userID string) { delete(r.ready, userID) }

// Reset clears readiness once the game it gated has started.
func (r *Room) Reset() { clear(r.ready) }

type Rooms struct {
	rooms map[string]*Room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*Room)}
}

func normalize(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// Ensure returns the room for code, creating it if needed. The host of an
// existing room is not changed.
func (rs *Rooms) Ensure(code, sessionID, host string) *Room {
	code = normalize(code)
	if r, ok := rs.rooms[code]; ok {
		return r
	}
	r := &Room{Code: code, SessionID: sessionID, Host: host, ready: make(map[string]bool)}
	rs.rooms[code] = r
	return r
}

func (rs *Rooms) Get(code string) (*Room, bool) {
	r, ok := rs.rooms[normalize(code)]
	return r, ok
}

func (rs *Rooms) Remove(code string) { delete(rs.rooms, normalize(code)) }

func (rs *Rooms) Len() int { return len(rs.rooms) }
