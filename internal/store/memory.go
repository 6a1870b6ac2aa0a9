package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
)

var _ Store = (*Memory)(nil)

// Memory keeps sessions in process memory. It backs tests and single-node
// deployments without a database; nothing survives a restart.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]engine.Session
	rooms    map[string]string // room code -> session ID
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]engine.Session),
		rooms:    make(map[string]string),
	}
}

func (m *Memory) Create(_ context.Context, s engine.Session) (engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return engine.Session{}, fmt.Errorf("%w: session %s already exists", engine.ErrConflict, s.ID)
	}
	if _, ok := m.rooms[s.RoomCode]; ok {
		return engine.Session{}, ErrRoomCodeTaken
	}
	if _, ok := m.activeByKey(sessionPairKey(s)); ok {
		return engine.Session{}, engine.ErrSessionExists
	}

	s = s.Clone()
	s.Version = 1
	m.sessions[s.ID] = s
	m.rooms[s.RoomCode] = s.ID
	return s.Clone(), nil
}

func (m *Memory) FindByRoomOrID(_ context.Context, ref string) (engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, code := refKeys(ref)
	if s, ok := m.sessions[id]; ok {
		return s.Clone(), nil
	}
	if sid, ok := m.rooms[code]; ok {
		return m.sessions[sid].Clone(), nil
	}
	return engine.Session{}, engine.ErrSessionNotFound
}

func (m *Memory) Save(_ context.Context, s engine.Session) (engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[s.ID]
	if !ok {
		return engine.Session{}, engine.ErrSessionNotFound
	}
	if cur.Version != s.Version {
		return engine.Session{}, engine.ErrStaleSession
	}
	if !s.Status.Terminal() {
		if other, ok := m.activeByKey(sessionPairKey(s)); ok && other.ID != s.ID {
			return engine.Session{}, engine.ErrSessionExists
		}
	}

	s = s.Clone()
	s.Version++
	m.sessions[s.ID] = s
	return s.Clone(), nil
}

func (m *Memory) FindActiveByParticipants(_ context.Context, a, b string) (engine.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.activeByKey(PairKey(a, b))
	if !ok {
		return engine.Session{}, false, nil
	}
	return s.Clone(), true, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) activeByKey(key string) (engine.Session, bool) {
	for _, s := range m.sessions {
		if !s.Status.Terminal() && sessionPairKey(s) == key {
			return s, true
		}
	}
	return engine.Session{}, false
}
