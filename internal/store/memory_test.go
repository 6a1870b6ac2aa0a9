package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
)

var (
	alice = engine.Participant{ID: "u1", Username: "alice"}
	bob   = engine.Participant{ID: "u2", Username: "bob"}
	carol = engine.Participant{ID: "u3", Username: "carol"}
)

func newSession(t *testing.T, id, code string, owner, opponent engine.Participant) engine.Session {
	t.Helper()
	s, err := engine.NewSession(engine.NewSessionParams{
		ID:       id,
		RoomCode: code,
		Owner:    owner,
		Opponent: opponent,
		Rules:    engine.DefaultRules(),
	}, nil, time.Now())
	require.NoError(t, err)
	return s
}

func TestMemory_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.Create(ctx, newSession(t, "0f1c7a52-5c4e-4f0e-9d1e-3b7c6c1d2a10", "ABC123", alice, bob))
	require.NoError(t, err)
	assert.EqualValues(t, 1, created.Version)

	byCode, err := m.FindByRoomOrID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCode.ID)

	byID, err := m.FindByRoomOrID(ctx, " 0F1C7A52-5C4E-4F0E-9D1E-3B7C6C1D2A10 ")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", byID.RoomCode)

	_, err = m.FindByRoomOrID(ctx, "NOPE")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestMemory_OneUnfinishedGamePerPair(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.Create(ctx, newSession(t, "g1", "AAAAAA", alice, bob))
	require.NoError(t, err)

	// Same pair in the other seat order is still the same pair.
	_, err = m.Create(ctx, newSession(t, "g2", "BBBBBB", bob, alice))
	assert.ErrorIs(t, err, engine.ErrSessionExists)
	assert.ErrorIs(t, err, engine.ErrConflict)

	_, err = m.Create(ctx, newSession(t, "g3", "CCCCCC", alice, carol))
	require.NoError(t, err)

	found, ok, err := m.FindActiveByParticipants(ctx, "u2", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, found.ID)

	// Once the first game ends the pair may start another.
	_, ended, err := engine.Apply(first, engine.Command{Type: engine.CmdCancel, Actor: alice}, time.Now())
	require.NoError(t, err)
	_, err = m.Save(ctx, ended)
	require.NoError(t, err)

	_, ok, err = m.FindActiveByParticipants(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Create(ctx, newSession(t, "g4", "DDDDDD", bob, alice))
	assert.NoError(t, err)
}

func TestMemory_SaveRejectsLostUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s, err := m.Create(ctx, newSession(t, "g1", "AAAAAA", alice, bob))
	require.NoError(t, err)

	_, accepted, err := engine.Apply(s, engine.Command{Type: engine.CmdAccept, Actor: bob}, time.Now())
	require.NoError(t, err)

	saved, err := m.Save(ctx, accepted)
	require.NoError(t, err)
	assert.EqualValues(t, 2, saved.Version)

	// A second writer holding the old version loses.
	_, err = m.Save(ctx, accepted)
	assert.ErrorIs(t, err, engine.ErrStaleSession)

	_, err = m.Save(ctx, engine.Session{ID: "missing"})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestMemory_RoomCodeCollision(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Create(ctx, newSession(t, "g1", "AAAAAA", alice, bob))
	require.NoError(t, err)
	_, err = m.Create(ctx, newSession(t, "g2", "AAAAAA", alice, carol))
	assert.ErrorIs(t, err, ErrRoomCodeTaken)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s, err := m.Create(ctx, newSession(t, "g1", "AAAAAA", alice, bob))
	require.NoError(t, err)
	s.Calls = append(s.Calls, engine.Call{Number: 9})

	again, err := m.FindByRoomOrID(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, again.Calls)
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
	assert.Equal(t, "a|", PairKey("a", ""))
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}

func TestGenerateRoomCode(t *testing.T) {
	code, err := GenerateRoomCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
}
