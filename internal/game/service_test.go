package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
	"github.com/DoyleJ11/bingo-backend/internal/store"
)

var (
	alice = engine.Participant{ID: "u1", Username: "alice"}
	bob   = engine.Participant{ID: "u2", Username: "bob"}
	carol = engine.Participant{ID: "u3", Username: "carol"}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// rowBoard lays out offset+1 .. offset+25 row by row with the center FREE.
func rowBoard(offset int) engine.Board {
	var b engine.Board
	for r := 0; r < engine.BoardSize; r++ {
		for c := 0; c < engine.BoardSize; c++ {
			b[r][c] = engine.Num(offset + r*engine.BoardSize + c + 1)
		}
	}
	b[2][2] = engine.Free()
	return b
}

func alternating() engine.BoardGenerator {
	i := 0
	return func(engine.NumberRange) (engine.Board, error) {
		b := rowBoard(25 * (i % 2))
		i++
		return b, nil
	}
}

func newTestService(t *testing.T, pattern engine.Pattern) (*Service, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	rules := engine.DefaultRules()
	rules.Pattern = pattern
	svc := NewService(store.NewMemory(), Config{Rules: rules, InvitationTTL: 24 * time.Hour}, zaptest.NewLogger(t),
		WithClock(c.Now),
		WithBoardGenerator(alternating()),
	)
	return svc, c
}

func TestService_CreateAcceptActivates(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService(t, engine.PatternLine)

	sess, err := svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, sess.Status)
	assert.Len(t, sess.RoomCode, 6)

	c.Advance(time.Minute)
	res, err := svc.Accept(ctx, sess.RoomCode, bob)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, engine.StatusActive, res.Session.Status)
	require.NotNil(t, res.Session.StartedAt)
	assert.Equal(t, c.Now(), *res.Session.StartedAt)
}

func TestService_CreateConflictsWithUnfinishedGame(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, engine.PatternLine)

	_, err := svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	require.NoError(t, err)

	_, err = svc.Create(ctx, bob, CreateOptions{Opponent: alice})
	assert.ErrorIs(t, err, engine.ErrConflict)

	_, err = svc.Create(ctx, alice, CreateOptions{Opponent: carol})
	assert.NoError(t, err)
}

func TestService_CreateRetriesRoomCodeCollision(t *testing.T) {
	ctx := context.Background()
	codes := []string{"SAME01", "SAME01", "OTHER1"}
	i := 0
	svc := NewService(store.NewMemory(), Config{Rules: engine.DefaultRules()}, zaptest.NewLogger(t),
		WithRoomCodes(func() (string, error) {
			code := codes[i]
			i++
			return code, nil
		}),
	)

	first, err := svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	require.NoError(t, err)
	second, err := svc.Create(ctx, alice, CreateOptions{Opponent: carol})
	require.NoError(t, err)

	assert.Equal(t, "SAME01", first.RoomCode)
	assert.Equal(t, "OTHER1", second.RoomCode)
}

func TestService_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService(t, engine.PatternLine)

	sess, err := svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	require.NoError(t, err)

	c.Advance(25 * time.Hour)

	loaded, err := svc.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, loaded.Status)
	assert.Equal(t, engine.ReasonExpired, loaded.CancelReason)

	_, err = svc.Accept(ctx, sess.ID, bob)
	assert.ErrorIs(t, err, engine.ErrExpired)

	// The pair is free to play again.
	_, err = svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	assert.NoError(t, err)
}

func TestService_CreateReplacesLapsedInvitation(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService(t, engine.PatternLine)

	old, err := svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	require.NoError(t, err)

	c.Advance(25 * time.Hour)

	// Nobody opened the old room; creating again must still succeed.
	fresh, err := svc.Create(ctx, bob, CreateOptions{Opponent: alice})
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, engine.StatusPending, fresh.Status)

	loaded, err := svc.Load(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, loaded.Status)
	assert.Equal(t, engine.ReasonExpired, loaded.CancelReason)
}

func TestService_CallNumberFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, engine.PatternLine)

	sess, err := svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, sess.ID, bob)
	require.NoError(t, err)

	res, err := svc.CallNumber(ctx, sess.ID, alice, 7)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, engine.SeatSecond, res.Session.Turn)

	// Retried call out of turn is rejected without touching the game.
	_, err = svc.CallNumber(ctx, sess.ID, alice, 7)
	assert.ErrorIs(t, err, engine.ErrWrongTurn)

	// The other player repeating the number is a silent no-op.
	dup, err := svc.CallNumber(ctx, sess.ID, bob, 7)
	require.NoError(t, err)
	assert.False(t, dup.Accepted)
	assert.False(t, dup.Changed)

	stored, err := svc.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Calls, 1)
	assert.Equal(t, engine.SeatSecond, stored.Turn)
}

func TestService_WinCompletesGame(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService(t, engine.PatternLine)

	sess, err := svc.Create(ctx, alice, CreateOptions{Opponent: bob})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, sess.ID, bob)
	require.NoError(t, err)

	calls := []struct {
		who engine.Participant
		n   int
	}{{alice, 1}, {bob, 26}, {alice, 2}, {bob, 27}, {alice, 3}, {bob, 28}, {alice, 4}, {bob, 29}}
	for _, call := range calls {
		c.Advance(time.Second)
		res, err := svc.CallNumber(ctx, sess.ID, call.who, call.n)
		require.NoError(t, err)
		require.True(t, res.Accepted)
		require.False(t, res.Completed())
	}

	check, err := svc.CheckWin(ctx, sess.ID, alice, nil)
	require.NoError(t, err)
	assert.False(t, check.Won)
	assert.Equal(t, 0, check.Lines)

	res, err := svc.CallNumber(ctx, sess.ID, alice, 5)
	require.NoError(t, err)
	assert.True(t, res.Completed())
	assert.Equal(t, engine.StatusCompleted, res.Session.Status)
	assert.Equal(t, alice.ID, res.Session.Winner)
	assert.Equal(t, 8*time.Second, res.Session.Duration())

	check, err = svc.CheckWin(ctx, sess.ID, alice, nil)
	require.NoError(t, err)
	assert.True(t, check.Won)
	assert.Equal(t, 1, check.Lines)

	other := rowBoard(50)
	check, err = svc.CheckWin(ctx, sess.ID, bob, &other)
	require.NoError(t, err)
	assert.False(t, check.Won)
	assert.True(t, check.BoardMismatch)

	_, err = svc.CheckWin(ctx, sess.ID, carol, nil)
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)
}

func TestService_UnknownGame(t *testing.T) {
	svc, _ := newTestService(t, engine.PatternLine)
	_, err := svc.Accept(context.Background(), "NOPE00", bob)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
