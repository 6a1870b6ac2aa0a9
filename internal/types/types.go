// Package types holds the JSON frames exchanged over the realtime socket.
package types

import (
	"time"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
)

type ClientMessage struct {
	Type      string `json:"type"`
	Room      string `json:"room,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// create-game
	OpponentID   string `json:"opponent_id,omitempty"`
	OpponentName string `json:"opponent_name,omitempty"`
	Solo         bool   `json:"solo,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	SharedBoard  bool   `json:"shared_board,omitempty"`

	Number int           `json:"number,omitempty"`
	Ready  bool          `json:"ready,omitempty"`
	Text   string        `json:"text,omitempty"`
	Typing bool          `json:"typing,omitempty"`
	Board  *engine.Board `json:"board,omitempty"`
}

type ServerMessage struct {
	Type      string     `json:"type"`
	Room      string     `json:"room,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// GameView is what clients see of a session. Boards are only included once
// the game has started or for the participants themselves.
type GameView struct {
	ID          string              `json:"id"`
	Room        string              `json:"room"`
	Status      engine.Status       `json:"status"`
	Reason      engine.CancelReason `json:"cancel_reason,omitempty"`
	First       User                `json:"first"`
	Second      *User               `json:"second,omitempty"`
	Rules       engine.Rules        `json:"rules"`
	Boards      []engine.Board      `json:"boards,omitempty"`
	Called      []int               `json:"called"`
	Turn        engine.Seat         `json:"turn"`
	Lines       [2]int              `json:"lines"`
	Winner      string              `json:"winner,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	DurationMS  int64               `json:"duration_ms,omitempty"`
}

func NewGameView(s engine.Session, withBoards bool) GameView {
	v := GameView{
		ID:          s.ID,
		Room:        s.RoomCode,
		Status:      s.Status,
		Reason:      s.CancelReason,
		First:       User{ID: s.First.ID, Username: s.First.Username},
		Rules:       s.Rules,
		Called:      make([]int, 0, len(s.Calls)),
		Turn:        s.Turn,
		Lines:       s.Lines,
		Winner:      s.Winner,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		DurationMS:  s.Duration().Milliseconds(),
	}
	if !s.IsOpen() {
		v.Second = &User{ID: s.Second.ID, Username: s.Second.Username}
	}
	for _, c := range s.Calls {
		v.Called = append(v.Called, c.Number)
	}
	if withBoards {
		v.Boards = []engine.Board{s.Boards[engine.SeatFirst], s.Boards[engine.SeatSecond]}
	}
	return v
}

type RoomJoined struct {
	Game    GameView `json:"game"`
	Members []User   `json:"members"`
	Host    string   `json:"host"`
	Ready   []string `json:"ready"`
}

type PlayerEvent struct {
	User User `json:"user"`
}

type ReadyStatus struct {
	User     User `json:"user"`
	Ready    bool `json:"ready"`
	AllReady bool `json:"all_ready"`
}

type SettingsUpdated struct {
	Rules engine.Rules `json:"rules"`
}

type NumberCalled struct {
	Number        int         `json:"number"`
	CalledBy      string      `json:"called_by"`
	HistoryLength int         `json:"history_length"`
	NextTurn      engine.Seat `json:"next_turn"`
	NextPlayer    string      `json:"next_player"`
	Lines         [2]int      `json:"lines"`
}

type NumberRejected struct {
	Number int    `json:"number"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type WinCheckResult struct {
	Seat          engine.Seat `json:"seat"`
	Lines         int         `json:"lines"`
	Won           bool        `json:"won"`
	BoardMismatch bool        `json:"board_mismatch,omitempty"`
}

type GameCompleted struct {
	Winner     User   `json:"winner"`
	DurationMS int64  `json:"duration_ms"`
	Lines      [2]int `json:"lines"`
	Called     int    `json:"called"`
}

type GameCancelled struct {
	Reason engine.CancelReason `json:"reason"`
	By     string              `json:"by,omitempty"`
}

type ChatMessage struct {
	User   User      `json:"user"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type Typing struct {
	User   User `json:"user"`
	Typing bool `json:"typing"`
}

// Invitation is sent point-to-point: the game to the invited user, and the
// answer back to the inviter.
type Invitation struct {
	Room string    `json:"room"`
	User User      `json:"user"`
	Game *GameView `json:"game,omitempty"`
}
