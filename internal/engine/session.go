package engine

import (
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

type CancelReason string

const (
	ReasonDeclined  CancelReason = "declined"
	ReasonCancelled CancelReason = "cancelled"
	ReasonExpired   CancelReason = "expired"
)

const DefaultInvitationTTL = 24 * time.Hour

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Rules are fixed once the game starts.
type Rules struct {
	Pattern       Pattern     `json:"pattern"`
	RequiredLines int         `json:"required_lines"`
	Numbers       NumberRange `json:"numbers"`
	SharedBoard   bool        `json:"shared_board"`
	Solo          bool        `json:"solo"`
}

func (r Rules) Validate() error {
	if _, err := ParsePattern(string(r.Pattern)); err != nil {
		return err
	}
	if r.RequiredLines < 0 || r.RequiredLines > 2*BoardSize+2 {
		return fmt.Errorf("%w: required lines must be between 0 and %d", ErrInvalidAction, 2*BoardSize+2)
	}
	return r.Numbers.Validate()
}

type Call struct {
	Number   int       `json:"number"`
	CalledBy string    `json:"called_by"`
	Seat     Seat      `json:"seat"`
	At       time.Time `json:"at"`
}

// Session is one game. Boards[SeatFirst] and Boards[SeatSecond] are equal in
// shared-board mode. An open session has no Second participant yet.
type Session struct {
	ID           string       `json:"id"`
	RoomCode     string       `json:"room"`
	First        Participant  `json:"first"`
	Second       Participant  `json:"second"`
	Status       Status       `json:"status"`
	CancelReason CancelReason `json:"cancel_reason,omitempty"`
	Rules        Rules        `json:"rules"`
	Boards       [2]Board     `json:"boards"`
	Calls        []Call       `json:"calls"`
	Turn         Seat         `json:"turn"`
	Lines        [2]int       `json:"lines"`
	Winner       string       `json:"winner,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Version      int64        `json:"version"`
}

func (s Session) Clone() Session {
	c := s
	c.Calls = slices.Clone(s.Calls)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func (s Session) IsOpen() bool { return s.Second.ID == "" }

func (s Session) Called() map[int]bool {
	called := make(map[int]bool, len(s.Calls))
	for _, c := range s.Calls {
		called[c.Number] = true
	}
	return called
}

func (s Session) HasCalled(n int) bool {
	return slices.ContainsFunc(s.Calls, func(c Call) bool { return c.Number == n })
}

// Duration is the time between start and completion, zero until both exist.
func (s Session) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

func (s Session) expired(now time.Time) bool {
	return s.Status == StatusPending && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
