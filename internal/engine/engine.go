package engine

import (
	"errors"
	"fmt"
	"time"
)

type CommandType string

const (
	CmdJoin       CommandType = "Join"
	CmdAccept     CommandType = "Accept"
	CmdDecline    CommandType = "Decline"
	CmdCancel     CommandType = "Cancel"
	CmdStart      CommandType = "Start"
	CmdCallNumber CommandType = "CallNumber"
	CmdSetPattern CommandType = "SetPattern"
)

/*
	CmdJoin       -> EvtPlayerSeated
	CmdAccept     -> EvtGameStarted
	CmdStart      -> EvtGameStarted (host, everyone ready)
	CmdDecline    -> EvtGameDeclined
	CmdCancel     -> EvtGameCancelled
	CmdCallNumber -> EvtNumberCalled -> EvtTurnAdvanced -> EvtGameCompleted?
	CmdSetPattern -> EvtPatternChanged
	Expire        -> EvtGameExpired (lazy, on access)
*/

type Command struct {
	Type    CommandType
	Actor   Participant
	Number  int
	Pattern Pattern
	// Ready is the room's readiness by participant ID, only read by CmdStart.
	Ready map[string]bool
}

type EventType string

const (
	EvtPlayerSeated   EventType = "PlayerSeated"
	EvtGameStarted    EventType = "GameStarted"
	EvtGameDeclined   EventType = "GameDeclined"
	EvtGameCancelled  EventType = "GameCancelled"
	EvtGameExpired    EventType = "GameExpired"
	EvtNumberCalled   EventType = "NumberCalled"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtGameCompleted  EventType = "GameCompleted"
	EvtPatternChanged EventType = "PatternChanged"
)

type Event struct {
	Type    EventType
	Seat    Seat
	ActorID string
	Number  int
}

type NewSessionParams struct {
	ID       string
	RoomCode string
	Owner    Participant
	// Opponent is left zero for an open game or a solo game.
	Opponent      Participant
	Rules         Rules
	InvitationTTL time.Duration
}

// NewSession deals boards and returns a pending session owned by p.Owner.
func NewSession(p NewSessionParams, gen BoardGenerator, now time.Time) (Session, error) {
	if p.Owner.ID == "" {
		return Session{}, fmt.Errorf("%w: owner is required", ErrInvalidAction)
	}
	if p.Rules.Solo {
		p.Opponent = p.Owner
	} else if p.Opponent.ID == p.Owner.ID {
		return Session{}, fmt.Errorf("%w: cannot invite yourself", ErrInvalidAction)
	}
	if err := p.Rules.Validate(); err != nil {
		return Session{}, err
	}
	if p.Rules.Pattern == PatternLines && p.Rules.RequiredLines == 0 {
		p.Rules.RequiredLines = DefaultRequiredLines
	}
	if p.InvitationTTL <= 0 {
		p.InvitationTTL = DefaultInvitationTTL
	}
	if gen == nil {
		gen = RandomBoard
	}

	s := Session{
		ID:        p.ID,
		RoomCode:  p.RoomCode,
		First:     p.Owner,
		Second:    p.Opponent,
		Status:    StatusPending,
		Rules:     p.Rules,
		Turn:      SeatFirst,
		CreatedAt: now,
		ExpiresAt: now.Add(p.InvitationTTL),
	}

	first, err := gen(p.Rules.Numbers)
	if err != nil {
		return Session{}, err
	}
	if err := first.Validate(p.Rules.Numbers); err != nil {
		return Session{}, err
	}
	s.Boards[SeatFirst] = first
	s.Boards[SeatSecond] = first

	if !p.Rules.SharedBoard {
		second, err := gen(p.Rules.Numbers)
		if err != nil {
			return Session{}, err
		}
		if err := second.Validate(p.Rules.Numbers); err != nil {
			return Session{}, err
		}
		s.Boards[SeatSecond] = second
	}
	return s, nil
}

// Apply validates cmd against s and returns the resulting events and state.
// On error the returned state is s, unchanged.
func Apply(s Session, cmd Command, now time.Time) ([]Event, Session, error) {
	actor := cmd.Actor.ID

	if cmd.Type != CmdCancel {
		if s.expired(now) || (s.Status == StatusCancelled && s.CancelReason == ReasonExpired) {
			return nil, s, ErrExpired
		}
	}

	switch cmd.Type {
	case CmdJoin:
		if s.IsParticipant(actor) {
			return nil, s, nil
		}
		if err := requireStatus(s, StatusPending); err != nil {
			return nil, s, err
		}
		if !s.IsOpen() {
			return nil, s, ErrSeatTaken
		}
		if actor == "" {
			return nil, s, ErrNotParticipant
		}

		next := s.Clone()
		next.Second = cmd.Actor
		return []Event{{Type: EvtPlayerSeated, Seat: SeatSecond, ActorID: actor}}, next, nil

	case CmdAccept:
		if !s.IsParticipant(actor) {
			return nil, s, ErrNotParticipant
		}
		if err := requireStatus(s, StatusPending); err != nil {
			return nil, s, err
		}
		if s.IsOpen() {
			return nil, s, ErrWaitingForOpponent
		}
		if s.Second.ID != actor {
			return nil, s, ErrNotInvitee
		}
		return activate(s, actor, now)

	case CmdStart:
		if !s.IsParticipant(actor) {
			return nil, s, ErrNotParticipant
		}
		if s.First.ID != actor {
			return nil, s, ErrNotHost
		}
		if err := requireStatus(s, StatusPending); err != nil {
			return nil, s, err
		}
		if s.IsOpen() {
			return nil, s, ErrWaitingForOpponent
		}
		if !cmd.Ready[s.First.ID] || !cmd.Ready[s.Second.ID] {
			return nil, s, ErrPlayersNotReady
		}
		return activate(s, actor, now)

	case CmdDecline:
		if !s.IsParticipant(actor) {
			return nil, s, ErrNotParticipant
		}
		if err := requireStatus(s, StatusPending); err != nil {
			return nil, s, err
		}
		if s.Second.ID != actor {
			return nil, s, ErrNotInvitee
		}

		next := s.Clone()
		next.Status = StatusCancelled
		next.CancelReason = ReasonDeclined
		return []Event{{Type: EvtGameDeclined, Seat: SeatSecond, ActorID: actor}}, next, nil

	case CmdCancel:
		if !s.IsParticipant(actor) {
			return nil, s, ErrNotParticipant
		}
		if s.First.ID != actor {
			return nil, s, ErrNotHost
		}
		switch s.Status {
		case StatusCompleted:
			return nil, s, ErrGameAlreadyCompleted
		case StatusCancelled:
			return nil, s, ErrGameCancelled
		}

		next := s.Clone()
		next.Status = StatusCancelled
		next.CancelReason = ReasonCancelled
		return []Event{{Type: EvtGameCancelled, Seat: SeatFirst, ActorID: actor}}, next, nil

	case CmdCallNumber:
		if !s.IsParticipant(actor) {
			return nil, s, ErrNotParticipant
		}
		if err := requireStatus(s, StatusActive); err != nil {
			return nil, s, err
		}
		if !s.HoldsTurn(actor) {
			return nil, s, ErrWrongTurn
		}
		if !s.Rules.Numbers.Contains(cmd.Number) {
			return nil, s, ErrNumberOutOfRange
		}
		if s.HasCalled(cmd.Number) {
			return nil, s, ErrDuplicateNumber
		}

		seat := s.Turn
		next := s.Clone()
		next.Calls = append(next.Calls, Call{Number: cmd.Number, CalledBy: actor, Seat: seat, At: now})
		next.Turn = seat.Other()

		events := []Event{
			{Type: EvtNumberCalled, Seat: seat, ActorID: actor, Number: cmd.Number},
			{Type: EvtTurnAdvanced, Seat: next.Turn},
		}
		evalEvents, next := Evaluate(next, seat, now)
		return append(events, evalEvents...), next, nil

	case CmdSetPattern:
		if !s.IsParticipant(actor) {
			return nil, s, ErrNotParticipant
		}
		if s.First.ID != actor {
			return nil, s, ErrNotHost
		}
		if err := requireStatus(s, StatusPending); err != nil {
			return nil, s, err
		}
		pattern, err := ParsePattern(string(cmd.Pattern))
		if err != nil {
			return nil, s, err
		}
		if pattern == s.Rules.Pattern {
			return nil, s, nil
		}

		next := s.Clone()
		next.Rules.Pattern = pattern
		if pattern == PatternLines && next.Rules.RequiredLines == 0 {
			next.Rules.RequiredLines = DefaultRequiredLines
		}
		return []Event{{Type: EvtPatternChanged, ActorID: actor}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// CallNumber applies a call. A number that was already called is not an
// error: it returns false and s unchanged, so a client retrying after a lost
// acknowledgement gets a clean no-op.
func CallNumber(s Session, actor Participant, number int, now time.Time) (bool, Session, []Event, error) {
	events, next, err := Apply(s, Command{Type: CmdCallNumber, Actor: actor, Number: number}, now)
	if errors.Is(err, ErrDuplicateNumber) {
		return false, s, nil, nil
	}
	if err != nil {
		return false, s, nil, err
	}
	return true, next, events, nil
}

// Evaluate recomputes completed lines for both seats from the call history. If
// the game is active and a board satisfies the win pattern the game completes;
// acting is checked first so it wins when both boards complete on one call.
func Evaluate(s Session, acting Seat, now time.Time) ([]Event, Session) {
	next := s.Clone()
	called := s.Called()
	for _, seat := range []Seat{SeatFirst, SeatSecond} {
		next.Lines[seat] = CompletedLines(s.Boards[seat], called)
	}

	if next.Status != StatusActive || next.Winner != "" {
		return nil, next
	}

	for _, seat := range []Seat{acting, acting.Other()} {
		if !s.Rules.Pattern.Wins(s.Boards[seat], called, s.Rules.RequiredLines) {
			continue
		}
		winner := s.Participant(seat)
		next.Status = StatusCompleted
		next.Winner = winner.ID
		completed := now
		next.CompletedAt = &completed
		return []Event{{Type: EvtGameCompleted, Seat: seat, ActorID: winner.ID}}, next
	}
	return nil, next
}

// Expire cancels a pending session whose invitation window has passed.
func Expire(s Session, now time.Time) ([]Event, Session) {
	if !s.expired(now) {
		return nil, s
	}
	next := s.Clone()
	next.Status = StatusCancelled
	next.CancelReason = ReasonExpired
	return []Event{{Type: EvtGameExpired}}, next
}

func activate(s Session, actor string, now time.Time) ([]Event, Session, error) {
	next := s.Clone()
	next.Status = StatusActive
	next.Turn = SeatFirst
	started := now
	next.StartedAt = &started
	return []Event{{Type: EvtGameStarted, Seat: SeatFirst, ActorID: actor}}, next, nil
}

func requireStatus(s Session, want Status) error {
	if s.Status == want {
		return nil
	}
	switch s.Status {
	case StatusCompleted:
		return ErrGameAlreadyCompleted
	case StatusCancelled:
		return ErrGameCancelled
	}
	if want == StatusActive {
		return ErrGameNotActive
	}
	return ErrGameNotPending
}
