// Package game runs engine commands against stored sessions: every operation
// loads the session fresh, applies lazy invitation expiry, applies the
// command and saves with compare-and-swap.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
	"github.com/DoyleJ11/bingo-backend/internal/store"
)

const maxRoomCodeAttempts = 5

type Config struct {
	Rules         engine.Rules
	InvitationTTL time.Duration
}

type Service struct {
	store     store.Store
	cfg       Config
	boards    engine.BoardGenerator
	now       func() time.Time
	roomCodes func() (string, error)
	log       *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithBoardGenerator(gen engine.BoardGenerator) Option {
	return func(s *Service) { s.boards = gen }
}

func WithRoomCodes(gen func() (string, error)) Option {
	return func(s *Service) { s.roomCodes = gen }
}

func NewService(st store.Store, cfg Config, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		cfg:       cfg,
		boards:    engine.RandomBoard,
		now:       time.Now,
		roomCodes: store.GenerateRoomCode,
		log:       log.Named("game"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOptions struct {
	Opponent    engine.Participant
	Solo        bool
	Pattern     string
	SharedBoard bool
}

// Create starts a pending game owned by owner. Only one unfinished game may
// exist per pair of players.
func (s *Service) Create(ctx context.Context, owner engine.Participant, opts CreateOptions) (engine.Session, error) {
	rules := s.cfg.Rules
	rules.Solo = opts.Solo
	rules.SharedBoard = opts.SharedBoard
	if opts.Pattern != "" {
		p, err := engine.ParsePattern(opts.Pattern)
		if err != nil {
			return engine.Session{}, err
		}
		rules.Pattern = p
	}

	opponentID := opts.Opponent.ID
	if opts.Solo {
		opponentID = owner.ID
	}
	prior, exists, err := s.store.FindActiveByParticipants(ctx, owner.ID, opponentID)
	if err != nil {
		return engine.Session{}, err
	}
	if exists {
		// A lapsed invitation stops blocking the pair once it is cancelled.
		if prior, err = s.expire(ctx, prior); err != nil {
			return engine.Session{}, err
		}
		if !prior.Status.Terminal() {
			return engine.Session{}, engine.ErrSessionExists
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRoomCodeAttempts; attempt++ {
		code, err := s.roomCodes()
		if err != nil {
			return engine.Session{}, fmt.Errorf("generate room code: %w", err)
		}

		sess, err := engine.NewSession(engine.NewSessionParams{
			ID:            uuid.NewString(),
			RoomCode:      code,
			Owner:         owner,
			Opponent:      opts.Opponent,
			Rules:         rules,
			InvitationTTL: s.cfg.InvitationTTL,
		}, s.boards, s.now())
		if err != nil {
			return engine.Session{}, err
		}

		created, err := s.store.Create(ctx, sess)
		if errors.Is(err, store.ErrRoomCodeTaken) {
			s.log.Debug("room code collision, regenerating", zap.String("room", code))
			lastErr = err
			continue
		}
		if err != nil {
			return engine.Session{}, err
		}
		return created, nil
	}
	return engine.Session{}, lastErr
}

// Load fetches a session by room code or ID. A pending session past its
// invitation window is cancelled and saved here, on first access.
func (s *Service) Load(ctx context.Context, ref string) (engine.Session, error) {
	sess, err := s.store.FindByRoomOrID(ctx, ref)
	if err != nil {
		return engine.Session{}, err
	}
	return s.expire(ctx, sess)
}

func (s *Service) expire(ctx context.Context, sess engine.Session) (engine.Session, error) {
	events, expired := engine.Expire(sess, s.now())
	if len(events) == 0 {
		return sess, nil
	}

	saved, err := s.store.Save(ctx, expired)
	if errors.Is(err, engine.ErrStaleSession) {
		// Someone else touched it first; their write wins, re-read.
		return s.store.FindByRoomOrID(ctx, sess.ID)
	}
	if err != nil {
		return engine.Session{}, err
	}
	s.log.Info("invitation expired", zap.String("session_id", saved.ID), zap.String("room", saved.RoomCode))
	return saved, nil
}

// Result is the outcome of one command.
type Result struct {
	Session engine.Session
	Events  []engine.Event
	// Changed is false when the command was a no-op (nothing was saved).
	Changed bool
}

func (r Result) Completed() bool { return engine.ContainsEvent(r.Events, engine.EvtGameCompleted) }

// Apply runs cmd against the stored session identified by ref.
func (s *Service) Apply(ctx context.Context, ref string, cmd engine.Command) (Result, error) {
	sess, err := s.Load(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	events, next, err := engine.Apply(sess, cmd, s.now())
	if err != nil {
		return Result{Session: sess}, err
	}
	if len(events) == 0 {
		return Result{Session: sess}, nil
	}

	saved, err := s.store.Save(ctx, next)
	if err != nil {
		return Result{Session: sess}, err
	}
	return Result{Session: saved, Events: events, Changed: true}, nil
}

func (s *Service) Join(ctx context.Context, ref string, actor engine.Participant) (Result, error) {
	return s.Apply(ctx, ref, engine.Command{Type: engine.CmdJoin, Actor: actor})
}

func (s *Service) Accept(ctx context.Context, ref string, actor engine.Participant) (Result, error) {
	return s.Apply(ctx, ref, engine.Command{Type: engine.CmdAccept, Actor: actor})
}

func (s *Service) Decline(ctx context.Context, ref string, actor engine.Participant) (Result, error) {
	return s.Apply(ctx, ref, engine.Command{Type: engine.CmdDecline, Actor: actor})
}

func (s *Service) Cancel(ctx context.Context, ref string, actor engine.Participant) (Result, error) {
	return s.Apply(ctx, ref, engine.Command{Type: engine.CmdCancel, Actor: actor})
}

func (s *Service) Start(ctx context.Context, ref string, actor engine.Participant, ready map[string]bool) (Result, error) {
	return s.Apply(ctx, ref, engine.Command{Type: engine.CmdStart, Actor: actor, Ready: ready})
}

func (s *Service) SetPattern(ctx context.Context, ref string, actor engine.Participant, pattern string) (Result, error) {
	return s.Apply(ctx, ref, engine.Command{Type: engine.CmdSetPattern, Actor: actor, Pattern: engine.Pattern(pattern)})
}

// CallResult reports whether a call was recorded. Accepted is false for a
// number that was already called, which is not an error.
type CallResult struct {
	Result
	Accepted bool
}

func (s *Service) CallNumber(ctx context.Context, ref string, actor engine.Participant, number int) (CallResult, error) {
	res, err := s.Apply(ctx, ref, engine.Command{Type: engine.CmdCallNumber, Actor: actor, Number: number})
	if errors.Is(err, engine.ErrDuplicateNumber) {
		return CallResult{Result: res, Accepted: false}, nil
	}
	if err != nil {
		return CallResult{Result: res}, err
	}
	return CallResult{Result: res, Accepted: true}, nil
}

// WinCheck is the answer to a player asking whether they have won.
type WinCheck struct {
	Session engine.Session
	Seat    engine.Seat
	Lines   int
	Won     bool
	// BoardMismatch is set when the client sent a board that differs from
	// the stored one. The client board is never used to decide a win.
	BoardMismatch bool
	Completed     bool
}

// CheckWin re-evaluates the stored board of actor against the stored call
// history. If that completes the game the result is saved.
func (s *Service) CheckWin(ctx context.Context, ref string, actor engine.Participant, claimed *engine.Board) (WinCheck, error) {
	sess, err := s.Load(ctx, ref)
	if err != nil {
		return WinCheck{}, err
	}
	seats := sess.SeatsOf(actor.ID)
	if len(seats) == 0 {
		return WinCheck{}, engine.ErrNotParticipant
	}
	seat := seats[0]
	if len(seats) > 1 && sess.Winner == "" {
		seat = sess.Turn.Other()
	}

	events, next := engine.Evaluate(sess, seat, s.now())
	check := WinCheck{
		Session: next,
		Seat:    seat,
		Lines:   next.Lines[seat],
		Won:     next.Winner != "" && next.Winner == actor.ID,
	}
	if claimed != nil && *claimed != sess.Boards[seat] {
		check.BoardMismatch = true
	}

	if len(events) > 0 {
		saved, err := s.store.Save(ctx, next)
		if err != nil {
			return WinCheck{}, err
		}
		check.Session = saved
		check.Completed = true
	}
	return check, nil
}
