// Package hub is the realtime gateway's event loop. One goroutine owns the
// presence registry, the room readiness state and every session mutation, so
// each inbound action runs to completion (persistence included) before the
// next one starts.
package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bingo-backend/internal/auth"
	"github.com/DoyleJ11/bingo-backend/internal/engine"
	"github.com/DoyleJ11/bingo-backend/internal/game"
	"github.com/DoyleJ11/bingo-backend/internal/lobby"
	"github.com/DoyleJ11/bingo-backend/internal/presence"
	"github.com/DoyleJ11/bingo-backend/internal/types"
	proto "github.com/DoyleJ11/bingo-backend/pkg/types"
)

const defaultActionTimeout = 5 * time.Second

// ErrStopped is returned when talking to a hub that has shut down.
var ErrStopped = errors.New("hub stopped")

type Msg interface{ isHubMsg() }

// Connect registers an authenticated connection.
type Connect struct {
	Conn *presence.Conn
}

type Disconnect struct {
	Identity auth.Identity
	ConnID   string
}

// FromClient carries one decoded action. Err is set when the frame could not
// be decoded; the sender gets a bad_request error back.
type FromClient struct {
	UserID string
	ConnID string
	Msg    types.ClientMessage
	Err    error
}

// CreateGame and GetGame serve the HTTP surface through the same loop.
type CreateGame struct {
	Identity auth.Identity
	Opts     game.CreateOptions
	Reply    chan GameReply
}

type GetGame struct {
	Identity auth.Identity
	Ref      string
	Reply    chan GameReply
}

type GameReply struct {
	Session engine.Session
	Err     error
}

// GetView reflects loop-owned state without data races.
type GetView struct {
	Reply chan View
}

type View struct {
	Online int `json:"online"`
	Rooms  int `json:"rooms"`
}

type Shutdown struct{}

func (Connect) isHubMsg()    {}
func (Disconnect) isHubMsg() {}
func (FromClient) isHubMsg() {}
func (CreateGame) isHubMsg() {}
func (GetGame) isHubMsg()    {}
func (GetView) isHubMsg()    {}
func (Shutdown) isHubMsg()   {}

type Config struct {
	// ActionTimeout bounds the store work of one action.
	ActionTimeout time.Duration
}

type Option func(*Hub)

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

type Hub struct {
	inbox    chan Msg
	games    *game.Service
	presence *presence.Registry
	rooms    *lobby.Rooms
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, games *game.Service, cfg Config, log *zap.Logger, opts ...Option) *Hub {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	log = log.Named("hub")
	h := &Hub{
		inbox:    make(chan Msg, 64),
		games:    games,
		presence: presence.NewRegistry(log),
		rooms:    lobby.NewRooms(),
		cfg:      cfg,
		now:      time.Now,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the loop has exited and every outbox is closed.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Send queues m for the loop. It fails once the hub has stopped.
func (h *Hub) Send(ctx context.Context, m Msg) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) CreateGame(ctx context.Context, id auth.Identity, opts game.CreateOptions) (engine.Session, error) {
	reply := make(chan GameReply, 1)
	if err := h.Send(ctx, CreateGame{Identity: id, Opts: opts, Reply: reply}); err != nil {
		return engine.Session{}, err
	}
	return h.await(ctx, reply)
}

func (h *Hub) GetGame(ctx context.Context, id auth.Identity, ref string) (engine.Session, error) {
	reply := make(chan GameReply, 1)
	if err := h.Send(ctx, GetGame{Identity: id, Ref: ref, Reply: reply}); err != nil {
		return engine.Session{}, err
	}
	return h.await(ctx, reply)
}

// Stats reports how many users are online and how many rooms are open.
func (h *Hub) Stats(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := h.Send(ctx, GetView{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply <-chan GameReply) (engine.Session, error) {
	select {
	case r := <-reply:
		return r.Session, r.Err
	case <-h.done:
		return engine.Session{}, ErrStopped
	case <-ctx.Done():
		return engine.Session{}, ctx.Err()
	}
}

// Stop shuts the loop down and waits for it to exit.
func (h *Hub) Stop(ctx context.Context) error {
	if err := h.Send(ctx, Shutdown{}); err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				h.connect(msg.Conn)

			case Disconnect:
				h.disconnect(msg.Identity, msg.ConnID)

			case FromClient:
				h.handle(msg)

			case CreateGame:
				ctx, cancel := h.actionContext()
				sess, err := h.create(ctx, participant(msg.Identity), msg.Opts)
				cancel()
				msg.Reply <- GameReply{Session: sess, Err: err}

			case GetGame:
				ctx, cancel := h.actionContext()
				sess, err := h.games.Load(ctx, msg.Ref)
				cancel()
				if err == nil && !sess.IsParticipant(msg.Identity.UserID) {
					sess, err = engine.Session{}, engine.ErrNotParticipant
				}
				msg.Reply <- GameReply{Session: sess, Err: err}

			case GetView:
				msg.Reply <- View{Online: h.presence.Online(), Rooms: h.rooms.Len()}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) actionContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, h.cfg.ActionTimeout)
}

func (h *Hub) shutdown() {
	h.log.Info("hub shutting down", zap.Int("online", h.presence.Online()))
	h.presence.CloseAll()
	h.cancel()
}

func (h *Hub) connect(c *presence.Conn) {
	user := userOf(c.Identity)
	superseded, rooms := h.presence.Register(c)
	h.leftRooms(user, rooms)

	if superseded == nil {
		h.presence.BroadcastAll(event(proto.EventUserConnected, "", types.PlayerEvent{User: user}), user.ID)
	}
	h.log.Info("user connected", zap.String("user_id", user.ID), zap.String("conn_id", c.ID))
}

func (h *Hub) disconnect(id auth.Identity, connID string) {
	rooms, ok := h.presence.Unregister(id.UserID, connID)
	if !ok {
		return
	}
	user := userOf(id)
	h.leftRooms(user, rooms)
	h.presence.BroadcastAll(event(proto.EventUserDisconnected, "", types.PlayerEvent{User: user}))
	h.log.Info("user disconnected", zap.String("user_id", user.ID), zap.String("conn_id", connID), zap.Strings("rooms", rooms))
}

// leftRooms tells each room that user's connection went away.
func (h *Hub) leftRooms(user types.User, rooms []string) {
	for _, code := range rooms {
		if room, ok := h.rooms.Get(code); ok {
			room.Forget(user.ID)
		}
		h.presence.BroadcastToRoom(code, event(proto.EventPlayerDisconnected, code, types.PlayerEvent{User: user}))
		h.pruneRoom(code)
	}
}

func (h *Hub) pruneRoom(code string) {
	if !h.presence.RoomExists(code) {
		h.rooms.Remove(code)
	}
}

func participant(id auth.Identity) engine.Participant {
	return engine.Participant{ID: id.UserID, Username: id.Username}
}

func userOf(id auth.Identity) types.User {
	return types.User{ID: id.UserID, Username: id.Username}
}

func event(typ, room string, data any) types.ServerMessage {
	return types.ServerMessage{Type: typ, Room: room, Data: data}
}
