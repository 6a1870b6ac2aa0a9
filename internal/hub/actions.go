package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
	"github.com/DoyleJ11/bingo-backend/internal/game"
	"github.com/DoyleJ11/bingo-backend/internal/presence"
	"github.com/DoyleJ11/bingo-backend/internal/types"
	proto "github.com/DoyleJ11/bingo-backend/pkg/types"
)

const MaxMessageRunes = 500

var (
	// ErrBadRequest marks frames the hub cannot make sense of.
	ErrBadRequest = errors.New("bad request")

	errRoomRequired   = fmt.Errorf("%w: room is required", ErrBadRequest)
	errNotInRoom      = fmt.Errorf("%w: join the room first", engine.ErrNotAuthorized)
	errEmptyMessage   = fmt.Errorf("%w: message is empty", engine.ErrInvalidAction)
	errMessageTooLong = fmt.Errorf("%w: message is longer than %d characters", engine.ErrInvalidAction, MaxMessageRunes)
)

// ErrorCode classifies err into a wire error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return proto.CodeBadRequest
	case errors.Is(err, engine.ErrExpired):
		return proto.CodeExpired
	case errors.Is(err, engine.ErrNotFound):
		return proto.CodeNotFound
	case errors.Is(err, engine.ErrNotAuthorized):
		return proto.CodeNotAuthorized
	case errors.Is(err, engine.ErrInvalidAction):
		return proto.CodeInvalidAction
	case errors.Is(err, engine.ErrConflict):
		return proto.CodeConflict
	default:
		return proto.CodeInternal
	}
}

// action is one inbound frame and the connection it came from.
type action struct {
	conn *presence.Conn
	msg  types.ClientMessage
}

func (a action) userID() string { return a.conn.Identity.UserID }

func (a action) actor() engine.Participant { return participant(a.conn.Identity) }

func (a action) user() types.User { return userOf(a.conn.Identity) }

func (a action) room() (string, error) {
	ref := strings.TrimSpace(a.msg.Room)
	if ref == "" {
		return "", errRoomRequired
	}
	return ref, nil
}

func (h *Hub) handle(m FromClient) {
	conn, ok := h.presence.Current(m.UserID, m.ConnID)
	if !ok {
		// Superseded or dropped connection.
		return
	}
	a := action{conn: conn, msg: m.Msg}
	if m.Err != nil {
		h.fail(a, fmt.Errorf("%w: %v", ErrBadRequest, m.Err))
		return
	}

	ctx, cancel := h.actionContext()
	defer cancel()

	var err error
	switch m.Msg.Type {
	case proto.ActionCreateGame:
		err = h.createGame(ctx, a)
	case proto.ActionAcceptInvitation:
		err = h.acceptInvitation(ctx, a)
	case proto.ActionDeclineInvitation:
		err = h.declineInvitation(ctx, a)
	case proto.ActionCancelGame:
		err = h.cancelGame(ctx, a)
	case proto.ActionJoinRoom, proto.ActionJoinSession:
		err = h.joinRoom(ctx, a)
	case proto.ActionLeaveRoom:
		err = h.leaveRoom(ctx, a)
	case proto.ActionSetReady:
		err = h.setReady(ctx, a)
	case proto.ActionUpdateSettings:
		err = h.updateSettings(ctx, a)
	case proto.ActionStartGame:
		err = h.startGame(ctx, a)
	case proto.ActionCallNumber:
		h.callNumber(ctx, a)
	case proto.ActionCheckWin:
		err = h.checkWin(ctx, a)
	case proto.ActionSendMessage:
		err = h.sendMessage(ctx, a)
	case proto.ActionTyping:
		err = h.typing(ctx, a)
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrBadRequest, m.Msg.Type)
	}
	if err != nil {
		h.fail(a, err)
	}
}

// fail reports err to the acting connection only. The connection stays open.
func (h *Hub) fail(a action, err error) {
	code := ErrorCode(err)
	fields := []zap.Field{
		zap.String("user_id", a.userID()),
		zap.String("action", a.msg.Type),
		zap.String("room", a.msg.Room),
		zap.String("code", code),
		zap.Error(err),
	}
	message := err.Error()
	if code == proto.CodeInternal {
		h.log.Error("action failed", fields...)
		message = "internal error"
	} else {
		h.log.Info("action rejected", fields...)
	}
	h.reply(a, types.ServerMessage{
		Type:  proto.EventError,
		Room:  a.msg.Room,
		Error: &types.ErrorBody{Code: code, Message: message},
	})
}

func (h *Hub) reply(a action, m types.ServerMessage) {
	m.RequestID = a.msg.RequestID
	h.presence.SendTo(a.userID(), m)
}

// publish sends m to everyone in room and to the caller, whether or not the
// caller is in the room. Only the caller's copy echoes the request ID.
func (h *Hub) publish(a action, room string, m types.ServerMessage) {
	h.presence.BroadcastToRoom(room, m, a.userID())
	h.reply(a, m)
}

func (h *Hub) create(ctx context.Context, owner engine.Participant, opts game.CreateOptions) (engine.Session, error) {
	if opts.Opponent.ID != "" && opts.Opponent.Username == "" {
		if c, ok := h.presence.Lookup(opts.Opponent.ID); ok {
			opts.Opponent.Username = c.Identity.Username
		}
	}

	sess, err := h.games.Create(ctx, owner, opts)
	if err != nil {
		return engine.Session{}, err
	}

	if !sess.Rules.Solo && !sess.IsOpen() {
		view := types.NewGameView(sess, false)
		h.presence.SendTo(sess.Second.ID, event(proto.EventGameInvitation, sess.RoomCode, types.Invitation{
			Room: sess.RoomCode,
			User: types.User{ID: owner.ID, Username: owner.Username},
			Game: &view,
		}))
	}
	h.log.Info("game created",
		zap.String("session_id", sess.ID),
		zap.String("room", sess.RoomCode),
		zap.String("owner", owner.ID),
		zap.String("opponent", sess.Second.ID),
		zap.String("pattern", string(sess.Rules.Pattern)))
	return sess, nil
}

func (h *Hub) createGame(ctx context.Context, a action) error {
	opts := game.CreateOptions{
		Solo:        a.msg.Solo,
		Pattern:     a.msg.Pattern,
		SharedBoard: a.msg.SharedBoard,
	}
	if id := strings.TrimSpace(a.msg.OpponentID); id != "" && !a.msg.Solo {
		opts.Opponent = engine.Participant{ID: id, Username: strings.TrimSpace(a.msg.OpponentName)}
	}

	sess, err := h.create(ctx, a.actor(), opts)
	if err != nil {
		return err
	}
	h.reply(a, event(proto.EventGameCreated, sess.RoomCode, types.NewGameView(sess, true)))
	h.enterRoom(a, sess)
	return nil
}

// enterRoom puts the caller in the session's room, answers with room-joined
// and tells the others. It reports false if the caller was already there.
func (h *Hub) enterRoom(a action, sess engine.Session) bool {
	code := sess.RoomCode
	room := h.rooms.Ensure(code, sess.ID, sess.First.ID)
	if !h.presence.Join(a.userID(), code) {
		return false
	}

	members := h.presence.Members(code)
	users := make([]types.User, 0, len(members))
	for _, m := range members {
		users = append(users, userOf(m))
	}
	h.reply(a, event(proto.EventRoomJoined, code, types.RoomJoined{
		Game:    types.NewGameView(sess, true),
		Members: users,
		Host:    room.Host,
		Ready:   room.ReadyIDs(),
	}))
	h.presence.BroadcastToRoom(code, event(proto.EventPlayerJoined, code, types.PlayerEvent{User: a.user()}), a.userID())
	return true
}

func (h *Hub) joinRoom(ctx context.Context, a action) error {
	ref, err := a.room()
	if err != nil {
		return err
	}
	sess, err := h.games.Load(ctx, ref)
	if err != nil {
		return err
	}

	if !sess.IsParticipant(a.userID()) {
		if !sess.IsOpen() {
			return engine.ErrNotParticipant
		}
		res, err := h.games.Join(ctx, sess.ID, a.actor())
		if err != nil {
			return err
		}
		sess = res.Session
		h.log.Info("open seat taken", zap.String("room", sess.RoomCode), zap.String("user_id", a.userID()))
	}

	h.enterRoom(a, sess)
	return nil
}

func (h *Hub) leaveRoom(ctx context.Context, a action) error {
	ref, err := a.room()
	if err != nil {
		return err
	}
	code := h.resolveRoom(ctx, ref)

	h.presence.Leave(a.userID(), code)
	if room, ok := h.rooms.Get(code); ok {
		room.Forget(a.userID())
	}
	h.presence.BroadcastToRoom(code, event(proto.EventPlayerLeft, code, types.PlayerEvent{User: a.user()}), a.userID())
	h.pruneRoom(code)
	return nil
}

// resolveRoom maps a room code or game ID to the room code, falling back to
// the upper-cased reference when no game matches.
func (h *Hub) resolveRoom(ctx context.Context, ref string) string {
	code := strings.ToUpper(ref)
	if h.presence.RoomExists(code) {
		return code
	}
	if _, ok := h.rooms.Get(code); ok {
		return code
	}
	if sess, err := h.games.Load(ctx, ref); err == nil {
		return sess.RoomCode
	}
	return code
}

// memberSession re-loads the session and checks that the caller both plays
// in it and has joined its room.
func (h *Hub) memberSession(ctx context.Context, a action) (engine.Session, error) {
	ref, err := a.room()
	if err != nil {
		return engine.Session{}, err
	}
	sess, err := h.games.Load(ctx, ref)
	if err != nil {
		return engine.Session{}, err
	}
	if !sess.IsParticipant(a.userID()) {
		return engine.Session{}, engine.ErrNotParticipant
	}
	if !h.presence.InRoom(a.userID(), sess.RoomCode) {
		return engine.Session{}, errNotInRoom
	}
	return sess, nil
}

func (h *Hub) setReady(ctx context.Context, a action) error {
	sess, err := h.memberSession(ctx, a)
	if err != nil {
		return err
	}
	if sess.Status != engine.StatusPending {
		return engine.ErrGameNotPending
	}

	room := h.rooms.Ensure(sess.RoomCode, sess.ID, sess.First.ID)
	room.SetReady(a.userID(), a.msg.Ready)
	h.publish(a, sess.RoomCode, event(proto.EventReadyStatusChanged, sess.RoomCode, types.ReadyStatus{
		User:     a.user(),
		Ready:    a.msg.Ready,
		AllReady: room.AllReady(sess.First.ID, sess.Second.ID),
	}))
	return nil
}

func (h *Hub) updateSettings(ctx context.Context, a action) error {
	sess, err := h.memberSession(ctx, a)
	if err != nil {
		return err
	}
	res, err := h.games.SetPattern(ctx, sess.ID, a.actor(), a.msg.Pattern)
	if err != nil {
		return err
	}

	m := event(proto.EventRoomSettingsUpdated, sess.RoomCode, types.SettingsUpdated{Rules: res.Session.Rules})
	if !res.Changed {
		h.reply(a, m)
		return nil
	}
	h.publish(a, sess.RoomCode, m)
	return nil
}

func (h *Hub) startGame(ctx context.Context, a action) error {
	sess, err := h.memberSession(ctx, a)
	if err != nil {
		return err
	}
	room := h.rooms.Ensure(sess.RoomCode, sess.ID, sess.First.ID)

	res, err := h.games.Start(ctx, sess.ID, a.actor(), room.Ready())
	if err != nil {
		return err
	}
	room.Reset()
	h.publish(a, sess.RoomCode, event(proto.EventGameStarted, sess.RoomCode, types.NewGameView(res.Session, true)))
	h.log.Info("game started", zap.String("room", sess.RoomCode), zap.String("host", a.userID()))
	return nil
}

func (h *Hub) acceptInvitation(ctx context.Context, a action) error {
	ref, err := a.room()
	if err != nil {
		return err
	}
	res, err := h.games.Accept(ctx, ref, a.actor())
	if err != nil {
		return err
	}
	sess := res.Session

	if sess.First.ID != a.userID() {
		h.presence.SendTo(sess.First.ID, event(proto.EventInvitationAccepted, sess.RoomCode, types.Invitation{
			Room: sess.RoomCode,
			User: a.user(),
		}))
	}
	h.enterRoom(a, sess)
	h.publish(a, sess.RoomCode, event(proto.EventGameStarted, sess.RoomCode, types.NewGameView(sess, true)))
	h.log.Info("invitation accepted", zap.String("room", sess.RoomCode), zap.String("user_id", a.userID()))
	return nil
}

func (h *Hub) declineInvitation(ctx context.Context, a action) error {
	ref, err := a.room()
	if err != nil {
		return err
	}
	res, err := h.games.Decline(ctx, ref, a.actor())
	if err != nil {
		return err
	}
	sess := res.Session

	h.presence.SendTo(sess.First.ID, event(proto.EventInvitationDeclined, sess.RoomCode, types.Invitation{
		Room: sess.RoomCode,
		User: a.user(),
	}))
	h.publish(a, sess.RoomCode, event(proto.EventGameCancelled, sess.RoomCode, types.GameCancelled{
		Reason: sess.CancelReason,
		By:     a.userID(),
	}))
	return nil
}

func (h *Hub) cancelGame(ctx context.Context, a action) error {
	ref, err := a.room()
	if err != nil {
		return err
	}
	res, err := h.games.Cancel(ctx, ref, a.actor())
	if err != nil {
		return err
	}
	sess := res.Session

	m := event(proto.EventGameCancelled, sess.RoomCode, types.GameCancelled{Reason: sess.CancelReason, By: a.userID()})
	h.publish(a, sess.RoomCode, m)
	// An invited player who never joined the room still hears about it.
	if other := sess.Second.ID; other != "" && other != a.userID() && !h.presence.InRoom(other, sess.RoomCode) {
		h.presence.SendTo(other, m)
	}
	return nil
}

// callNumber answers every failure with a local number-rejected instead of a
// generic error, so a client can tell its call did not land.
func (h *Hub) callNumber(ctx context.Context, a action) {
	ref, err := a.room()
	if err != nil {
		h.fail(a, err)
		return
	}

	res, err := h.games.CallNumber(ctx, ref, a.actor(), a.msg.Number)
	if err != nil {
		h.rejectNumber(a, res.Session.RoomCode, err)
		return
	}
	if !res.Accepted {
		h.rejectNumber(a, res.Session.RoomCode, engine.ErrDuplicateNumber)
		return
	}

	sess := res.Session
	h.publish(a, sess.RoomCode, event(proto.EventNumberCalled, sess.RoomCode, types.NumberCalled{
		Number:        a.msg.Number,
		CalledBy:      a.userID(),
		HistoryLength: len(sess.Calls),
		NextTurn:      sess.Turn,
		NextPlayer:    sess.Participant(sess.Turn).ID,
		Lines:         sess.Lines,
	}))
	if res.Completed() {
		h.publishCompleted(a, sess)
	}
}

func (h *Hub) rejectNumber(a action, room string, err error) {
	code := ErrorCode(err)
	if code == proto.CodeInternal {
		h.fail(a, err)
		return
	}
	h.log.Debug("number rejected",
		zap.String("user_id", a.userID()),
		zap.String("room", a.msg.Room),
		zap.Int("number", a.msg.Number),
		zap.Error(err))
	if room == "" {
		room = a.msg.Room
	}
	h.reply(a, event(proto.EventNumberRejected, room, types.NumberRejected{
		Number: a.msg.Number,
		Code:   code,
		Reason: err.Error(),
	}))
}

func (h *Hub) publishCompleted(a action, sess engine.Session) {
	winner := sess.First
	if sess.Second.ID == sess.Winner {
		winner = sess.Second
	}
	h.publish(a, sess.RoomCode, event(proto.EventGameCompleted, sess.RoomCode, types.GameCompleted{
		Winner:     types.User{ID: winner.ID, Username: winner.Username},
		DurationMS: sess.Duration().Milliseconds(),
		Lines:      sess.Lines,
		Called:     len(sess.Calls),
	}))
	h.log.Info("game completed",
		zap.String("room", sess.RoomCode),
		zap.String("winner", winner.ID),
		zap.Int("called", len(sess.Calls)),
		zap.Duration("duration", sess.Duration()))
}

func (h *Hub) checkWin(ctx context.Context, a action) error {
	ref, err := a.room()
	if err != nil {
		return err
	}
	check, err := h.games.CheckWin(ctx, ref, a.actor(), a.msg.Board)
	if err != nil {
		return err
	}
	if check.BoardMismatch {
		h.log.Warn("client board differs from stored board",
			zap.String("room", check.Session.RoomCode),
			zap.String("user_id", a.userID()))
	}

	h.reply(a, event(proto.EventWinCheckResult, check.Session.RoomCode, types.WinCheckResult{
		Seat:          check.Seat,
		Lines:         check.Lines,
		Won:           check.Won,
		BoardMismatch: check.BoardMismatch,
	}))
	if check.Completed {
		h.publishCompleted(a, check.Session)
	}
	return nil
}

// memberRoom resolves the room of a chat frame and checks the caller is in it.
func (h *Hub) memberRoom(ctx context.Context, a action) (string, error) {
	ref, err := a.room()
	if err != nil {
		return "", err
	}
	code := h.resolveRoom(ctx, ref)
	if !h.presence.InRoom(a.userID(), code) {
		return "", errNotInRoom
	}
	return code, nil
}

func (h *Hub) sendMessage(ctx context.Context, a action) error {
	code, err := h.memberRoom(ctx, a)
	if err != nil {
		return err
	}
	text, err := NormalizeText(a.msg.Text)
	if err != nil {
		return err
	}
	h.publish(a, code, event(proto.EventNewMessage, code, types.ChatMessage{
		User:   a.user(),
		Text:   text,
		SentAt: h.now().UTC(),
	}))
	return nil
}

func (h *Hub) typing(ctx context.Context, a action) error {
	code, err := h.memberRoom(ctx, a)
	if err != nil {
		return err
	}
	h.presence.BroadcastToRoom(code, event(proto.EventTyping, code, types.Typing{
		User:   a.user(),
		Typing: a.msg.Typing,
	}), a.userID())
	return nil
}

// NormalizeText trims and NFC-normalizes a chat line.
func NormalizeText(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", errEmptyMessage
	}
	if utf8.RuneCountInString(s) > MaxMessageRunes {
		return "", errMessageTooLong
	}
	return s, nil
}
