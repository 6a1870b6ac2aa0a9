// Package presence routes messages to connected users. It maps each identity
// to its one live connection and the rooms that connection has joined.
//
// The registry is not a record of who plays in which game (the store is), it
// is rebuilt from nothing on restart. It is owned by the hub goroutine and is
// not safe for concurrent use.
package presence

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bingo-backend/internal/auth"
	"github.com/DoyleJ11/bingo-backend/internal/types"
)

// Conn is one realtime connection. The registry is the only writer to and the
// only closer of Outbox.
type Conn struct {
	ID       string
	Identity auth.Identity
	Outbox   chan types.ServerMessage

	closed bool
}

func NewConn(id string, identity auth.Identity, size int) *Conn {
	if size <= 0 {
		size = 1
	}
	return &Conn{ID: id, Identity: identity, Outbox: make(chan types.ServerMessage, size)}
}

func (c *Conn) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Outbox)
}

type entry struct {
	conn  *Conn
	rooms map[string]struct{}
}

type Registry struct {
	users map[string]*entry
	rooms map[string]map[string]struct{}
	log   *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		users: make(map[string]*entry),
		rooms: make(map[string]map[string]struct{}),
		log:   log.Named("presence"),
	}
}

// Register makes c the connection of its identity. A previous connection for
// the same user is closed and returned together with the rooms it was in.
func (r *Registry) Register(c *Conn) (superseded *Conn, rooms []string) {
	userID := c.Identity.UserID
	if old, ok := r.users[userID]; ok {
		rooms = r.detach(userID, old)
		old.conn.close()
		superseded = old.conn
		r.log.Info("connection superseded",
			zap.String("user_id", userID),
			zap.String("old_conn", old.conn.ID),
			zap.String("new_conn", c.ID))
	}
	r.users[userID] = &entry{conn: c, rooms: make(map[string]struct{})}
	return superseded, rooms
}

// Unregister removes the user if connID is still their connection and returns
// the rooms they were in. A connection that was already superseded is ignored.
func (r *Registry) Unregister(userID, connID string) ([]string, bool) {
	e, ok := r.users[userID]
	if !ok || e.conn.ID != connID {
		return nil, false
	}
	rooms := r.detach(userID, e)
	e.conn.close()
	delete(r.users, userID)
	return rooms, true
}

func (r *Registry) detach(userID string, e *entry) []string {
	rooms := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		rooms = append(rooms, room)
		r.removeMember(room, userID)
	}
	sort.Strings(rooms)
	return rooms
}

// Lookup returns the live connection of userID.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	e, ok := r.users[userID]
	if !ok || e.conn.closed {
		return nil, false
	}
	return e.conn, true
}

// Current returns userID's live connection only if it is connID.
func (r *Registry) Current(userID, connID string) (*Conn, bool) {
	c, ok := r.Lookup(userID)
	if !ok || c.ID != connID {
		return nil, false
	}
	return c, true
}

func (r *Registry) Online() int { return len(r.users) }

// SendTo delivers msg to userID if they are connected. It is a no-op for an
// absent user.
func (r *Registry) SendTo(userID string, msg types.ServerMessage) bool {
	e, ok := r.users[userID]
	if !ok {
		return false
	}
	return r.deliver(e.conn, msg)
}

// Join adds userID to room. It reports false if the user was already a member
// or is not connected.
func (r *Registry) Join(userID, room string) bool {
	e, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, in := e.rooms[room]; in {
		return false
	}
	e.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[userID] = struct{}{}
	return true
}

// Leave removes userID from room and reports whether they were a member.
func (r *Registry) Leave(userID, room string) bool {
	e, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, in := e.rooms[room]; !in {
		return false
	}
	delete(e.rooms, room)
	r.removeMember(room, userID)
	return true
}

func (r *Registry) removeMember(room, userID string) {
	members := r.rooms[room]
	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) InRoom(userID, room string) bool {
	_, ok := r.rooms[room][userID]
	return ok
}

func (r *Registry) RoomExists(room string) bool {
	_, ok := r.rooms[room]
	return ok
}

// Members lists the identities in room ordered by user ID.
func (r *Registry) Members(room string) []auth.Identity {
	ids := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	members := make([]auth.Identity, 0, len(ids))
	for _, id := range ids {
		members = append(members, r.users[id].conn.Identity)
	}
	return members
}

// BroadcastToRoom sends msg to every member of room except the listed users.
func (r *Registry) BroadcastToRoom(room string, msg types.ServerMessage, except ...string) {
	for _, id := range r.sortedMembers(room) {
		if slices.Contains(except, id) {
			continue
		}
		r.deliver(r.users[id].conn, msg)
	}
}

// BroadcastAll sends msg to every connected user except the listed ones.
func (r *Registry) BroadcastAll(msg types.ServerMessage, except ...string) {
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if slices.Contains(except, id) {
			continue
		}
		r.deliver(r.users[id].conn, msg)
	}
}

func (r *Registry) sortedMembers(room string) []string {
	ids := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// deliver never blocks. A client whose outbox is full is dropped: its outbox
// is closed, which ends its socket, and its entry stays until the transport
// reports the disconnect.
func (r *Registry) deliver(c *Conn, msg types.ServerMessage) bool {
	if c.closed {
		return false
	}
	select {
	case c.Outbox <- msg:
		return true
	default:
		r.log.Warn("dropping slow client",
			zap.String("user_id", c.Identity.UserID),
			zap.String("conn_id", c.ID),
			zap.String("type", msg.Type))
		c.close()
		return false
	}
}

// CloseAll closes every outbox and forgets everyone.
func (r *Registry) CloseAll() {
	for id, e := range r.users {
		e.conn.close()
		delete(r.users, id)
	}
	clear(r.rooms)
}
