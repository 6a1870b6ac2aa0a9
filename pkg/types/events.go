package types

// Server -> Client. Room-scoped unless noted.
//
// room-joined:           game snapshot, members (caller only)
// player-joined:         user
// player-left:           user
// ready-status-changed:  user, ready, all_ready
// room-settings-updated: rules
// game-started:          game snapshot including boards
// number-called:         number, called_by, history_length, next_turn
// number-rejected:       number, reason (caller only)
// win-check-result:      lines, won, board_mismatch (caller only)
// game-completed:        winner, duration_ms, lines
// game-cancelled:        reason
// new-message:           user, text, sent_at
// typing:                user, typing (everyone but the typist)
// player-disconnected:   user
// user-connected:        user (everyone)
// user-disconnected:     user (everyone)
// game-invitation:       game snapshot (to the invited user)
// invitation-accepted:   room, user (to the inviter)
// invitation-declined:   room, user (to the inviter)
// game-created:          game snapshot (caller only)
// error:                 code, message (caller only)
const (
	EventRoomJoined          = "room-joined"
	EventPlayerJoined        = "player-joined"
	EventPlayerLeft          = "player-left"
	EventReadyStatusChanged  = "ready-status-changed"
	EventRoomSettingsUpdated = "room-settings-updated"
	EventGameCreated         = "game-created"
	EventGameStarted         = "game-started"
	EventNumberCalled        = "number-called"
	EventNumberRejected      = "number-rejected"
	EventWinCheckResult      = "win-check-result"
	EventGameCompleted       = "game-completed"
	EventGameCancelled       = "game-cancelled"
	EventNewMessage          = "new-message"
	EventTyping              = "typing"
	EventPlayerDisconnected  = "player-disconnected"
	EventUserConnected       = "user-connected"
	EventUserDisconnected    = "user-disconnected"
	EventGameInvitation      = "game-invitation"
	EventInvitationAccepted  = "invitation-accepted"
	EventInvitationDeclined  = "invitation-declined"
	EventError               = "error"
)

// Error codes carried by error events.
const (
	CodeBadRequest    = "bad_request"
	CodeNotFound      = "not_found"
	CodeNotAuthorized = "not_authorized"
	CodeInvalidAction = "invalid_action"
	CodeConflict      = "conflict"
	CodeExpired       = "expired"
	CodeInternal      = "internal"
)
