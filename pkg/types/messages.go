// Package types names the realtime protocol: the action types a client sends
// and the event types and error codes the server answers with. Every frame is
// one JSON object with a "type" field.
package types

// Client -> Server
//
// create-game:        opponent_id?, opponent_name?, solo?, pattern?, shared_board?
// accept-invitation:  room
// decline-invitation: room
// cancel-game:        room
// join-room:          room            (room code or game id; join-session is an alias)
// leave-room:         room
// set-ready:          room, ready
// update-settings:    room, pattern   (host only, before the game starts)
// start-game:         room            (host only, everyone ready)
// call-number:        room, number
// check-win:          room, board?    (board is only compared, never trusted)
// send-message:       room, text
// typing:             room, typing
//
// Every action may carry request_id; replies and errors echo it.
const (
	ActionCreateGame        = "create-game"
	ActionAcceptInvitation  = "accept-invitation"
	ActionDeclineInvitation = "decline-invitation"
	ActionCancelGame        = "cancel-game"
	ActionJoinRoom          = "join-room"
	ActionJoinSession       = "join-session"
	ActionLeaveRoom         = "leave-room"
	ActionSetReady          = "set-ready"
	ActionUpdateSettings    = "update-settings"
	ActionStartGame         = "start-game"
	ActionCallNumber        = "call-number"
	ActionCheckWin          = "check-win"
	ActionSendMessage       = "send-message"
	ActionTyping            = "typing"
)
