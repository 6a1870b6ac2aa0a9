package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them,
// so callers classify with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidAction = errors.New("invalid action")
	ErrConflict      = errors.New("conflict")
	ErrExpired       = errors.New("invitation expired")
)

var (
	ErrWrongTurn            = fmt.Errorf("%w: not your turn", ErrInvalidAction)
	ErrNumberOutOfRange     = fmt.Errorf("%w: number out of range", ErrInvalidAction)
	ErrGameNotActive        = fmt.Errorf("%w: game is not active", ErrInvalidAction)
	ErrGameNotPending       = fmt.Errorf("%w: game has already started or ended", ErrInvalidAction)
	ErrGameAlreadyCompleted = fmt.Errorf("%w: game already completed", ErrInvalidAction)
	ErrGameCancelled        = fmt.Errorf("%w: game was cancelled", ErrInvalidAction)
	ErrWaitingForOpponent   = fmt.Errorf("%w: waiting for an opponent", ErrInvalidAction)
	ErrPlayersNotReady      = fmt.Errorf("%w: not all players are ready", ErrInvalidAction)
	ErrInvalidPattern       = fmt.Errorf("%w: unknown win pattern", ErrInvalidAction)
	ErrUnsupportedCommand   = fmt.Errorf("%w: unsupported command", ErrInvalidAction)

	ErrNotParticipant = fmt.Errorf("%w: not a participant", ErrNotAuthorized)
	ErrNotHost        = fmt.Errorf("%w: only the host may do that", ErrNotAuthorized)
	ErrNotInvitee     = fmt.Errorf("%w: only the invited player may do that", ErrNotAuthorized)

	ErrDuplicateNumber = fmt.Errorf("%w: number already called", ErrConflict)
	ErrSeatTaken       = fmt.Errorf("%w: game already has two players", ErrConflict)
	ErrSessionExists   = fmt.Errorf("%w: an unfinished game already exists for these players", ErrConflict)
	ErrStaleSession    = fmt.Errorf("%w: game was modified concurrently", ErrConflict)

	ErrSessionNotFound = fmt.Errorf("%w: game", ErrNotFound)
)
