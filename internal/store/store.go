// Package store persists game sessions. It is the source of truth for who
// plays in which game; the presence registry only routes messages.
package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
)

// ErrRoomCodeTaken means a generated room code collided; pick another.
var ErrRoomCodeTaken = fmt.Errorf("%w: room code in use", engine.ErrConflict)

type Store interface {
	// Create inserts a new session and returns it as stored. It fails with
	// engine.ErrSessionExists when the pair already has a pending or active
	// session.
	Create(ctx context.Context, s engine.Session) (engine.Session, error)
	// FindByRoomOrID looks a session up by room code or by ID.
	FindByRoomOrID(ctx context.Context, ref string) (engine.Session, error)
	// Save writes s if nobody saved it since it was read (s.Version matches)
	// and returns it with the new version. Lost updates fail with
	// engine.ErrStaleSession.
	Save(ctx context.Context, s engine.Session) (engine.Session, error)
	// FindActiveByParticipants returns the pending or active session between
	// a and b, in either seat order.
	FindActiveByParticipants(ctx context.Context, a, b string) (engine.Session, bool, error)
	Close() error
}

// PairKey identifies an unordered participant pair. An open session keys on
// the owner alone.
func PairKey(a, b string) string {
	if b != "" && b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func sessionPairKey(s engine.Session) string {
	return PairKey(s.First.ID, s.Second.ID)
}

// refKeys returns the forms a reference is matched in: IDs are lower-case
// UUIDs, room codes are upper-case.
func refKeys(ref string) (id, code string) {
	ref = strings.TrimSpace(ref)
	return strings.ToLower(ref), strings.ToUpper(ref)
}

const roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func GenerateRoomCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeCharset[num.Int64()]
	}
	return string(code), nil
}
