package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bingo-backend/internal/auth"
	"github.com/DoyleJ11/bingo-backend/internal/engine"
	"github.com/DoyleJ11/bingo-backend/internal/game"
	"github.com/DoyleJ11/bingo-backend/internal/hub"
	"github.com/DoyleJ11/bingo-backend/internal/types"
	proto "github.com/DoyleJ11/bingo-backend/pkg/types"
)

const maxBodyBytes = 16 << 10

type createGameRequest struct {
	OpponentID   string `json:"opponent_id"`
	OpponentName string `json:"opponent_name"`
	Solo         bool   `json:"solo"`
	Pattern      string `json:"pattern"`
	SharedBoard  bool   `json:"shared_board"`
}

// CreateGame starts a game for the caller and pushes the invitation to the
// opponent if they are online.
func CreateGame(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createGameRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, log, fmt.Errorf("%w: %v", hub.ErrBadRequest, err))
			return
		}

		opts := game.CreateOptions{Solo: req.Solo, Pattern: req.Pattern, SharedBoard: req.SharedBoard}
		if oid := strings.TrimSpace(req.OpponentID); oid != "" && !req.Solo {
			opts.Opponent = engine.Participant{ID: oid, Username: strings.TrimSpace(req.OpponentName)}
		}

		sess, err := h.CreateGame(r.Context(), id, opts)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, types.NewGameView(sess, true))
	}
}

// GetGame returns a game by room code or ID to one of its participants.
func GetGame(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		sess, err := h.GetGame(r.Context(), id, chi.URLParam(r, "ref"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, types.NewGameView(sess, true))
	}
}

// Healthz answers 503 once the hub loop has stopped.
func Healthz(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := h.Stats(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func statusFor(err error) (int, string) {
	if errors.Is(err, hub.ErrStopped) {
		return http.StatusServiceUnavailable, proto.CodeInternal
	}
	code := hub.ErrorCode(err)
	switch code {
	case proto.CodeBadRequest:
		return http.StatusBadRequest, code
	case proto.CodeNotFound:
		return http.StatusNotFound, code
	case proto.CodeNotAuthorized:
		return http.StatusForbidden, code
	case proto.CodeInvalidAction:
		return http.StatusUnprocessableEntity, code
	case proto.CodeConflict:
		return http.StatusConflict, code
	case proto.CodeExpired:
		return http.StatusGone, code
	default:
		return http.StatusInternalServerError, code
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		message = http.StatusText(status)
	}
	writeJSON(w, status, types.ErrorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
