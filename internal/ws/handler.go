// Package ws is the WebSocket transport of the realtime gateway. It
// authenticates the handshake, then shuttles JSON frames between the socket
// and the hub.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bingo-backend/internal/auth"
	"github.com/DoyleJ11/bingo-backend/internal/hub"
	"github.com/DoyleJ11/bingo-backend/internal/presence"
	"github.com/DoyleJ11/bingo-backend/internal/types"
)

type Config struct {
	// OriginPatterns are extra hosts allowed to open a socket cross-origin.
	OriginPatterns []string
	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

func (c Config) withDefaults() Config {
	if c.OutboxSize <= 0 {
		c.OutboxSize = 32
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 16 << 10
	}
	return c
}

func Handler(h *hub.Hub, v auth.Verifier, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		// Never upgrade an unauthenticated request.
		id, err := v.Verify(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			log.Info("handshake rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="bingo"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.String("user_id", id.UserID), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(cfg.ReadLimit)

		c := presence.NewConn(uuid.NewString(), id, cfg.OutboxSize)
		connLog := log.With(zap.String("user_id", id.UserID), zap.String("conn_id", c.ID))

		if err := h.Send(r.Context(), hub.Connect{Conn: c}); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
			defer cancel()
			_ = h.Send(ctx, hub.Disconnect{Identity: id, ConnID: c.ID})
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			writeLoop(ctx, conn, c.Outbox, cfg, connLog)
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					connLog.Debug("client closed")
				default:
					connLog.Debug("read ended", zap.Error(err))
				}
				return
			}

			msg := hub.FromClient{UserID: id.UserID, ConnID: c.ID}
			if err := json.Unmarshal(data, &msg.Msg); err != nil {
				msg.Err = err
			}
			if err := h.Send(ctx, msg); err != nil {
				return
			}
		}
	}
}

// writeLoop drains the outbox and keeps the connection alive. The hub closes
// the outbox when the client is dropped, superseded or the server stops.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage, cfg Config, log *zap.Logger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "connection closed by server")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.String("type", msg.Type), zap.Error(err))
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
