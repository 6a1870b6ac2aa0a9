package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/bingo-backend/internal/auth"
	"github.com/DoyleJ11/bingo-backend/internal/engine"
	"github.com/DoyleJ11/bingo-backend/internal/game"
	"github.com/DoyleJ11/bingo-backend/internal/hub"
	"github.com/DoyleJ11/bingo-backend/internal/store"
	proto "github.com/DoyleJ11/bingo-backend/pkg/types"
)

var secret = []byte("test-secret")

// frame is the client's view of a server message.
type frame struct {
	Type      string         `json:"type"`
	Room      string         `json:"room"`
	RequestID string         `json:"request_id"`
	Data      map[string]any `json:"data"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newServer(t *testing.T) (*httptest.Server, *auth.JWTVerifier) {
	t.Helper()
	log := zaptest.NewLogger(t)
	svc := game.NewService(store.NewMemory(), game.Config{Rules: engine.DefaultRules()}, log)
	h := hub.NewHub(context.Background(), svc, hub.Config{}, log)
	v := auth.NewJWTVerifier(secret)

	srv := httptest.NewServer(Handler(h, v, Config{PingInterval: time.Second}, log))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Stop(ctx)
	})
	return srv, v
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server, v *auth.JWTVerifier, userID string) *websocket.Conn {
	t.Helper()
	token, err := v.Issue(auth.Identity{UserID: userID, Username: userID}, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var f frame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

func write(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, v))
}

func TestHandler_RejectsMissingOrBadToken(t *testing.T) {
	srv, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, wsURL(srv)+"?token=not-a-jwt", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := auth.NewJWTVerifier([]byte("other-secret")).Issue(auth.Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, resp, err = websocket.Dial(ctx, wsURL(srv)+"?token="+forged, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RoundTrip(t *testing.T) {
	srv, v := newServer(t)
	alice := dial(t, srv, v, "alice")

	write(t, alice, map[string]any{"type": proto.ActionCreateGame, "solo": true, "request_id": "c1"})
	created := read(t, alice)
	assert.Equal(t, proto.EventGameCreated, created.Type)
	assert.Equal(t, "c1", created.RequestID)
	assert.Len(t, created.Room, 6)
	assert.Equal(t, "pending", created.Data["status"])
	assert.Equal(t, proto.EventRoomJoined, read(t, alice).Type)

	write(t, alice, map[string]any{"type": proto.ActionAcceptInvitation, "room": created.Room})
	started := read(t, alice)
	require.Equal(t, proto.EventGameStarted, started.Type)
	boards, ok := started.Data["boards"].([]any)
	require.True(t, ok)
	assert.Len(t, boards, 2)

	write(t, alice, map[string]any{"type": proto.ActionCallNumber, "room": created.Room, "number": 99})
	rejected := read(t, alice)
	assert.Equal(t, proto.EventNumberRejected, rejected.Type)
	assert.Equal(t, proto.CodeInvalidAction, rejected.Data["code"])

	write(t, alice, map[string]any{"type": proto.ActionCallNumber, "room": created.Room, "number": 12})
	called := read(t, alice)
	assert.Equal(t, proto.EventNumberCalled, called.Type)
	assert.EqualValues(t, 1, called.Data["history_length"])
	assert.Equal(t, "second", called.Data["next_turn"])
}

func TestHandler_BadFrameKeepsConnection(t *testing.T) {
	srv, v := newServer(t)
	alice := dial(t, srv, v, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, alice.Write(ctx, websocket.MessageText, []byte(`{"type":`)))

	f := read(t, alice)
	require.Equal(t, proto.EventError, f.Type)
	require.NotNil(t, f.Error)
	assert.Equal(t, proto.CodeBadRequest, f.Error.Code)

	write(t, alice, map[string]any{"type": proto.ActionJoinRoom, "room": "NOPE00"})
	f = read(t, alice)
	require.NotNil(t, f.Error)
	assert.Equal(t, proto.CodeNotFound, f.Error.Code)
}

func TestHandler_PresenceAcrossSockets(t *testing.T) {
	srv, v := newServer(t)
	alice := dial(t, srv, v, "alice")
	// Make sure alice is registered before bob connects.
	write(t, alice, map[string]any{"type": "ping"})
	require.Equal(t, proto.EventError, read(t, alice).Type)

	bob := dial(t, srv, v, "bob")
	connected := read(t, alice)
	assert.Equal(t, proto.EventUserConnected, connected.Type)

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))
	gone := read(t, alice)
	assert.Equal(t, proto.EventUserDisconnected, gone.Type)
	user, _ := gone.Data["user"].(map[string]any)
	assert.Equal(t, "bob", user["id"])
}
