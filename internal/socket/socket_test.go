package socket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "socket-test-secret"

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "exp": exp.Unix()})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func startServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/api/ws", NewHandler(hub, testSecret, nil).HandleWebSocket)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + token
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandlerRejectsMissingOrBadToken(t *testing.T) {
	_, srv := startServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	expired := signToken(t, "user-1", time.Now().Add(-time.Minute))
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, expired), nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestProjectRoomBroadcast(t *testing.T) {
	hub, srv := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, signToken(t, "user-1", time.Now().Add(time.Hour))), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "join", Room: ProjectRoom("p1")}))
	ack := readMessage(t, conn)
	assert.Equal(t, MessageAck, ack.Type)
	assert.Equal(t, "joined", ack.Payload["action"])
	assert.Equal(t, 1, hub.RoomSize("project:p1"))

	NewBroadcaster(hub).BroadcastToProject("p1", MessageTechnicalDebtConverted, map[string]interface{}{
		"technicalDebtId": "td-1",
	}, "")

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTechnicalDebtConverted, msg.Type)
	assert.Equal(t, "td-1", msg.Payload["technicalDebtId"])
}

func TestJoinRejectsNonProjectRooms(t *testing.T) {
	hub, srv := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, signToken(t, "user-1", time.Now().Add(time.Hour))), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "join", Room: "user:someone-else"}))
	ack := readMessage(t, conn)
	assert.Equal(t, "rejected", ack.Payload["action"])
	assert.Equal(t, 0, hub.RoomSize("user:someone-else"))
}

func TestNilBroadcasterIsSafe(t *testing.T) {
	var b *Broadcaster
	assert.NotPanics(t, func() {
		b.BroadcastToProject("p1", MessageDeprecationCreated, nil, "")
	})
}
