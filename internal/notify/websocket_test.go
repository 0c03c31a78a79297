package notify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialBus(t *testing.T, bus *Bus) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewWebSocketHandler(bus, []string{"*"}, zap.NewNop()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_JoinTableAndReceive(t *testing.T) {
	bus := newTestBus(t, Options{})
	conn := dialBus(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_table", "tableId": 7}))
	ack := readJSON(t, conn)
	assert.Equal(t, "joined", ack["type"])
	assert.Equal(t, "table:7", ack["group"])

	bus.Publish(TableGroup(7), EventSessionApproved, map[string]string{"status": "active"})

	ev := readJSON(t, conn)
	assert.Equal(t, "table:7", ev["group"])
	assert.Equal(t, EventSessionApproved, ev["event"])
	assert.Equal(t, map[string]any{"status": "active"}, ev["payload"])
}

func TestWebSocket_StaffJoinRejectsBadToken(t *testing.T) {
	bus := newTestBus(t, Options{})
	conn := dialBus(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_staff", "token": "nope"}))
	reply := readJSON(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "UNAUTHORIZED", reply["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_staff", "token": "customer-5"}))
	reply = readJSON(t, conn)
	assert.Equal(t, "FORBIDDEN", reply["code"])
	assert.Equal(t, 0, bus.Members(GroupStaff))

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_staff", "token": "staff-token"}))
	reply = readJSON(t, conn)
	assert.Equal(t, "joined", reply["type"])
	assert.Equal(t, GroupStaff, reply["group"])
}

func TestWebSocket_MalformedAndUnknownMessages(t *testing.T) {
	bus := newTestBus(t, Options{})
	conn := dialBus(t, bus)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "BAD_MESSAGE", readJSON(t, conn)["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "dance"}))
	assert.Equal(t, "UNKNOWN_ACTION", readJSON(t, conn)["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_table", "tableId": -3}))
	assert.Equal(t, "VALIDATION_ERROR", readJSON(t, conn)["code"])
}

func TestWebSocket_LeaveStopsDelivery(t *testing.T) {
	bus := newTestBus(t, Options{})
	conn := dialBus(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_table", "tableId": 2}))
	require.Equal(t, "joined", readJSON(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "leave", "group": "table:2"}))
	left := readJSON(t, conn)
	assert.Equal(t, "left", left["type"])
	assert.Equal(t, 0, bus.Members(TableGroup(2)))
}

func TestWebSocket_CloseRemovesSubscriber(t *testing.T) {
	bus := newTestBus(t, Options{})
	conn := dialBus(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_table", "tableId": 4}))
	require.Equal(t, "joined", readJSON(t, conn)["type"])
	require.Equal(t, 1, bus.Members(TableGroup(4)))

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return bus.Members(TableGroup(4)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ShutdownClosesConnection(t *testing.T) {
	bus := NewBus(Options{}, newTestVerifier(), zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))
	conn := dialBus(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "join_table", "tableId": 1}))
	require.Equal(t, "joined", readJSON(t, conn)["type"])

	require.NoError(t, bus.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.False(t, isTimeout(err), "connection should close instead of timing out")
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	bus := newTestBus(t, Options{})
	srv := httptest.NewServer(NewWebSocketHandler(bus, []string{"https://menu.example"}, zap.NewNop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://menu.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
