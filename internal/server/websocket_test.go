package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const liveTestOrigin = "http://chat.test"

// newLiveServer starts the full HTTP surface over a running hub and fake
// store, so tests can dial real websocket connections through the upgrade
// handler.
func newLiveServer(t *testing.T) (string, *Hub, *fakeStore) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{liveTestOrigin}

	st := &fakeStore{}
	hub := NewHub(zap.NewNop())
	go hub.Run()

	ts := httptest.NewServer(NewServer(cfg, hub, st, zap.NewNop()).Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return ts.URL, hub, st
}

func dialRoom(t *testing.T, baseURL, room string) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws/chat/" + room

	header := http.Header{}
	header.Set("Origin", liveTestOrigin)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = resp.Body.Close()
	})
	return conn
}

// collectFrames reads websocket messages until n frames have arrived,
// splitting apart any payloads the write pump coalesced into one message.
func collectFrames(t *testing.T, conn *websocket.Conn, n int) []outboundMessage {
	t.Helper()

	var frames []outboundMessage
	for len(frames) < n {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		for _, part := range bytes.Split(raw, []byte{'\n'}) {
			var frame outboundMessage
			require.NoError(t, json.Unmarshal(part, &frame))
			frames = append(frames, frame)
		}
	}
	return frames
}

func expectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, but received one")
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func TestWebSocketJoinDeliversWelcomeToJoinerOnly(t *testing.T) {
	baseURL, _, _ := newLiveServer(t)

	first := dialRoom(t, baseURL, "lobby")
	welcome := collectFrames(t, first, 1)[0]
	require.Equal(t, typeSystemMessage, welcome.Type)
	require.Equal(t, "Connected to room: lobby", welcome.Message)
	require.Equal(t, systemUsername, welcome.Username)
	require.Zero(t, welcome.MessageID)

	second := dialRoom(t, baseURL, "lobby")
	welcome = collectFrames(t, second, 1)[0]
	require.Equal(t, "Connected to room: lobby", welcome.Message)

	// The second join must not announce itself to existing members.
	expectNoFrame(t, first, 150*time.Millisecond)
}

func TestWebSocketMessageEchoesToSenderAndNeighbor(t *testing.T) {
	baseURL, _, st := newLiveServer(t)

	sender := dialRoom(t, baseURL, "general")
	collectFrames(t, sender, 1)
	neighbor := dialRoom(t, baseURL, "general")
	collectFrames(t, neighbor, 1)

	inbound, err := json.Marshal(inboundMessage{Message: "hello there", Username: "ada"})
	require.NoError(t, err)
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, inbound))

	for _, conn := range []*websocket.Conn{sender, neighbor} {
		frame := collectFrames(t, conn, 1)[0]
		require.Equal(t, typeChatMessage, frame.Type)
		require.Equal(t, "hello there", frame.Message)
		require.Equal(t, "ada", frame.Username)
		require.Equal(t, int64(1), frame.MessageID)
		require.NotEmpty(t, frame.Timestamp)
	}

	calls := st.calls()
	require.Len(t, calls, 1)
	require.Equal(t, saveCall{Room: "general", Username: "ada", Content: "hello there"}, calls[0])
}

func TestWebSocketNoDeliveryAcrossRooms(t *testing.T) {
	baseURL, _, _ := newLiveServer(t)

	sender := dialRoom(t, baseURL, "alpha")
	collectFrames(t, sender, 1)
	outsider := dialRoom(t, baseURL, "beta")
	collectFrames(t, outsider, 1)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage,
		[]byte(`{"message":"alpha only","username":"ada"}`)))
	collectFrames(t, sender, 1)

	expectNoFrame(t, outsider, 150*time.Millisecond)
}

func TestWebSocketAbruptCloseReleasesMembership(t *testing.T) {
	baseURL, hub, _ := newLiveServer(t)

	first := dialRoom(t, baseURL, "cleanup")
	second := dialRoom(t, baseURL, "cleanup")
	require.Eventually(t, func() bool {
		return hub.RoomSize("cleanup") == 2
	}, 2*time.Second, 10*time.Millisecond)

	// No close handshake: the underlying connections just die.
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())

	require.Eventually(t, func() bool {
		return hub.RoomSize("cleanup") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownWithLiveClientsCompletesPromptly(t *testing.T) {
	baseURL, hub, _ := newLiveServer(t)

	dialRoom(t, baseURL, "draining")
	dialRoom(t, baseURL, "draining")
	require.Eventually(t, func() bool {
		return hub.RoomSize("draining") == 2
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, hub.Shutdown(5*time.Second))
	require.Less(t, time.Since(start), 2*time.Second)
	require.Zero(t, hub.RoomSize("draining"))
}
