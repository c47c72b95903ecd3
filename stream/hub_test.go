package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// hubHarness wires a hub behind an httptest server so tests exercise the
// real websocket transport.
type hubHarness struct {
	hub    *Hub
	server *httptest.Server
}

func newHubHarness(t *testing.T) *hubHarness {
	t.Helper()
	hub := NewHub(Config{Log: zerolog.Nop(), SweepInterval: 10 * time.Millisecond, Grace: 10 * time.Millisecond})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(ws)
	}))

	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})
	return &hubHarness{hub: hub, server: server}
}

func (h *hubHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	// Registration happens on the server goroutine after the upgrade.
	require.Eventually(t, func() bool { return h.hub.ConnectionCount() > 0 }, time.Second, time.Millisecond)
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, channel string) {
	t.Helper()
	msg, err := json.Marshal(subscribeMessage{Action: "subscribe", Channel: channel})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, msg))
	// The subscription is applied by the read pump; give it a beat.
	time.Sleep(20 * time.Millisecond)
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

// TestEmit_SessionChannel verifies subscribers of a session channel
// receive that session's events, timestamped.
func TestEmit_SessionChannel(t *testing.T) {
	h := newHubHarness(t)
	ws := h.dial(t)
	subscribe(t, ws, "session-1")

	h.hub.Emit("session-1", Event{Type: EventTestOutput, Data: map[string]any{"chunk": "line one"}})

	event := readEvent(t, ws)
	assert.Equal(t, EventTestOutput, event.Type)
	assert.Equal(t, "session-1", event.SessionID)
	assert.Equal(t, "line one", event.Data["chunk"])

	stamp, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), stamp, 5*time.Second)
}

// TestEmit_AllChannel verifies the wildcard channel sees every session's
// events while unrelated session channels see nothing.
func TestEmit_AllChannel(t *testing.T) {
	h := newHubHarness(t)
	watcher := h.dial(t)
	subscribe(t, watcher, ChannelAll)

	h.hub.Emit("session-a", Event{Type: EventExecutionStarted})
	h.hub.Emit("session-b", Event{Type: EventExecutionStarted})

	first := readEvent(t, watcher)
	second := readEvent(t, watcher)
	assert.ElementsMatch(t, []string{"session-a", "session-b"}, []string{first.SessionID, second.SessionID})
}

// TestEmit_UnsubscribedConnectionGetsNothing verifies events do not leak
// to connections without a matching subscription.
func TestEmit_UnsubscribedConnectionGetsNothing(t *testing.T) {
	h := newHubHarness(t)
	ws := h.dial(t)
	subscribe(t, ws, "session-other")

	h.hub.Emit("session-1", Event{Type: EventTestOutput})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "expected a read timeout, not an event")
}

// TestUnsubscribe verifies an unsubscribe message stops delivery.
func TestUnsubscribe(t *testing.T) {
	h := newHubHarness(t)
	ws := h.dial(t)
	subscribe(t, ws, "session-1")

	msg, err := json.Marshal(subscribeMessage{Action: "unsubscribe", Channel: "session-1"})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, msg))
	time.Sleep(20 * time.Millisecond)

	h.hub.Emit("session-1", Event{Type: EventTestOutput})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, readErr := ws.ReadMessage()
	assert.Error(t, readErr)
}

// TestBroadcast reaches every connection regardless of subscriptions.
func TestBroadcast(t *testing.T) {
	h := newHubHarness(t)
	ws := h.dial(t)

	h.hub.Broadcast(Event{Type: EventTestCompleted})
	event := readEvent(t, ws)
	assert.Equal(t, EventTestCompleted, event.Type)
}

// TestDisconnectedConnectionIsReaped verifies a closed transport is
// eventually removed from the registry.
func TestDisconnectedConnectionIsReaped(t *testing.T) {
	h := newHubHarness(t)
	ws := h.dial(t)
	require.Equal(t, 1, h.hub.ConnectionCount())

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return h.hub.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestMalformedMessageIgnored verifies junk input does not kill the
// connection.
func TestMalformedMessageIgnored(t *testing.T) {
	h := newHubHarness(t)
	ws := h.dial(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	subscribe(t, ws, "session-1")

	h.hub.Emit("session-1", Event{Type: EventTestOutput})
	event := readEvent(t, ws)
	assert.Equal(t, EventTestOutput, event.Type)
}

func TestEventStamped(t *testing.T) {
	stamped := Event{Type: EventTestOutput}.stamped()
	_, err := time.Parse(time.RFC3339Nano, stamped.Timestamp)
	require.NoError(t, err)

	// A caller-provided timestamp is preserved.
	fixed := Event{Type: EventTestOutput, Timestamp: "2026-01-02T03:04:05Z"}.stamped()
	assert.Equal(t, "2026-01-02T03:04:05Z", fixed.Timestamp)
}
