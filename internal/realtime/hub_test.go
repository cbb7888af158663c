package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// dialHub stands up a ws endpoint backed by hub and returns the test side of
// one connection plus the internal client the hub sees.
func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, *Client) {
	t.Helper()

	clientCh := make(chan *Client, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		c := NewClient(hub, conn)
		c.Start()
		clientCh <- c
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	return ws, <-clientCh
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ws1, _ := dialHub(t, hub)
	ws2, _ := dialHub(t, hub)

	hub.BroadcastEvent("queue.updated", []string{"a"}, "")

	for _, ws := range []*websocket.Conn{ws1, ws2} {
		evt := readEvent(t, ws)
		assert.Equal(t, "queue.updated", evt.Type)
	}
}

func TestHub_ExcludeConnection(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ws1, c1 := dialHub(t, hub)
	ws2, _ := dialHub(t, hub)

	hub.BroadcastEvent("player.state", map[string]bool{"isPlaying": true}, c1.ID)
	hub.BroadcastEvent("chat.message", map[string]string{"text": "hi"}, "")

	// ws1 skipped the excluded event and sees only the chat message.
	evt := readEvent(t, ws1)
	assert.Equal(t, "chat.message", evt.Type)

	// ws2 got both, in order.
	assert.Equal(t, "player.state", readEvent(t, ws2).Type)
	assert.Equal(t, "chat.message", readEvent(t, ws2).Type)
}

func TestHub_SameEventOrderPreserved(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ws, _ := dialHub(t, hub)

	for i := 0; i < 20; i++ {
		hub.BroadcastEvent("queue.updated", []int{i}, "")
	}

	for i := 0; i < 20; i++ {
		evt := readEvent(t, ws)
		require.Equal(t, "queue.updated", evt.Type)
		var payload []int
		require.NoError(t, json.Unmarshal(evt.Payload, &payload))
		assert.Equal(t, []int{i}, payload, "snapshots delivered out of order")
	}
}

func TestHub_DirectSend(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ws1, c1 := dialHub(t, hub)
	ws2, _ := dialHub(t, hub)

	c1.SendEvent("welcome", map[string]string{"connectionId": c1.ID})

	evt := readEvent(t, ws1)
	assert.Equal(t, "welcome", evt.Type)

	// ws2 saw nothing.
	_ = ws2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := ws2.ReadMessage()
	assert.Error(t, err)
}

func TestHub_DisconnectCallback(t *testing.T) {
	hub := NewHub()
	gone := make(chan string, 1)
	hub.SetHandlers(nil, func(c *Client) { gone <- c.ID }, nil)
	go hub.Run()

	ws, c := dialHub(t, hub)
	ws.Close()

	select {
	case id := <-gone:
		assert.Equal(t, c.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect callback never fired")
	}
}

func TestHub_InboundFrameDispatch(t *testing.T) {
	hub := NewHub()
	frames := make(chan Event, 1)
	hub.SetHandlers(nil, nil, func(c *Client, evt Event) { frames <- evt })
	go hub.Run()

	ws, _ := dialHub(t, hub)

	require.NoError(t, ws.WriteJSON(Event{Type: "join", Payload: json.RawMessage(`{"name":"zoe"}`)}))

	select {
	case evt := <-frames:
		assert.Equal(t, "join", evt.Type)
		assert.JSONEq(t, `{"name":"zoe"}`, string(evt.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("inbound frame never dispatched")
	}
}
