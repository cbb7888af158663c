package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaireBookworm/friendsradio/internal/playback"
	"github.com/ClaireBookworm/friendsradio/internal/realtime"
)

func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(f.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) realtime.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var evt realtime.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

// readUntil discards frames until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, event string) realtime.Event {
	t.Helper()
	for i := 0; i < 50; i++ {
		evt := readFrame(t, ws)
		if evt.Type == event {
			return evt
		}
	}
	t.Fatalf("never saw a %s frame", event)
	return realtime.Event{}
}

func writeFrame(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(realtime.Event{Type: event, Payload: raw}))
}

func TestWS_ConnectResync(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Append(f.djToken, "spotify:track:a")
	require.NoError(t, err)

	ws := dialWS(t, f)

	// A fresh connection gets the full room state without asking.
	welcome := readFrame(t, ws)
	require.Equal(t, "welcome", welcome.Type)
	var hello struct {
		ConnectionID string `json:"connectionId"`
		Now          string `json:"now"`
	}
	require.NoError(t, json.Unmarshal(welcome.Payload, &hello))
	assert.NotEmpty(t, hello.ConnectionID)

	queueEvt := readFrame(t, ws)
	require.Equal(t, "queue.updated", queueEvt.Type)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(queueEvt.Payload, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "spotify:track:a", entries[0]["uri"])

	assert.Equal(t, "queue.pending", readFrame(t, ws).Type)
	assert.Equal(t, "player.state", readFrame(t, ws).Type)
	assert.Equal(t, "users.updated", readFrame(t, ws).Type)
}

func TestWS_JoinAnnouncesPresence(t *testing.T) {
	f := newFixture(t)
	ws := dialWS(t, f)
	readUntil(t, ws, "users.updated") // drain the connect resync

	writeFrame(t, ws, "join", map[string]string{"name": "zoe"})

	evt := readUntil(t, ws, "users.updated")
	var users []string
	require.NoError(t, json.Unmarshal(evt.Payload, &users))
	assert.Equal(t, []string{"zoe"}, users)
}

func TestWS_DisconnectAnnouncesPresence(t *testing.T) {
	f := newFixture(t)

	ws1 := dialWS(t, f)
	readUntil(t, ws1, "users.updated")
	writeFrame(t, ws1, "join", map[string]string{"name": "zoe"})
	readUntil(t, ws1, "users.updated")

	ws2 := dialWS(t, f)
	readUntil(t, ws2, "users.updated")
	writeFrame(t, ws2, "join", map[string]string{"name": "sam"})

	evt := readUntil(t, ws2, "users.updated")
	var users []string
	require.NoError(t, json.Unmarshal(evt.Payload, &users))
	assert.Equal(t, []string{"sam", "zoe"}, users)

	ws1.Close()

	// zoe's departure reaches the remaining listener.
	for {
		evt = readUntil(t, ws2, "users.updated")
		require.NoError(t, json.Unmarshal(evt.Payload, &users))
		if len(users) == 1 {
			break
		}
	}
	assert.Equal(t, []string{"sam"}, users)
}

func TestWS_RegisterAttachesCredential(t *testing.T) {
	f := newFixture(t)
	ws := dialWS(t, f)
	readUntil(t, ws, "users.updated")

	writeFrame(t, ws, "register", map[string]string{
		"token":       f.djToken,
		"accessToken": "platform-acc",
		"deviceId":    "dev-1",
	})

	require.Eventually(t, func() bool {
		tok, ok := f.registry.DJCredential()
		return ok && tok == "platform-acc"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWS_PlayerPublishFansOutToOthers(t *testing.T) {
	f := newFixture(t)

	dj := dialWS(t, f)
	readUntil(t, dj, "users.updated")
	listener := dialWS(t, f)
	readUntil(t, listener, "users.updated")

	writeFrame(t, dj, "player.publish", map[string]any{
		"token":     f.djToken,
		"isPlaying": true,
		"currentTrack": playback.Track{
			URI: "spotify:track:a", Name: "Song", Artist: "Band", DurationMs: 200000,
		},
		"position": int64(1500),
	})

	evt := readUntil(t, listener, "player.state")
	var state struct {
		IsPlaying    bool            `json:"isPlaying"`
		CurrentTrack *playback.Track `json:"currentTrack"`
		Position     int64           `json:"position"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &state))
	assert.True(t, state.IsPlaying)
	require.NotNil(t, state.CurrentTrack)
	assert.Equal(t, "spotify:track:a", state.CurrentTrack.URI)
	assert.Equal(t, int64(1500), state.Position)

	// The publisher is the source of truth and must not receive an echo.
	_ = dj.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		_, data, err := dj.ReadMessage()
		if err != nil {
			break
		}
		var echo realtime.Event
		require.NoError(t, json.Unmarshal(data, &echo))
		require.NotEqual(t, "player.state", echo.Type, "publisher got its own state echoed back")
	}
}

func TestWS_PlayerPublishRejectedWithoutAuthority(t *testing.T) {
	f := newFixture(t)

	ws := dialWS(t, f)
	readUntil(t, ws, "users.updated")
	listener := dialWS(t, f)
	readUntil(t, listener, "users.updated")

	writeFrame(t, ws, "player.publish", map[string]any{
		"token":     "not-a-dj",
		"isPlaying": true,
		"position":  int64(10),
	})

	_ = listener.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		_, data, err := listener.ReadMessage()
		if err != nil {
			break
		}
		var evt realtime.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		require.NotEqual(t, "player.state", evt.Type, "unauthorized publish must not fan out")
	}
}

func TestWS_ChatMessageRelayed(t *testing.T) {
	f := newFixture(t)

	ws1 := dialWS(t, f)
	readUntil(t, ws1, "users.updated")
	ws2 := dialWS(t, f)
	readUntil(t, ws2, "users.updated")

	writeFrame(t, ws1, "chat.message", map[string]string{"from": "zoe", "text": "tune!"})

	for _, ws := range []*websocket.Conn{ws1, ws2} {
		evt := readUntil(t, ws, "chat.message")
		assert.JSONEq(t, `{"from":"zoe","text":"tune!"}`, string(evt.Payload))
	}
}

func TestWS_QueueResyncOnRequest(t *testing.T) {
	f := newFixture(t)
	ws := dialWS(t, f)
	readUntil(t, ws, "users.updated")

	_, err := f.store.Append(f.djToken, "spotify:track:late")
	require.NoError(t, err)
	readUntil(t, ws, "queue.updated") // the mutation broadcast

	writeFrame(t, ws, "queue.resync", nil)

	evt := readUntil(t, ws, "queue.updated")
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(evt.Payload, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "spotify:track:late", entries[0]["uri"])
}
