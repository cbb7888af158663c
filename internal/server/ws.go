package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ClaireBookworm/friendsradio/internal/playback"
	"github.com/ClaireBookworm/friendsradio/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The frontend origin varies per deployment; the room password is
		// the actual gate.
		return true
	},
}

// handleWS upgrades the realtime channel.
// GET /ws
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("radio: ws upgrade: %v", err)
		return
	}
	realtime.NewClient(s.hub, conn).Start()
}

// onConnect resyncs a fresh connection: it gets the full queue, pending
// submissions, playback snapshot and user list without waiting for the next
// DJ update.
func (s *Server) onConnect(c *realtime.Client) {
	c.SendEvent("welcome", map[string]any{
		"connectionId": c.ID,
		"now":          time.Now().UTC().Format(time.RFC3339Nano),
	})
	c.SendEvent("queue.updated", s.store.Snapshot())
	c.SendEvent("queue.pending", s.submitter.Pending())
	c.SendEvent("player.state", s.replicator.Snapshot())
	c.SendEvent("users.updated", s.registry.ConnectedUsers())
}

func (s *Server) onDisconnect(c *realtime.Client) {
	s.registry.DetachConnection(c.ID)
	s.bus.Broadcast("users.updated", s.registry.ConnectedUsers(), "")
}

type joinPayload struct {
	Name string `json:"name"`
}

type registerPayload struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
	DeviceID    string `json:"deviceId"`
}

type publishPayload struct {
	Token        string          `json:"token"`
	IsPlaying    bool            `json:"isPlaying"`
	CurrentTrack *playback.Track `json:"currentTrack"`
	Position     int64           `json:"position"`
}

type chatPayload struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// onMessage dispatches one inbound client frame.
func (s *Server) onMessage(c *realtime.Client, evt realtime.Event) {
	switch evt.Type {
	case "join":
		var p joinPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Name == "" {
			return
		}
		s.registry.AttachConnection(c.ID, p.Name)
		s.bus.Broadcast("users.updated", s.registry.ConnectedUsers(), "")

	case "register":
		var p registerPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Token == "" {
			return
		}
		if err := s.registry.SetCredential(p.Token, p.AccessToken, p.DeviceID); err != nil {
			log.Printf("radio: register credential: %v", err)
		}

	case "player.publish":
		var p publishPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		// Non-DJ publishes are dropped silently; the broadcast snapshot is
		// the correction channel.
		if err := s.replicator.Publish(p.Token, p.IsPlaying, p.CurrentTrack, p.Position, c.ID); err != nil {
			log.Printf("radio: playback publish rejected: %v", err)
		}

	case "chat.message":
		var p chatPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Text == "" {
			return
		}
		s.bus.Broadcast("chat.message", p, "")

	case "queue.resync":
		c.SendEvent("queue.updated", s.store.Snapshot())

	case "pending.sync":
		c.SendEvent("queue.pending", s.submitter.Pending())
	}
}
