package realtime

import (
	"encoding/json"
	"log"

	"github.com/ClaireBookworm/friendsradio/internal/metrics"
)

// Event is the wire envelope for every realtime frame, both directions.
// Src carries the originating instance id when the event travelled through
// the Redis bridge; clients ignore it.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Src     string          `json:"src,omitempty"`
}

type envelope struct {
	data    []byte
	exclude string // connection id to skip, "" for none
}

// Hub owns the set of connected clients and fans events out to them.
// A single run loop serializes all broadcasts, which combined with the
// per-client FIFO send channel preserves emission order per event type.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	onConnect    func(*Client)
	onDisconnect func(*Client)
	onMessage    func(*Client, Event)
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetHandlers wires the connection lifecycle and inbound frame callbacks.
// Must be called before Run.
func (h *Hub) SetHandlers(onConnect, onDisconnect func(*Client), onMessage func(*Client, Event)) {
	h.onConnect = onConnect
	h.onDisconnect = onDisconnect
	h.onMessage = onMessage
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			metrics.ConnectedClients.Set(float64(len(h.clients)))
			if h.onConnect != nil {
				h.onConnect(client)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				_ = client.conn.Close()
				metrics.ConnectedClients.Set(float64(len(h.clients)))
				if h.onDisconnect != nil {
					h.onDisconnect(client)
				}
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if msg.exclude != "" && client.ID == msg.exclude {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Slow client: drop it rather than stall the room.
					delete(h.clients, client)
					close(client.send)
					_ = client.conn.Close()
					metrics.ConnectedClients.Set(float64(len(h.clients)))
					if h.onDisconnect != nil {
						h.onDisconnect(client)
					}
				}
			}
		}
	}
}

// Send fans raw event bytes out to all clients except the excluded one.
func (h *Hub) Send(data []byte, exclude string) {
	h.broadcast <- envelope{data: data, exclude: exclude}
}

// Marshal builds the wire form of an event.
func Marshal(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: event, Payload: raw})
}

// BroadcastEvent marshals and fans out one event locally.
func (h *Hub) BroadcastEvent(event string, payload any, exclude string) {
	data, err := Marshal(event, payload)
	if err != nil {
		log.Printf("radio: marshal %s event: %v", event, err)
		return
	}
	h.Send(data, exclude)
}
