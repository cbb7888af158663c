package playback

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ClaireBookworm/friendsradio/internal/session"
)

// Track describes what is (or should be) playing.
type Track struct {
	URI        string `json:"uri"`
	Name       string `json:"name,omitempty"`
	Artist     string `json:"artist,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
}

// State is the single shared playback snapshot. It is only ever replaced
// wholesale; listeners derive drift from UpdatedAt.
type State struct {
	IsPlaying    bool      `json:"isPlaying"`
	CurrentTrack *Track    `json:"currentTrack"`
	PositionMs   int64     `json:"position"`
	UpdatedAt    time.Time `json:"lastUpdate"`
}

type Authority interface {
	Lookup(token string) (session.Session, error)
}

type Bus interface {
	Broadcast(event string, payload any, exclude string)
}

// Replicator holds the authoritative playback snapshot and pushes every
// DJ update to all other connections.
type Replicator struct {
	mu    sync.Mutex
	state State
	auth  Authority
	bus   Bus
	clock clockwork.Clock
}

func NewReplicator(auth Authority, bus Bus, clock clockwork.Clock) *Replicator {
	return &Replicator{
		auth:  auth,
		bus:   bus,
		clock: clock,
		state: State{UpdatedAt: clock.Now()},
	}
}

// Publish overwrites the snapshot and broadcasts it to everyone except the
// publishing connection. Requires DJ authority.
func (r *Replicator) Publish(token string, isPlaying bool, track *Track, positionMs int64, publisherConn string) error {
	if _, err := r.auth.Lookup(token); err != nil {
		return session.ErrNotAuthorized
	}

	st := State{
		IsPlaying:    isPlaying,
		CurrentTrack: track,
		PositionMs:   positionMs,
		UpdatedAt:    r.clock.Now(),
	}

	r.mu.Lock()
	r.state = st
	r.mu.Unlock()

	r.bus.Broadcast("player.state", st, publisherConn)
	return nil
}

// Snapshot returns the current state; sent to every connection on connect
// so it can reconcile without waiting for the next DJ update.
func (r *Replicator) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// EstimatePosition is the drift correction listeners apply: the published
// position plus the time elapsed since it was stamped.
func EstimatePosition(st State, now time.Time) int64 {
	if !st.IsPlaying || st.CurrentTrack == nil {
		return st.PositionMs
	}
	return st.PositionMs + now.Sub(st.UpdatedAt).Milliseconds()
}
