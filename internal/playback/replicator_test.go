package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaireBookworm/friendsradio/internal/session"
)

type recordBus struct {
	mu     sync.Mutex
	events []string
	last   struct {
		payload any
		exclude string
	}
}

func (b *recordBus) Broadcast(event string, payload any, exclude string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.last.payload = payload
	b.last.exclude = exclude
}

func newTestReplicator(t *testing.T) (*Replicator, *recordBus, clockwork.FakeClock, string) {
	t.Helper()
	registry := session.NewRegistry("secret", "")
	sess, err := registry.GrantAuthority("dj1", "secret")
	require.NoError(t, err)
	bus := &recordBus{}
	clock := clockwork.NewFakeClock()
	return NewReplicator(registry, bus, clock), bus, clock, sess.Token
}

func TestPublishRoundTrip(t *testing.T) {
	r, bus, clock, token := newTestReplicator(t)

	track := &Track{URI: "spotify:track:A", Name: "Song", Artist: "Band"}
	require.NoError(t, r.Publish(token, true, track, 42000, "conn-dj"))

	// onConnect immediately after publish sees exactly what was published.
	snap := r.Snapshot()
	assert.True(t, snap.IsPlaying)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "spotify:track:A", snap.CurrentTrack.URI)
	assert.Equal(t, int64(42000), snap.PositionMs)
	assert.Equal(t, clock.Now(), snap.UpdatedAt)

	assert.Equal(t, []string{"player.state"}, bus.events)
	assert.Equal(t, "conn-dj", bus.last.exclude, "publisher must not get its own echo")
}

func TestPublishUnauthorized(t *testing.T) {
	r, bus, _, _ := newTestReplicator(t)

	err := r.Publish("bad-token", true, &Track{URI: "spotify:track:A"}, 0, "c1")
	assert.ErrorIs(t, err, session.ErrNotAuthorized)
	assert.Empty(t, bus.events, "rejected publish has no side effects")

	snap := r.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Nil(t, snap.CurrentTrack)
}

func TestPublishOverwritesWholesale(t *testing.T) {
	r, _, _, token := newTestReplicator(t)

	require.NoError(t, r.Publish(token, true, &Track{URI: "spotify:track:A"}, 10000, ""))
	require.NoError(t, r.Publish(token, false, nil, 0, ""))

	// Nothing from the first snapshot survives.
	snap := r.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Nil(t, snap.CurrentTrack)
	assert.Equal(t, int64(0), snap.PositionMs)
}

func TestEstimatePosition(t *testing.T) {
	r, _, clock, token := newTestReplicator(t)

	require.NoError(t, r.Publish(token, true, &Track{URI: "spotify:track:A"}, 30000, ""))
	snap := r.Snapshot()

	assert.Equal(t, int64(30000), EstimatePosition(snap, clock.Now()))
	assert.Equal(t, int64(34500), EstimatePosition(snap, clock.Now().Add(4500*time.Millisecond)))
}

func TestEstimatePosition_PausedDoesNotDrift(t *testing.T) {
	r, _, clock, token := newTestReplicator(t)

	require.NoError(t, r.Publish(token, false, &Track{URI: "spotify:track:A"}, 30000, ""))
	snap := r.Snapshot()

	assert.Equal(t, int64(30000), EstimatePosition(snap, clock.Now().Add(time.Minute)))
}
