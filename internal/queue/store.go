package queue

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ClaireBookworm/friendsradio/internal/session"
)

var ErrInvalidIndex = errors.New("queue: invalid index")

// Entry is one track awaiting playback. ID is server-internal identity used
// for rollback and pruning; clients address entries by position.
type Entry struct {
	ID      string `json:"id"`
	URI     string `json:"uri"`
	AddedBy string `json:"addedBy"`
}

// Snapshot is the full ordered queue at a point in time. Always a copy.
type Snapshot []Entry

// Authority resolves tokens to DJ sessions.
type Authority interface {
	Lookup(token string) (session.Session, error)
}

// Bus fans an event out to connected clients.
type Bus interface {
	Broadcast(event string, payload any, exclude string)
}

// Store owns the ordered track queue. Insertion order is the only ordering
// signal; URIs may repeat. Every mutation runs under the store mutex and
// broadcasts the resulting snapshot.
type Store struct {
	mu      sync.Mutex
	entries []Entry
	auth    Authority
	bus     Bus
}

func NewStore(auth Authority, bus Bus) *Store {
	return &Store{auth: auth, bus: bus}
}

// Append adds a track at the tail. Requires DJ authority.
func (s *Store) Append(token, uri string) (Snapshot, error) {
	_, snap, err := s.append(token, uri)
	return snap, err
}

func (s *Store) append(token, uri string) (Entry, Snapshot, error) {
	sess, err := s.auth.Lookup(token)
	if err != nil {
		return Entry{}, nil, session.ErrNotAuthorized
	}

	e := Entry{
		ID:      uuid.NewString(),
		URI:     uri,
		AddedBy: sess.Username,
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	snap := s.copyLocked()
	s.mu.Unlock()

	s.bus.Broadcast("queue.updated", snap, "")
	return e, snap, nil
}

// RemoveAt deletes the entry at index. Positional and deliberately not
// idempotent: a stale index removes whatever sits there now, so callers must
// act on the latest snapshot.
func (s *Store) RemoveAt(token string, index int) (Snapshot, error) {
	if _, err := s.auth.Lookup(token); err != nil {
		return nil, session.ErrNotAuthorized
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.entries) {
		s.mu.Unlock()
		return nil, ErrInvalidIndex
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
	snap := s.copyLocked()
	s.mu.Unlock()

	s.bus.Broadcast("queue.updated", snap, "")
	return snap, nil
}

// ConsumeIfCurrent prunes every entry matching the track the platform
// reports as now playing. Driven by the poller, not by client commands, so
// it is not authority-gated.
func (s *Store) ConsumeIfCurrent(uri string) {
	s.mu.Lock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.URI != uri {
			kept = append(kept, e)
		}
	}
	changed := len(kept) != len(s.entries)
	s.entries = kept
	snap := s.copyLocked()
	s.mu.Unlock()

	if changed {
		s.bus.Broadcast("queue.updated", snap, "")
	}
}

// removeByID drops the entry with the given identity. Used by the submitter
// to roll back an optimistic append; identity-based so an interleaved
// positional removal can never make it strip the wrong entry.
func (s *Store) removeByID(id string) bool {
	s.mu.Lock()
	removed := false
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			removed = true
			break
		}
	}
	snap := s.copyLocked()
	s.mu.Unlock()

	if removed {
		s.bus.Broadcast("queue.updated", snap, "")
	}
	return removed
}

// Snapshot returns a copy of the current queue.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) copyLocked() Snapshot {
	snap := make(Snapshot, len(s.entries))
	copy(snap, s.entries)
	return snap
}
