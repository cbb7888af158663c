package queue

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ClaireBookworm/friendsradio/internal/metrics"
	"github.com/ClaireBookworm/friendsradio/internal/session"
	"github.com/ClaireBookworm/friendsradio/internal/spotify"
)

// Backoff schedule for rate-limited submissions. The 1s base and x1.5 growth
// match the established client behavior; the ceiling, jitter and attempt
// limit bound it.
const (
	baseBackoff   = time.Second
	backoffFactor = 1.5
	maxBackoff    = time.Minute
	jitterShare   = 0.1
	maxAttempts   = 10
)

// Platform is the slice of the external music service the submitter needs.
type Platform interface {
	QueueTrack(ctx context.Context, accessToken, deviceID, uri string) error
}

// PendingSubmission is a queue entry whose hand-off to the platform has not
// been confirmed yet.
type PendingSubmission struct {
	ID       string `json:"id"`
	URI      string `json:"uri"`
	AddedBy  string `json:"addedBy"`
	Attempts int    `json:"attempts"`
}

type pendingItem struct {
	PendingSubmission
	accessToken string
	deviceID    string
	backoff     time.Duration
	nextAttempt time.Time
}

// Submitter pushes queue entries to the platform, absorbing rate limits.
// The queue entry is appended optimistically before the first attempt;
// rate limits park the submission for background retry, any other failure
// rolls the entry back. One submission is in flight at a time and the head
// always goes first, so retries never reorder the queue.
type Submitter struct {
	store    *Store
	platform Platform
	bus      Bus
	clock    clockwork.Clock

	mu       sync.Mutex
	pending  []*pendingItem
	inFlight bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func NewSubmitter(store *Store, platform Platform, bus Bus, clock clockwork.Clock) *Submitter {
	s := &Submitter{
		store:    store,
		platform: platform,
		bus:      bus,
		clock:    clock,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Submit appends uri to the queue and hands it to the platform. The append
// is visible to all listeners immediately; a rate-limited platform call
// keeps the entry and retries silently in the background, any other
// platform failure rolls the entry back and is returned to the caller.
func (s *Submitter) Submit(ctx context.Context, token, accessToken, deviceID, uri string) (Snapshot, error) {
	entry, snap, err := s.store.append(token, uri)
	if err != nil {
		return nil, err
	}

	item := &pendingItem{
		PendingSubmission: PendingSubmission{
			ID:      entry.ID,
			URI:     entry.URI,
			AddedBy: entry.AddedBy,
		},
		accessToken: accessToken,
		deviceID:    deviceID,
		backoff:     baseBackoff,
	}

	s.mu.Lock()
	if len(s.pending) > 0 || s.inFlight {
		// Another submission is ahead; preserve FIFO and let the worker
		// get to this one.
		s.pending = append(s.pending, item)
		s.mu.Unlock()
		s.broadcastPending()
		s.kick()
		return snap, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	metrics.SubmissionAttempts.Inc()
	callErr := s.platform.QueueTrack(ctx, accessToken, deviceID, uri)

	// Submissions may have parked behind this call; clearing inFlight and
	// settling this item must be one step, and the worker is kicked on every
	// exit so parked submissions never stall.
	s.mu.Lock()
	s.inFlight = false

	switch {
	case callErr == nil:
		s.mu.Unlock()
		metrics.SubmissionsDelivered.Inc()
		s.kick()
		return snap, nil

	case errors.Is(callErr, spotify.ErrRateLimited):
		item.Attempts = 1
		item.nextAttempt = s.clock.Now().Add(s.jitter(item.backoff))
		// This submission was first in; it retries from the head, ahead of
		// anything parked while its call was on the wire.
		s.pending = append([]*pendingItem{item}, s.pending...)
		s.mu.Unlock()
		metrics.SubmissionRetries.Inc()
		s.broadcastPending()
		s.kick()
		log.Printf("radio: submission %s rate limited, retrying in background", entry.URI)
		return snap, nil

	default:
		s.mu.Unlock()
		metrics.SubmissionFailures.Inc()
		s.store.removeByID(entry.ID)
		s.kick()
		return nil, callErr
	}
}

// Cancel drops a pending submission and its optimistic queue entry.
// Requires DJ authority; only explicit cancellation (or delivery) removes a
// submission from the pending set.
func (s *Submitter) Cancel(token, id string) error {
	if _, err := s.store.auth.Lookup(token); err != nil {
		return session.ErrNotAuthorized
	}

	s.mu.Lock()
	found := false
	for i, it := range s.pending {
		if it.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return session.ErrNotFound
	}
	s.store.removeByID(id)
	s.broadcastPending()
	return nil
}

// Pending returns a copy of the submissions still awaiting delivery.
func (s *Submitter) Pending() []PendingSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingSubmission, len(s.pending))
	for i, it := range s.pending {
		out[i] = it.PendingSubmission
	}
	return out
}

// Close stops the background worker. In-flight attempts run to completion.
func (s *Submitter) Close() {
	close(s.stop)
	<-s.done
}

func (s *Submitter) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Submitter) run() {
	defer close(s.done)

	for {
		item, delay, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		if delay > 0 {
			select {
			case <-s.clock.After(delay):
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		s.attempt(item)
	}
}

// next reports the queue head and how long to wait before attempting it.
func (s *Submitter) next() (*pendingItem, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 || s.inFlight {
		return nil, 0, false
	}
	head := s.pending[0]
	delay := head.nextAttempt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	return head, delay, true
}

func (s *Submitter) attempt(item *pendingItem) {
	s.mu.Lock()
	if len(s.pending) == 0 || s.pending[0] != item {
		// Head changed while we were waiting (delivered or cancelled).
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	metrics.SubmissionAttempts.Inc()
	err := s.platform.QueueTrack(context.Background(), item.accessToken, item.deviceID, item.URI)

	s.mu.Lock()
	s.inFlight = false

	if len(s.pending) == 0 || s.pending[0] != item {
		// Cancelled mid-call; nothing left to record.
		s.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		s.pending = s.pending[1:]
		s.mu.Unlock()
		metrics.SubmissionsDelivered.Inc()
		s.broadcastPending()

	case errors.Is(err, spotify.ErrRateLimited):
		item.Attempts++
		if item.Attempts >= maxAttempts {
			s.pending = s.pending[1:]
			s.mu.Unlock()
			metrics.SubmissionFailures.Inc()
			log.Printf("radio: submission %s gave up after %d rate-limited attempts", item.URI, item.Attempts)
			s.store.removeByID(item.ID)
			s.broadcastPending()
			return
		}
		item.backoff = time.Duration(float64(item.backoff) * backoffFactor)
		if item.backoff > maxBackoff {
			item.backoff = maxBackoff
		}
		item.nextAttempt = s.clock.Now().Add(s.jitter(item.backoff))
		s.mu.Unlock()
		metrics.SubmissionRetries.Inc()
		s.broadcastPending()

	default:
		s.pending = s.pending[1:]
		s.mu.Unlock()
		metrics.SubmissionFailures.Inc()
		log.Printf("radio: submission %s failed permanently: %v", item.URI, err)
		s.store.removeByID(item.ID)
		s.broadcastPending()
	}
}

// jitter spreads the deadline by up to ±10% so parked submissions do not
// retry in lockstep.
func (s *Submitter) jitter(d time.Duration) time.Duration {
	spread := float64(d) * jitterShare
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

func (s *Submitter) broadcastPending() {
	s.bus.Broadcast("queue.pending", s.Pending(), "")
}
