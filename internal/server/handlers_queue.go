package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ClaireBookworm/friendsradio/internal/queue"
	"github.com/ClaireBookworm/friendsradio/internal/session"
)

type addTrackRequest struct {
	DJToken     string `json:"djToken"`
	AccessToken string `json:"accessToken"`
	DeviceID    string `json:"deviceId"`
	URI         string `json:"uri"`
}

type queueResponse struct {
	Success bool           `json:"success"`
	Queue   queue.Snapshot `json:"queue"`
}

// handleAddTrack appends a track and hands it to the platform queue. The
// in-memory append is visible immediately; a rate-limited platform call
// still answers success and retries in the background.
// POST /spotify/queue
func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	var body addTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DJToken == "" || body.AccessToken == "" || body.URI == "" {
		writeError(w, http.StatusBadRequest, "missing fields (djToken, accessToken, uri)")
		return
	}

	snap, err := s.submitter.Submit(r.Context(), body.DJToken, body.AccessToken, body.DeviceID, body.URI)
	if errors.Is(err, session.ErrNotAuthorized) {
		writeError(w, http.StatusForbidden, "not authorized as DJ")
		return
	}
	if err != nil {
		log.Printf("radio: add track: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to add track to platform queue")
		return
	}

	writeJSON(w, http.StatusOK, queueResponse{Success: true, Queue: snap})
}

type removeTrackRequest struct {
	DJToken string `json:"djToken"`
	Index   *int   `json:"index"`
}

// handleRemoveTrack removes one entry by position.
// DELETE /spotify/queue
func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	var body removeTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DJToken == "" || body.Index == nil {
		writeError(w, http.StatusBadRequest, "missing djToken or index")
		return
	}

	snap, err := s.store.RemoveAt(body.DJToken, *body.Index)
	if errors.Is(err, session.ErrNotAuthorized) {
		writeError(w, http.StatusForbidden, "not authorized as DJ")
		return
	}
	if errors.Is(err, queue.ErrInvalidIndex) {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if err != nil {
		log.Printf("radio: remove track: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, queueResponse{Success: true, Queue: snap})
}

type cancelPendingRequest struct {
	DJToken string `json:"djToken"`
	ID      string `json:"id"`
}

// handleCancelPending withdraws a parked submission and its queue entry.
// DELETE /spotify/queue/pending
func (s *Server) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	var body cancelPendingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DJToken == "" || body.ID == "" {
		writeError(w, http.StatusBadRequest, "missing djToken or id")
		return
	}

	err := s.submitter.Cancel(body.DJToken, body.ID)
	if errors.Is(err, session.ErrNotAuthorized) {
		writeError(w, http.StatusForbidden, "not authorized as DJ")
		return
	}
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such pending submission")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
