package server

import (
	"encoding/json"
	"log"
	"net/http"
)

type skipRequest struct {
	DJToken     string `json:"djToken"`
	AccessToken string `json:"accessToken"`
	DeviceID    string `json:"deviceId"`
}

// handleSkip advances the platform player and announces the skip as its own
// event so listeners react before the next full snapshot lands.
// POST /spotify/skip
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var body skipRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DJToken == "" || body.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "missing djToken or accessToken")
		return
	}
	if _, err := s.registry.Lookup(body.DJToken); err != nil {
		writeError(w, http.StatusForbidden, "not authorized as DJ")
		return
	}

	if err := s.platform.Next(r.Context(), body.AccessToken, body.DeviceID); err != nil {
		log.Printf("radio: skip track: %v", err)
		writeError(w, http.StatusInternalServerError, "error skipping track")
		return
	}

	s.bus.Broadcast("player.skip", map[string]any{}, "")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type playbackRequest struct {
	DJToken     string `json:"djToken"`
	AccessToken string `json:"accessToken"`
	DeviceID    string `json:"deviceId"`
	Action      string `json:"action"`
}

// handlePlayback starts or pauses the platform player.
// PUT /spotify/playback
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var body playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DJToken == "" || body.AccessToken == "" || body.DeviceID == "" || body.Action == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if body.Action != "play" && body.Action != "pause" {
		writeError(w, http.StatusBadRequest, "action must be \"play\" or \"pause\"")
		return
	}
	if _, err := s.registry.Lookup(body.DJToken); err != nil {
		writeError(w, http.StatusForbidden, "not authorized as DJ")
		return
	}

	var err error
	if body.Action == "play" {
		err = s.platform.Play(r.Context(), body.AccessToken, body.DeviceID)
	} else {
		err = s.platform.Pause(r.Context(), body.AccessToken, body.DeviceID)
	}
	if err != nil {
		log.Printf("radio: %s track: %v", body.Action, err)
		writeError(w, http.StatusInternalServerError, "failed to "+body.Action+" track")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": body.Action})
}
