package server

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
)

// The platform OAuth routes are thin passthroughs: the server never holds
// the DJ's platform tokens, it only brokers the exchange for the browser.

// GET /spotify/login
func (s *Server) handleSpotifyLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.oauth.AuthorizeURL(), http.StatusFound)
}

// GET /spotify/callback
func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, s.frontendURL+"/?error=no_code", http.StatusFound)
		return
	}

	tokens, err := s.oauth.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Printf("radio: code exchange: %v", err)
		http.Redirect(w, r, s.frontendURL+"/?error=spotify_auth_failed", http.StatusFound)
		return
	}

	q := url.Values{}
	q.Set("access_token", tokens.AccessToken)
	q.Set("refresh_token", tokens.RefreshToken)
	http.Redirect(w, r, s.frontendURL+"/?"+q.Encode(), http.StatusFound)
}

// POST /spotify/callback
func (s *Server) handleSpotifyCallbackPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "no code provided")
		return
	}

	tokens, err := s.oauth.ExchangeCode(r.Context(), body.Code)
	if err != nil {
		log.Printf("radio: code exchange: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to exchange code for tokens")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// GET /spotify/refresh_token
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.URL.Query().Get("refresh_token")
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing refresh_token")
		return
	}

	tokens, err := s.oauth.Refresh(r.Context(), refreshToken)
	if err != nil {
		log.Printf("radio: token refresh: %v", err)
		writeError(w, http.StatusInternalServerError, "error refreshing token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": tokens.AccessToken,
		"expires_in":   tokens.ExpiresIn,
	})
}
