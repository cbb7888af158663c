package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ClaireBookworm/friendsradio/internal/session"
)

type djLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type djLoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// handleDJLogin grants DJ authority against the room password.
// POST /auth/dj-login
func (s *Server) handleDJLogin(w http.ResponseWriter, r *http.Request) {
	var body djLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.registry.GrantAuthority(body.Username, body.Password)
	if errors.Is(err, session.ErrMissingField) {
		writeError(w, http.StatusBadRequest, "missing username or password")
		return
	}
	if errors.Is(err, session.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, djLoginResponse{Token: sess.Token, Username: sess.Username})
}

// handleMe validates a bearer token.
// GET /auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "no authorization header")
		return
	}

	sess, err := s.registry.Lookup(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"username": sess.Username})
}

// handleLogout drops the DJ session behind the bearer token.
// POST /auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "no authorization header")
		return
	}
	s.registry.Revoke(token)
	w.WriteHeader(http.StatusNoContent)
}
