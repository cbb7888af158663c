package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingField       = errors.New("session: missing field")
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrNotFound           = errors.New("session: not found")
	ErrNotAuthorized      = errors.New("session: not authorized")
)

// Session is one authenticated DJ participant. Guests never get a Session;
// they are tracked as connections only.
type Session struct {
	Token       string    `json:"token"`
	Username    string    `json:"username"`
	AccessToken string    `json:"-"`
	DeviceID    string    `json:"-"`
	CreatedAt   time.Time `json:"-"`
}

// Registry holds DJ sessions keyed by token plus the set of connected
// guests used for presence. Tokens never expire; a restart wipes everything.
type Registry struct {
	mu         sync.Mutex
	secret     string
	secretHash []byte
	sessions   map[string]*Session
	guests     map[string]string // connection id -> display name
}

// NewRegistry creates a registry gated by the room secret. When hash is
// non-empty it is treated as a bcrypt hash and takes precedence over the
// plaintext secret.
func NewRegistry(secret, hash string) *Registry {
	r := &Registry{
		secret:   secret,
		sessions: make(map[string]*Session),
		guests:   make(map[string]string),
	}
	if hash != "" {
		r.secretHash = []byte(hash)
	}
	return r
}

// GrantAuthority checks the room secret and, on success, issues a fresh
// DJ session with a random token.
func (r *Registry) GrantAuthority(username, password string) (Session, error) {
	if username == "" || password == "" {
		return Session{}, ErrMissingField
	}
	if !r.checkSecret(password) {
		return Session{}, ErrInvalidCredentials
	}

	s := &Session{
		Token:     randomToken(16),
		Username:  username,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.Token] = s
	r.mu.Unlock()

	return *s, nil
}

func (r *Registry) checkSecret(password string) bool {
	if r.secretHash != nil {
		return bcrypt.CompareHashAndPassword(r.secretHash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(r.secret)) == 1
}

// Lookup resolves a token to its DJ session.
func (r *Registry) Lookup(token string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// Revoke drops a DJ session. Safe to call with an unknown token.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// SetCredential attaches the platform access token and playback device
// reported by the DJ's client after it finished the platform OAuth flow.
func (r *Registry) SetCredential(token, accessToken, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return ErrNotFound
	}
	s.AccessToken = accessToken
	s.DeviceID = deviceID
	return nil
}

// DJCredential returns a platform credential usable for server-side polling,
// if any DJ has registered one.
func (r *Registry) DJCredential() (accessToken string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.AccessToken != "" {
			return s.AccessToken, true
		}
	}
	return "", false
}

// AttachConnection registers a guest connection for presence tracking.
func (r *Registry) AttachConnection(connID, displayName string) {
	r.mu.Lock()
	r.guests[connID] = displayName
	r.mu.Unlock()
}

// DetachConnection removes a guest connection. Idempotent.
func (r *Registry) DetachConnection(connID string) {
	r.mu.Lock()
	delete(r.guests, connID)
	r.mu.Unlock()
}

// ConnectedUsers returns the sorted, deduplicated display names of everyone
// currently connected. Presence only; never used for authorization.
func (r *Registry) ConnectedUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.guests))
	users := make([]string, 0, len(r.guests))
	for _, name := range r.guests {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		users = append(users, name)
	}
	sort.Strings(users)
	return users
}

func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// fallback to insecure but should never really happen
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}
