package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ClaireBookworm/friendsradio/internal/playback"
	"github.com/ClaireBookworm/friendsradio/internal/queue"
	"github.com/ClaireBookworm/friendsradio/internal/realtime"
	"github.com/ClaireBookworm/friendsradio/internal/session"
	"github.com/ClaireBookworm/friendsradio/internal/spotify"
)

// Platform covers the player operations handlers invoke directly.
type Platform interface {
	QueueTrack(ctx context.Context, accessToken, deviceID, uri string) error
	Next(ctx context.Context, accessToken, deviceID string) error
	Play(ctx context.Context, accessToken, deviceID string) error
	Pause(ctx context.Context, accessToken, deviceID string) error
}

// OAuth covers the platform token flows the thin passthrough routes wrap.
type OAuth interface {
	AuthorizeURL() string
	ExchangeCode(ctx context.Context, code string) (spotify.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (spotify.TokenResponse, error)
}

type Server struct {
	registry   *session.Registry
	store      *queue.Store
	submitter  *queue.Submitter
	replicator *playback.Replicator
	bus        *realtime.Bus
	hub        *realtime.Hub
	platform   Platform
	oauth      OAuth

	frontendURL string
}

func NewServer(
	registry *session.Registry,
	store *queue.Store,
	submitter *queue.Submitter,
	replicator *playback.Replicator,
	bus *realtime.Bus,
	hub *realtime.Hub,
	platform Platform,
	oauth OAuth,
	frontendURL string,
) *Server {
	s := &Server{
		registry:    registry,
		store:       store,
		submitter:   submitter,
		replicator:  replicator,
		bus:         bus,
		hub:         hub,
		platform:    platform,
		oauth:       oauth,
		frontendURL: frontendURL,
	}
	hub.SetHandlers(s.onConnect, s.onDisconnect, s.onMessage)
	return s
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/dj-login", s.handleDJLogin)
		r.Get("/me", s.handleMe)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/spotify", func(r chi.Router) {
		r.Get("/login", s.handleSpotifyLogin)
		r.Get("/callback", s.handleSpotifyCallback)
		r.Post("/callback", s.handleSpotifyCallbackPost)
		r.Get("/refresh_token", s.handleRefreshToken)

		r.Post("/queue", s.handleAddTrack)
		r.Delete("/queue", s.handleRemoveTrack)
		r.Delete("/queue/pending", s.handleCancelPending)
		r.Post("/skip", s.handleSkip)
		r.Put("/playback", s.handlePlayback)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

// corsMiddleware mirrors the permissive browser policy the room frontend
// relies on.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
