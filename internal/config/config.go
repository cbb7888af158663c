package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full environment surface of the server. The room password is
// the only value that affects core behavior; everything else wires the
// platform collaborator and deployment details.
type Config struct {
	Port             string
	RoomPassword     string
	RoomPasswordHash string // bcrypt; takes precedence over RoomPassword
	FrontendURL      string
	RedisURL         string // optional broadcast relay
	PollInterval     time.Duration

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string
}

// Load reads configuration from the environment, honoring a .env file when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getenv("PORT", "4000"),
		RoomPassword:     os.Getenv("ROOM_PASSWORD"),
		RoomPasswordHash: os.Getenv("ROOM_PASSWORD_HASH"),
		FrontendURL:      getenv("FRONTEND_URL", "http://localhost:2000"),
		RedisURL:         os.Getenv("REDIS_URL"),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURI:  getenv("SPOTIFY_REDIRECT_URI", "http://localhost:4000/spotify/callback"),
	}

	if cfg.RoomPassword == "" && cfg.RoomPasswordHash == "" {
		return nil, errors.New("config: ROOM_PASSWORD or ROOM_PASSWORD_HASH is required")
	}

	interval := getenv("POLL_INTERVAL", "5s")
	d, err := time.ParseDuration(interval)
	if err != nil {
		return nil, errors.New("config: invalid POLL_INTERVAL: " + interval)
	}
	cfg.PollInterval = d

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
