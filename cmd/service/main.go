package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/ClaireBookworm/friendsradio/internal/config"
	"github.com/ClaireBookworm/friendsradio/internal/playback"
	"github.com/ClaireBookworm/friendsradio/internal/queue"
	"github.com/ClaireBookworm/friendsradio/internal/realtime"
	"github.com/ClaireBookworm/friendsradio/internal/server"
	"github.com/ClaireBookworm/friendsradio/internal/session"
	"github.com/ClaireBookworm/friendsradio/internal/spotify"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("radio: %v", err)
	}

	// Optional Redis relay for multi-instance fan-out.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("radio: invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	clock := clockwork.NewRealClock()

	hub := realtime.NewHub()
	bus := realtime.NewBus(ctx, hub, rdb)

	registry := session.NewRegistry(cfg.RoomPassword, cfg.RoomPasswordHash)
	store := queue.NewStore(registry, bus)
	platform := spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI)
	submitter := queue.NewSubmitter(store, platform, bus, clock)
	defer submitter.Close()
	replicator := playback.NewReplicator(registry, bus, clock)

	srv := server.NewServer(registry, store, submitter, replicator, bus, hub, platform, platform, cfg.FrontendURL)

	go hub.Run()
	go bus.RunRedisSubscriber()

	poller := spotify.NewPoller(platform, registry, store, clock, cfg.PollInterval)
	go poller.Run(ctx)

	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	log.Printf("radio: listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("radio: %v", err)
	}
}
