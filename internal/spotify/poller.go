package spotify

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

// Consumer receives the now-playing track so stale queue entries get pruned.
type Consumer interface {
	ConsumeIfCurrent(uri string)
}

// CredentialSource yields a platform credential for server-side polling.
type CredentialSource interface {
	DJCredential() (accessToken string, ok bool)
}

// NowPlayingSource is the slice of the platform client the poller uses.
type NowPlayingSource interface {
	CurrentlyPlaying(ctx context.Context, accessToken string) (*NowPlaying, error)
}

// Poller periodically asks the platform what is playing and feeds the queue
// store, mirroring the currently-playing check the player UI runs. Skips
// ticks while no DJ has registered a credential.
type Poller struct {
	source   NowPlayingSource
	creds    CredentialSource
	consumer Consumer
	clock    clockwork.Clock
	interval time.Duration
}

func NewPoller(source NowPlayingSource, creds CredentialSource, consumer Consumer, clock clockwork.Clock, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		source:   source,
		creds:    creds,
		consumer: consumer,
		clock:    clock,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	accessToken, ok := p.creds.DJCredential()
	if !ok {
		return
	}

	np, err := p.source.CurrentlyPlaying(ctx, accessToken)
	if err != nil {
		log.Printf("radio: currently-playing poll: %v", err)
		return
	}
	if np == nil || np.URI == "" {
		return
	}
	p.consumer.ConsumeIfCurrent(np.URI)
}
