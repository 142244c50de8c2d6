// README: Poller runs an authoritative read on a fixed interval until cancelled.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"petmarket/internal/clock"
	"petmarket/internal/logger"
)

type Poller struct {
	every time.Duration
	fetch func(ctx context.Context) error
	clock clock.Clock
	log   *slog.Logger
}

func NewPoller(every time.Duration, fetch func(ctx context.Context) error, c clock.Clock, log *slog.Logger) *Poller {
	if every <= 0 {
		every = 5 * time.Second
	}
	return &Poller{every: every, fetch: fetch, clock: clock.Or(c), log: logger.Or(log)}
}

// Run fetches once immediately and then on every tick. Fetch errors are logged
// and the next tick retries. Run returns when ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.poll(ctx)
	ticker := p.clock.NewTicker(p.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.fetch(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn("poll_failed", "error", err)
	}
}
