package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/alisaviation/carbonintensity/internal/logger"
)

const PushJob = "carbon-intensity"

// Pusher periodically pushes a registry to a Prometheus Pushgateway.
type Pusher struct {
	pusher   *push.Pusher
	interval time.Duration
}

func NewPusher(url string, r *Registry, interval time.Duration) *Pusher {
	return &Pusher{
		pusher:   push.New(url, PushJob).Gatherer(r.Gatherer()),
		interval: interval,
	}
}

func (p *Pusher) Push(ctx context.Context) error {
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Run pushes on every tick until ctx is done, then makes one last push.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), p.interval)
			if err := p.Push(finalCtx); err != nil {
				logger.Log.Warn("Final metrics push failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := p.Push(ctx); err != nil {
				logger.Log.Warn("Metrics push failed", zap.Error(err))
			}
		}
	}
}
