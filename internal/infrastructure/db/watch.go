// Package db holds helpers shared by the credential store backends.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindnest/auth-service/internal/api/metrics"
)

const (
	DefaultWatchInterval    = 10 * time.Second
	DefaultWatchMaxFailures = 3
	pingTimeout             = 3 * time.Second
)

// Pinger is implemented by every store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WatchConfig controls Watch. Zero values select defaults.
type WatchConfig struct {
	Interval    time.Duration
	MaxFailures int
}

// Watch pings store every interval until ctx is cancelled. After
// MaxFailures consecutive failures it calls onLost once and returns.
func Watch(ctx context.Context, store Pinger, cfg WatchConfig, log zerolog.Logger, onLost func(error)) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWatchInterval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultWatchMaxFailures
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := store.Ping(pingCtx)
		cancel()

		if err == nil {
			if failures > 0 {
				log.Info().Int("failures", failures).Msg("credential store recovered")
			}
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}

		failures++
		metrics.StorePingFailuresTotal.Inc()
		log.Warn().Err(err).Int("failures", failures).Msg("credential store ping failed")
		if failures >= cfg.MaxFailures {
			onLost(fmt.Errorf("credential store unreachable after %d attempts: %w", failures, err))
			return
		}
	}
}
