package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const maxBackoff = 30 * time.Second

// supervise runs fn in its own goroutine and restarts it with exponential
// backoff (capped at maxBackoff) whenever it panics or returns early.
// A single worker's failure never brings the process down — Safe-Idle
// keeps the rest of the system running while one subsystem is degraded.
func (o *Orchestrator) supervise(ctx context.Context, name string, fn func(ctx context.Context)) {
	go func() {
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Str("worker", name).Interface("panic", r).
							Msg("orchestrator: worker panicked")
					}
				}()
				fn(ctx)
			}()

			if ctx.Err() != nil {
				return
			}

			log.Warn().Str("worker", name).Dur("backoff", backoff).
				Msg("orchestrator: worker exited, restarting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}()
}
