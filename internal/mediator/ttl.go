package mediator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/ashureev/mailpilot/internal/store"
)

const ttlWorkerInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically deletes
// persisted mediator sessions idle for longer than ttl.
func StartTTLWorker(ctx context.Context, sessions store.SessionStore, ttl time.Duration) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupExpiredSessions(ctx, sessions, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupExpiredSessions(ctx context.Context, sessions store.SessionStore, ttl time.Duration) int64 {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "cleanup mediator sessions", 3, 100*time.Millisecond, func() error {
		var err error
		deleted, err = sessions.CleanupMediatorSessions(ctx, ttl)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("TTL worker: context canceled during cleanup", "error", err)
			return 0
		}
		slog.Error("TTL worker failed to cleanup mediator sessions", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("TTL worker cleaned up mediator sessions", "count", deleted)
	}
	return deleted
}
