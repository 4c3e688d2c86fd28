package store

import (
	"context"
	"log/slog"
	"time"
)

const transcriptRetention = 7 * 24 * time.Hour

// EvictCallback is called with each expired session id so the host can drop
// the matching in-memory dialogue context and close any live connections.
type EvictCallback func(sessionID string)

// StartTTLWorker runs a background goroutine that periodically sweeps for
// idle sessions, evicts them via the callback, and prunes old transcript
// rows. The dialogue core itself never expires anything; eviction policy
// lives here, on the host side.
func StartTTLWorker(ctx context.Context, repo Repository, ttl, interval time.Duration, onEvict EvictCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpiredSessions(ctx, repo, ttl, onEvict)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredSessions(ctx context.Context, repo Repository, ttl time.Duration, onEvict EvictCallback) {
	expired, err := repo.ExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to get expired sessions", "error", err)
		return
	}

	if len(expired) == 0 {
		return
	}

	slog.Info("TTL worker found expired sessions", "count", len(expired))

	now := time.Now()
	cleaned := 0
	for _, rec := range expired {
		// Recheck against the clock: the query threshold was computed before
		// the scan, and a session may have taken a turn in between.
		if !rec.Expired(now, ttl) {
			continue
		}

		if onEvict != nil {
			onEvict(rec.SessionID)
		}

		if err := repo.DeleteSession(ctx, rec.SessionID); err != nil {
			slog.Warn("TTL worker failed to delete session",
				"error", err,
				"session_id", rec.SessionID,
				"idle", rec.IdleFor(now))
			continue
		}
		cleaned++
	}

	slog.Info("TTL worker cleanup completed", "cleaned", cleaned)

	if deleted, err := repo.CleanupTranscripts(ctx, transcriptRetention); err != nil {
		slog.Error("TTL worker failed to cleanup old transcripts", "error", err)
	} else if deleted > 0 {
		slog.Info("TTL worker pruned old transcripts", "count", deleted)
	}
}
