// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/briefline/briefline/internal/domain"
)

// Repository defines the interface for persisting dialogue sessions and
// chat transcripts.
type Repository interface {
	// GetSession retrieves a persisted session snapshot. Returns (nil, nil)
	// when the session has never been saved.
	GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// SaveSession creates or updates a session snapshot.
	SaveSession(ctx context.Context, rec *domain.SessionRecord) error

	// DeleteSession removes a session snapshot.
	DeleteSession(ctx context.Context, sessionID string) error

	// ExpiredSessions retrieves sessions idle for longer than ttl.
	ExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error)

	// AppendTranscript appends one chat message to a session's transcript.
	AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error

	// Transcript returns the most recent transcript entries for a session in
	// chronological order, capped at limit.
	Transcript(ctx context.Context, sessionID string, limit int) ([]*domain.TranscriptEntry, error)

	// CleanupTranscripts removes transcript entries older than retention.
	CleanupTranscripts(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
