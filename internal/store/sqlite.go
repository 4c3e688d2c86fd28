package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/briefline/briefline/internal/domain"
	"github.com/briefline/briefline/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // Serializes session writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS dialogue_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		intent TEXT NOT NULL DEFAULT '',
		last_utterance TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		missing_slots_json TEXT NOT NULL DEFAULT '[]',
		pending_command_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dialogue_sessions_updated ON dialogue_sessions(updated_at);

	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tone TEXT NOT NULL DEFAULT '',
		next_action TEXT NOT NULL DEFAULT '',
		artifact_handle TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id, id);
	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves a persisted session snapshot.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	query := `
		SELECT session_id, user_id, stage, intent, last_utterance, topic,
		       missing_slots_json, pending_command_json, created_at, updated_at
		FROM dialogue_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var rec domain.SessionRecord
	var pendingCommand sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&rec.SessionID, &rec.UserID, &rec.Stage, &rec.Intent,
		&rec.LastUtterance, &rec.Topic, &rec.MissingSlotsJSON,
		&pendingCommand, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if pendingCommand.Valid {
		rec.PendingCommandJSON = &pendingCommand.String
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	return &rec, nil
}

// SaveSession creates or updates a session snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec *domain.SessionRecord) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	query := `
	INSERT INTO dialogue_sessions (
		session_id, user_id, stage, intent, last_utterance, topic,
		missing_slots_json, pending_command_json, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		user_id = excluded.user_id,
		stage = excluded.stage,
		intent = excluded.intent,
		last_utterance = excluded.last_utterance,
		topic = excluded.topic,
		missing_slots_json = excluded.missing_slots_json,
		pending_command_json = excluded.pending_command_json,
		updated_at = excluded.updated_at`

	var pendingCommand interface{}
	if rec.PendingCommandJSON != nil {
		pendingCommand = *rec.PendingCommandJSON
	}

	missingSlots := rec.MissingSlotsJSON
	if missingSlots == "" {
		missingSlots = "[]"
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.UserID, rec.Stage, rec.Intent,
		rec.LastUtterance, rec.Topic, missingSlots, pendingCommand,
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes a session snapshot. Retries with exponential backoff
// on SQLite concurrency errors, which can occur while a turn is being
// persisted for the same session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteSessionOnce(ctx, sessionID)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("DeleteSession hit a busy database, retrying",
				"session_id", sessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("delete session %s after %d attempts: %w", sessionID, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) deleteSessionOnce(ctx context.Context, sessionID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dialogue_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ExpiredSessions retrieves sessions idle for longer than ttl.
func (s *SQLiteStore) ExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT session_id, user_id, stage, intent, last_utterance, topic,
		       missing_slots_json, pending_command_json, created_at, updated_at
		FROM dialogue_sessions WHERE updated_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired sessions rows", "error", closeErr)
		}
	}()

	var records []*domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		var pendingCommand sql.NullString
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&rec.SessionID, &rec.UserID, &rec.Stage, &rec.Intent,
			&rec.LastUtterance, &rec.Topic, &rec.MissingSlotsJSON,
			&pendingCommand, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan expired session row: %w", err)
		}

		if pendingCommand.Valid {
			rec.PendingCommandJSON = &pendingCommand.String
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		rec.UpdatedAt = time.Unix(updatedAt, 0)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}

	return records, nil
}

// AppendTranscript appends one chat message to a session's transcript.
func (s *SQLiteStore) AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error {
	query := `
	INSERT INTO transcripts (session_id, user_id, role, content, tone, next_action, artifact_handle, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		entry.SessionID, entry.UserID, entry.Role, entry.Content,
		entry.Tone, entry.NextAction, entry.ArtifactHandle,
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// Transcript returns the most recent entries for a session in chronological
// order, capped at limit.
func (s *SQLiteStore) Transcript(ctx context.Context, sessionID string, limit int) ([]*domain.TranscriptEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	// Select the newest rows, then reverse so callers get chronological order.
	query := `
		SELECT id, session_id, user_id, role, content, tone, next_action, artifact_handle, created_at
		FROM transcripts WHERE session_id = ?
		ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var entries []*domain.TranscriptEntry
	for rows.Next() {
		var e domain.TranscriptEntry
		var createdAt int64
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.UserID, &e.Role, &e.Content,
			&e.Tone, &e.NextAction, &e.ArtifactHandle, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// CleanupTranscripts removes transcript entries older than retention.
func (s *SQLiteStore) CleanupTranscripts(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup transcripts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
