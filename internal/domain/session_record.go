// Package domain contains core domain types for the Briefline application.
package domain

import (
	"time"
)

// SessionRecord is the persisted snapshot of a dialogue session. The live
// conversational state is owned by the in-memory dialogue store; this record
// is the durable copy written after each turn so history survives restarts.
type SessionRecord struct {
	SessionID          string    `json:"session_id"`
	UserID             string    `json:"user_id"`
	Stage              string    `json:"stage"`
	Intent             string    `json:"intent"`
	LastUtterance      string    `json:"last_utterance"`
	Topic              string    `json:"topic,omitempty"`
	MissingSlotsJSON   string    `json:"-"`
	PendingCommandJSON *string   `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IdleFor returns how long the session has been idle.
func (r *SessionRecord) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(r.UpdatedAt)
	if idle < 0 {
		return 0
	}
	return idle
}

// Expired reports whether the session has been idle longer than ttl.
func (r *SessionRecord) Expired(now time.Time, ttl time.Duration) bool {
	return r.IdleFor(now) > ttl
}
