package domain

import "time"

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TranscriptEntry is one persisted chat message, user or assistant side.
type TranscriptEntry struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Tone           string    `json:"tone,omitempty"`
	NextAction     string    `json:"next_action,omitempty"`
	ArtifactHandle string    `json:"artifact_handle,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsAssistant reports whether the entry was produced by the assistant.
func (e *TranscriptEntry) IsAssistant() bool {
	return e.Role == RoleAssistant
}
