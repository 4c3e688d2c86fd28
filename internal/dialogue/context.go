package dialogue

import "time"

// Stage is the dialogue's position in the gather-then-execute workflow for
// one session.
type Stage string

const (
	StageInitial   Stage = "initial"
	StageGathering Stage = "gathering_info"
	StageExecuting Stage = "executing"
	StageComplete  Stage = "complete"
)

// DialogueContext is the per-session conversational state. It is owned by
// the SessionStore and mutated only by the Manager while the session's lock
// is held; callers outside this package only ever see copies.
//
// Invariants maintained by the Manager:
//   - Stage == StageExecuting implies MissingSlots is empty and
//     PendingCommand is non-nil.
//   - Stage == StageGathering implies MissingSlots is non-empty.
type DialogueContext struct {
	SessionID      string             `json:"session_id"`
	LastUtterance  string             `json:"last_utterance"`
	Intent         Intent             `json:"intent"`
	Stage          Stage              `json:"stage"`
	MissingSlots   []SlotName         `json:"missing_slots,omitempty"`
	PendingCommand *StructuredCommand `json:"pending_command,omitempty"`

	// Topic accumulates the generation request across clarification turns so
	// short answers can be re-evaluated against the whole ask.
	Topic string `json:"topic,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// touch stamps a context as updated now.
func touch(c *DialogueContext) {
	c.UpdatedAt = time.Now()
}

// snapshot returns a deep copy safe to hand outside the session lock.
func (c *DialogueContext) snapshot() DialogueContext {
	cp := *c
	cp.MissingSlots = append([]SlotName(nil), c.MissingSlots...)
	cp.PendingCommand = c.PendingCommand.clone()
	return cp
}
