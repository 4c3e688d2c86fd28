package dialogue

import (
	"context"
	"log/slog"
	"strings"
)

// Tone marks the register a reply should be delivered in.
type Tone string

const (
	ToneConcierge     Tone = "concierge"
	ToneExpert        Tone = "expert"
	ToneCollaborative Tone = "collaborative"
	ToneTransparent   Tone = "transparent"
)

// NextAction tells the host what the assistant expects to happen next.
type NextAction string

const (
	ActionQuestion NextAction = "question"
	ActionExecute  NextAction = "execute"
	ActionExplain  NextAction = "explain"
	ActionWait     NextAction = "wait"
)

// DialogueResponse is the result of one conversational turn.
type DialogueResponse struct {
	Message        string             `json:"message"`
	Tone           Tone               `json:"tone"`
	NextAction     NextAction         `json:"next_action"`
	Command        *StructuredCommand `json:"command,omitempty"`
	ArtifactHandle string             `json:"artifact_handle,omitempty"`
}

// RenderResult is what the injected content renderer reports back.
type RenderResult struct {
	Success        bool
	ArtifactHandle string
	ErrorDetail    string
}

// RenderFunc is the injected content-renderer collaborator. The manager
// treats it as a black box: on failure it surfaces a generic retry message
// and never leaks ErrorDetail to the user.
type RenderFunc func(ctx context.Context, cmd StructuredCommand) RenderResult

// Manager orchestrates the dialogue state machine. It composes the intent
// classifier, the slot extractor and the session store, and is the only
// component that mutates dialogue contexts.
type Manager struct {
	store  *SessionStore
	render RenderFunc
}

// NewManager creates a dialogue manager over the given session store.
// render may be nil, in which case a turn that reaches the execute branch
// stops at StageExecuting with the command attached and the host is
// responsible for driving the renderer.
func NewManager(store *SessionStore, render RenderFunc) *Manager {
	return &Manager{
		store:  store,
		render: render,
	}
}

// Sessions returns the session store the manager operates on.
func (m *Manager) Sessions() *SessionStore {
	return m.store
}

// Reset discards the conversation state for a session.
func (m *Manager) Reset(sessionID string) {
	m.store.Evict(sessionID)
}

// ProcessTurn is the sole entry point: it consumes one utterance for a
// session, applies the state machine, and returns the reply. Turns for one
// session are serialized on the session's lock; distinct sessions proceed
// in parallel. The state transition is committed to the store before any
// renderer call is issued, so a queued second turn never observes a
// half-updated context.
func (m *Manager) ProcessTurn(ctx context.Context, sessionID, utterance string) DialogueResponse {
	e := m.store.acquire(sessionID)
	defer e.mu.Unlock()

	dc := e.ctx
	intent := ClassifyIntent(utterance)
	dc.LastUtterance = utterance
	dc.Intent = intent
	touch(dc)

	switch intent {
	case IntentGreeting:
		// Greeting does not advance the gathering workflow.
		return DialogueResponse{
			Message:    greetingMessage,
			Tone:       ToneConcierge,
			NextAction: ActionExplain,
		}

	case IntentCapabilityQuery:
		return DialogueResponse{
			Message:    capabilitiesMessage,
			Tone:       ToneExpert,
			NextAction: ActionWait,
		}

	case IntentInsights:
		// The insights path needs no slot-filling in this design.
		return DialogueResponse{
			Message:    insightsMessage,
			Tone:       ToneExpert,
			NextAction: ActionExecute,
		}

	case IntentGeneration:
		return m.beginGeneration(ctx, dc, utterance)

	case IntentAcknowledgment:
		if dc.Stage == StageGathering {
			return m.continueGathering(ctx, dc, utterance)
		}
		// Outside the gathering stage an acknowledgment is only meaningful
		// if the utterance independently reads as a generation request;
		// this recovers from misclassified "sure, create ..." phrasings.
		if matchAny(normalize(utterance), creationKeywords) {
			return m.beginGeneration(ctx, dc, utterance)
		}
		return m.generalReply()

	default:
		return m.generalReply()
	}
}

// beginGeneration handles a fresh generation request: either all slots are
// already satisfied and the command executes, or the session enters the
// gathering stage with one question per missing slot.
func (m *Manager) beginGeneration(ctx context.Context, dc *DialogueContext, utterance string) DialogueResponse {
	missing := MissingSlots(utterance, IntentGeneration)
	if len(missing) == 0 {
		dc.Topic = utterance
		return m.execute(ctx, dc, utterance)
	}

	dc.Stage = StageGathering
	dc.MissingSlots = missing
	dc.PendingCommand = nil
	dc.Topic = utterance

	return DialogueResponse{
		Message:    "Happy to help with that. " + slotQuestions(missing),
		Tone:       ToneCollaborative,
		NextAction: ActionQuestion,
	}
}

// continueGathering folds a clarification answer into the stored topic and
// re-runs the slot extractor over the concatenation.
func (m *Manager) continueGathering(ctx context.Context, dc *DialogueContext, utterance string) DialogueResponse {
	combined := strings.TrimSpace(dc.Topic + " " + utterance)
	dc.Topic = combined

	missing := MissingSlots(combined, IntentGeneration)
	if len(missing) == 0 {
		return m.execute(ctx, dc, combined)
	}

	dc.MissingSlots = missing
	return DialogueResponse{
		Message:    "Almost there. " + slotQuestions(missing),
		Tone:       ToneCollaborative,
		NextAction: ActionQuestion,
	}
}

// execute translates the gathered text into a structured command and, when
// a renderer is injected, drives it. The Executing state is committed to
// the context before the renderer call; the render outcome then decides
// whether the session ends Complete or resets for a clean retry.
func (m *Manager) execute(ctx context.Context, dc *DialogueContext, text string) DialogueResponse {
	cmd := TranslateCommand(text)
	dc.Stage = StageExecuting
	dc.MissingSlots = nil
	dc.PendingCommand = cmd
	dc.Topic = ""

	resp := DialogueResponse{
		Message:    "Great, I have everything I need. Putting your " + cmd.Domain + " visual together now.",
		Tone:       ToneTransparent,
		NextAction: ActionExecute,
		Command:    cmd.clone(),
	}

	if m.render == nil {
		return resp
	}

	result := m.render(ctx, *cmd.clone())
	if result.Success {
		dc.Stage = StageComplete
		dc.PendingCommand = nil
		resp.ArtifactHandle = result.ArtifactHandle
		resp.Message = "Done! Your " + cmd.Domain + " visual is ready."
		return resp
	}

	// The attempt is complete-but-failed: reset to Initial so the user can
	// retry cleanly. ErrorDetail goes to the log, never to the user.
	slog.Warn("content renderer failed",
		"session_id", dc.SessionID,
		"domain", cmd.Domain,
		"detail", result.ErrorDetail,
	)
	dc.Stage = StageInitial
	dc.PendingCommand = nil

	return DialogueResponse{
		Message:    renderFailureMessage,
		Tone:       ToneConcierge,
		NextAction: ActionWait,
	}
}

func (m *Manager) generalReply() DialogueResponse {
	return DialogueResponse{
		Message:    generalMessage,
		Tone:       ToneExpert,
		NextAction: ActionWait,
	}
}

// slotQuestions renders one clarifying question per missing slot, in slot
// order.
func slotQuestions(missing []SlotName) string {
	questions := make([]string, 0, len(missing))
	for _, slot := range missing {
		switch slot {
		case SlotSubject:
			questions = append(questions, "What would you like me to create: a banner, a pitch visual, a one-pager?")
		case SlotDomainContext:
			questions = append(questions, "Which industry or business context should this target?")
		}
	}
	return strings.Join(questions, " ")
}

const (
	greetingMessage = "Hello! I'm your Briefline assistant. I can draft campaign visuals, " +
		"pitch one-pagers, and market insight briefs for your accounts. What are we working on today?"

	capabilitiesMessage = "I create sales-enablement content on demand: campaign banners, pitch visuals, " +
		"product one-pagers, and industry insight briefs. Tell me what to produce and which market it targets."

	insightsMessage = "On it. I'll pull together the latest market signals and compile an insights brief for you."

	generalMessage = "I'm best at producing sales visuals and market insights. " +
		"Ask me to create a banner for a campaign, or to pull trends for an industry you care about."

	renderFailureMessage = "Sorry, I hit a snag while producing that. Nothing was lost. " +
		"Please give it another try in a moment."
)
