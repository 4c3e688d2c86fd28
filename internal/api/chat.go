package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/briefline/briefline/internal/dialogue"
	"github.com/briefline/briefline/internal/domain"
	"github.com/briefline/briefline/internal/identity"
	"github.com/briefline/briefline/internal/transcript"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// chatKey builds the dialogue session key. Scoping by user keeps two browser
// tabs with the same session ID but different cookies apart.
func chatKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// TurnRequest is the body of a chat turn.
type TurnRequest struct {
	Message string `json:"message"`
}

// TurnResponse is the reply to a chat turn, the dialogue response plus the
// session's post-turn stage.
type TurnResponse struct {
	Message        string                      `json:"message"`
	Tone           dialogue.Tone               `json:"tone"`
	NextAction     dialogue.NextAction         `json:"next_action"`
	Command        *dialogue.StructuredCommand `json:"command,omitempty"`
	ArtifactHandle string                      `json:"artifact_handle,omitempty"`
	Stage          dialogue.Stage              `json:"stage"`
	SessionID      string                      `json:"session_id"`
}

// ChatHandler handles the conversational endpoints.
type ChatHandler struct {
	*Handler
	engine  *dialogue.Manager
	limiter *RateLimiter
	log     transcript.Logger
}

// NewChatHandler creates a chat handler over the dialogue engine.
func NewChatHandler(base *Handler, engine *dialogue.Manager, log transcript.Logger) *ChatHandler {
	if log == nil {
		log = transcript.Noop{}
	}
	return &ChatHandler{
		Handler: base,
		engine:  engine,
		limiter: NewRateLimiter(base.cfg.RateLimit.RequestsPerWindow, base.cfg.RateLimit.WindowDuration),
		log:     log,
	}
}

// RegisterRoutes registers chat routes (requires authentication).
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/turn", h.HandleTurn)
		r.Get("/history", h.HandleHistory)
		r.Get("/state", h.HandleState)
		r.Post("/reset", h.HandleReset)
	})
}

// HandleTurn handles POST /api/chat/turn requests.
func (h *ChatHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Rate-limit by userID only (not userID:sessionID) so clients cannot
	// bypass throttling by rotating session IDs.
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := chatKey(userID, sessionID)
	reqID := chiMiddleware.GetReqID(r.Context())

	slog.Info("Chat turn",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Message),
	)
	h.log.Log(transcript.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "user_message",
		ContentRaw: req.Message,
		Meta:       map[string]any{"request_id": reqID},
	})

	resp := h.engine.ProcessTurn(r.Context(), key, req.Message)

	h.log.Log(transcript.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "assistant_message",
		ContentRaw: resp.Message,
		Meta: map[string]any{
			"request_id":  reqID,
			"tone":        string(resp.Tone),
			"next_action": string(resp.NextAction),
		},
	})

	snap, _ := h.engine.Sessions().Snapshot(key)
	h.persistTurn(r, userID, key, req.Message, resp, snap)

	JSON(w, http.StatusOK, TurnResponse{
		Message:        resp.Message,
		Tone:           resp.Tone,
		NextAction:     resp.NextAction,
		Command:        resp.Command,
		ArtifactHandle: resp.ArtifactHandle,
		Stage:          snap.Stage,
		SessionID:      sessionID,
	})
}

// persistTurn writes the durable copy of the turn. Persistence failures are
// logged, not surfaced: the reply is already computed and the in-memory
// session remains authoritative.
func (h *ChatHandler) persistTurn(r *http.Request, userID, key, utterance string, resp dialogue.DialogueResponse, snap dialogue.DialogueContext) {
	ctx := r.Context()
	now := time.Now()

	rec := &domain.SessionRecord{
		SessionID:     key,
		UserID:        userID,
		Stage:         string(snap.Stage),
		Intent:        string(snap.Intent),
		LastUtterance: snap.LastUtterance,
		Topic:         snap.Topic,
		CreatedAt:     snap.CreatedAt,
		UpdatedAt:     snap.UpdatedAt,
	}
	if len(snap.MissingSlots) > 0 {
		if data, err := json.Marshal(snap.MissingSlots); err == nil {
			rec.MissingSlotsJSON = string(data)
		}
	}
	if snap.PendingCommand != nil {
		if data, err := json.Marshal(snap.PendingCommand); err == nil {
			s := string(data)
			rec.PendingCommandJSON = &s
		}
	}
	if err := h.repo.SaveSession(ctx, rec); err != nil {
		slog.Error("Failed to persist session snapshot", "error", err, "session_id", key)
	}

	userEntry := &domain.TranscriptEntry{
		SessionID: key,
		UserID:    userID,
		Role:      domain.RoleUser,
		Content:   utterance,
		CreatedAt: now,
	}
	if err := h.repo.AppendTranscript(ctx, userEntry); err != nil {
		slog.Error("Failed to persist user message", "error", err, "session_id", key)
	}

	assistantEntry := &domain.TranscriptEntry{
		SessionID:      key,
		UserID:         userID,
		Role:           domain.RoleAssistant,
		Content:        resp.Message,
		Tone:           string(resp.Tone),
		NextAction:     string(resp.NextAction),
		ArtifactHandle: resp.ArtifactHandle,
		CreatedAt:      now,
	}
	if err := h.repo.AppendTranscript(ctx, assistantEntry); err != nil {
		slog.Error("Failed to persist assistant message", "error", err, "session_id", key)
	}
}

// HandleHistory handles GET /api/chat/history requests.
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := h.repo.Transcript(r.Context(), chatKey(userID, sessionID), limit)
	if err != nil {
		slog.Error("Failed to load transcript", "error", err, "user_id", userID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []*domain.TranscriptEntry{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   entries,
	})
}

// HandleState handles GET /api/chat/state requests. It reports the live
// conversational state for the caller's session.
func (h *ChatHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	snap, ok := h.engine.Sessions().Snapshot(chatKey(userID, sessionID))
	if !ok {
		JSON(w, http.StatusOK, map[string]interface{}{
			"session_id": sessionID,
			"stage":      dialogue.StageInitial,
			"active":     false,
		})
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id":      sessionID,
		"stage":           snap.Stage,
		"intent":          snap.Intent,
		"missing_slots":   snap.MissingSlots,
		"pending_command": snap.PendingCommand,
		"active":          true,
	})
}

// HandleReset handles POST /api/chat/reset requests. It discards both the
// live session state and the persisted snapshot.
func (h *ChatHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key := chatKey(userID, sessionID)
	h.engine.Reset(key)
	if err := h.repo.DeleteSession(r.Context(), key); err != nil {
		slog.Error("Failed to delete session snapshot", "error", err, "session_id", key)
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}

	slog.Info("Session reset", "user_id", userID, "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
