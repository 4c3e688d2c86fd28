package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/briefline/briefline/internal/dialogue"
	"github.com/briefline/briefline/internal/domain"
	"github.com/briefline/briefline/internal/identity"
	"github.com/briefline/briefline/internal/store"
	"github.com/briefline/briefline/internal/transcript"
)

// WebSocketHandler handles WebSocket-based chat sessions. Each connection
// carries one conversation; turns arrive as JSON messages and replies go
// back on the same socket.
type WebSocketHandler struct {
	repo          store.Repository
	engine        *dialogue.Manager
	registry      *Registry
	log           transcript.Logger
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(repo store.Repository, engine *dialogue.Manager, registry *Registry, log transcript.Logger, allowedOrigin string, isDev bool) *WebSocketHandler {
	if log == nil {
		log = transcript.Noop{}
	}
	return &WebSocketHandler{
		repo:          repo,
		engine:        engine,
		registry:      registry,
		log:           log,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage represents an inbound WebSocket message.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsResponse represents an outbound WebSocket message.
type wsResponse struct {
	Type           string                      `json:"type"`
	Message        string                      `json:"message,omitempty"`
	Tone           dialogue.Tone               `json:"tone,omitempty"`
	NextAction     dialogue.NextAction         `json:"next_action,omitempty"`
	Command        *dialogue.StructuredCommand `json:"command,omitempty"`
	ArtifactHandle string                      `json:"artifact_handle,omitempty"`
	Stage          dialogue.Stage              `json:"stage,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.registry.Register(userID, sessionID, ws)
	defer h.registry.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, userID, sessionID)
	slog.Info("Chat session ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if writeErr := h.writeJSON(ws, wsResponse{Type: "error", Message: "invalid message"}); writeErr != nil {
				slog.Debug("Failed to send error response", "error", writeErr)
			}
			continue
		}

		switch msg.Type {
		case "message":
			h.handleTurn(ctx, ws, userID, sessionID, msg.Content)
		case "ping":
			if err := h.writeJSON(ws, wsResponse{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "reset":
			key := userID + ":" + sessionID
			h.engine.Reset(key)
			if err := h.repo.DeleteSession(ctx, key); err != nil {
				slog.Error("Failed to delete session snapshot", "error", err, "session_id", key)
			}
			if err := h.writeJSON(ws, wsResponse{Type: "reset", Stage: dialogue.StageInitial}); err != nil {
				slog.Debug("Failed to send reset acknowledgment", "error", err)
			}
		default:
			if err := h.writeJSON(ws, wsResponse{Type: "error", Message: "unknown message type"}); err != nil {
				slog.Debug("Failed to send error response", "error", err)
			}
		}
	}
}

func (h *WebSocketHandler) handleTurn(ctx context.Context, ws *websocket.Conn, userID, sessionID, content string) {
	key := userID + ":" + sessionID

	h.log.Log(transcript.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_ws",
		Direction:  "inbound",
		EventType:  "user_message",
		ContentRaw: content,
	})

	resp := h.engine.ProcessTurn(ctx, key, content)

	h.log.Log(transcript.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_ws",
		Direction:  "outbound",
		EventType:  "assistant_message",
		ContentRaw: resp.Message,
		Meta: map[string]any{
			"tone":        string(resp.Tone),
			"next_action": string(resp.NextAction),
		},
	})

	snap, _ := h.engine.Sessions().Snapshot(key)
	h.persistTurn(ctx, userID, key, content, resp, snap)

	if err := h.writeJSON(ws, wsResponse{
		Type:           "response",
		Message:        resp.Message,
		Tone:           resp.Tone,
		NextAction:     resp.NextAction,
		Command:        resp.Command,
		ArtifactHandle: resp.ArtifactHandle,
		Stage:          snap.Stage,
	}); err != nil {
		slog.Warn("Failed to send chat response", "error", err, "user_id", userID)
	}
}

// persistTurn mirrors the HTTP path: failures are logged, not surfaced, and
// the in-memory session stays authoritative.
func (h *WebSocketHandler) persistTurn(ctx context.Context, userID, key, utterance string, resp dialogue.DialogueResponse, snap dialogue.DialogueContext) {
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

	entries := []*domain.TranscriptEntry{
		{
			SessionID: key,
			UserID:    userID,
			Role:      domain.RoleUser,
			Content:   utterance,
			CreatedAt: now,
		},
		{
			SessionID:      key,
			UserID:         userID,
			Role:           domain.RoleAssistant,
			Content:        resp.Message,
			Tone:           string(resp.Tone),
			NextAction:     string(resp.NextAction),
			ArtifactHandle: resp.ArtifactHandle,
			CreatedAt:      now,
		},
	}
	for _, entry := range entries {
		if err := h.repo.AppendTranscript(ctx, entry); err != nil {
			slog.Error("Failed to persist transcript entry", "error", err, "session_id", key, "role", entry.Role)
		}
	}
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
