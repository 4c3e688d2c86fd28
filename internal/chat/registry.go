// Package chat provides WebSocket-based conversational session handling.
package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

type connKey struct {
	userID    string
	sessionID string
}

// Registry tracks which WebSocket connection currently carries each
// user/session conversation. At most one connection is live per key; a
// reconnect displaces the previous socket.
type Registry struct {
	mu    sync.RWMutex
	conns map[connKey]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[connKey]*websocket.Conn),
	}
}

// GetActive returns the live connection for a user/session, or nil.
func (m *Registry) GetActive(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[connKey{userID, sessionID}]
}

// Register makes conn the live connection for a user/session, closing any
// socket it displaces.
func (m *Registry) Register(userID, sessionID string, conn *websocket.Conn) {
	key := connKey{userID, sessionID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.conns[key]; ok && prev != conn {
		_ = prev.Close(websocket.StatusNormalClosure, "session replaced")
		slog.Info("Chat socket displaced by reconnect", "user_id", userID, "session_id", sessionID)
	}
	m.conns[key] = conn
	slog.Info("Chat socket attached", "user_id", userID, "session_id", sessionID)
}

// Unregister drops conn if it is still the live connection for the
// user/session. A stale unregister, racing a reconnect that already
// displaced conn, is a no-op.
func (m *Registry) Unregister(userID, sessionID string, conn *websocket.Conn) {
	key := connKey{userID, sessionID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conns[key] != conn {
		return
	}
	delete(m.conns, key)
	slog.Info("Chat socket detached", "user_id", userID, "session_id", sessionID)
}

// CloseSession closes and drops the live connection for one user/session.
// Called by the TTL sweeper when an idle session is evicted.
func (m *Registry) CloseSession(userID, sessionID string) {
	key := connKey{userID, sessionID}

	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[key]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session expired")
	delete(m.conns, key)
	slog.Info("Chat socket closed on eviction", "user_id", userID, "session_id", sessionID)
}
