package chat

import (
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	conn := &websocket.Conn{}
	userID := "user123"
	sessionID := "tab-1"

	reg.Register(userID, sessionID, conn)

	active := reg.GetActive(userID, sessionID)
	if active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	conn := &websocket.Conn{}
	userID := "user123"
	sessionID := "tab-1"

	reg.Register(userID, sessionID, conn)
	reg.Unregister(userID, sessionID, conn)

	active := reg.GetActive(userID, sessionID)
	if active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
}

func TestRegistry_UnregisterStale(t *testing.T) {
	reg := NewRegistry()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}
	userID := "user123"
	session1 := "tab-1"
	session2 := "tab-2"

	reg.Register(userID, session1, conn1)

	// Another tab should remain active when stale unregister happens.
	reg.Register(userID, session2, conn2)

	reg.Unregister(userID, session1, conn1)

	active := reg.GetActive(userID, session2)
	if active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	userID := "concurrentUser"

	go func() {
		for i := 0; i < 1000; i++ {
			reg.Register(userID, "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()

	go func() {
		for i := 0; i < 1000; i++ {
			reg.GetActive(userID, "tab-"+strconv.Itoa(i))
		}
	}()

	time.Sleep(100 * time.Millisecond)
}
