package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/briefline/briefline/internal/config"
	"github.com/briefline/briefline/internal/dialogue"
	"github.com/briefline/briefline/internal/domain"
	"github.com/briefline/briefline/internal/identity"
)

type fakeRepo struct {
	mu          sync.Mutex
	sessions    map[string]*domain.SessionRecord
	transcripts []*domain.TranscriptEntry
	pingErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*domain.SessionRecord)}
}

func (f *fakeRepo) GetSession(_ context.Context, sessionID string) (*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.sessions[sessionID]
	if rec == nil {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) SaveSession(_ context.Context, rec *domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.sessions[rec.SessionID] = &cp
	return nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeRepo) ExpiredSessions(_ context.Context, _ time.Duration) ([]*domain.SessionRecord, error) {
	return nil, nil
}

func (f *fakeRepo) AppendTranscript(_ context.Context, entry *domain.TranscriptEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.transcripts = append(f.transcripts, &cp)
	return nil
}

func (f *fakeRepo) Transcript(_ context.Context, sessionID string, limit int) ([]*domain.TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.TranscriptEntry
	for _, e := range f.transcripts {
		if e.SessionID == sessionID {
			cp := *e
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeRepo) CleanupTranscripts(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error                 { return nil }

func (f *fakeRepo) transcriptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transcripts)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "8080",
		DBPath:             "ignored",
		SessionTTL:         time.Hour,
		MaxRequestBodySize: 16 * 1024,
		RateLimit:          config.RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute},
	}
}

func newTestChatHandler(repo *fakeRepo, cfg *config.Config) *ChatHandler {
	engine := dialogue.NewManager(dialogue.NewSessionStore(), nil)
	return NewChatHandler(NewHandler(repo, cfg), engine, nil)
}

func turnRequest(t *testing.T, userID, sessionID, message string) *http.Request {
	t.Helper()
	body, err := json.Marshal(TurnRequest{Message: message})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/chat/turn", bytes.NewReader(body))
	if userID != "" {
		req = req.WithContext(identity.WithIdentity(req.Context(), userID, sessionID))
	}
	return req
}

func decodeTurn(t *testing.T, rec *httptest.ResponseRecorder) TurnResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TurnResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandleTurnFullGeneration(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	h := newTestChatHandler(repo, testConfig())

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-1", "tab-1", "generate an image for a retail campaign"))

	resp := decodeTurn(t, rec)
	if resp.Stage != dialogue.StageExecuting {
		t.Errorf("expected executing stage, got %q", resp.Stage)
	}
	if resp.Command == nil {
		t.Fatal("expected a structured command")
	}
	if resp.Command.Domain != "retail" {
		t.Errorf("expected retail domain, got %q", resp.Command.Domain)
	}

	saved := repo.sessions[chatKey("user-1", "tab-1")]
	if saved == nil {
		t.Fatal("expected session snapshot to be persisted")
	}
	if saved.Stage != string(dialogue.StageExecuting) {
		t.Errorf("persisted stage = %q, want executing", saved.Stage)
	}
	if saved.PendingCommandJSON == nil {
		t.Error("expected pending command to be persisted")
	}
	if got := repo.transcriptCount(); got != 2 {
		t.Errorf("expected 2 transcript entries after one turn, got %d", got)
	}
}

func TestHandleTurnGatherThenExecute(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	h := newTestChatHandler(repo, testConfig())

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-2", "tab-1", "create something"))
	resp := decodeTurn(t, rec)
	if resp.Stage != dialogue.StageGathering {
		t.Fatalf("expected gathering stage, got %q", resp.Stage)
	}
	if resp.NextAction != dialogue.ActionQuestion {
		t.Errorf("expected a clarifying question, got %q", resp.NextAction)
	}

	rec = httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-2", "tab-1", "for healthcare"))
	resp = decodeTurn(t, rec)
	if resp.Stage != dialogue.StageExecuting {
		t.Fatalf("expected executing stage, got %q", resp.Stage)
	}
	if resp.Command == nil || resp.Command.Domain != "healthcare" {
		t.Fatalf("expected healthcare command, got %+v", resp.Command)
	}
}

func TestHandleTurnSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	h := newTestChatHandler(repo, testConfig())

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-3", "tab-a", "create something"))
	if resp := decodeTurn(t, rec); resp.Stage != dialogue.StageGathering {
		t.Fatalf("expected gathering stage for tab-a, got %q", resp.Stage)
	}

	// Same user, different tab: a fresh conversation.
	rec = httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-3", "tab-b", "hello"))
	if resp := decodeTurn(t, rec); resp.Stage != dialogue.StageInitial {
		t.Fatalf("expected initial stage for tab-b, got %q", resp.Stage)
	}
}

func TestHandleTurnUnauthorized(t *testing.T) {
	t.Parallel()

	h := newTestChatHandler(newFakeRepo(), testConfig())
	rec := httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "", "", "hello"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestHandleTurnRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimit.RequestsPerWindow = 2
	h := newTestChatHandler(newFakeRepo(), cfg)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.HandleTurn(rec, turnRequest(t, "user-4", "tab-1", "hello"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-4", "tab-1", "hello"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after limit, got %d", rec.Code)
	}
}

func TestHandleTurnRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	h := newTestChatHandler(newFakeRepo(), testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/chat/turn", bytes.NewReader([]byte("{not json")))
	req = req.WithContext(identity.WithIdentity(req.Context(), "user-5", "tab-1"))
	rec := httptest.NewRecorder()
	h.HandleTurn(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleHistoryReturnsTurnMessages(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	h := newTestChatHandler(repo, testConfig())

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-6", "tab-1", "hello"))
	decodeTurn(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	req = req.WithContext(identity.WithIdentity(req.Context(), "user-6", "tab-1"))
	rec = httptest.NewRecorder()
	h.HandleHistory(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var got struct {
		SessionID string                    `json:"session_id"`
		Messages  []*domain.TranscriptEntry `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != domain.RoleUser || got.Messages[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected roles: %q then %q", got.Messages[0].Role, got.Messages[1].Role)
	}
}

func TestHandleStateInactiveSession(t *testing.T) {
	t.Parallel()

	h := newTestChatHandler(newFakeRepo(), testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/chat/state", nil)
	req = req.WithContext(identity.WithIdentity(req.Context(), "user-7", "tab-1"))
	rec := httptest.NewRecorder()
	h.HandleState(rec, req)

	var got map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if got["active"] != false {
		t.Errorf("expected inactive session, got %v", got["active"])
	}
	if got["stage"] != string(dialogue.StageInitial) {
		t.Errorf("expected initial stage, got %v", got["stage"])
	}
}

func TestHandleResetClearsLiveAndPersistedState(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	h := newTestChatHandler(repo, testConfig())

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-8", "tab-1", "create something"))
	decodeTurn(t, rec)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/reset", nil)
	req = req.WithContext(identity.WithIdentity(req.Context(), "user-8", "tab-1"))
	rec = httptest.NewRecorder()
	h.HandleReset(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	if _, ok := h.engine.Sessions().Snapshot(chatKey("user-8", "tab-1")); ok {
		t.Error("expected live session to be evicted")
	}
	if repo.sessions[chatKey("user-8", "tab-1")] != nil {
		t.Error("expected persisted snapshot to be deleted")
	}

	// A new turn starts from scratch.
	rec = httptest.NewRecorder()
	h.HandleTurn(rec, turnRequest(t, "user-8", "tab-1", "hello"))
	if resp := decodeTurn(t, rec); resp.Stage != dialogue.StageInitial {
		t.Errorf("expected initial stage after reset, got %q", resp.Stage)
	}
}

func TestHealthReportsDatabaseStatus(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	h := NewHealthHandler(NewHandler(repo, testConfig()))

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	repo.pingErr = context.DeadlineExceeded
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 when database is down, got %d", rec.Code)
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestRateLimiterWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, 50*time.Millisecond)
	if !rl.Allow("k") || !rl.Allow("k") {
		t.Fatal("expected first two requests to pass")
	}
	if rl.Allow("k") {
		t.Fatal("expected third request to be throttled")
	}
	// Distinct keys do not share a bucket.
	if !rl.Allow("other") {
		t.Fatal("expected unrelated key to pass")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("k") {
		t.Fatal("expected request to pass after window elapsed")
	}
}
