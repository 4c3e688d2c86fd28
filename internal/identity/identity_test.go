package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesAnonCookie(t *testing.T) {
	t.Parallel()

	var gotUserID, gotSessionID string
	handler := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotSessionID = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !isValidAnonID(gotUserID) {
		t.Fatalf("expected generated anon id, got %q", gotUserID)
	}
	if gotSessionID != DefaultSessionIDValue {
		t.Fatalf("expected default session id, got %q", gotSessionID)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected anon cookie to be set")
	}
	if !isValidAnonID(cookie.Value) {
		t.Fatalf("cookie value is not a valid anon id: %q", cookie.Value)
	}
}

func TestMiddlewarePreservesExistingIdentity(t *testing.T) {
	t.Parallel()

	const existing = "anon_0123456789abcdef0123456789abcdef"

	var gotUserID string
	handler := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: existing})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotUserID != existing {
		t.Fatalf("expected existing anon id to be reused, got %q", gotUserID)
	}
}

func TestMiddlewareReadsSessionHeader(t *testing.T) {
	t.Parallel()

	var gotSessionID string
	handler := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSessionID = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeaderName, "tab-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotSessionID != "tab-42" {
		t.Fatalf("expected session id from header, got %q", gotSessionID)
	}
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	if got := IPFromRequest(req); got != "203.0.113.9" {
		t.Errorf("IPFromRequest = %q, want host without port", got)
	}

	req.RemoteAddr = "203.0.113.9"
	if got := IPFromRequest(req); got != "203.0.113.9" {
		t.Errorf("IPFromRequest = %q, want raw address when no port present", got)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                   DefaultSessionIDValue,
		"tab-1":              "tab-1",
		"  spaced  ":         "spaced",
		"bad session":        DefaultSessionIDValue,
		"../../etc/passwd":   DefaultSessionIDValue,
		"ok.id:with_symbols": "ok.id:with_symbols",
	}
	for input, want := range cases {
		if got := sanitizeSessionID(input); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", input, got, want)
		}
	}
}
