package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/briefline/briefline/internal/dialogue"
)

func testCommand() dialogue.StructuredCommand {
	return dialogue.StructuredCommand{
		Subject:  "a banner",
		Domain:   "retail",
		Elements: []string{"b2b-framing", "storefront"},
		Style:    "corporate",
	}
}

func TestHTTPClientRenderSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var cmd dialogue.StructuredCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("failed to decode command: %v", err)
		}
		if cmd.Domain != "retail" {
			t.Errorf("domain = %q, want retail", cmd.Domain)
		}
		_ = json.NewEncoder(w).Encode(Result{
			Success:        true,
			ArtifactHandle: "artifact://retail/42",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0, nil)
	res, err := c.Render(context.Background(), testCommand())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !res.Success || res.ArtifactHandle != "artifact://retail/42" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestHTTPClientRenderDeclined(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{
			Success:     false,
			ErrorDetail: "unsupported element set",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0, nil)
	res, err := c.Render(context.Background(), testCommand())
	if err != nil {
		t.Fatalf("a declined job must not be a transport error, got %v", err)
	}
	if res.Success {
		t.Error("expected Success=false")
	}
	if res.ErrorDetail == "" {
		t.Error("expected the decline reason to be preserved for logging")
	}
}

func TestHTTPClientRenderBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0, nil)
	if _, err := c.Render(context.Background(), testCommand()); err == nil {
		t.Fatal("expected an error for a non-200 status")
	}
}

func TestAsRenderFuncFoldsTransportErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	fn := AsRenderFunc(NewHTTPClient(srv.URL, 0, nil))
	res := fn(context.Background(), testCommand())
	if res.Success {
		t.Error("transport failure must map to an unsuccessful result")
	}
	if res.ErrorDetail == "" {
		t.Error("expected the transport error preserved in ErrorDetail")
	}
}

func TestStubRender(t *testing.T) {
	t.Parallel()

	res, err := Stub{}.Render(context.Background(), testCommand())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !res.Success {
		t.Error("stub renders always succeed")
	}
	if !strings.HasPrefix(res.ArtifactHandle, "artifact://retail/") {
		t.Errorf("artifact handle = %q", res.ArtifactHandle)
	}
}
