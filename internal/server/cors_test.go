package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCORSHandler(t *testing.T, origins ...string) http.Handler {
	t.Helper()
	policy, err := newCORSPolicy(CORSConfig{AllowedOrigins: origins})
	if err != nil {
		t.Fatalf("newCORSPolicy: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return corsMiddleware(policy, nil, next)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := newCORSHandler(t, "https://player.example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Origin", "https://player.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://player.example.com" {
		t.Fatalf("unexpected allow-origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if rr.Header().Get("Access-Control-Expose-Headers") != "Content-Range, Accept-Ranges" {
		t.Fatalf("unexpected expose headers %q", rr.Header().Get("Access-Control-Expose-Headers"))
	}
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	handler := newCORSHandler(t, "https://player.example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newCORSHandler(t, "https://player.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/videos/abc/stream", nil)
	req.Header.Set("Origin", "https://player.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Headers") != "Content-Type, Authorization, Range" {
		t.Fatalf("unexpected allow-headers %q", rr.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestCORSAllowsSameOriginRequests(t *testing.T) {
	handler := newCORSHandler(t)

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/api/videos", nil)
	req.Host = "api.example.com"
	req.Header.Set("Origin", "http://api.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for same-origin request, got %d", rr.Code)
	}
}
