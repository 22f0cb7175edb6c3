package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeadersDefaults(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := securityHeadersMiddleware(SecurityConfig{}, next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("unexpected X-Frame-Options %q", rr.Header().Get("X-Frame-Options"))
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("unexpected X-Content-Type-Options %q", rr.Header().Get("X-Content-Type-Options"))
	}
	if rr.Header().Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("unexpected Referrer-Policy %q", rr.Header().Get("Referrer-Policy"))
	}
	csp := rr.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "media-src 'self'") {
		t.Fatalf("expected media-src directive, got %q", csp)
	}
	if !strings.Contains(csp, "frame-ancestors 'none'") {
		t.Fatalf("expected frame-ancestors directive, got %q", csp)
	}
}

func TestSecurityHeadersOverrides(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := securityHeadersMiddleware(SecurityConfig{
		FrameAncestors: "https://embed.example.com",
		FrameOptions:   "SAMEORIGIN",
	}, next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Fatalf("unexpected X-Frame-Options %q", rr.Header().Get("X-Frame-Options"))
	}
	if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "frame-ancestors https://embed.example.com") {
		t.Fatalf("expected overridden frame-ancestors, got %q", rr.Header().Get("Content-Security-Policy"))
	}
}
