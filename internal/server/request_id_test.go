package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"reelcast/internal/observability/logging"
)

func TestRequestIDMiddlewareGeneratesAndEchoes(t *testing.T) {
	var seenRequestID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRequestID, _ = logging.RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "generated-id" }, next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if seenRequestID != "generated-id" {
		t.Fatalf("expected generated id in context, got %q", seenRequestID)
	}
	if rr.Header().Get("X-Request-Id") != "generated-id" {
		t.Fatalf("expected response header, got %q", rr.Header().Get("X-Request-Id"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seenRequestID != "client-supplied" {
		t.Fatalf("expected client id preserved, got %q", seenRequestID)
	}
}

func TestRequestIDMiddlewareAnnotatesVideoID(t *testing.T) {
	var seenVideoID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenVideoID, _ = logging.VideoIDFromContext(r.Context())
	})
	handler := requestIDMiddleware(nil, next)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/videos/vid-123/stream", nil))
	if seenVideoID != "vid-123" {
		t.Fatalf("expected video id from path, got %q", seenVideoID)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if seenVideoID != "" {
		t.Fatalf("expected no video id for collection path, got %q", seenVideoID)
	}
}

func TestVideoIDFromPath(t *testing.T) {
	cases := map[string]string{
		"/api/videos/abc":           "abc",
		"/api/videos/abc/stream":    "abc",
		"/api/videos/abc/thumbnail": "abc",
		"/api/videos":               "",
		"/healthz":                  "",
	}
	for path, want := range cases {
		if got := videoIDFromPath(path); got != want {
			t.Fatalf("%s: expected %q, got %q", path, want, got)
		}
	}
}
