package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelcast/internal/api"
	"reelcast/internal/auth"
	"reelcast/internal/media"
	"reelcast/internal/store"
)

type serverFixture struct {
	server   *Server
	handler  *api.Handler
	sessions *auth.SessionManager
}

func newServerFixture(t *testing.T, cfg Config) *serverFixture {
	t.Helper()
	repo, err := store.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	mediaStore, err := media.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("media.NewStore: %v", err)
	}
	sessions := auth.NewSessionManager(time.Hour)
	handler := api.NewHandler(repo, sessions, mediaStore)
	handler.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &serverFixture{server: srv, handler: handler, sessions: sessions}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(rr, req)
	return rr
}

func TestRoutesAreWired(t *testing.T) {
	fixture := newServerFixture(t, Config{})

	rr := fixture.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}

	rr = fixture.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}

	rr = fixture.do(httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list videos: expected 200, got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("expected JSON list, got %q", rr.Header().Get("Content-Type"))
	}

	rr = fixture.do(httptest.NewRequest(http.MethodGet, "/api/videos/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing video: expected 404, got %d", rr.Code)
	}
}

func TestAuthMiddlewareGatesWrites(t *testing.T) {
	fixture := newServerFixture(t, Config{})

	rr := fixture.do(httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader("")))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous POST: expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer bogus-token")
	rr = fixture.do(req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token POST: expected 401, got %d", rr.Code)
	}

	token, _, err := fixture.sessions.Create("user-1")
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+token)
	rr = fixture.do(req)
	// Past the auth gate the empty body fails multipart parsing.
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("authenticated POST: expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAuthMiddlewareLeavesReadsAnonymous(t *testing.T) {
	fixture := newServerFixture(t, Config{})

	// A stale token on a read must not abort the request; the viewer is
	// simply anonymous.
	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Authorization", "Bearer expired-or-garbage")
	rr := fixture.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	fixture := newServerFixture(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 2},
	})

	for i := 0; i < 2; i++ {
		rr := fixture.do(httptest.NewRequest(http.MethodGet, "/api/videos", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := fixture.do(httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rr.Code)
	}
}

func TestUploadRateLimitPerIP(t *testing.T) {
	fixture := newServerFixture(t, Config{
		RateLimit: RateLimitConfig{UploadLimit: 1, UploadWindow: time.Hour},
	})
	token, _, err := fixture.sessions.Create("user-1")
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}

	upload := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader(""))
		req.Header.Set("Authorization", "Bearer "+token)
		req.RemoteAddr = ip + ":12345"
		return fixture.do(req)
	}

	if rr := upload("10.0.0.1"); rr.Code == http.StatusTooManyRequests {
		t.Fatalf("first upload should pass the limiter, got %d", rr.Code)
	}
	rr := upload("10.0.0.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload from same IP: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on limited upload")
	}
	if rr := upload("10.0.0.2"); rr.Code == http.StatusTooManyRequests {
		t.Fatalf("other IP should not be limited, got %d", rr.Code)
	}
}
