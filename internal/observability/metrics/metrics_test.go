package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestNormalizesPaths(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/api/videos/0123456789abcdef0123456789abcdef/stream", 206, 20*time.Millisecond)
	recorder.ObserveRequest("GET", "/api/videos/fedcba9876543210fedcba9876543210/stream", 206, 30*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	want := `reelcast_http_requests_total{method="GET",path="/api/videos/:id/stream",status="206"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in output, got:\n%s", want, body)
	}
}

func TestTranscoderGaugeNeverGoesNegative(t *testing.T) {
	recorder := New()
	recorder.TranscoderJobFailed("upload")
	if active := recorder.ActiveTranscoderJobs(); active != 0 {
		t.Fatalf("expected gauge to stay at 0, got %d", active)
	}

	recorder.TranscoderJobStarted("upload")
	recorder.TranscoderJobCompleted("upload")
	events, active := recorder.TranscoderJobCounts()
	if active != 0 {
		t.Fatalf("expected 0 active jobs, got %d", active)
	}
	if events[TranscoderJobLabel{Kind: "upload", Status: "start"}] != 1 {
		t.Fatalf("expected one start event, got %v", events)
	}
	if events[TranscoderJobLabel{Kind: "upload", Status: "complete"}] != 1 {
		t.Fatalf("expected one complete event, got %v", events)
	}
}

func TestHTTPMiddlewareObservesStatusAndPath(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/api/videos/0123456789abcdef0123456789abcdef", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	var out strings.Builder
	recorder.Write(&out)
	want := `reelcast_http_requests_total{method="GET",path="/api/videos/:id",status="404"} 1`
	if !strings.Contains(out.String(), want) {
		t.Fatalf("expected %q in output, got:\n%s", want, out.String())
	}
}

func TestQueueDepthGauge(t *testing.T) {
	recorder := New()
	recorder.SetQueueDepth(7)
	if depth := recorder.QueueDepth(); depth != 7 {
		t.Fatalf("expected depth 7, got %d", depth)
	}
	recorder.SetQueueDepth(-3)
	if depth := recorder.QueueDepth(); depth != 0 {
		t.Fatalf("negative depth must clamp to 0, got %d", depth)
	}

	var out strings.Builder
	recorder.Write(&out)
	if !strings.Contains(out.String(), "reelcast_transcoder_queue_depth 0") {
		t.Fatalf("expected queue depth gauge in output, got:\n%s", out.String())
	}
}

func TestDeliveryCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveDelivery("partial")
	recorder.ObserveDelivery("partial")
	recorder.ObserveDelivery("Thumbnail")
	recorder.ObserveDelivery("")

	counts := recorder.DeliveryCounts()
	if counts["partial"] != 2 || counts["thumbnail"] != 1 || counts["unknown"] != 1 {
		t.Fatalf("unexpected delivery counts %v", counts)
	}
}
