package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// TranscoderJobLabel keys transcode job counters by job kind and lifecycle
// status.
type TranscoderJobLabel struct {
	Kind   string
	Status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, media
// deliveries, and transcode jobs. It coordinates concurrent writers via a
// RWMutex while exposing atomic gauges for in-flight work.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	deliveryEvents   map[string]uint64
	transcoderEvents map[TranscoderJobLabel]uint64
	activeTranscoder atomic.Int64
	queueDepth       atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		deliveryEvents:   make(map[string]uint64),
		transcoderEvents: make(map[TranscoderJobLabel]uint64),
	}
}

// Default returns the singleton Recorder shared across packages that do not
// require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates totals for request count and cumulative duration
// by HTTP method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveDelivery records a served media response by kind, e.g. "full",
// "partial", "thumbnail", or "not_ready".
func (r *Recorder) ObserveDelivery(kind string) {
	normalized := normalizeName(kind)
	r.mu.Lock()
	r.deliveryEvents[normalized]++
	r.mu.Unlock()
}

// TranscoderJobStarted records the beginning of a transcode job of the
// provided kind and increments the active job gauge.
func (r *Recorder) TranscoderJobStarted(kind string) {
	r.recordTranscoderEvent(kind, "start")
	r.activeTranscoder.Add(1)
}

// TranscoderJobCompleted records a finished transcode job and decrements the
// active job gauge.
func (r *Recorder) TranscoderJobCompleted(kind string) {
	r.recordTranscoderEvent(kind, "complete")
	r.decrementGauge(&r.activeTranscoder)
}

// TranscoderJobFailed records a failed transcode job and decrements the
// active job gauge (without letting it go negative if the job never started).
func (r *Recorder) TranscoderJobFailed(kind string) {
	r.recordTranscoderEvent(kind, "fail")
	r.decrementGauge(&r.activeTranscoder)
}

func (r *Recorder) recordTranscoderEvent(kind, status string) {
	label := TranscoderJobLabel{Kind: normalizeName(kind), Status: normalizeName(status)}
	r.mu.Lock()
	r.transcoderEvents[label]++
	r.mu.Unlock()
}

// SetQueueDepth publishes the current transcode backlog size.
func (r *Recorder) SetQueueDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	r.queueDepth.Store(int64(depth))
}

// QueueDepth exposes the last published transcode backlog size.
func (r *Recorder) QueueDepth() int64 {
	return r.queueDepth.Load()
}

// ActiveTranscoderJobs exposes the current number of running transcode jobs.
func (r *Recorder) ActiveTranscoderJobs() int64 {
	return r.activeTranscoder.Load()
}

// TranscoderJobCounts returns copies of the job event counters and the active
// gauge for tests and reporting.
func (r *Recorder) TranscoderJobCounts() (events map[TranscoderJobLabel]uint64, active int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[TranscoderJobLabel]uint64, len(r.transcoderEvents))
	for k, v := range r.transcoderEvents {
		events[k] = v
	}
	return events, r.activeTranscoder.Load()
}

// DeliveryCounts returns a copy of the delivery counters.
func (r *Recorder) DeliveryCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make(map[string]uint64, len(r.deliveryEvents))
	for k, v := range r.deliveryEvents {
		events[k] = v
	}
	return events
}

// Reset clears all counters and gauges. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.deliveryEvents = make(map[string]uint64)
	r.transcoderEvents = make(map[TranscoderJobLabel]uint64)
	r.activeTranscoder.Store(0)
	r.queueDepth.Store(0)
}

// Handler exposes the Recorder as an http.Handler writing Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format, sorting label sets for
// stable scrapes.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	deliveries := r.sortedDeliveryEvents()
	transcoderLabels := r.sortedTranscoderJobLabels()

	fmt.Fprintln(w, "# HELP reelcast_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE reelcast_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "reelcast_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP reelcast_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE reelcast_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "reelcast_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP reelcast_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE reelcast_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "reelcast_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP reelcast_media_deliveries_total Served media responses by kind")
	fmt.Fprintln(w, "# TYPE reelcast_media_deliveries_total counter")
	for _, event := range deliveries {
		fmt.Fprintf(w, "reelcast_media_deliveries_total{kind=\"%s\"} %d\n", event, r.deliveryEvents[event])
	}

	fmt.Fprintln(w, "# HELP reelcast_transcoder_jobs_total Transcode job events by kind and status")
	fmt.Fprintln(w, "# TYPE reelcast_transcoder_jobs_total counter")
	for _, label := range transcoderLabels {
		fmt.Fprintf(w, "reelcast_transcoder_jobs_total{kind=\"%s\",status=\"%s\"} %d\n", label.Kind, label.Status, r.transcoderEvents[label])
	}

	fmt.Fprintln(w, "# HELP reelcast_transcoder_active_jobs Current number of running transcode jobs")
	fmt.Fprintln(w, "# TYPE reelcast_transcoder_active_jobs gauge")
	fmt.Fprintf(w, "reelcast_transcoder_active_jobs %d\n", r.activeTranscoder.Load())

	fmt.Fprintln(w, "# HELP reelcast_transcoder_queue_depth Jobs waiting in the transcode backlog")
	fmt.Fprintln(w, "# TYPE reelcast_transcoder_queue_depth gauge")
	fmt.Fprintf(w, "reelcast_transcoder_queue_depth %d\n", r.queueDepth.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedDeliveryEvents() []string {
	events := make([]string, 0, len(r.deliveryEvents))
	for event := range r.deliveryEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func (r *Recorder) sortedTranscoderJobLabels() []TranscoderJobLabel {
	labels := make([]TranscoderJobLabel, 0, len(r.transcoderEvents))
	for label := range r.transcoderEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Kind != labels[j].Kind {
			return labels[i].Kind < labels[j].Kind
		}
		return labels[i].Status < labels[j].Status
	})
	return labels
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount > 0 && digitCount >= len(segment)/2
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
