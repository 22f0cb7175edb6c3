package transcode

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reelcast/internal/media"
	"reelcast/internal/observability/metrics"
	"reelcast/internal/store"
)

// Job identifies one upload awaiting transcoding.
type Job struct {
	VideoID   string
	InputPath string
}

// QueueConfig wires the queue's collaborators.
type QueueConfig struct {
	Store   store.Repository
	Invoker Invoker
	Media   *media.Store
	Ladder  []Rendition
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Queue runs transcode jobs strictly one at a time in arrival order. Enqueue
// never blocks; the backlog is unbounded and lives only in memory, so jobs
// do not survive a restart.
type Queue struct {
	store   store.Repository
	invoker Invoker
	media   *media.Store
	ladder  []Rendition
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	backlog []Job
	started bool
}

const defaultJobTimeout = 30 * time.Minute

// NewQueue builds a queue; call Start to launch the worker.
func NewQueue(cfg QueueConfig) *Queue {
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:   cfg.Store,
		invoker: cfg.Invoker,
		media:   cfg.Media,
		ladder:  append([]Rendition(nil), ladder...),
		timeout: timeout,
		logger:  logger,
		metrics: recorder,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the single worker goroutine. Calling Start twice is a no-op.
func (q *Queue) Start() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.worker()
}

// Shutdown stops the worker, abandoning any backlog. The job in flight is
// interrupted through its context.
func (q *Queue) Shutdown(ctx context.Context) error {
	if q == nil {
		return nil
	}
	q.cancel()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue appends a job to the backlog and returns immediately.
func (q *Queue) Enqueue(job Job) {
	if q == nil || strings.TrimSpace(job.VideoID) == "" {
		return
	}
	select {
	case <-q.ctx.Done():
		return
	default:
	}
	q.mu.Lock()
	q.backlog = append(q.backlog, job)
	depth := len(q.backlog)
	q.mu.Unlock()
	q.metrics.SetQueueDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Depth reports the number of jobs waiting (not counting one in flight).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		job, ok := q.next()
		if ok {
			q.process(job)
			continue
		}
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}
	}
}

func (q *Queue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) == 0 {
		return Job{}, false
	}
	job := q.backlog[0]
	q.backlog = q.backlog[1:]
	q.metrics.SetQueueDepth(len(q.backlog))
	return job, true
}

func (q *Queue) process(job Job) {
	logger := q.logger.With("video_id", job.VideoID)

	video, err := q.store.GetVideo(job.VideoID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Info("skipping job for removed video")
		return
	}
	if err != nil {
		logger.Error("failed to load video for transcoding", "error", err)
		return
	}
	if video.ProcessingStatus.Terminal() {
		logger.Info("skipping job in terminal state", "status", video.ProcessingStatus)
		return
	}

	if _, err := q.store.MarkProcessing(job.VideoID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("video removed before processing")
		} else {
			logger.Error("failed to mark video processing", "error", err)
		}
		return
	}

	q.metrics.TranscoderJobStarted("upload")
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	inputName := filepath.Base(job.InputPath)
	renditions := make(map[string]string, len(q.ladder))
	for _, rendition := range q.ladder {
		outputName := media.RenditionName(inputName, rendition.Label)
		outputPath, err := q.media.Path(outputName)
		if err != nil {
			q.fail(logger, job.VideoID, err)
			return
		}
		started := time.Now()
		if err := q.invoker.Transcode(ctx, job.InputPath, outputPath, rendition); err != nil {
			logger.Error("rendition failed", "rendition", rendition.Label, "error", err)
			q.fail(logger, job.VideoID, err)
			return
		}
		logger.Info("rendition complete", "rendition", rendition.Label, "elapsed", time.Since(started).Round(time.Millisecond))
		renditions[rendition.Label] = outputName
	}

	var duration *int
	if seconds, known := q.invoker.ProbeDuration(ctx, job.InputPath); known {
		duration = &seconds
	}

	if _, err := q.store.CompleteProcessing(job.VideoID, renditions, duration); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The video was deleted while its job ran; nothing references
			// the outputs so the result is simply dropped.
			logger.Info("video removed during transcoding, discarding result")
			q.metrics.TranscoderJobCompleted("upload")
			return
		}
		q.fail(logger, job.VideoID, err)
		return
	}
	q.metrics.TranscoderJobCompleted("upload")
	logger.Info("transcode complete", "renditions", len(renditions))
}

// fail marks the record failed. The marking is best effort: a store error is
// logged and the worker moves on either way.
func (q *Queue) fail(logger *slog.Logger, id string, cause error) {
	q.metrics.TranscoderJobFailed("upload")
	if _, err := q.store.FailProcessing(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("video removed before failure could be recorded")
			return
		}
		logger.Error("failed to mark video failed", "error", err, "cause", cause)
		return
	}
	logger.Warn("transcode failed", "error", cause)
}
