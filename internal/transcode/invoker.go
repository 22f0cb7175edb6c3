package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Invoker abstracts the external transcoding toolchain so the queue can be
// exercised without ffmpeg installed.
type Invoker interface {
	// Transcode produces one rendition at outputPath. On failure no file may
	// be left behind at outputPath.
	Transcode(ctx context.Context, inputPath, outputPath string, rendition Rendition) error
	// ProbeDuration reads the container duration in whole seconds. A source
	// whose duration cannot be determined reports known=false, not an error.
	ProbeDuration(ctx context.Context, inputPath string) (seconds int, known bool)
}

// FFmpegInvoker shells out to ffmpeg and ffprobe.
type FFmpegInvoker struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *slog.Logger
}

var _ Invoker = (*FFmpegInvoker)(nil)

func (inv *FFmpegInvoker) ffmpeg() string {
	if strings.TrimSpace(inv.FFmpegPath) != "" {
		return inv.FFmpegPath
	}
	return "ffmpeg"
}

func (inv *FFmpegInvoker) ffprobe() string {
	if strings.TrimSpace(inv.FFprobePath) != "" {
		return inv.FFprobePath
	}
	return "ffprobe"
}

func (inv *FFmpegInvoker) logger() *slog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return slog.Default()
}

// Transcode runs ffmpeg with the fixed encoder settings for the rendition.
// The scale filter pins the height and derives an even width from the source
// aspect ratio.
func (inv *FFmpegInvoker) Transcode(ctx context.Context, inputPath, outputPath string, rendition Rendition) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-vf", fmt.Sprintf("scale=-2:%d", rendition.Height),
		"-b:v", rendition.VideoBitrate,
		"-maxrate", rendition.VideoBitrate,
		"-bufsize", "2M",
		"-b:a", rendition.AudioBitrate,
		"-movflags", "+faststart",
		"-f", "mp4",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, inv.ffmpeg(), args...)
	cmd.Stdout = newLogWriter(inv.logger(), rendition.Label, "stdout")
	stderrTail := &tailBuffer{limit: 2048}
	cmd.Stderr = stderrTail
	if err := cmd.Run(); err != nil {
		// Never leave a partial rendition behind.
		_ = os.Remove(outputPath)
		tail := stderrTail.String()
		if tail != "" {
			inv.logger().Error("ffmpeg failed", "rendition", rendition.Label, "stderr", tail)
			return fmt.Errorf("ffmpeg %s: %w: %s", rendition.Label, err, lastLine(tail))
		}
		return fmt.Errorf("ffmpeg %s: %w", rendition.Label, err)
	}
	return nil
}

// ProbeDuration asks ffprobe for format.duration. Any probe problem, from a
// missing binary to a non-finite value, yields an unknown duration.
func (inv *FFmpegInvoker) ProbeDuration(ctx context.Context, inputPath string) (int, bool) {
	cmd := exec.CommandContext(ctx, inv.ffprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputPath,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = newLogWriter(inv.logger(), "probe", "stderr")
	if err := cmd.Run(); err != nil {
		inv.logger().Warn("ffprobe failed", "input", inputPath, "error", err)
		return 0, false
	}
	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		inv.logger().Warn("ffprobe output unreadable", "input", inputPath, "error", err)
		return 0, false
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(payload.Format.Duration), 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, false
	}
	return int(math.Round(seconds)), true
}

// logWriter forwards process output line by line to slog.
type logWriter struct {
	logger *slog.Logger
	label  string
	stream string
}

func newLogWriter(logger *slog.Logger, label, stream string) *logWriter {
	return &logWriter{logger: logger, label: label, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		var line []byte
		if idx == -1 {
			line = p
			p = nil
		} else {
			line = p[:idx]
			p = p[idx+1:]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.logger.Debug("ffmpeg output", "label", w.label, "stream", w.stream, "line", string(line))
	}
	return total, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
