package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"reelcast/internal/media"
	"reelcast/internal/models"
	"reelcast/internal/observability/logging"
	"reelcast/internal/store"
	"reelcast/internal/transcode"
)

// retryAfterSeconds is the hint returned while a video is still transcoding.
const retryAfterSeconds = 30

// thumbnailCacheControl lets thumbnails be cached aggressively; they never
// change after upload.
const thumbnailCacheControl = "public, max-age=86400"

func (h *Handler) streamVideo(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	video, ok := h.loadStreamableVideo(w, r, id)
	if !ok {
		return
	}

	switch {
	case video.ProcessingStatus == models.ProcessingStatusFailed:
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("video processing failed"))
		return
	case video.ProcessingStatus != models.ProcessingStatusReady && len(video.RenditionLocations) == 0:
		h.metrics().ObserveDelivery("not_ready")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		WriteError(w, http.StatusTooEarly, fmt.Errorf("video is still processing"))
		return
	}

	name := selectStreamSource(video)
	file, info, err := h.Media.Open(name)
	if err != nil {
		// Record and file drifted apart; surface it the same as a missing
		// record rather than leaking store paths.
		logging.WithContext(r.Context(), h.logger()).Error("video file missing", "video_id", video.ID, "file", name, "error", err)
		WriteError(w, http.StatusNotFound, fmt.Errorf("video file not found"))
		return
	}
	defer file.Close()

	h.serveFileRange(w, r, file, info.Size(), media.ContentType(name))
}

func (h *Handler) streamThumbnail(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	video, ok := h.loadStreamableVideo(w, r, id)
	if !ok {
		return
	}
	if video.ThumbnailLocation == "" {
		WriteError(w, http.StatusNotFound, fmt.Errorf("video has no thumbnail"))
		return
	}

	file, info, err := h.Media.Open(video.ThumbnailLocation)
	if err != nil {
		logging.WithContext(r.Context(), h.logger()).Error("thumbnail file missing", "video_id", video.ID, "file", video.ThumbnailLocation, "error", err)
		WriteError(w, http.StatusNotFound, fmt.Errorf("thumbnail not found"))
		return
	}
	defer file.Close()

	// Thumbnails are small; serve them whole and ignore any Range header.
	w.Header().Set("Content-Type", media.ContentType(video.ThumbnailLocation))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Cache-Control", thumbnailCacheControl)
	h.metrics().ObserveDelivery("thumbnail")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, file); err != nil {
		logging.WithContext(r.Context(), h.logger()).Debug("thumbnail copy aborted", "video_id", video.ID, "error", err)
	}
}

// loadStreamableVideo performs the shared lookup and visibility gate for the
// streaming endpoints. Processing state is not checked here; thumbnails are
// available as soon as the upload lands.
func (h *Handler) loadStreamableVideo(w http.ResponseWriter, r *http.Request, id string) (models.Video, bool) {
	viewer, _ := ViewerFromContext(r.Context())
	video, err := h.Store.GetVideo(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Errorf("video %s not found", id))
		return models.Video{}, false
	}
	if err != nil {
		h.logger().Error("failed to load video", "video_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("load video"))
		return models.Video{}, false
	}
	if video.Visibility == models.VisibilityPrivate && video.OwnerID != viewer {
		WriteError(w, http.StatusForbidden, fmt.Errorf("video is private"))
		return models.Video{}, false
	}
	return video, true
}

// selectStreamSource picks the lowest available rendition and falls back to
// the original upload when no rendition exists yet.
func selectStreamSource(video models.Video) string {
	for _, rendition := range transcode.DefaultLadder() {
		if name, ok := video.RenditionLocations[rendition.Label]; ok && name != "" {
			return name
		}
	}
	return video.OriginalLocation
}

// serveFileRange answers full and partial content requests over an open
// file. Only single byte ranges are honored; malformed Range headers fall
// back to the full body per RFC 7233.
func (h *Handler) serveFileRange(w http.ResponseWriter, r *http.Request, file *os.File, size int64, contentType string) {
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	byteRange, ok, satisfiable := parseRangeHeader(r.Header.Get("Range"), size)
	if ok && !satisfiable {
		h.metrics().ObserveDelivery("unsatisfiable")
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		h.metrics().ObserveDelivery("full")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, file); err != nil {
			h.logger().Debug("stream copy aborted", "error", err)
		}
		return
	}

	length := byteRange.end - byteRange.start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", byteRange.start, byteRange.end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	h.metrics().ObserveDelivery("partial")
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := file.Seek(byteRange.start, io.SeekStart); err != nil {
		h.logger().Error("seek failed", "error", err)
		return
	}
	if _, err := io.CopyN(w, file, length); err != nil {
		h.logger().Debug("stream copy aborted", "error", err)
	}
}

type byteRange struct {
	start int64
	end   int64
}

// parseRangeHeader interprets a single-range header of the form
// "bytes=<start>-[<end>]". It returns the resolved range, whether a usable
// range was requested, and whether that range is satisfiable against size.
// Malformed headers report ok=false so callers serve the full body.
func parseRangeHeader(header string, size int64) (byteRange, bool, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return byteRange{}, false, false
	}
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return byteRange{}, false, false
	}
	// Multi-range requests are not supported; treat them as no range.
	if strings.Contains(spec, ",") {
		return byteRange{}, false, false
	}
	startText, endText, found := strings.Cut(spec, "-")
	if !found {
		return byteRange{}, false, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(startText), 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, false, false
	}
	end := size - 1
	if trimmed := strings.TrimSpace(endText); trimmed != "" {
		end, err = strconv.ParseInt(trimmed, 10, 64)
		if err != nil || end < start {
			return byteRange{}, false, false
		}
	}
	if start >= size || end >= size {
		return byteRange{}, true, false
	}
	return byteRange{start: start, end: end}, true, true
}
