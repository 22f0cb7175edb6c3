package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"reelcast/internal/analytics"
	"reelcast/internal/media"
	"reelcast/internal/models"
	"reelcast/internal/observability/logging"
	"reelcast/internal/store"
	"reelcast/internal/transcode"
)

type videoResponse struct {
	models.Video
	StreamURL    string `json:"streamUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

func newVideoResponse(video models.Video) videoResponse {
	resp := videoResponse{
		Video:     video,
		StreamURL: fmt.Sprintf("/api/videos/%s/stream", video.ID),
	}
	if video.ThumbnailLocation != "" {
		resp.ThumbnailURL = fmt.Sprintf("/api/videos/%s/thumbnail", video.ID)
	}
	return resp
}

// Videos handles the collection endpoint: GET lists, POST ingests an upload.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVideos(w, r)
	case http.MethodPost:
		h.createVideo(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// VideoByID dispatches /api/videos/{id} and its stream/thumbnail subpaths.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	if rest == "" {
		WriteError(w, http.StatusNotFound, fmt.Errorf("video id required"))
		return
	}
	segments := strings.Split(rest, "/")
	id := segments[0]
	switch {
	case len(segments) == 1:
		h.videoResource(w, r, id)
	case len(segments) == 2 && segments[1] == "stream":
		h.streamVideo(w, r, id)
	case len(segments) == 2 && segments[1] == "thumbnail":
		h.streamThumbnail(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (h *Handler) videoResource(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		h.getVideo(w, r, id)
	case http.MethodPatch:
		h.updateVideo(w, r, id)
	case http.MethodDelete:
		h.deleteVideo(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PATCH, DELETE")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	filter := store.VideoFilter{
		OwnerID:     strings.TrimSpace(r.URL.Query().Get("ownerId")),
		Query:       strings.TrimSpace(r.URL.Query().Get("q")),
		RequesterID: viewer,
	}
	videos, err := h.Store.ListVideos(filter)
	if err != nil {
		h.logger().Error("failed to list videos", "error", err)
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("list videos"))
		return
	}
	responses := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		responses = append(responses, newVideoResponse(video))
	}
	writeJSON(w, http.StatusOK, responses)
}

func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, id string) {
	viewer, _ := ViewerFromContext(r.Context())
	video, err := h.Store.GetVideo(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Errorf("video %s not found", id))
		return
	}
	if err != nil {
		h.logger().Error("failed to load video", "video_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("load video"))
		return
	}
	if video.Visibility == models.VisibilityPrivate && video.OwnerID != viewer {
		WriteError(w, http.StatusForbidden, fmt.Errorf("video is private"))
		return
	}

	// The metadata fetch is the one place the view counter moves; streaming
	// the bytes never touches it.
	counted, err := h.Store.IncrementViews(id)
	if err != nil {
		h.logger().Warn("failed to record view", "video_id", id, "error", err)
	} else {
		video = counted
		h.emitViewEvent(r, video, viewer)
	}
	writeJSON(w, http.StatusOK, newVideoResponse(video))
}

func (h *Handler) emitViewEvent(r *http.Request, video models.Video, viewer string) {
	event := analytics.ViewEvent{
		VideoID:    video.ID,
		OwnerID:    video.OwnerID,
		ViewerID:   viewer,
		OccurredAt: time.Now().UTC(),
	}
	logger := logging.WithContext(r.Context(), h.logger())
	sink := h.sink()
	go func() {
		ctx, cancel := contextWithTimeout(2 * time.Second)
		defer cancel()
		if err := sink.RecordView(ctx, event); err != nil {
			logger.Warn("failed to publish view event", "video_id", event.VideoID, "error", err)
		}
	}()
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
}

func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request, id string) {
	viewer, ok := h.requireViewer(w, r)
	if !ok {
		return
	}
	video, err := h.Store.GetVideo(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Errorf("video %s not found", id))
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("load video"))
		return
	}
	if video.OwnerID != viewer {
		WriteError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return
	}

	var req updateVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	update := store.VideoUpdate{Title: req.Title, Description: req.Description}
	if req.Visibility != nil {
		visibility, err := models.ParseVisibility(*req.Visibility)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err)
			return
		}
		update.Visibility = &visibility
	}
	updated, err := h.Store.UpdateVideo(id, update)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, newVideoResponse(updated))
}

func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, id string) {
	viewer, ok := h.requireViewer(w, r)
	if !ok {
		return
	}
	video, err := h.Store.GetVideo(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Errorf("video %s not found", id))
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("load video"))
		return
	}
	if video.OwnerID != viewer {
		WriteError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return
	}

	deleted, err := h.Store.DeleteVideo(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Errorf("video %s not found", id))
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("delete video"))
		return
	}
	h.removeVideoFiles(r, deleted)
	w.WriteHeader(http.StatusNoContent)
}

// removeVideoFiles deletes the assets a record referenced. Best effort: a
// file already gone is fine, and a job still in flight for this video will
// finish as an orphan no-op.
func (h *Handler) removeVideoFiles(r *http.Request, video models.Video) {
	logger := logging.WithContext(r.Context(), h.logger())
	names := make([]string, 0, len(video.RenditionLocations)+2)
	if video.OriginalLocation != "" {
		names = append(names, video.OriginalLocation)
	}
	if video.ThumbnailLocation != "" {
		names = append(names, video.ThumbnailLocation)
	}
	for _, name := range video.RenditionLocations {
		names = append(names, name)
	}
	for _, name := range names {
		if err := h.Media.Remove(name); err != nil {
			logger.Warn("failed to remove media file", "video_id", video.ID, "file", name, "error", err)
		}
	}
}

func (h *Handler) createVideo(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireViewer(w, r)
	if !ok {
		return
	}
	reader, err := r.MultipartReader()
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("multipart form data required"))
		return
	}

	var (
		title       string
		description string
		visibility  string
		videoFile   *savedUpload
		thumbnail   *savedUpload
	)
	cleanup := func() {
		if videoFile != nil {
			_ = h.Media.Remove(videoFile.storedName)
		}
		if thumbnail != nil {
			_ = h.Media.Remove(thumbnail.storedName)
		}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			WriteError(w, http.StatusBadRequest, fmt.Errorf("read multipart data: %w", err))
			return
		}
		switch part.FormName() {
		case "video":
			if videoFile != nil {
				_ = part.Close()
				continue
			}
			saved, saveErr := h.saveUploadPart(part, media.AllowedVideoType, "video")
			if saveErr != nil {
				cleanup()
				h.writeUploadError(w, saveErr)
				return
			}
			videoFile = saved
		case "thumbnail":
			if thumbnail != nil {
				_ = part.Close()
				continue
			}
			saved, saveErr := h.saveUploadPart(part, media.AllowedImageType, "thumbnail")
			if saveErr != nil {
				cleanup()
				h.writeUploadError(w, saveErr)
				return
			}
			thumbnail = saved
		case "title", "description", "visibility":
			payload, readErr := io.ReadAll(io.LimitReader(part, 4096))
			_ = part.Close()
			if readErr != nil {
				cleanup()
				WriteError(w, http.StatusBadRequest, fmt.Errorf("read form field: %w", readErr))
				return
			}
			value := strings.TrimSpace(string(payload))
			switch part.FormName() {
			case "title":
				title = value
			case "description":
				description = value
			case "visibility":
				visibility = value
			}
		default:
			_ = part.Close()
		}
	}

	if title == "" {
		cleanup()
		WriteError(w, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}
	if videoFile == nil {
		cleanup()
		WriteError(w, http.StatusBadRequest, fmt.Errorf("video file is required"))
		return
	}
	parsedVisibility, err := models.ParseVisibility(visibility)
	if err != nil {
		cleanup()
		WriteError(w, http.StatusBadRequest, err)
		return
	}

	params := store.CreateVideoParams{
		OwnerID:          viewer,
		Title:            title,
		Description:      description,
		OriginalLocation: videoFile.storedName,
		Visibility:       parsedVisibility,
	}
	if thumbnail != nil {
		params.ThumbnailLocation = thumbnail.storedName
	}
	video, err := h.Store.CreateVideo(params)
	if err != nil {
		cleanup()
		h.logger().Error("failed to create video record", "error", err)
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("create video"))
		return
	}

	if h.Queue != nil {
		inputPath, pathErr := h.Media.Path(videoFile.storedName)
		if pathErr != nil {
			h.logger().Error("stored name unusable for transcoding", "video_id", video.ID, "error", pathErr)
		} else {
			h.Queue.Enqueue(transcode.Job{VideoID: video.ID, InputPath: inputPath})
		}
	}

	writeJSON(w, http.StatusCreated, newVideoResponse(video))
}

type savedUpload struct {
	storedName   string
	originalName string
	size         int64
}

type uploadError struct {
	status int
	err    error
}

func (e *uploadError) Error() string { return e.err.Error() }

func (h *Handler) writeUploadError(w http.ResponseWriter, err error) {
	var upErr *uploadError
	if errors.As(err, &upErr) {
		WriteError(w, upErr.status, upErr.err)
		return
	}
	WriteError(w, http.StatusInternalServerError, err)
}

func (h *Handler) saveUploadPart(part *multipart.Part, allowed func(string) bool, field string) (*savedUpload, error) {
	defer part.Close()
	contentType := part.Header.Get("Content-Type")
	if !allowed(contentType) {
		return nil, &uploadError{
			status: http.StatusBadRequest,
			err:    fmt.Errorf("unsupported %s type %q", field, contentType),
		}
	}
	storedName, size, err := h.Media.Save(part, part.FileName())
	if errors.Is(err, media.ErrTooLarge) {
		return nil, &uploadError{
			status: http.StatusRequestEntityTooLarge,
			err:    fmt.Errorf("%s exceeds the upload size limit", field),
		}
	}
	if err != nil {
		return nil, &uploadError{
			status: http.StatusInternalServerError,
			err:    fmt.Errorf("store %s: %w", field, err),
		}
	}
	return &savedUpload{storedName: storedName, originalName: part.FileName(), size: size}, nil
}
