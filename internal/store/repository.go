// Package store persists video records. Two implementations share the
// Repository interface: a JSON file datastore for single-node deployments and
// a Postgres repository for everything else.
package store

import (
	"context"
	"errors"

	"reelcast/internal/models"
)

// ErrNotFound is returned when a video id has no record.
var ErrNotFound = errors.New("video not found")

// ErrInvalidTransition is returned when a processing-status update would move
// the pipeline backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid processing transition")

// CreateVideoParams carries the fields captured at upload time. The record
// always starts in the uploaded state with no renditions.
type CreateVideoParams struct {
	OwnerID           string
	Title             string
	Description       string
	OriginalLocation  string
	ThumbnailLocation string
	Visibility        models.Visibility
}

// VideoUpdate applies owner edits. Nil fields are left untouched; processing
// fields are never editable through this path.
type VideoUpdate struct {
	Title       *string
	Description *string
	Visibility  *models.Visibility
}

// VideoFilter narrows ListVideos. RequesterID is the authenticated viewer (or
// empty for anonymous); it decides whether non-public videos are visible.
type VideoFilter struct {
	OwnerID     string
	RequesterID string
	Query       string
}

// Repository is the persistence contract the API and the transcode queue
// depend on.
type Repository interface {
	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, error)
	ListVideos(filter VideoFilter) ([]models.Video, error)
	UpdateVideo(id string, update VideoUpdate) (models.Video, error)
	// DeleteVideo removes the record and returns it so callers can clean up
	// the files it referenced.
	DeleteVideo(id string) (models.Video, error)

	// MarkProcessing moves uploaded -> processing. Re-marking a video already
	// in processing is a no-op so a retried dequeue stays idempotent.
	MarkProcessing(id string) (models.Video, error)
	// CompleteProcessing atomically records the rendition locations, fills
	// the duration only when none is known yet, and moves the record to
	// ready. Valid only from processing.
	CompleteProcessing(id string, renditions map[string]string, durationSeconds *int) (models.Video, error)
	// FailProcessing moves a non-terminal record to failed. Failing an
	// already failed record is a no-op.
	FailProcessing(id string) (models.Video, error)

	// IncrementViews bumps the view counter without touching updated_at.
	IncrementViews(id string) (models.Video, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}
