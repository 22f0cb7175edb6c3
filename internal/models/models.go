package models

import (
	"fmt"
	"time"
)

// ProcessingStatus tracks a video through the transcode pipeline. Transitions
// only ever move forward: uploaded -> processing -> ready or failed.
type ProcessingStatus string

const (
	ProcessingStatusUploaded   ProcessingStatus = "uploaded"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusReady      ProcessingStatus = "ready"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether the status is one of the known pipeline states.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case ProcessingStatusUploaded, ProcessingStatusProcessing, ProcessingStatusReady, ProcessingStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingStatusReady || s == ProcessingStatusFailed
}

// CanTransitionTo reports whether moving from s to next respects the
// forward-only pipeline ordering. Self-transitions are allowed for the
// non-terminal states so retried updates stay idempotent.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	switch s {
	case ProcessingStatusUploaded:
		return next == ProcessingStatusUploaded || next == ProcessingStatusProcessing || next == ProcessingStatusFailed
	case ProcessingStatusProcessing:
		return next == ProcessingStatusProcessing || next == ProcessingStatusReady || next == ProcessingStatusFailed
	default:
		return false
	}
}

// Visibility controls who may see a video and its assets.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// ParseVisibility validates a client-supplied visibility value. An empty
// string defaults to public.
func ParseVisibility(value string) (Visibility, error) {
	switch Visibility(value) {
	case "":
		return VisibilityPublic, nil
	case VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityUnlisted:
		return VisibilityUnlisted, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	}
	return "", fmt.Errorf("invalid visibility %q", value)
}

// Video is the persisted record for one uploaded asset and its derived
// renditions. Locations are media-store file names, never absolute paths;
// rendition keys are ladder labels such as "480p".
type Video struct {
	ID                 string            `json:"id"`
	OwnerID            string            `json:"ownerId"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	OriginalLocation   string            `json:"originalLocation"`
	ThumbnailLocation  string            `json:"thumbnailLocation,omitempty"`
	RenditionLocations map[string]string `json:"renditionLocations,omitempty"`
	ProcessingStatus   ProcessingStatus  `json:"processingStatus"`
	Visibility         Visibility        `json:"visibility"`
	DurationSeconds    *int              `json:"durationSeconds,omitempty"`
	Views              int64             `json:"views"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy so callers can hand records out without aliasing
// the store's internal maps.
func (v Video) Clone() Video {
	out := v
	if v.RenditionLocations != nil {
		out.RenditionLocations = make(map[string]string, len(v.RenditionLocations))
		for label, location := range v.RenditionLocations {
			out.RenditionLocations[label] = location
		}
	}
	if v.DurationSeconds != nil {
		duration := *v.DurationSeconds
		out.DurationSeconds = &duration
	}
	return out
}

// Session represents a resolved identity handed to the API by the external
// auth service. Only the hash of the token is ever stored.
type Session struct {
	TokenHash string    `json:"tokenHash"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its absolute lifetime.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
