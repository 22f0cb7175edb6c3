// Package analytics publishes view events for downstream aggregation. The
// API emits events fire-and-forget; a sink failure never affects a response.
package analytics

import (
	"context"
	"time"
)

// ViewEvent describes one authorized metadata view of a video.
type ViewEvent struct {
	VideoID    string    `json:"videoId"`
	OwnerID    string    `json:"ownerId"`
	ViewerID   string    `json:"viewerId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Sink receives view events.
type Sink interface {
	RecordView(ctx context.Context, event ViewEvent) error
	Close() error
}

// NopSink discards every event. It is the default when no analytics backend
// is configured.
type NopSink struct{}

func (NopSink) RecordView(context.Context, ViewEvent) error { return nil }

func (NopSink) Close() error { return nil }
