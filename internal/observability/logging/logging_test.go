package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewRespectsFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf, Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	if strings.Contains(buf.String(), "hidden") {
		t.Fatal("info record should be filtered at warn level")
	}
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "shown" || record["key"] != "value" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestWithContextAnnotatesIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Format: "json"})

	ctx := ContextWithRequestID(context.Background(), "req-123")
	ctx = ContextWithVideoID(ctx, "vid-456")
	WithContext(ctx, logger).Info("annotated")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["request_id"] != "req-123" || record["video_id"] != "vid-456" {
		t.Fatalf("expected context IDs on record, got %v", record)
	}
}

func TestContextHelpersIgnoreEmptyValues(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "   ")
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Fatal("blank request id should not be stored")
	}
	ctx = ContextWithVideoID(ctx, "")
	if _, ok := VideoIDFromContext(ctx); ok {
		t.Fatal("empty video id should not be stored")
	}
}
