package media

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestSaveGeneratesCollisionResistantNames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	first, size, err := store.Save(strings.NewReader("payload"), "My Clip (1).mp4")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != int64(len("payload")) {
		t.Fatalf("expected %d bytes written, got %d", len("payload"), size)
	}
	second, _, err := store.Save(strings.NewReader("payload"), "My Clip (1).mp4")
	if err != nil {
		t.Fatalf("Save second copy: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct stored names, got %q twice", first)
	}
	if !strings.HasSuffix(first, "-My_Clip__1_.mp4") {
		t.Fatalf("expected sanitized base name suffix, got %q", first)
	}
	path, err := store.Path(first)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestSaveEnforcesSizeLimit(t *testing.T) {
	store, err := NewStore(t.TempDir(), WithMaxBytes(4))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, _, err := store.Save(strings.NewReader("too large"), "big.mp4"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected rejected upload to be removed, found %d entries", len(entries))
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, name := range []string{"../escape.mp4", "a/b.mp4", "", "."} {
		if _, err := store.Path(name); err == nil {
			t.Fatalf("expected error for name %q", name)
		}
	}
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Remove("never-existed.mp4"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestRenditionName(t *testing.T) {
	got := RenditionName("169123-abcd1234-clip.mov", "480p")
	if got != "169123-abcd1234-clip-480p.mp4" {
		t.Fatalf("unexpected rendition name %q", got)
	}
	if got := RenditionName("noext", "720p"); got != "noext-720p.mp4" {
		t.Fatalf("unexpected rendition name %q", got)
	}
}

func TestContentTypeTable(t *testing.T) {
	cases := map[string]string{
		"a.mp4":    "video/mp4",
		"a.webm":   "video/webm",
		"a.ogv":    "video/ogg",
		"a.OGG":    "video/ogg",
		"a.mov":    "video/quicktime",
		"a.qt":     "video/quicktime",
		"a.jpg":    "image/jpeg",
		"a.jpeg":   "image/jpeg",
		"a.png":    "image/png",
		"a.webp":   "image/webp",
		"a.flv":    "application/octet-stream",
		"noext":    "application/octet-stream",
		"a.mp4.gz": "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestAllowedUploadTypes(t *testing.T) {
	if !AllowedVideoType("video/mp4") || !AllowedVideoType("video/quicktime; codecs=avc1") {
		t.Fatal("expected mp4 and quicktime to be accepted")
	}
	if AllowedVideoType("video/x-msvideo") || AllowedVideoType("") {
		t.Fatal("expected avi and empty types to be rejected")
	}
	if !AllowedImageType("image/GIF") {
		t.Fatal("expected gif thumbnails to be accepted")
	}
	if AllowedImageType("image/tiff") {
		t.Fatal("expected tiff thumbnails to be rejected")
	}
}
