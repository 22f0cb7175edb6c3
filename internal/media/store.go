// Package media owns the on-disk area holding uploaded originals, transcoded
// renditions, and thumbnails. Records reference assets by bare file name;
// only this package turns names into paths.
package media

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTooLarge is returned by Save when the reader exceeds the store's limit.
var ErrTooLarge = errors.New("media: file exceeds size limit")

// Store manages a single flat directory of media files.
type Store struct {
	root     string
	maxBytes int64
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBytes caps the size Save will accept. Zero means no cap.
func WithMaxBytes(limit int64) Option {
	return func(s *Store) {
		s.maxBytes = limit
	}
}

// NewStore creates the media directory if needed and returns a Store rooted
// there.
func NewStore(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("media: root directory required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("media: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("media: create root: %w", err)
	}
	store := &Store{root: abs}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Root returns the absolute media directory.
func (s *Store) Root() string {
	return s.root
}

// Save streams r into a new file under a randomized collision-resistant name
// derived from originalName and returns the stored name and byte count. The
// file is created exclusively; a clash with an existing name fails rather
// than overwrites.
func (s *Store) Save(r io.Reader, originalName string) (string, int64, error) {
	name, err := randomizedName(originalName)
	if err != nil {
		return "", 0, err
	}
	path := filepath.Join(s.root, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("media: create %s: %w", name, err)
	}
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(file, src)
	if err != nil {
		file.Close()
		os.Remove(path)
		return "", 0, fmt.Errorf("media: write %s: %w", name, err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		file.Close()
		os.Remove(path)
		return "", 0, ErrTooLarge
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("media: close %s: %w", name, err)
	}
	return name, written, nil
}

// Path maps a stored name to its absolute path. Names carrying directory
// components are rejected so records can never reach outside the root.
func (s *Store) Path(name string) (string, error) {
	cleaned := filepath.Base(strings.TrimSpace(name))
	if cleaned == "" || cleaned == "." || cleaned == string(filepath.Separator) || cleaned != name {
		return "", fmt.Errorf("media: invalid file name %q", name)
	}
	return filepath.Join(s.root, cleaned), nil
}

// Open opens a stored file for reading along with its metadata.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, info, nil
}

// Remove deletes a stored file. A missing file is not an error; the record
// may already have outlived a cleanup.
func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media: remove %s: %w", name, err)
	}
	return nil
}

// RenditionName derives the output file name for a ladder label from the
// stored original, e.g. "169-ab12-clip.mov" + "480p" -> "169-ab12-clip-480p.mp4".
func RenditionName(originalName, label string) string {
	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	return base + "-" + label + ".mp4"
}

func randomizedName(originalName string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("media: generate name: %w", err)
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), hex.EncodeToString(buf), sanitizeBaseName(originalName)), nil
}

func sanitizeBaseName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
