package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"reelcast/internal/models"
)

type dataset struct {
	Videos map[string]models.Video `json:"videos"`
}

func newDataset() dataset {
	return dataset{Videos: make(map[string]models.Video)}
}

// Storage is the JSON file-backed Repository. Every mutation rewrites the
// whole dataset atomically; a failed persist rolls the in-memory state back.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

var _ Repository = (*Storage)(nil)

// NewStorage loads (or initializes) the datastore at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{filePath: path}
	for _, opt := range opts {
		opt.applyJSON(store)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	}
	if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var data dataset
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	if data.Videos == nil {
		data.Videos = make(map[string]models.Video)
	}
	s.data = data
	return nil
}

func (s *Storage) persist() error {
	if s.persistOverride != nil {
		if err := s.persistOverride(s.data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// CreateVideo inserts a new record in the uploaded state.
func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	if strings.TrimSpace(params.OwnerID) == "" {
		return models.Video{}, errors.New("owner id is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return models.Video{}, errors.New("title is required")
	}
	if strings.TrimSpace(params.OriginalLocation) == "" {
		return models.Video{}, errors.New("original location is required")
	}
	visibility := params.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if _, err := models.ParseVisibility(string(visibility)); err != nil {
		return models.Video{}, err
	}

	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}
	now := time.Now().UTC()
	video := models.Video{
		ID:                id,
		OwnerID:           params.OwnerID,
		Title:             strings.TrimSpace(params.Title),
		Description:       strings.TrimSpace(params.Description),
		OriginalLocation:  params.OriginalLocation,
		ThumbnailLocation: params.ThumbnailLocation,
		ProcessingStatus:  models.ProcessingStatusUploaded,
		Visibility:        visibility,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Videos[video.ID] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, video.ID)
		return models.Video{}, err
	}
	return video.Clone(), nil
}

// GetVideo returns a copy of the record.
func (s *Storage) GetVideo(id string) (models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return video.Clone(), nil
}

// ListVideos returns matching records newest first. Non-public videos appear
// only when the requester lists their own uploads.
func (s *Storage) ListVideos(filter VideoFilter) ([]models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	includeAll := filter.OwnerID != "" && filter.OwnerID == filter.RequesterID
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	videos := make([]models.Video, 0)
	for _, video := range s.data.Videos {
		if filter.OwnerID != "" && video.OwnerID != filter.OwnerID {
			continue
		}
		if !includeAll && video.Visibility != models.VisibilityPublic {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(video.Title), query) &&
			!strings.Contains(strings.ToLower(video.Description), query) {
			continue
		}
		videos = append(videos, video.Clone())
	}
	sort.Slice(videos, func(i, j int) bool {
		if !videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].CreatedAt.After(videos[j].CreatedAt)
		}
		return videos[i].ID > videos[j].ID
	})
	return videos, nil
}

// AllVideos returns every record regardless of visibility, sorted oldest
// first so a migration replays them in creation order.
func (s *Storage) AllVideos() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	videos := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		videos = append(videos, video.Clone())
	}
	sort.Slice(videos, func(i, j int) bool {
		if !videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].CreatedAt.Before(videos[j].CreatedAt)
		}
		return videos[i].ID < videos[j].ID
	})
	return videos
}

// UpdateVideo applies owner edits to mutable metadata fields.
func (s *Storage) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	previous := video

	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Video{}, errors.New("title cannot be empty")
		}
		video.Title = trimmed
	}
	if update.Description != nil {
		video.Description = strings.TrimSpace(*update.Description)
	}
	if update.Visibility != nil {
		visibility, err := models.ParseVisibility(string(*update.Visibility))
		if err != nil {
			return models.Video{}, err
		}
		video.Visibility = visibility
	}
	video.UpdatedAt = time.Now().UTC()

	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return models.Video{}, err
	}
	return video.Clone(), nil
}

// DeleteVideo removes the record and returns it for file cleanup.
func (s *Storage) DeleteVideo(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	delete(s.data.Videos, id)
	if err := s.persist(); err != nil {
		s.data.Videos[id] = video
		return models.Video{}, err
	}
	return video.Clone(), nil
}

// MarkProcessing moves the record into the processing state.
func (s *Storage) MarkProcessing(id string) (models.Video, error) {
	return s.transition(id, func(video *models.Video) error {
		if video.ProcessingStatus == models.ProcessingStatusProcessing {
			return nil
		}
		if !video.ProcessingStatus.CanTransitionTo(models.ProcessingStatusProcessing) {
			return fmt.Errorf("%w: %s -> processing", ErrInvalidTransition, video.ProcessingStatus)
		}
		video.ProcessingStatus = models.ProcessingStatusProcessing
		return nil
	})
}

// CompleteProcessing records renditions and duration and marks the record
// ready in one atomic step.
func (s *Storage) CompleteProcessing(id string, renditions map[string]string, durationSeconds *int) (models.Video, error) {
	return s.transition(id, func(video *models.Video) error {
		if !video.ProcessingStatus.CanTransitionTo(models.ProcessingStatusReady) {
			return fmt.Errorf("%w: %s -> ready", ErrInvalidTransition, video.ProcessingStatus)
		}
		locations := make(map[string]string, len(renditions))
		for label, location := range renditions {
			locations[label] = location
		}
		video.RenditionLocations = locations
		if video.DurationSeconds == nil && durationSeconds != nil {
			duration := *durationSeconds
			video.DurationSeconds = &duration
		}
		video.ProcessingStatus = models.ProcessingStatusReady
		return nil
	})
}

// FailProcessing marks the record failed.
func (s *Storage) FailProcessing(id string) (models.Video, error) {
	return s.transition(id, func(video *models.Video) error {
		if video.ProcessingStatus == models.ProcessingStatusFailed {
			return nil
		}
		if !video.ProcessingStatus.CanTransitionTo(models.ProcessingStatusFailed) {
			return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, video.ProcessingStatus)
		}
		video.ProcessingStatus = models.ProcessingStatusFailed
		return nil
	})
}

func (s *Storage) transition(id string, apply func(*models.Video) error) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	previous := video
	if err := apply(&video); err != nil {
		return models.Video{}, err
	}
	video.UpdatedAt = time.Now().UTC()
	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return models.Video{}, err
	}
	return video.Clone(), nil
}

// IncrementViews bumps the view counter.
func (s *Storage) IncrementViews(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	previous := video
	video.Views++
	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return models.Video{}, err
	}
	return video.Clone(), nil
}

// Ping reports datastore health; the JSON store is healthy whenever loaded.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// Close flushes nothing; every mutation already persisted.
func (s *Storage) Close(context.Context) error {
	return nil
}

func generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
