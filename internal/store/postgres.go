package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reelcast/internal/models"
)

// PostgresConfig describes how the repository initialises its connection
// pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	StatementTimeout    time.Duration
	ApplicationName     string
}

const defaultStatementTimeout = 5 * time.Second

func newPostgresConfig(dsn string, opts ...Option) PostgresConfig {
	cfg := PostgresConfig{
		DSN:              dsn,
		StatementTimeout: defaultStatementTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyPostgres(&cfg)
		}
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = defaultStatementTimeout
	}
	return cfg
}

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

var _ Repository = (*postgresRepository)(nil)

const videosSchema = `
CREATE TABLE IF NOT EXISTS videos (
    id                  TEXT PRIMARY KEY,
    owner_id            TEXT NOT NULL,
    title               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    original_location   TEXT NOT NULL,
    thumbnail_location  TEXT NOT NULL DEFAULT '',
    rendition_locations JSONB NOT NULL DEFAULT '{}'::jsonb,
    processing_status   TEXT NOT NULL DEFAULT 'uploaded',
    visibility          TEXT NOT NULL DEFAULT 'public',
    duration_seconds    INTEGER,
    views               BIGINT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS videos_owner_id_idx ON videos (owner_id);
CREATE INDEX IF NOT EXISTS videos_created_at_idx ON videos (created_at DESC);
`

const videoColumns = "id, owner_id, title, description, original_location, thumbnail_location, rendition_locations, processing_status, visibility, duration_seconds, views, created_at, updated_at"

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// videos schema exists.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg}
	ctx, cancel := repo.opContext()
	defer cancel()
	if _, err := pool.Exec(ctx, videosSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure videos schema: %w", err)
	}
	return repo, nil
}

func (r *postgresRepository) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.cfg.StatementTimeout)
}

func (r *postgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
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

	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `
INSERT INTO videos (id, owner_id, title, description, original_location, thumbnail_location, processing_status, visibility, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
RETURNING `+videoColumns,
		id,
		params.OwnerID,
		strings.TrimSpace(params.Title),
		strings.TrimSpace(params.Description),
		params.OriginalLocation,
		params.ThumbnailLocation,
		string(models.ProcessingStatusUploaded),
		string(visibility),
	)
	video, err := scanVideo(row)
	if err != nil {
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) GetVideo(id string) (models.Video, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) ListVideos(filter VideoFilter) ([]models.Video, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.OwnerID == "" || filter.OwnerID != filter.RequesterID {
		args = append(args, string(models.VisibilityPublic))
		conditions = append(conditions, fmt.Sprintf("visibility = $%d", len(args)))
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		args = append(args, "%"+query+"%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	sql := `SELECT ` + videoColumns + ` FROM videos`
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	sql += " ORDER BY created_at DESC, id DESC"

	ctx, cancel := r.opContext()
	defer cancel()
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

func (r *postgresRepository) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	assignments := make([]string, 0, 3)
	args := []any{id}
	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Video{}, errors.New("title cannot be empty")
		}
		args = append(args, trimmed)
		assignments = append(assignments, fmt.Sprintf("title = $%d", len(args)))
	}
	if update.Description != nil {
		args = append(args, strings.TrimSpace(*update.Description))
		assignments = append(assignments, fmt.Sprintf("description = $%d", len(args)))
	}
	if update.Visibility != nil {
		visibility, err := models.ParseVisibility(string(*update.Visibility))
		if err != nil {
			return models.Video{}, err
		}
		args = append(args, string(visibility))
		assignments = append(assignments, fmt.Sprintf("visibility = $%d", len(args)))
	}
	if len(assignments) == 0 {
		return r.GetVideo(id)
	}
	assignments = append(assignments, "updated_at = now()")

	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `UPDATE videos SET `+strings.Join(assignments, ", ")+` WHERE id = $1 RETURNING `+videoColumns, args...)
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("update video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) DeleteVideo(id string) (models.Video, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `DELETE FROM videos WHERE id = $1 RETURNING `+videoColumns, id)
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("delete video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) MarkProcessing(id string) (models.Video, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `
UPDATE videos SET processing_status = $2, updated_at = now()
WHERE id = $1 AND processing_status IN ($3, $2)
RETURNING `+videoColumns,
		id, string(models.ProcessingStatusProcessing), string(models.ProcessingStatusUploaded))
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, r.transitionError(id, models.ProcessingStatusProcessing)
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("mark processing: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) CompleteProcessing(id string, renditions map[string]string, durationSeconds *int) (models.Video, error) {
	payload, err := json.Marshal(renditions)
	if err != nil {
		return models.Video{}, fmt.Errorf("encode renditions: %w", err)
	}
	var duration *int32
	if durationSeconds != nil {
		value := int32(*durationSeconds)
		duration = &value
	}

	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `
UPDATE videos SET rendition_locations = $2,
                  duration_seconds = COALESCE(duration_seconds, $3),
                  processing_status = $4,
                  updated_at = now()
WHERE id = $1 AND processing_status = $5
RETURNING `+videoColumns,
		id, payload, duration, string(models.ProcessingStatusReady), string(models.ProcessingStatusProcessing))
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, r.transitionError(id, models.ProcessingStatusReady)
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("complete processing: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) FailProcessing(id string) (models.Video, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `
UPDATE videos SET processing_status = $2, updated_at = now()
WHERE id = $1 AND processing_status IN ($3, $4)
RETURNING `+videoColumns,
		id, string(models.ProcessingStatusFailed), string(models.ProcessingStatusUploaded), string(models.ProcessingStatusProcessing))
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetVideo(id)
		if getErr != nil {
			return models.Video{}, getErr
		}
		if current.ProcessingStatus == models.ProcessingStatusFailed {
			return current, nil
		}
		return models.Video{}, fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, current.ProcessingStatus)
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("fail processing: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) IncrementViews(id string) (models.Video, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	row := r.pool.QueryRow(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING `+videoColumns, id)
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("increment views: %w", err)
	}
	return video, nil
}

// ImportVideo inserts a record verbatim, preserving its id, status, counters,
// and timestamps. Existing ids are left untouched so reruns stay safe. Used
// by the JSON-to-Postgres migration tool.
func (r *postgresRepository) ImportVideo(video models.Video) error {
	payload, err := json.Marshal(video.RenditionLocations)
	if err != nil {
		return fmt.Errorf("encode renditions: %w", err)
	}
	var duration *int32
	if video.DurationSeconds != nil {
		value := int32(*video.DurationSeconds)
		duration = &value
	}

	ctx, cancel := r.opContext()
	defer cancel()
	_, err = r.pool.Exec(ctx, `
INSERT INTO videos (`+videoColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`,
		video.ID,
		video.OwnerID,
		video.Title,
		video.Description,
		video.OriginalLocation,
		video.ThumbnailLocation,
		payload,
		string(video.ProcessingStatus),
		string(video.Visibility),
		duration,
		video.Views,
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("import video %s: %w", video.ID, err)
	}
	return nil
}

func (r *postgresRepository) transitionError(id string, target models.ProcessingStatus) error {
	current, err := r.GetVideo(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.ProcessingStatus, target)
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video      models.Video
		renditions []byte
		duration   *int32
	)
	err := row.Scan(
		&video.ID,
		&video.OwnerID,
		&video.Title,
		&video.Description,
		&video.OriginalLocation,
		&video.ThumbnailLocation,
		&renditions,
		&video.ProcessingStatus,
		&video.Visibility,
		&duration,
		&video.Views,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return models.Video{}, err
	}
	if len(renditions) > 0 {
		locations := make(map[string]string)
		if err := json.Unmarshal(renditions, &locations); err != nil {
			return models.Video{}, fmt.Errorf("decode renditions: %w", err)
		}
		if len(locations) > 0 {
			video.RenditionLocations = locations
		}
	}
	if duration != nil {
		value := int(*duration)
		video.DurationSeconds = &value
	}
	return video, nil
}
