// Command migrate-json-to-postgres copies video records from the JSON
// datastore into Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"reelcast/internal/models"
	"reelcast/internal/store"
)

type videoImporter interface {
	ImportVideo(video models.Video) error
}

func main() {
	jsonPath := flag.String("json", "data/store.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("REELCAST_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, REELCAST_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	source, err := store.NewStorage(*jsonPath)
	if err != nil {
		logger.Error("failed to open JSON datastore", "error", err)
		os.Exit(1)
	}
	videos := source.AllVideos()
	logger.Info("loaded JSON datastore", "path", *jsonPath, "videos", len(videos))

	repo, err := store.NewPostgresRepository(dsn)
	if err != nil {
		logger.Error("failed to open postgres repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = repo.Close(context.Background())
	}()

	importer, ok := repo.(videoImporter)
	if !ok {
		logger.Error("postgres repository does not support imports")
		os.Exit(1)
	}
	for _, video := range videos {
		if err := importer.ImportVideo(video); err != nil {
			logger.Error("failed to import video", "video_id", video.ID, "error", err)
			os.Exit(1)
		}
	}

	if err := verifyCount(context.Background(), dsn, len(videos)); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed", "videos", len(videos))
}

// verifyCount re-reads the row count over a fresh connection. An existing row
// per JSON record is the success condition; reruns over a partially migrated
// database still pass because imports never overwrite.
func verifyCount(ctx context.Context, dsn string, expected int) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	var actual int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM videos").Scan(&actual); err != nil {
		return fmt.Errorf("count videos: %w", err)
	}
	if actual < expected {
		return fmt.Errorf("expected at least %d videos, found %d", expected, actual)
	}
	return nil
}
