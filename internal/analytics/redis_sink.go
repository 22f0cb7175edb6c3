package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisSinkConfig configures the Redis Streams-backed analytics sink.
type RedisSinkConfig struct {
	Addr         string
	Addrs        []string
	Username     string
	Password     string
	Stream       string
	MasterName   string
	Logger       *slog.Logger
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MaxLen       int64
}

// NewRedisSink initialises a sink that appends view events to a Redis
// stream. Aggregation workers consume the stream out of process.
func NewRedisSink(cfg RedisSinkConfig) (Sink, error) {
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "reelcast:views"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &redisSink{client: client, stream: stream, maxLen: maxLen, logger: logger}, nil
}

type redisSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func (s *redisSink) RecordView(ctx context.Context, event ViewEvent) error {
	if strings.TrimSpace(event.VideoID) == "" {
		return fmt.Errorf("view event video id is required")
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	values := map[string]any{
		"video_id":    event.VideoID,
		"owner_id":    event.OwnerID,
		"occurred_at": occurredAt.Format(time.RFC3339Nano),
	}
	if event.ViewerID != "" {
		values["viewer_id"] = event.ViewerID
	}
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("append view event: %w", err)
	}
	return nil
}

func (s *redisSink) Close() error {
	return s.client.Close()
}
