// Command server starts the ReelCast API HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"reelcast/internal/analytics"
	"reelcast/internal/api"
	"reelcast/internal/auth"
	"reelcast/internal/media"
	"reelcast/internal/observability/logging"
	"reelcast/internal/observability/metrics"
	"reelcast/internal/server"
	"reelcast/internal/store"
	"reelcast/internal/transcode"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresStatementTimeout := flag.Duration("postgres-statement-timeout", 0, "per-statement timeout for Postgres queries")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory or postgres)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionTTL := flag.Duration("session-ttl", 0, "absolute session lifetime")
	mediaDir := flag.String("media-dir", "", "directory holding uploaded and transcoded media")
	maxUploadBytes := flag.Int64("max-upload-bytes", 0, "maximum accepted upload size in bytes")
	ffmpegPath := flag.String("ffmpeg", "", "path to the ffmpeg binary")
	ffprobePath := flag.String("ffprobe", "", "path to the ffprobe binary")
	transcodeTimeout := flag.Duration("transcode-timeout", 0, "per-job transcode timeout")
	analyticsRedisAddr := flag.String("analytics-redis-addr", "", "Redis address for view analytics events")
	analyticsRedisAddrs := flag.String("analytics-redis-addrs", "", "comma separated Redis addresses for view analytics events")
	analyticsRedisUsername := flag.String("analytics-redis-username", "", "Redis username for view analytics")
	analyticsRedisPassword := flag.String("analytics-redis-password", "", "Redis password for view analytics")
	analyticsRedisStream := flag.String("analytics-redis-stream", "", "Redis stream key for view analytics events")
	analyticsRedisMaster := flag.String("analytics-redis-sentinel-master", "", "Redis sentinel master name for view analytics")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	uploadLimit := flag.Int("rate-upload-limit", 0, "maximum uploads per window for a single IP")
	uploadWindow := flag.Duration("rate-upload-window", 0, "window for counting uploads")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed upload throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed upload throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for rate limiter Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("REELCAST_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("REELCAST_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("REELCAST_ADDR"), ":8080")

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("REELCAST_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}

	var repo store.Repository
	switch driver {
	case "json":
		dataFile := firstNonEmpty(*dataPath, os.Getenv("REELCAST_DATA"), "data/store.json")
		repo, err = store.NewJSONRepository(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []store.Option
		maxConns := resolveInt(*postgresMaxConns, "REELCAST_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "REELCAST_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, store.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "REELCAST_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "REELCAST_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "REELCAST_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, store.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if timeout := resolveDuration(*postgresStatementTimeout, "REELCAST_POSTGRES_STATEMENT_TIMEOUT", 0); timeout > 0 {
			pgOptions = append(pgOptions, store.WithPostgresStatementTimeout(timeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("REELCAST_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, store.WithPostgresApplicationName(appName))
		}
		repo, err = store.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessionConfig, err := resolveSessionStoreConfig(
		*sessionStoreDriver,
		os.Getenv("REELCAST_SESSION_STORE"),
		driver,
		postgresDefaultDSN,
		*sessionPostgresDSN,
		os.Getenv("REELCAST_SESSION_POSTGRES_DSN"),
	)
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}

	var (
		sessionStore  auth.SessionStore
		sessionCloser func(context.Context) error
	)
	switch sessionConfig.Driver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "postgres":
		pgStore, err := auth.NewPostgresSessionStore(sessionConfig.DSN)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = pgStore
		sessionCloser = pgStore.Close
	default:
		logger.Error("unsupported session store driver", "driver", sessionConfig.Driver)
		os.Exit(1)
	}
	sessions := auth.NewSessionManager(resolveDuration(*sessionTTL, "REELCAST_SESSION_TTL", 24*time.Hour), auth.WithStore(sessionStore))

	var mediaOptions []media.Option
	if limit := resolveInt64(*maxUploadBytes, "REELCAST_MAX_UPLOAD_BYTES"); limit > 0 {
		mediaOptions = append(mediaOptions, media.WithMaxBytes(limit))
	}
	mediaStore, err := media.NewStore(firstNonEmpty(*mediaDir, os.Getenv("REELCAST_MEDIA_DIR"), "data/media"), mediaOptions...)
	if err != nil {
		logger.Error("failed to open media store", "error", err)
		os.Exit(1)
	}

	invoker := &transcode.FFmpegInvoker{
		FFmpegPath:  firstNonEmpty(*ffmpegPath, os.Getenv("REELCAST_FFMPEG")),
		FFprobePath: firstNonEmpty(*ffprobePath, os.Getenv("REELCAST_FFPROBE")),
		Logger:      logging.WithComponent(logger, "ffmpeg"),
	}
	queue := transcode.NewQueue(transcode.QueueConfig{
		Store:   repo,
		Invoker: invoker,
		Media:   mediaStore,
		Timeout: resolveDuration(*transcodeTimeout, "REELCAST_TRANSCODE_TIMEOUT", 0),
		Logger:  logging.WithComponent(logger, "transcoder"),
		Metrics: recorder,
	})
	queue.Start()

	sink := analytics.Sink(analytics.NopSink{})
	analyticsAddr := firstNonEmpty(*analyticsRedisAddr, os.Getenv("REELCAST_ANALYTICS_REDIS_ADDR"))
	analyticsAddrs := splitAndTrim(firstNonEmpty(*analyticsRedisAddrs, os.Getenv("REELCAST_ANALYTICS_REDIS_ADDRS")))
	if analyticsAddr != "" || len(analyticsAddrs) > 0 {
		redisSink, err := analytics.NewRedisSink(analytics.RedisSinkConfig{
			Addr:       analyticsAddr,
			Addrs:      analyticsAddrs,
			Username:   firstNonEmpty(*analyticsRedisUsername, os.Getenv("REELCAST_ANALYTICS_REDIS_USERNAME")),
			Password:   firstNonEmpty(*analyticsRedisPassword, os.Getenv("REELCAST_ANALYTICS_REDIS_PASSWORD")),
			Stream:     firstNonEmpty(*analyticsRedisStream, os.Getenv("REELCAST_ANALYTICS_REDIS_STREAM")),
			MasterName: firstNonEmpty(*analyticsRedisMaster, os.Getenv("REELCAST_ANALYTICS_REDIS_SENTINEL_MASTER")),
			Logger:     logging.WithComponent(logger, "analytics"),
		})
		if err != nil {
			logger.Error("failed to configure analytics sink", "error", err)
			os.Exit(1)
		}
		sink = redisSink
	}

	handler := api.NewHandler(repo, sessions, mediaStore)
	handler.Queue = queue
	handler.Analytics = sink
	handler.Logger = logger
	handler.Metrics = recorder

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("REELCAST_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("REELCAST_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "REELCAST_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "REELCAST_RATE_GLOBAL_BURST"),
			UploadLimit:   resolveInt(*uploadLimit, "REELCAST_RATE_UPLOAD_LIMIT"),
			UploadWindow:  resolveDuration(*uploadWindow, "REELCAST_RATE_UPLOAD_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*rateRedisAddr, os.Getenv("REELCAST_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*rateRedisPassword, os.Getenv("REELCAST_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*rateRedisTimeout, "REELCAST_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("REELCAST_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	ready := make(chan struct{})
	group.Go(func() error {
		return srv.Run(groupCtx, ready)
	})
	group.Go(func() error {
		select {
		case <-ready:
			logger.Info("ReelCast API listening", "addr", listenAddr)
			logger.Info("metrics endpoint available", "path", "/metrics")
		case <-groupCtx.Done():
		}
		return nil
	})
	purgeStop := startSessionPurgeWorker(groupCtx, logging.WithComponent(logger, "session-purger"), sessions, 15*time.Minute)

	err = group.Wait()
	purgeStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if qErr := queue.Shutdown(shutdownCtx); qErr != nil {
		logger.Warn("failed to stop transcode queue", "error", qErr)
	}
	if sErr := sink.Close(); sErr != nil {
		logger.Warn("failed to close analytics sink", "error", sErr)
	}
	if cErr := repo.Close(shutdownCtx); cErr != nil {
		logger.Warn("failed to close datastore", "error", cErr)
	}
	if sessionCloser != nil {
		if cErr := sessionCloser(shutdownCtx); cErr != nil {
			logger.Warn("failed to close session store", "error", cErr)
		}
	}

	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type sessionStoreConfig struct {
	Driver string
	DSN    string
}

func resolveSessionStoreConfig(flagDriver, envDriver, storageDriver, storageDSN, flagDSN, envDSN string) (sessionStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(flagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(envDriver))
	}

	sessionDSN := strings.TrimSpace(firstNonEmpty(flagDSN, envDSN))
	if driver == "" {
		switch {
		case sessionDSN != "":
			driver = "postgres"
		case storageDriver == "postgres":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}

	switch driver {
	case "", "memory":
		return sessionStoreConfig{Driver: "memory"}, nil
	case "postgres":
		if sessionDSN == "" {
			sessionDSN = strings.TrimSpace(storageDSN)
		}
		if sessionDSN == "" {
			return sessionStoreConfig{}, fmt.Errorf("postgres session store selected without DSN")
		}
		return sessionStoreConfig{Driver: "postgres", DSN: sessionDSN}, nil
	default:
		return sessionStoreConfig{}, fmt.Errorf("unsupported session store driver %q", driver)
	}
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("REELCAST_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt64(flagValue int64, envKey string) int64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseInt(strings.TrimSpace(env), 10, 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
