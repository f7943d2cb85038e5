package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/RishiKendai/labcheck/internal/api"
	"github.com/RishiKendai/labcheck/internal/config"
	"github.com/RishiKendai/labcheck/internal/configs/env"
	"github.com/RishiKendai/labcheck/internal/extract"
	"github.com/RishiKendai/labcheck/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/labcheck/internal/infra/redis"
	"github.com/RishiKendai/labcheck/internal/ingest"
	"github.com/RishiKendai/labcheck/internal/logger"
	"github.com/RishiKendai/labcheck/internal/matchindex"
	"github.com/RishiKendai/labcheck/internal/metrics"
	"github.com/RishiKendai/labcheck/internal/plagiarism"
	"github.com/RishiKendai/labcheck/internal/repository"
	"github.com/RishiKendai/labcheck/internal/stream"
	"github.com/RishiKendai/labcheck/internal/textstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const extractorTimeout = 2 * time.Minute

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel)
	log.Info().
		Str("store", cfg.StoreDriver).
		Str("textStore", cfg.TextStoreDriver).
		Str("matchIndex", cfg.MatchIndexDriver).
		Bool("redis", cfg.RedisEnabled()).
		Msg("Starting labcheck server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer store.Close()

	texts, err := openTextStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open text store")
	}

	// Connect Redis
	var redisClient *redisInfra.Client
	if cfg.RedisEnabled() {
		redisClient, err = redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, 0)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Redis client")
		}
		defer redisClient.Close()
	}

	indexStore, err := openMatchIndexStore(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open match index")
	}
	index := matchindex.New(indexStore)

	var extractor extract.Extractor = extract.NewPDF()
	if cfg.ExtractorURL != "" {
		extractor = extract.NewRemote(cfg.ExtractorURL, cfg.ExtractorAPIKey, extractorTimeout)
		log.Info().Str("url", cfg.ExtractorURL).Msg("Using remote text extractor")
	}

	queue := plagiarism.NewQueue(ctx, cfg.QueueYield)
	defer queue.Close()

	opts := []plagiarism.ProcessorOption{plagiarism.WithJobTimeout(cfg.JobTimeout)}
	var statusReader api.StatusReader
	if redisClient != nil {
		statusCache := plagiarism.NewStatusCache(redisClient.Client)
		opts = append(opts, plagiarism.WithStatusPublisher(statusCache))
		statusReader = statusCache
	}
	processor := plagiarism.NewProcessor(queue, store, store, texts, index, opts...)

	if err := processor.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover unfinished checks")
	}

	ingestSvc := ingest.NewService(extractor, texts, store, processor, index)

	// Initialize Prometheus metrics
	metrics.InitPrometheus(queue.Pending)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.MetricsHandler())
	metricsServer := api.StartServer(metricsMux, cfg.MetricsPort, "metrics")

	// Start Redis consumer in background
	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()
	if redisClient != nil {
		consumer := newConsumer(cfg, redisClient, ingestSvc)
		go func() {
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Redis consumer error")
			}
		}()
		log.Info().Msg("Redis consumer started")
	}

	handler := api.NewHandler(cfg, store, ingestSvc, processor, queue, texts, statusReader)
	router := api.SetupRoutes(cfg, handler)
	srv := api.StartServer(router, cfg.ServerPort, "api")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}
	consumerCancel()
	queue.Close()
	if err := api.ShutdownServer(metricsServer, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewMongoStore(ctx, mongoClient)
		if err != nil {
			_ = mongoClient.Close(ctx)
			return nil, fmt.Errorf("failed to prepare MongoDB store: %w", err)
		}
		return store, nil
	default:
		if err := ensureParentDir(cfg.DatabasePath); err != nil {
			return nil, err
		}
		return repository.NewSQLite(cfg.DatabasePath)
	}
}

func openTextStore(ctx context.Context, cfg *config.Config) (textstore.Store, error) {
	switch cfg.TextStoreDriver {
	case config.TextStoreS3:
		return textstore.NewS3(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	default:
		return textstore.NewFS(cfg.StorageDir)
	}
}

func openMatchIndexStore(cfg *config.Config, redisClient *redisInfra.Client) (matchindex.Store, error) {
	switch cfg.MatchIndexDriver {
	case config.MatchIndexRedis:
		if redisClient == nil {
			return nil, errors.New("redis match index requires REDIS_HOST")
		}
		return matchindex.NewRedisStore(redisClient.Client, cfg.RedisMatchIndexKey), nil
	default:
		return matchindex.NewFileStore(cfg.MatchIndexPath)
	}
}

func newConsumer(cfg *config.Config, redisClient *redisInfra.Client, ingestSvc *ingest.Service) *stream.Consumer {
	retryHandler := stream.NewRetryHandler(redisClient.Client, cfg.RedisDeadLetterKey)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	log.Info().Str("consumer_name", consumerName).Msg("Redis stream consumer initialized")

	return stream.NewConsumer(
		redisClient.Client,
		cfg.RedisStreamKey,
		cfg.RedisConsumerGroup,
		consumerName,
		ingestSvc,
		retryHandler,
		cfg.StreamRetentionDuration,
	)
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
