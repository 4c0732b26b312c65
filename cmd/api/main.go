package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vastuchitra/internal/adapter/repo"
	"vastuchitra/internal/domain"
	"vastuchitra/internal/generation"
	"vastuchitra/internal/http/handlers"
	"vastuchitra/internal/http/httpapi"
	"vastuchitra/internal/infra"
	"vastuchitra/internal/providers/replicate"
	"vastuchitra/internal/quota"
	"vastuchitra/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	// Quota ledger backend
	var ledger domain.Ledger
	switch cfg.QuotaBackend {
	case "redis":
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer client.Close()
		ledger = quota.NewRedisLedger(client, cfg.DailyQuota)
	case "memory":
		ledger = quota.NewMemoryLedger(cfg.DailyQuota)
	default:
		ledger = quota.NewPostgresLedger(dbpool, cfg.DailyQuota)
	}

	// Durable artifact storage
	var store storage.ObjectStore
	if cfg.StorageBackend == "s3" {
		store, err = storage.NewS3Store(storage.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
	} else {
		store, err = storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	writer, err := storage.NewWriter(storage.WriterOptions{
		Store:        store,
		SignedURLTTL: cfg.SignedURLTTL,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize artifact writer")
	}

	provider, err := replicate.NewClient(replicate.Options{
		APIToken:        cfg.ReplicateAPIToken,
		BaseURL:         cfg.ReplicateBaseURL,
		ModelVersion:    cfg.ReplicateModelVersion,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.PollMaxAttempts,
		Logger:          &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize generation provider")
	}

	generator, err := generation.NewService(generation.ServiceOptions{
		Ledger:    ledger,
		Provider:  provider,
		Artifacts: writer,
		Records:   repo.NewRecordRepository(dbpool),
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize generation service")
	}

	app := handlers.NewApp(generator, ledger, logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
