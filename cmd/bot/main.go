package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/linepoll/linepoll/internal/api/http"
	appCodegen "github.com/linepoll/linepoll/internal/application/codegen"
	"github.com/linepoll/linepoll/internal/application/command"
	appGame "github.com/linepoll/linepoll/internal/application/game"
	"github.com/linepoll/linepoll/internal/application/scheduler"
	"github.com/linepoll/linepoll/internal/config"
	"github.com/linepoll/linepoll/internal/domain/game"
	"github.com/linepoll/linepoll/internal/infrastructure/cloudflare"
	"github.com/linepoll/linepoll/internal/infrastructure/filestore"
	"github.com/linepoll/linepoll/internal/infrastructure/postgres"
	"github.com/linepoll/linepoll/internal/infrastructure/redisstore"
	"github.com/linepoll/linepoll/internal/infrastructure/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, closeLog := newLogger(cfg.LogFile)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("storage error: %v", err)
	}
	defer closeStore()

	gw, err := telegram.New(cfg.TelegramToken, logger)
	if err != nil {
		log.Fatalf("telegram error: %v", err)
	}

	backend := cloudflare.New(cfg.CloudflareAccountID, cfg.CloudflareAuthToken, cfg.CloudflareModel, logger)
	generator := appCodegen.NewService(backend, logger)

	gameSvc := appGame.NewService(
		store,
		gw,
		generator,
		scheduler.NewTimerScheduler(),
		cfg.PollTimeout,
		cfg.SettleDelay,
		logger,
	)
	commandHandler := command.NewHandler(gameSvc, gw, cfg.AdminIDs, cfg.LogFile, logger)

	apiServer := httpapi.NewServer(gameSvc)
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	logger.Info().
		Str("storage", cfg.StorageBackend).
		Dur("poll_timeout", cfg.PollTimeout).
		Int("admins", len(cfg.AdminIDs)).
		Msg("bot started")

	// blocks until ctx is cancelled
	gw.Run(ctx, gameSvc.IngestVote, commandHandler.Handle)

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

// newLogger writes to stdout and to the log file backing the /logs command.
func newLogger(path string) (zerolog.Logger, func()) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger.Warn().Err(err).Str("path", path).Msg("log file unavailable, logging to stdout only")
		return logger, func() {}
	}
	logger := zerolog.New(io.MultiWriter(os.Stdout, file)).With().Timestamp().Logger()
	return logger, func() { _ = file.Close() }
}

func newStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (game.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(rdb, logger), func() { _ = rdb.Close() }, nil
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewSessionRepository(pool), pool.Close, nil
	default:
		return filestore.New(cfg.StorageFile, logger), func() {}, nil
	}
}
