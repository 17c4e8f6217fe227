package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"glowsalon/backend/internal/cache"
	"glowsalon/backend/internal/config"
	"glowsalon/backend/internal/events"
	"glowsalon/backend/internal/httpapi"
	"glowsalon/backend/internal/jobs"
	"glowsalon/backend/internal/logging"
	"glowsalon/backend/internal/service"
	"glowsalon/backend/internal/store"
	"glowsalon/backend/internal/store/memory"
	pgstore "glowsalon/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(startCtx); err != nil {
			logger.WithError(err).Fatal("apply migrations")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	var (
		reportCache cache.ReportCache = cache.NewMemoryReportCache()
		bus         events.Bus        = events.NewLocalBus()
		locker      *redislock.Client
	)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisReportCache(client, "salon:"+cfg.SalonID)
		if err := redisCache.Ping(startCtx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-process cache and events")
			_ = client.Close()
		} else {
			reportCache = redisCache
			bus = events.NewRedisBus(client, cfg.SalonID, logger)
			locker = redislock.New(client)
			closers = append(closers, client.Close)
			logger.Info("cache and events: redis")
		}
	} else {
		logger.Info("cache and events: in-process")
	}
	closers = append([]func() error{bus.Close}, closers...)

	svc := service.New(repo, service.Options{
		Cache:       reportCache,
		Bus:         bus,
		Logger:      logger,
		CacheTTL:    cfg.ReportCacheTTL(),
		ExamCodeTTL: cfg.ExamCodeTTL(),
	})

	runner := jobs.NewRollupRunner(svc, locker, cfg.SalonID, cfg.RollupInterval, logger)
	go runner.Run(ctx)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("salon backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.WithFields(logrus.Fields{"salon_id": cfg.SalonID}).Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.RollupInterval < time.Minute {
		return fmt.Errorf("ROLLUP_INTERVAL must be at least 1m")
	}
	return nil
}
