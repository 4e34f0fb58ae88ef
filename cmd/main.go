package main

import (
	"context"
	"errors"
	"log/slog"
	"marketchat/backend/internal/api/handler"
	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/localization"
	"marketchat/backend/internal/logging"
	"marketchat/backend/internal/objectstore"
	"marketchat/backend/internal/storage"
	"marketchat/backend/internal/telegram"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupStorage opens PostgreSQL and runs migrations, or falls back to the
// in-memory store when no DSN is configured.
func setupStorage(cfg config.Config, log *slog.Logger) (storage.Storage, error) {
	if cfg.DatabaseDSN == "" {
		log.Warn("storage.memory", "reason", "DATABASE_DSN is empty, data will not survive a restart")
		return storage.NewMemoryStore(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	s := storage.NewStorageService(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Info("storage.postgres.ready")
	return s, nil
}

// setupRelay connects Redis for cross-instance fan-out. nil when disabled.
func setupRelay(ctx context.Context, cfg config.Config, log *slog.Logger) (*chathub.RedisRelay, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	log.Info("relay.redis.ready", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	return chathub.NewRedisRelay(rdb, cfg.RedisChannel, log), nil
}

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	log.Info("marketchat.start", "addr", cfg.HTTPAddr)

	if cfg.JWTSecret == "" {
		log.Error("config.invalid", "err", "JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Залежності
	store, err := setupStorage(cfg, log)
	if err != nil {
		log.Error("storage.init.fail", "err", err)
		os.Exit(1)
	}

	deps := chathub.Deps{
		Storage:            store,
		Log:                log,
		StorageTimeout:     cfg.StorageTimeout,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
	}

	relay, err := setupRelay(ctx, cfg, log)
	if err != nil {
		log.Error("relay.init.fail", "err", err)
		os.Exit(1)
	}
	if relay != nil {
		deps.Relay = relay
	}

	if cfg.ObjectStoreURL != "" {
		deps.ObjectStore = objectstore.NewHTTPStore(cfg.ObjectStoreURL)
	}

	if cfg.TelegramBotToken != "" {
		localizer, err := localization.Bundled()
		if err != nil {
			log.Error("localization.init.fail", "err", err)
			os.Exit(1)
		}
		notifier, err := telegram.NewNotifier(cfg.TelegramBotToken, store, localizer, log)
		if err != nil {
			// Offline notifications are optional; chat keeps working without them.
			log.Warn("telegram.init.fail", "err", err)
		} else {
			deps.Notifier = notifier
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = chathub.NewMetrics(reg)

	// 2. Chat Hub
	hub := chathub.NewManagerService(deps)
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Error("relay.listen.fail", "err", err)
		}
	}()

	// 3. Gin та роутинг
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	h := handler.NewHandler(hub, verifier, verifier, handler.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SendQueueSize:  cfg.SendQueueSize,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		DevTokenIssue:  cfg.DevTokenIssue,
		Gatherer:       reg,
		Log:            log,
	})
	if cfg.DevTokenIssue {
		log.Warn("auth.dev_tokens.enabled")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http.listen.fail", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("marketchat.shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http.shutdown.fail", "err", err)
	}
	hub.Shutdown()
}
